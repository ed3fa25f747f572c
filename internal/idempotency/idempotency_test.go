package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "lexbounty/pkg/domain"
	"lexbounty/pkg/requestcontext"
)

func countingHandler(calls *atomic.Int32, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"call":`+strconv.Itoa(int(n))+`}`)
	})
}

func newRequest(actor id.AccountID, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/bounties/1/fund", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	return req.WithContext(requestcontext.WithActorID(req.Context(), actor))
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMiddleware(t *testing.T) {
	actor := id.AccountID(uuid.New())

	t.Run("replays first response", func(t *testing.T) {
		var calls atomic.Int32
		h := Middleware(NewInMemory(), time.Hour, discard())(countingHandler(&calls, http.StatusCreated))

		first := httptest.NewRecorder()
		h.ServeHTTP(first, newRequest(actor, "k1"))
		second := httptest.NewRecorder()
		h.ServeHTTP(second, newRequest(actor, "k1"))

		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
		assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	})

	t.Run("keys are scoped per actor", func(t *testing.T) {
		var calls atomic.Int32
		h := Middleware(NewInMemory(), time.Hour, discard())(countingHandler(&calls, http.StatusOK))

		h.ServeHTTP(httptest.NewRecorder(), newRequest(actor, "k1"))
		h.ServeHTTP(httptest.NewRecorder(), newRequest(id.AccountID(uuid.New()), "k1"))

		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("requests without key always run", func(t *testing.T) {
		var calls atomic.Int32
		h := Middleware(NewInMemory(), time.Hour, discard())(countingHandler(&calls, http.StatusOK))
		h.ServeHTTP(httptest.NewRecorder(), newRequest(actor, ""))
		h.ServeHTTP(httptest.NewRecorder(), newRequest(actor, ""))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("server errors are not stored", func(t *testing.T) {
		var calls atomic.Int32
		h := Middleware(NewInMemory(), time.Hour, discard())(countingHandler(&calls, http.StatusServiceUnavailable))
		h.ServeHTTP(httptest.NewRecorder(), newRequest(actor, "k2"))
		h.ServeHTTP(httptest.NewRecorder(), newRequest(actor, "k2"))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("rejections are replayed", func(t *testing.T) {
		var calls atomic.Int32
		h := Middleware(NewInMemory(), time.Hour, discard())(countingHandler(&calls, http.StatusUnprocessableEntity))
		h.ServeHTTP(httptest.NewRecorder(), newRequest(actor, "k3"))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest(actor, "k3"))
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("oversized key is rejected", func(t *testing.T) {
		var calls atomic.Int32
		h := Middleware(NewInMemory(), time.Hour, discard())(countingHandler(&calls, http.StatusOK))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest(actor, strings.Repeat("x", maxKeyLength+1)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, calls.Load())
	})

	t.Run("server errors release the key for a retry", func(t *testing.T) {
		var calls atomic.Int32
		store := NewInMemory()
		h := Middleware(store, time.Hour, discard())(countingHandler(&calls, http.StatusInternalServerError))
		h.ServeHTTP(httptest.NewRecorder(), newRequest(actor, "k5"))

		_, found, err := store.Get(context.Background(), Key(actor.String(), http.MethodPost, "/bounties/1/fund", "k5"))
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("panicking handler releases the key", func(t *testing.T) {
		store := NewInMemory()
		h := Middleware(store, time.Hour, discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		assert.Panics(t, func() { h.ServeHTTP(httptest.NewRecorder(), newRequest(actor, "k6")) })

		reserved, err := store.Reserve(context.Background(), Key(actor.String(), http.MethodPost, "/bounties/1/fund", "k6"), time.Minute)
		require.NoError(t, err)
		assert.True(t, reserved)
	})

	t.Run("store outage runs the request", func(t *testing.T) {
		var calls atomic.Int32
		h := Middleware(failingStore{}, time.Hour, discard())(countingHandler(&calls, http.StatusOK))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, newRequest(actor, "k4"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int32(1), calls.Load())
	})
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*Record, bool, error) {
	return nil, false, errors.New("down")
}

func (failingStore) Reserve(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("down")
}

func (failingStore) Save(context.Context, string, Record, time.Duration) error {
	return errors.New("down")
}

func (failingStore) Release(context.Context, string) error {
	return errors.New("down")
}

func TestMiddlewareInFlightDuplicate(t *testing.T) {
	actor := id.AccountID(uuid.New())
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		close(entered)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"ok":true}`)
	})
	h := Middleware(NewInMemory(), time.Hour, discard())(slow)

	first := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(first, newRequest(actor, "dup"))
	}()
	<-entered

	dup := httptest.NewRecorder()
	h.ServeHTTP(dup, newRequest(actor, "dup"))
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, "1", dup.Header().Get("Retry-After"))
	assert.Contains(t, dup.Body.String(), `"conflict"`)

	close(release)
	<-done
	require.Equal(t, http.StatusCreated, first.Code)

	after := httptest.NewRecorder()
	h.ServeHTTP(after, newRequest(actor, "dup"))
	assert.Equal(t, http.StatusCreated, after.Code)
	assert.Equal(t, "true", after.Header().Get(HeaderReplayed))
	assert.JSONEq(t, `{"ok":true}`, after.Body.String())
	assert.Equal(t, int32(1), calls.Load())
}

func TestMiddlewareConcurrentDuplicatesRunOnce(t *testing.T) {
	actor := id.AccountID(uuid.New())
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusCreated)
	})
	h := Middleware(NewInMemory(), time.Hour, discard())(handler)

	const n = 16
	codes := make(chan int, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			w := httptest.NewRecorder()
			h.ServeHTTP(w, newRequest(actor, "burst"))
			codes <- w.Code
		}()
	}
	close(start)
	wg.Wait()
	close(codes)

	assert.Equal(t, int32(1), calls.Load())
	for code := range codes {
		assert.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code)
	}
}

func TestInMemoryExpiry(t *testing.T) {
	store := NewInMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", Record{Status: 201, Body: []byte("a")}, time.Minute))
	require.NoError(t, store.Save(ctx, "k", Record{Status: 409, Body: []byte("b")}, time.Minute))

	rec, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 201, rec.Status)

	now = now.Add(2 * time.Minute)
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInMemoryReservation(t *testing.T) {
	store := NewInMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation must lose")

	rec, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.Pending)

	require.NoError(t, store.Save(ctx, "k", Record{Status: 201}, time.Hour))
	require.NoError(t, store.Release(ctx, "k"), "release leaves a completed record alone")
	rec, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, rec.Pending)
	assert.Equal(t, 201, rec.Status)

	ok, err = store.Reserve(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	now = now.Add(2 * time.Minute)
	ok, err = store.Reserve(ctx, "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a stale reservation expires")
}
