package proofs

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	h := Hash([]byte("court filing"))
	assert.True(t, strings.HasPrefix(h, HashPrefix))
	assert.Len(t, h, len(HashPrefix)+64)
	assert.Equal(t, h, Hash([]byte("court filing")))
	assert.NotEqual(t, h, Hash([]byte("court filing v2")))
	assert.True(t, IsWellFormed(h))
}

func TestIsWellFormed(t *testing.T) {
	assert.False(t, IsWellFormed(""))
	assert.False(t, IsWellFormed("md5:abc"))
	assert.False(t, IsWellFormed(HashPrefix+"zz"))
	assert.False(t, IsWellFormed(HashPrefix+strings.Repeat("g", 64)))
}

func TestInMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewInMemory()

	_, err := r.Store(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	h, err := r.Store(ctx, []byte("hearing minutes"))
	require.NoError(t, err)

	ok, err := r.Exists(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(ctx, Hash([]byte("never stored")))
	require.NoError(t, err)
	assert.False(t, ok)
}
