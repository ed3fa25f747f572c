package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"lexbounty/internal/bounty/escrow"
	"lexbounty/internal/bounty/models"
	"lexbounty/internal/idempotency"
	"lexbounty/internal/platform/middleware"
	"lexbounty/internal/reputation"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
	"lexbounty/pkg/platform/httputil"
	"lexbounty/pkg/requestcontext"
)

// maxProofSize bounds uploaded proof documents.
const maxProofSize = 10 << 20

// Service defines the escrow engine operations the HTTP surface exposes.
type Service interface {
	CreateBounty(ctx context.Context, ngo id.AccountID, spec models.BountySpec) (*models.Bounty, error)
	FundBounty(ctx context.Context, donor id.AccountID, bountyID id.BountyID, amount int64) (*models.FundingContribution, error)
	AssignLawyer(ctx context.Context, ngo id.AccountID, bountyID id.BountyID, lawyer id.AccountID) (*models.Bounty, error)
	CancelBounty(ctx context.Context, ngo id.AccountID, bountyID id.BountyID) (*models.Bounty, error)
	SubmitMilestoneProof(ctx context.Context, lawyer id.AccountID, bountyID id.BountyID, index int, proofHash string) (*models.Milestone, error)
	VerifyMilestone(ctx context.Context, ngo id.AccountID, bountyID id.BountyID, index int) (*models.Bounty, error)

	GetBounty(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error)
	GetMilestone(ctx context.Context, bountyID id.BountyID, index int) (*models.Milestone, error)
	ListBountiesByStatus(ctx context.Context, status models.BountyStatus) ([]*models.Bounty, error)
	ListContributionsByDonor(ctx context.Context, donor id.AccountID) ([]models.FundingContribution, error)
	GetEscrowBalance(ctx context.Context, bountyID id.BountyID) (*escrow.Snapshot, error)
	ListEvents(ctx context.Context, bountyID id.BountyID) ([]models.Event, error)
	GetReputation(ctx context.Context, lawyer id.AccountID) (*reputation.Summary, error)
	StoreProof(ctx context.Context, content []byte) (string, error)
}

// Handler serves the bounty marketplace API.
type Handler struct {
	logger         *slog.Logger
	service        Service
	jwtValidator   middleware.JWTValidator
	idempotency    idempotency.Store
	idempotencyTTL time.Duration
}

// New creates a new bounty Handler. A nil idempotency store disables
// Idempotency-Key replay.
func New(
	service Service,
	logger *slog.Logger,
	jwtValidator middleware.JWTValidator,
	idem idempotency.Store,
	idempotencyTTL time.Duration) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		jwtValidator:   jwtValidator,
		idempotency:    idem,
		idempotencyTTL: idempotencyTTL,
	}
}

// Register registers the bounty routes with the chi router. Reads of public
// bounty data are anonymous; everything acting as a caller requires a token.
func (h *Handler) Register(r chi.Router) {
	r.Get("/bounties", h.handleListBounties)
	r.Get("/bounties/{id}", h.handleGetBounty)
	r.Get("/bounties/{id}/milestones/{index}", h.handleGetMilestone)
	r.Get("/bounties/{id}/escrow", h.handleGetEscrow)
	r.Get("/bounties/{id}/events", h.handleListEvents)
	r.Get("/lawyers/{id}/reputation", h.handleGetReputation)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		if h.idempotency != nil {
			r.Use(idempotency.Middleware(h.idempotency, h.idempotencyTTL, h.logger))
		}
		r.Post("/bounties", h.handleCreateBounty)
		r.Post("/bounties/{id}/fund", h.handleFundBounty)
		r.Post("/bounties/{id}/lawyer", h.handleAssignLawyer)
		r.Post("/bounties/{id}/cancel", h.handleCancelBounty)
		r.Post("/bounties/{id}/milestones/{index}/proof", h.handleSubmitProof)
		r.Post("/bounties/{id}/milestones/{index}/verify", h.handleVerifyMilestone)
		r.Get("/contributions", h.handleListContributions)
		r.Post("/proofs", h.handleStoreProof)
	})
}

func (h *Handler) handleCreateBounty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateBountyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.reject(ctx, w, "invalid create bounty request", err)
		return
	}
	b, err := h.service.CreateBounty(ctx, requestcontext.ActorID(ctx), req.toSpec())
	if err != nil {
		h.reject(ctx, w, "create bounty failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toBountyResponse(b))
}

func (h *Handler) handleFundBounty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, ok := h.bountyID(w, r)
	if !ok {
		return
	}
	var req FundBountyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.reject(ctx, w, "invalid fund request", err)
		return
	}
	c, err := h.service.FundBounty(ctx, requestcontext.ActorID(ctx), bountyID, req.Amount)
	if err != nil {
		h.reject(ctx, w, "fund bounty failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toContributionResponses([]models.FundingContribution{*c})[0])
}

func (h *Handler) handleAssignLawyer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, ok := h.bountyID(w, r)
	if !ok {
		return
	}
	var req AssignLawyerRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.reject(ctx, w, "invalid assign lawyer request", err)
		return
	}
	lawyer, err := id.ParseAccountID(req.LawyerID)
	if err != nil {
		h.reject(ctx, w, "invalid lawyer id", err)
		return
	}
	b, err := h.service.AssignLawyer(ctx, requestcontext.ActorID(ctx), bountyID, lawyer)
	if err != nil {
		h.reject(ctx, w, "assign lawyer failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBountyResponse(b))
}

func (h *Handler) handleCancelBounty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, ok := h.bountyID(w, r)
	if !ok {
		return
	}
	b, err := h.service.CancelBounty(ctx, requestcontext.ActorID(ctx), bountyID)
	if err != nil {
		h.reject(ctx, w, "cancel bounty failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBountyResponse(b))
}

func (h *Handler) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, index, ok := h.milestoneRef(w, r)
	if !ok {
		return
	}
	var req SubmitProofRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.reject(ctx, w, "invalid proof request", err)
		return
	}
	m, err := h.service.SubmitMilestoneProof(ctx, requestcontext.ActorID(ctx), bountyID, index, req.ProofHash)
	if err != nil {
		h.reject(ctx, w, "submit milestone proof failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) handleVerifyMilestone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, index, ok := h.milestoneRef(w, r)
	if !ok {
		return
	}
	b, err := h.service.VerifyMilestone(ctx, requestcontext.ActorID(ctx), bountyID, index)
	if err != nil {
		h.reject(ctx, w, "verify milestone failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBountyResponse(b))
}

func (h *Handler) handleListBounties(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := models.BountyStatus(r.URL.Query().Get("status"))
	bounties, err := h.service.ListBountiesByStatus(ctx, status)
	if err != nil {
		h.reject(ctx, w, "list bounties failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListBountiesResponse{
		Bounties: lo.Map(bounties, func(b *models.Bounty, _ int) BountyResponse { return toBountyResponse(b) }),
	})
}

func (h *Handler) handleGetBounty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, ok := h.bountyID(w, r)
	if !ok {
		return
	}
	b, err := h.service.GetBounty(ctx, bountyID)
	if err != nil {
		h.reject(ctx, w, "get bounty failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toBountyResponse(b))
}

func (h *Handler) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, index, ok := h.milestoneRef(w, r)
	if !ok {
		return
	}
	m, err := h.service.GetMilestone(ctx, bountyID, index)
	if err != nil {
		h.reject(ctx, w, "get milestone failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, m)
}

func (h *Handler) handleGetEscrow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, ok := h.bountyID(w, r)
	if !ok {
		return
	}
	snap, err := h.service.GetEscrowBalance(ctx, bountyID)
	if err != nil {
		h.reject(ctx, w, "get escrow balance failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bountyID, ok := h.bountyID(w, r)
	if !ok {
		return
	}
	events, err := h.service.ListEvents(ctx, bountyID)
	if err != nil {
		h.reject(ctx, w, "list events failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListEventsResponse{Events: events})
}

func (h *Handler) handleListContributions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contributions, err := h.service.ListContributionsByDonor(ctx, requestcontext.ActorID(ctx))
	if err != nil {
		h.reject(ctx, w, "list contributions failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListContributionsResponse{Contributions: toContributionResponses(contributions)})
}

func (h *Handler) handleStoreProof(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	content, err := io.ReadAll(io.LimitReader(r.Body, maxProofSize+1))
	if err != nil {
		h.reject(ctx, w, "read proof body failed", dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable request body"))
		return
	}
	if len(content) > maxProofSize {
		h.reject(ctx, w, "proof too large", dErrors.New(dErrors.CodeValidation, "proof document exceeds 10MiB"))
		return
	}
	hash, err := h.service.StoreProof(ctx, content)
	if err != nil {
		h.reject(ctx, w, "store proof failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, StoreProofResponse{Hash: hash})
}

func (h *Handler) handleGetReputation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lawyer, err := id.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		h.reject(ctx, w, "invalid lawyer id", err)
		return
	}
	summary, err := h.service.GetReputation(ctx, lawyer)
	if err != nil {
		h.reject(ctx, w, "get reputation failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toReputationResponse(lawyer, summary))
}

func (h *Handler) bountyID(w http.ResponseWriter, r *http.Request) (id.BountyID, bool) {
	bountyID, err := id.ParseBountyID(chi.URLParam(r, "id"))
	if err != nil {
		h.reject(r.Context(), w, "invalid bounty id", err)
		return id.BountyID{}, false
	}
	return bountyID, true
}

func (h *Handler) milestoneRef(w http.ResponseWriter, r *http.Request) (id.BountyID, int, bool) {
	bountyID, ok := h.bountyID(w, r)
	if !ok {
		return id.BountyID{}, 0, false
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		h.reject(r.Context(), w, "invalid milestone index",
			dErrors.Wrap(err, dErrors.CodeBadRequest, "milestone index must be an integer"))
		return id.BountyID{}, 0, false
	}
	return bountyID, index, true
}

// reject logs err at a level matching its status and writes the error body.
func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err.Error(),
	}
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
