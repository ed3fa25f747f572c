package handler

import (
	"time"

	"github.com/samber/lo"

	"lexbounty/internal/bounty/models"
	"lexbounty/internal/reputation"
	id "lexbounty/pkg/domain"
)

type MilestoneRequest struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Amount        int64     `json:"amount"`
	DueDate       time.Time `json:"due_date"`
	ProofRequired string    `json:"proof_required"`
}

type CreateBountyRequest struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Category    string             `json:"category"`
	Location    string             `json:"location"`
	DueDate     time.Time          `json:"due_date"`
	TotalAmount int64              `json:"total_amount"`
	Milestones  []MilestoneRequest `json:"milestones"`
}

func (r CreateBountyRequest) toSpec() models.BountySpec {
	return models.BountySpec{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Location:    r.Location,
		DueDate:     r.DueDate,
		TotalAmount: r.TotalAmount,
		Milestones: lo.Map(r.Milestones, func(m MilestoneRequest, _ int) models.MilestoneSpec {
			return models.MilestoneSpec{
				Title:         m.Title,
				Description:   m.Description,
				Amount:        m.Amount,
				DueDate:       m.DueDate,
				ProofRequired: m.ProofRequired,
			}
		}),
	}
}

type FundBountyRequest struct {
	Amount int64 `json:"amount"`
}

type AssignLawyerRequest struct {
	LawyerID string `json:"lawyer_id"`
}

type SubmitProofRequest struct {
	ProofHash string `json:"proof_hash"`
}

type BountyResponse struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"title"`
	Description    string                 `json:"description"`
	Category       string                 `json:"category"`
	Location       string                 `json:"location"`
	DueDate        time.Time              `json:"due_date"`
	Status         models.BountyStatus    `json:"status"`
	NGO            string                 `json:"ngo_id"`
	Lawyer         string                 `json:"lawyer_id,omitempty"`
	TotalAmount    int64                  `json:"total_amount"`
	RaisedAmount   int64                  `json:"raised_amount"`
	PaidAmount     int64                  `json:"paid_amount"`
	RefundedAmount int64                  `json:"refunded_amount"`
	EscrowBalance  int64                  `json:"escrow_balance"`
	Milestones     []models.Milestone     `json:"milestones"`
	Contributions  []ContributionResponse `json:"contributions"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

type ContributionResponse struct {
	ID         string     `json:"id"`
	BountyID   string     `json:"bounty_id"`
	Donor      string     `json:"donor_id"`
	Amount     int64      `json:"amount"`
	CreatedAt  time.Time  `json:"created_at"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
}

type ListBountiesResponse struct {
	Bounties []BountyResponse `json:"bounties"`
}

type ListContributionsResponse struct {
	Contributions []ContributionResponse `json:"contributions"`
}

type ListEventsResponse struct {
	Events []models.Event `json:"events"`
}

type StoreProofResponse struct {
	Hash string `json:"hash"`
}

type ReputationResponse struct {
	LawyerID            string `json:"lawyer_id"`
	CompletedMilestones int    `json:"completed_milestones"`
	DistinctBounties    int    `json:"distinct_bounties"`
}

func toBountyResponse(b *models.Bounty) BountyResponse {
	resp := BountyResponse{
		ID:             b.ID.String(),
		Title:          b.Title,
		Description:    b.Description,
		Category:       b.Category,
		Location:       b.Location,
		DueDate:        b.DueDate,
		Status:         b.Status,
		NGO:            b.NGO.String(),
		TotalAmount:    b.TotalAmount,
		RaisedAmount:   b.RaisedAmount,
		PaidAmount:     b.PaidAmount(),
		RefundedAmount: b.RefundedAmount,
		EscrowBalance:  b.EscrowBalance(),
		Milestones:     b.Milestones,
		Contributions:  toContributionResponses(b.Contributions),
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
	if b.HasLawyer() {
		resp.Lawyer = b.Lawyer.String()
	}
	return resp
}

func toContributionResponse(c models.FundingContribution, _ int) ContributionResponse {
	return ContributionResponse{
		ID:         c.ID.String(),
		BountyID:   c.BountyID.String(),
		Donor:      c.Donor.String(),
		Amount:     c.Amount,
		CreatedAt:  c.CreatedAt,
		RefundedAt: c.RefundedAt,
	}
}

func toContributionResponses(in []models.FundingContribution) []ContributionResponse {
	return lo.Map(in, toContributionResponse)
}

func toReputationResponse(lawyer id.AccountID, s *reputation.Summary) ReputationResponse {
	return ReputationResponse{
		LawyerID:            lawyer.String(),
		CompletedMilestones: s.CompletedMilestones,
		DistinctBounties:    s.DistinctBounties,
	}
}
