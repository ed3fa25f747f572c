package models

import "time"

// MilestoneSpec is the creation-time description of a milestone.
type MilestoneSpec struct {
	Title         string
	Description   string
	Amount        int64
	DueDate       time.Time
	ProofRequired string
}

// Milestone is a separately payable deliverable inside a bounty.
//
// Invariants:
//   - Paid implies Completed
//   - Completed is set once and never cleared
//   - ProofHash can be replaced only while Completed is false
type Milestone struct {
	Index            int        `json:"index"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Amount           int64      `json:"amount"`
	DueDate          time.Time  `json:"due_date"`
	ProofRequired    string     `json:"proof_required"`
	ProofHash        string     `json:"proof_hash,omitempty"`
	ProofSubmittedAt *time.Time `json:"proof_submitted_at,omitempty"`
	Completed        bool       `json:"completed"`
	Paid             bool       `json:"paid"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func (m Milestone) HasProof() bool {
	return m.ProofHash != ""
}
