// Package reputation records verified milestone completions per lawyer.
package reputation

import (
	"time"

	id "lexbounty/pkg/domain"
)

// Completion is one verified milestone credited to a lawyer.
type Completion struct {
	Lawyer         id.AccountID `json:"lawyer_id"`
	BountyID       id.BountyID  `json:"bounty_id"`
	MilestoneIndex int          `json:"milestone_index"`
	RecordedAt     time.Time    `json:"recorded_at"`
}

// Summary is the public reputation view of a lawyer.
type Summary struct {
	Lawyer              id.AccountID `json:"lawyer_id"`
	CompletedMilestones int          `json:"completed_milestones"`
	DistinctBounties    int          `json:"distinct_bounties"`
}
