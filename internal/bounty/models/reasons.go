package models

// Machine-readable reasons attached to coded errors.
const (
	ReasonMilestoneSumMismatch = "milestone_sum_mismatch"
	ReasonDueDateInPast        = "due_date_in_past"
	ReasonNonPositiveAmount    = "non_positive_amount"
	ReasonNoMilestones         = "no_milestones"
	ReasonExceedsFundingGoal   = "exceeds_funding_goal"
	ReasonInsufficientBalance  = "insufficient_balance"
	ReasonInsufficientEscrow   = "insufficient_escrow"
	ReasonFundingIncomplete    = "funding_incomplete"
	ReasonUnknownProof         = "unknown_proof"
	ReasonMalformedProof       = "malformed_proof"
)
