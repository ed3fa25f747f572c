package models

import (
	dErrors "lexbounty/pkg/domain-errors"
)

// BountyStatus is the lifecycle state of a bounty.
type BountyStatus string

const (
	StatusOpen       BountyStatus = "open"
	StatusInProgress BountyStatus = "in_progress"
	StatusCompleted  BountyStatus = "completed"
	StatusCancelled  BountyStatus = "cancelled"
)

var bountyTransitions = map[BountyStatus][]BountyStatus{
	StatusOpen:       {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

// IsValid reports whether s is a known status.
func (s BountyStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s BountyStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether the lifecycle allows s -> next.
func (s BountyStatus) CanTransitionTo(next BountyStatus) bool {
	for _, allowed := range bountyTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BountyStatus) String() string { return string(s) }

// ParseBountyStatus validates a status received from a client.
func ParseBountyStatus(raw string) (BountyStatus, error) {
	s := BountyStatus(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown bounty status: "+raw)
	}
	return s, nil
}
