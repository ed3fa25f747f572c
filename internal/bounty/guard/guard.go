// Package guard derives per-bounty roles for a caller and enforces the
// permission checks every mutating bounty command routes through.
package guard

import (
	"lexbounty/internal/bounty/models"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
)

// Role is a relationship between an account and one bounty.
type Role string

const (
	RoleNGO    Role = "ngo"
	RoleLawyer Role = "lawyer"
	RoleDonor  Role = "donor"
)

// Roles returns every role caller holds on b. An account may hold several,
// e.g. an NGO that also donated.
func Roles(b *models.Bounty, caller id.AccountID) []Role {
	if b == nil || caller.IsNil() {
		return nil
	}
	var roles []Role
	if b.NGO == caller {
		roles = append(roles, RoleNGO)
	}
	if b.HasLawyer() && b.Lawyer == caller {
		roles = append(roles, RoleLawyer)
	}
	if IsDonor(b, caller) {
		roles = append(roles, RoleDonor)
	}
	return roles
}

// HasRole reports whether caller holds role on b.
func HasRole(b *models.Bounty, caller id.AccountID, role Role) bool {
	for _, r := range Roles(b, caller) {
		if r == role {
			return true
		}
	}
	return false
}

// RequireNGO fails unless caller owns b.
func RequireNGO(b *models.Bounty, caller id.AccountID) error {
	if caller.IsNil() || b.NGO != caller {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the bounty owner")
	}
	return nil
}

// RequireLawyer fails unless caller is the lawyer assigned to b.
func RequireLawyer(b *models.Bounty, caller id.AccountID) error {
	if caller.IsNil() || !b.HasLawyer() || b.Lawyer != caller {
		return dErrors.New(dErrors.CodeForbidden, "caller is not the assigned lawyer")
	}
	return nil
}

// IsDonor reports whether caller has a contribution on b. Used for refund
// attribution only; it never authorizes a command.
func IsDonor(b *models.Bounty, caller id.AccountID) bool {
	for _, fc := range b.Contributions {
		if fc.Donor == caller {
			return true
		}
	}
	return false
}

// RequireAuthenticated fails when no caller identity is present.
func RequireAuthenticated(caller id.AccountID) error {
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	return nil
}
