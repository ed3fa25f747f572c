package guard

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lexbounty/internal/bounty/models"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
)

func account() id.AccountID { return id.AccountID(uuid.New()) }

func openBounty(t *testing.T, ngo id.AccountID) *models.Bounty {
	t.Helper()
	now := time.Now()
	b, err := models.NewBounty(id.NewBountyID(), ngo, models.BountySpec{
		Title:       "Wrongful dismissal",
		DueDate:     now.Add(24 * time.Hour),
		TotalAmount: 100,
		Milestones:  []models.MilestoneSpec{{Title: "Brief", Amount: 100}},
	}, now)
	require.NoError(t, err)
	return b
}

func TestRoles(t *testing.T) {
	ngo, lawyer, donor, stranger := account(), account(), account(), account()
	b := openBounty(t, ngo)
	b.ApplyFunding(id.NewContributionID(), donor, 10, time.Now())
	b.ApplyFunding(id.NewContributionID(), ngo, 10, time.Now())
	b.ApplyLawyerAssignment(lawyer, time.Now())

	assert.ElementsMatch(t, []Role{RoleNGO, RoleDonor}, Roles(b, ngo))
	assert.Equal(t, []Role{RoleLawyer}, Roles(b, lawyer))
	assert.Equal(t, []Role{RoleDonor}, Roles(b, donor))
	assert.Empty(t, Roles(b, stranger))
	assert.Empty(t, Roles(b, id.AccountID{}))
	assert.True(t, HasRole(b, donor, RoleDonor))
	assert.False(t, HasRole(b, donor, RoleNGO))
}

func TestRequireNGO(t *testing.T) {
	ngo := account()
	b := openBounty(t, ngo)

	assert.NoError(t, RequireNGO(b, ngo))
	assert.True(t, dErrors.HasCode(RequireNGO(b, account()), dErrors.CodeForbidden))
	assert.True(t, dErrors.HasCode(RequireNGO(b, id.AccountID{}), dErrors.CodeForbidden))
}

func TestRequireLawyer(t *testing.T) {
	ngo, lawyer := account(), account()
	b := openBounty(t, ngo)

	t.Run("no lawyer assigned", func(t *testing.T) {
		assert.True(t, dErrors.HasCode(RequireLawyer(b, lawyer), dErrors.CodeForbidden))
		assert.True(t, dErrors.HasCode(RequireLawyer(b, id.AccountID{}), dErrors.CodeForbidden))
	})

	b.ApplyLawyerAssignment(lawyer, time.Now())

	t.Run("assigned lawyer passes", func(t *testing.T) {
		assert.NoError(t, RequireLawyer(b, lawyer))
	})
	t.Run("ngo is not the lawyer", func(t *testing.T) {
		assert.True(t, dErrors.HasCode(RequireLawyer(b, ngo), dErrors.CodeForbidden))
	})
}

func TestRequireAuthenticated(t *testing.T) {
	assert.NoError(t, RequireAuthenticated(account()))
	assert.True(t, dErrors.HasCode(RequireAuthenticated(id.AccountID{}), dErrors.CodeUnauthorized))
}
