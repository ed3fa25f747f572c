package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "lexbounty/pkg/domain-errors"
)

func TestParseAccountID(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAccountID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseAccountID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseAccountID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		raw := uuid.New()
		got, err := ParseAccountID(raw.String())
		require.NoError(t, err)
		assert.Equal(t, AccountID(raw), got)
		assert.False(t, got.IsNil())
	})
}

func TestParseID_HostileInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE bounties;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},
		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBountyID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	valid := uuid.New().String()
	for _, input := range []string{valid, "", "invalid", uuid.Nil.String()} {
		_, errAccount := ParseAccountID(input)
		_, errBounty := ParseBountyID(input)
		_, errContribution := ParseContributionID(input)

		assert.Equal(t, errAccount == nil, errBounty == nil, "input %q", input)
		assert.Equal(t, errAccount == nil, errContribution == nil, "input %q", input)
	}
}

func TestNewIDsAreNeverNil(t *testing.T) {
	assert.False(t, NewBountyID().IsNil())
	assert.False(t, NewContributionID().IsNil())
	assert.True(t, AccountID{}.IsNil())
}

func TestIDsMarshalAsText(t *testing.T) {
	raw := uuid.New()
	b, err := BountyID(raw).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, raw.String(), string(b))

	var back BountyID
	require.NoError(t, back.UnmarshalText(b))
	assert.Equal(t, BountyID(raw), back)
}
