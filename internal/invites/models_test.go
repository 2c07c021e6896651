package invites

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/planora/planora/internal/perm"
	"github.com/stretchr/testify/require"
)

func sampleInvite(expiresAt time.Time, usedAt *time.Time) *Invite {
	return &Invite{
		TokenHash:     HashToken("pli_test"),
		StakeholderID: uuid.New(),
		Email:         "jane@x.com",
		DefaultRole:   perm.RoleManager,
		CreatedAt:     time.Now().UTC().Add(-time.Hour),
		ExpiresAt:     expiresAt,
		UsedAt:        usedAt,
	}
}

func TestClassify_Valid(t *testing.T) {
	now := time.Now().UTC()
	inv := sampleInvite(now.Add(24*time.Hour), nil)
	require.Equal(t, "", classify(inv, now))
}

func TestClassify_Expired(t *testing.T) {
	now := time.Now().UTC()
	inv := sampleInvite(now.Add(-time.Second), nil)
	require.Equal(t, ReasonExpired, classify(inv, now))

	// Exactly at the boundary counts as expired.
	inv = sampleInvite(now, nil)
	require.Equal(t, ReasonExpired, classify(inv, now))
}

func TestClassify_AlreadyUsed(t *testing.T) {
	now := time.Now().UTC()
	used := now.Add(-time.Minute)

	inv := sampleInvite(now.Add(24*time.Hour), &used)
	require.Equal(t, ReasonAlreadyUsed, classify(inv, now))

	// Used wins over expired: redemption state is the more specific answer.
	inv = sampleInvite(now.Add(-time.Hour), &used)
	require.Equal(t, ReasonAlreadyUsed, classify(inv, now))
}

func TestClassify_Missing(t *testing.T) {
	require.Equal(t, ReasonNotFound, classify(nil, time.Now().UTC()))
}
