package identity_test

import (
	"context"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := identity.GenerateOpaqueToken()
	require.NoError(t, err)

	b, err := identity.GenerateOpaqueToken()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "+")
	assert.NotContains(t, a, "/")
	assert.NotContains(t, a, "=")
}

func TestEphemeralTokens_IssueAndConsume(t *testing.T) {
	store := identity.NewEphemeralTokensRepository(setupTestDB(t))
	userID := uuid.New()

	token, err := store.Issue(context.Background(), identity.PurposeEmailVerification, userID, identity.VerificationTokenTTL)
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)
	assert.False(t, token.Used)

	got, err := store.Consume(context.Background(), identity.PurposeEmailVerification, token.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestEphemeralTokens_ConsumeTwiceFails(t *testing.T) {
	store := identity.NewEphemeralTokensRepository(setupTestDB(t))
	userID := uuid.New()

	token, err := store.Issue(context.Background(), identity.PurposePasswordReset, userID, identity.ResetTokenTTL)
	require.NoError(t, err)

	_, err = store.Consume(context.Background(), identity.PurposePasswordReset, token.Token)
	require.NoError(t, err)

	_, err = store.Consume(context.Background(), identity.PurposePasswordReset, token.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrEphemeralUsed)
}

func TestEphemeralTokens_ConsumeUnknownToken(t *testing.T) {
	store := identity.NewEphemeralTokensRepository(setupTestDB(t))

	_, err := store.Consume(context.Background(), identity.PurposeEmailVerification, "no-such-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrEphemeralNotFound)
}

func TestEphemeralTokens_ConsumeWrongPurpose(t *testing.T) {
	store := identity.NewEphemeralTokensRepository(setupTestDB(t))
	userID := uuid.New()

	token, err := store.Issue(context.Background(), identity.PurposeEmailVerification, userID, identity.VerificationTokenTTL)
	require.NoError(t, err)

	// a verification token must not redeem as a reset token
	_, err = store.Consume(context.Background(), identity.PurposePasswordReset, token.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrEphemeralNotFound)
}

func TestEphemeralTokens_ConsumeExpired(t *testing.T) {
	current := time.Now()
	store := identity.NewEphemeralTokensRepository(setupTestDB(t), identity.WithEphemeralClock(func() time.Time {
		return current
	}))
	userID := uuid.New()

	token, err := store.Issue(context.Background(), identity.PurposeEmailVerification, userID, identity.VerificationTokenTTL)
	require.NoError(t, err)

	current = current.Add(identity.VerificationTokenTTL + time.Minute)

	_, err = store.Consume(context.Background(), identity.PurposeEmailVerification, token.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrEphemeralExpired)
}

func TestEphemeralTokens_ReissueSupersedesPrior(t *testing.T) {
	store := identity.NewEphemeralTokensRepository(setupTestDB(t))
	userID := uuid.New()

	first, err := store.Issue(context.Background(), identity.PurposeEmailVerification, userID, identity.VerificationTokenTTL)
	require.NoError(t, err)

	second, err := store.Issue(context.Background(), identity.PurposeEmailVerification, userID, identity.VerificationTokenTTL)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	_, err = store.Consume(context.Background(), identity.PurposeEmailVerification, first.Token)
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrEphemeralUsed)

	got, err := store.Consume(context.Background(), identity.PurposeEmailVerification, second.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestEphemeralTokens_ReissueLeavesOtherPurposesAlone(t *testing.T) {
	store := identity.NewEphemeralTokensRepository(setupTestDB(t))
	userID := uuid.New()

	reset, err := store.Issue(context.Background(), identity.PurposePasswordReset, userID, identity.ResetTokenTTL)
	require.NoError(t, err)

	_, err = store.Issue(context.Background(), identity.PurposeEmailVerification, userID, identity.VerificationTokenTTL)
	require.NoError(t, err)

	got, err := store.Consume(context.Background(), identity.PurposePasswordReset, reset.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestEphemeralTokens_PurgeExpired(t *testing.T) {
	current := time.Now()
	store := identity.NewEphemeralTokensRepository(setupTestDB(t), identity.WithEphemeralClock(func() time.Time {
		return current
	}))

	_, err := store.Issue(context.Background(), identity.PurposeEmailVerification, uuid.New(), time.Minute)
	require.NoError(t, err)

	alive, err := store.Issue(context.Background(), identity.PurposeEmailVerification, uuid.New(), identity.VerificationTokenTTL)
	require.NoError(t, err)

	purged, err := store.PurgeExpired(context.Background(), current.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	current = current.Add(time.Hour)
	_, err = store.Consume(context.Background(), identity.PurposeEmailVerification, alive.Token)
	require.NoError(t, err)
}

func TestRevokedTokens_RevokeAndCheck(t *testing.T) {
	store := identity.NewRevokedTokensRepository(setupTestDB(t))

	revoked, err := store.IsRevoked(context.Background(), "some.jwt.token")
	require.NoError(t, err)
	assert.False(t, revoked)

	err = store.Revoke(context.Background(), "some.jwt.token", time.Now().Add(15*time.Minute))
	require.NoError(t, err)

	revoked, err = store.IsRevoked(context.Background(), "some.jwt.token")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevokedTokens_RevokeIsIdempotent(t *testing.T) {
	store := identity.NewRevokedTokensRepository(setupTestDB(t))
	expiresAt := time.Now().Add(15 * time.Minute)

	require.NoError(t, store.Revoke(context.Background(), "dup.jwt.token", expiresAt))
	require.NoError(t, store.Revoke(context.Background(), "dup.jwt.token", expiresAt))

	revoked, err := store.IsRevoked(context.Background(), "dup.jwt.token")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestRevokedTokens_PurgeExpired(t *testing.T) {
	store := identity.NewRevokedTokensRepository(setupTestDB(t))

	require.NoError(t, store.Revoke(context.Background(), "stale.jwt.token", time.Now().Add(-time.Minute)))
	require.NoError(t, store.Revoke(context.Background(), "fresh.jwt.token", time.Now().Add(time.Hour)))

	purged, err := store.PurgeExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	revoked, err := store.IsRevoked(context.Background(), "fresh.jwt.token")
	require.NoError(t, err)
	assert.True(t, revoked)
}
