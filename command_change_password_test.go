package identity_test

import (
	"context"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePasswordHandler(t *testing.T) {
	hasher := identity.NewHasher(4)

	t.Run("correct current password changes the hash", func(t *testing.T) {
		repo := setupRepoManager(t)
		handler := identity.NewChangePasswordHandler(repo, hasher)
		user := seedUser(t, repo.Users(), "c@example.com", "cuser")

		err := handler.Execute(context.Background(), identity.ChangePasswordMessage{
			UserID:          user.ID,
			CurrentPassword: "Sup3r-secret!",
			NewPassword:     "Brand-n3w-pass!",
		})
		require.NoError(t, err)

		stored, err := repo.Users().FindByEmail(context.Background(), "c@example.com")
		require.NoError(t, err)
		assert.NoError(t, hasher.ComparePasswordAndHash("Brand-n3w-pass!", stored.PasswordHash))
	})

	t.Run("wrong current password rejected", func(t *testing.T) {
		repo := setupRepoManager(t)
		handler := identity.NewChangePasswordHandler(repo, hasher)
		user := seedUser(t, repo.Users(), "w@example.com", "wuser")

		err := handler.Execute(context.Background(), identity.ChangePasswordMessage{
			UserID:          user.ID,
			CurrentPassword: "not-the-password",
			NewPassword:     "Brand-n3w-pass!",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, identity.ErrCurrentPasswordInvalid)

		stored, err := repo.Users().FindByEmail(context.Background(), "w@example.com")
		require.NoError(t, err)
		assert.NoError(t, hasher.ComparePasswordAndHash("Sup3r-secret!", stored.PasswordHash))
	})

	t.Run("unknown user rejected", func(t *testing.T) {
		repo := setupRepoManager(t)
		handler := identity.NewChangePasswordHandler(repo, hasher)

		err := handler.Execute(context.Background(), identity.ChangePasswordMessage{
			UserID:          uuid.New(),
			CurrentPassword: "whatever",
			NewPassword:     "Brand-n3w-pass!",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, identity.ErrIdentityNotFound)
	})

	t.Run("empty new password rejected", func(t *testing.T) {
		repo := setupRepoManager(t)
		handler := identity.NewChangePasswordHandler(repo, hasher)
		user := seedUser(t, repo.Users(), "e@example.com", "euser")

		err := handler.Execute(context.Background(), identity.ChangePasswordMessage{
			UserID:          user.ID,
			CurrentPassword: "Sup3r-secret!",
		})
		assert.Error(t, err)
	})
}
