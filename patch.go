package identity

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// UserPatch enumerates the mutable account fields. A nil field means
// "leave untouched", the patch is applied through one reviewed mapping
// instead of reflective attribute setting.
type UserPatch struct {
	Email      *string   `json:"email,omitempty"`
	Username   *string   `json:"username,omitempty"`
	FirstName  *string   `json:"first_name,omitempty"`
	LastName   *string   `json:"last_name,omitempty"`
	Phone      *string   `json:"phone,omitempty"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
	Role       *UserRole `json:"role,omitempty"`
	IsVerified *bool     `json:"is_verified,omitempty"`
}

// IsZero reports whether the patch carries no changes
func (p UserPatch) IsZero() bool {
	return p.Email == nil &&
		p.Username == nil &&
		p.FirstName == nil &&
		p.LastName == nil &&
		p.Phone == nil &&
		p.AvatarURL == nil &&
		p.Role == nil &&
		p.IsVerified == nil
}

// Apply copies the present fields onto the user record
func (p UserPatch) Apply(user *User) {
	if user == nil {
		return
	}

	if p.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*p.Email))
	}
	if p.Username != nil {
		user.Username = strings.TrimSpace(*p.Username)
	}
	if p.FirstName != nil {
		user.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		user.LastName = *p.LastName
	}
	if p.Phone != nil {
		user.Phone = *p.Phone
	}
	if p.AvatarURL != nil {
		user.AvatarURL = *p.AvatarURL
	}
	if p.Role != nil {
		user.Role = *p.Role
	}
	if p.IsVerified != nil {
		user.EmailVerified = *p.IsVerified
	}
}

// PatchUser loads the user, applies the patch, and persists the result.
// Email and username changes go through the same duplicate pre-check as
// registration so the friendly conflict errors stay consistent.
func PatchUser(ctx context.Context, repo RepositoryManager, id string, patch UserPatch) (*User, error) {
	var user *User

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = repo.Users().GetByIdentifierTx(ctx, tx, id)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for update")
		}

		if patch.IsZero() {
			return nil
		}

		if patch.Email != nil || patch.Username != nil {
			email := user.Email
			if patch.Email != nil {
				email = *patch.Email
			}
			username := user.Username
			if patch.Username != nil {
				username = *patch.Username
			}

			existing, err := repo.Users().FindDuplicateTx(ctx, tx, email, username)
			if err != nil && !goerrors.IsNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for duplicate accounts")
			}

			if existing != nil && existing.ID != user.ID {
				if strings.EqualFold(existing.Email, strings.ToLower(strings.TrimSpace(email))) {
					return ErrEmailTaken
				}
				return ErrUsernameTaken
			}
		}

		patch.Apply(user)
		now := time.Now()
		user.UpdatedAt = &now

		if user, err = repo.Users().UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist user update")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user update transaction failed")
	}

	return user, nil
}
