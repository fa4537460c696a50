package identity

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Password   string `json:"password"`
	OnResponse func(user *User)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserHandler struct {
	repo     RepositoryManager
	hasher   PasswordAuthenticator
	notifier Notifier
	logger   Logger
}

func NewRegisterUserHandler(repo RepositoryManager, hasher PasswordAuthenticator, notifier Notifier) *RegisterUserHandler {
	if hasher == nil {
		hasher = NewHasher(DefaultBcryptCost)
	}
	if notifier == nil {
		notifier = PrintNotifier{}
	}
	return &RegisterUserHandler{
		repo:     repo,
		hasher:   hasher,
		notifier: notifier,
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	var verification *EphemeralToken

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		email := strings.ToLower(strings.TrimSpace(event.Email))
		username := getUsername(event.Username, email)

		// The pre-check gives callers a friendly conflict error, the
		// unique constraints close the race two concurrent registers
		// would otherwise win together. Email collisions take
		// precedence when both columns match.
		existing, err := h.repo.Users().FindDuplicateTx(ctx, tx, email, username)
		if err != nil && !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for duplicate accounts")
		}

		if existing != nil {
			if strings.EqualFold(existing.Email, email) {
				return ErrEmailTaken
			}
			return ErrUsernameTaken
		}

		hash, err := h.hasher.HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = email
		user.Phone = event.Phone
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Username = username
		user.Role = RoleUser

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		verification, err = h.repo.EphemeralTokens().IssueTx(ctx, tx, PurposeEmailVerification, user.ID, VerificationTokenTTL)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	if verification != nil {
		if err := h.notifier.NotifyVerification(ctx, user.Email, verification.Token); err != nil {
			h.logger.Error("failed to queue verification notification", "error", err)
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
