package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

type ResendVerificationMessage struct {
	Email string `json:"email"`
}

func (e ResendVerificationMessage) Type() string { return "user.resend_verification" }

type ResendVerificationHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
}

func NewResendVerificationHandler(repo RepositoryManager, notifier Notifier) *ResendVerificationHandler {
	if notifier == nil {
		notifier = PrintNotifier{}
	}
	return &ResendVerificationHandler{
		repo:     repo,
		notifier: notifier,
		logger:   defLogger{},
	}
}

func (h *ResendVerificationHandler) WithLogger(logger Logger) *ResendVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ResendVerificationHandler) Execute(ctx context.Context, event ResendVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during verification resend",
		)
	default:
		return h.execute(ctx, event)
	}
}

// execute re-issues a verification token. Unlike forgot password this
// flow is not enumeration shielded, an unknown email is reported as not
// found and a verified account as already verified.
func (h *ResendVerificationHandler) execute(ctx context.Context, event ResendVerificationMessage) error {
	var user *User
	var verification *EphemeralToken

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().FindByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if goerrors.IsNotFound(err) {
				return ErrIdentityNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for verification resend")
		}

		if user.EmailVerified {
			return ErrAlreadyVerified
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
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification resend transaction failed")
	}

	if verification != nil {
		if err := h.notifier.NotifyVerification(ctx, user.Email, verification.Token); err != nil {
			h.logger.Error("failed to queue verification notification", "error", err)
		}
	}

	return nil
}
