package identity

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// VerificationTokenTTL is how long an email verification token stays
	// redeemable
	VerificationTokenTTL = 24 * time.Hour
	// ResetTokenTTL is how long a password reset token stays redeemable
	ResetTokenTTL = time.Hour
	// ephemeralTokenBytes gives tokens 256 bits of entropy
	ephemeralTokenBytes = 32
)

// Store level errors. The HTTP boundary collapses all three into
// ErrTokenInvalidOrExpired so callers cannot probe token state.
var (
	// ErrEphemeralNotFound means no row matches the presented token
	ErrEphemeralNotFound = goerrors.New("token not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
	// ErrEphemeralUsed means the token was already consumed
	ErrEphemeralUsed = goerrors.New("token already used", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest)
	// ErrEphemeralExpired means the token passed its expiry
	ErrEphemeralExpired = goerrors.New("token expired", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest)
)

// GenerateOpaqueToken mints a URL safe random token string
func GenerateOpaqueToken() (string, error) {
	buf := make([]byte, ephemeralTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token entropy")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// EphemeralTokens manages single use verification and reset tokens
type EphemeralTokens interface {
	repository.Repository[*EphemeralToken]

	Issue(ctx context.Context, purpose TokenPurpose, userID uuid.UUID, ttl time.Duration) (*EphemeralToken, error)
	IssueTx(ctx context.Context, tx bun.IDB, purpose TokenPurpose, userID uuid.UUID, ttl time.Duration) (*EphemeralToken, error)
	Consume(ctx context.Context, purpose TokenPurpose, token string) (uuid.UUID, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, purpose TokenPurpose, token string) (uuid.UUID, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type ephemeralTokens struct {
	repository.Repository[*EphemeralToken]
	db  *bun.DB
	now func() time.Time
}

var _ EphemeralTokens = (*ephemeralTokens)(nil)

type EphemeralTokensOption func(*ephemeralTokens)

// WithEphemeralClock overrides the store's time source
func WithEphemeralClock(now func() time.Time) EphemeralTokensOption {
	return func(s *ephemeralTokens) {
		if now != nil {
			s.now = now
		}
	}
}

func NewEphemeralTokensRepository(db *bun.DB, opts ...EphemeralTokensOption) EphemeralTokens {
	repo := repository.NewRepository[*EphemeralToken](db, repository.ModelHandlers[*EphemeralToken]{
		NewRecord: func() *EphemeralToken { return &EphemeralToken{} },
		GetID: func(t *EphemeralToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *EphemeralToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	store := &ephemeralTokens{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	return store
}

func (s *ephemeralTokens) Issue(ctx context.Context, purpose TokenPurpose, userID uuid.UUID, ttl time.Duration) (*EphemeralToken, error) {
	return s.IssueTx(ctx, s.db, purpose, userID, ttl)
}

// IssueTx supersedes all prior unused tokens for the user and purpose,
// then persists a fresh one. The raw token string is only ever exposed
// here, downstream it travels inside the notification.
func (s *ephemeralTokens) IssueTx(ctx context.Context, tx bun.IDB, purpose TokenPurpose, userID uuid.UUID, ttl time.Duration) (*EphemeralToken, error) {
	now := s.now()

	_, err := tx.NewUpdate().
		Model((*EphemeralToken)(nil)).
		Set("used = ?", true).
		Set("updated_at = ?", now).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.purpose = ?", purpose).
		Where("?TableAlias.used = ?", false).
		Exec(ctx)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to supersede prior tokens")
	}

	raw, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(ttl)
	record := &EphemeralToken{
		ID:        uuid.New(),
		Token:     raw,
		Purpose:   purpose,
		UserID:    &userID,
		Used:      false,
		ExpiresAt: expiresAt,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist token")
	}

	return record, nil
}

func (s *ephemeralTokens) Consume(ctx context.Context, purpose TokenPurpose, token string) (uuid.UUID, error) {
	return s.ConsumeTx(ctx, s.db, purpose, token)
}

// ConsumeTx atomically flips the used flag and returns the owning user.
// A single conditional update closes the double spend race, two
// concurrent requests for the same token cannot both succeed. The
// follow up select only classifies the failure for logging.
func (s *ephemeralTokens) ConsumeTx(ctx context.Context, tx bun.IDB, purpose TokenPurpose, token string) (uuid.UUID, error) {
	now := s.now()

	var userID uuid.UUID
	err := tx.NewRaw(`
		UPDATE "ephemeral_tokens"
		SET "used" = TRUE, "updated_at" = ?
		WHERE "token" = ?
		AND "purpose" = ?
		AND "used" = FALSE
		AND "expires_at" > ?
		RETURNING "user_id";
	`, now, token, purpose, now).Scan(ctx, &userID)

	if err == nil {
		return userID, nil
	}

	if err != sql.ErrNoRows && !repository.IsRecordNotFound(err) {
		return uuid.Nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume token")
	}

	return uuid.Nil, s.classifyConsumeFailure(ctx, tx, purpose, token, now)
}

func (s *ephemeralTokens) classifyConsumeFailure(ctx context.Context, tx bun.IDB, purpose TokenPurpose, token string, now time.Time) error {
	record := &EphemeralToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Where("?TableAlias.purpose = ?", purpose).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return ErrEphemeralNotFound
	}

	if record.Used {
		return ErrEphemeralUsed
	}

	if record.IsExpired(now) {
		return ErrEphemeralExpired
	}

	return ErrEphemeralNotFound
}

// PurgeExpired drops rows whose expiry predates the cutoff. Consumed
// rows are kept until they expire so the audit trail survives.
func (s *ephemeralTokens) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*EphemeralToken)(nil)).
		Where("?TableAlias.expires_at < ?", before).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return rows, nil
}

// RevokedTokens is the access token denylist
type RevokedTokens interface {
	repository.Repository[*RevokedToken]

	Revoke(ctx context.Context, raw string, expiresAt time.Time) error
	RevokeTx(ctx context.Context, tx bun.IDB, raw string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, raw string) (bool, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type revokedTokens struct {
	repository.Repository[*RevokedToken]
	db *bun.DB
}

var _ RevokedTokens = (*revokedTokens)(nil)

func NewRevokedTokensRepository(db *bun.DB) RevokedTokens {
	repo := repository.NewRepository[*RevokedToken](db, repository.ModelHandlers[*RevokedToken]{
		NewRecord: func() *RevokedToken { return &RevokedToken{} },
		GetID: func(t *RevokedToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *RevokedToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &revokedTokens{
		Repository: repo,
		db:         db,
	}
}

func (s *revokedTokens) Revoke(ctx context.Context, raw string, expiresAt time.Time) error {
	return s.RevokeTx(ctx, s.db, raw, expiresAt)
}

// RevokeTx is an idempotent insert, revoking the same token twice is not
// an error.
func (s *revokedTokens) RevokeTx(ctx context.Context, tx bun.IDB, raw string, expiresAt time.Time) error {
	record := &RevokedToken{
		ID:        uuid.New(),
		Token:     raw,
		ExpiresAt: expiresAt,
	}

	_, err := tx.NewInsert().
		Model(record).
		On("CONFLICT (token) DO NOTHING").
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke token")
	}

	return nil
}

func (s *revokedTokens) IsRevoked(ctx context.Context, raw string) (bool, error) {
	return s.db.NewSelect().
		Model((*RevokedToken)(nil)).
		Where("?TableAlias.token = ?", raw).
		Exists(ctx)
}

// PurgeExpired drops denylist rows whose tokens would have expired on
// their own anyway.
func (s *revokedTokens) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*RevokedToken)(nil)).
		Where("?TableAlias.expires_at < ?", before).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}

	return rows, nil
}
