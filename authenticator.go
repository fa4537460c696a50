package identity

import (
	"context"

	"github.com/goliatone/go-errors"
)

// Auther implements Authenticator on top of an IdentityProvider, the
// token service, and the revocation denylist.
type Auther struct {
	provider     IdentityProvider
	tokenService TokenService
	revoked      RevokedTokens
	logger       Logger
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, revoked RevokedTokens, opts Config) *Auther {
	return &Auther{
		provider:     provider,
		revoked:      revoked,
		tokenService: NewTokenService(opts, defLogger{}),
		logger:       defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTokenService overrides the token service
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	if ts != nil {
		s.tokenService = ts
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the credentials and issues a fresh access and refresh
// pair. Every failure collapses to ErrInvalidCredentials, an unknown
// email and a wrong password are indistinguishable from outside.
// Verification state is not checked here, unverified accounts can log
// in and are gated at the resource level instead.
func (s *Auther) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	identity, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Debug("login verify identity failed", "error", err)
		return nil, ErrInvalidCredentials
	}

	if identity == nil {
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokenService.MintPair(identity)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to issue token pair")
	}

	return pair, nil
}

// Refresh validates the refresh token and mints a new pair. The consumed
// refresh token is not rotated or invalidated, it stays valid until its
// natural expiry.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokenService.Validate(refreshToken, TokenKindRefresh)
	if err != nil {
		s.logger.Debug("refresh token validation failed", "error", err)
		return nil, ErrInvalidRefreshToken
	}

	identity, err := s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
	if err != nil {
		s.logger.Debug("refresh identity lookup failed", "error", err)
		return nil, ErrInvalidRefreshToken
	}

	pair, err := s.tokenService.MintPair(identity)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to issue token pair")
	}

	return pair, nil
}

// Logout denylists the access token keyed by its original expiry. It
// never reports an error, a token that fails parsing is already
// unusable, which is all logout promises.
func (s *Auther) Logout(ctx context.Context, accessToken string) {
	claims, err := s.tokenService.Validate(accessToken, TokenKindAccess)
	if err != nil {
		s.logger.Debug("logout token parse failed, nothing to revoke", "error", err)
		return
	}

	if err := s.revoked.Revoke(ctx, accessToken, claims.Expires()); err != nil {
		s.logger.Error("logout failed to revoke token", "error", err)
	}
}

// VerifyAccess validates an access token and checks the denylist. A
// token with a valid signature and expiry still fails once revoked.
func (s *Auther) VerifyAccess(ctx context.Context, accessToken string) (AuthClaims, error) {
	claims, err := s.tokenService.Validate(accessToken, TokenKindAccess)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoked.IsRevoked(ctx, accessToken)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to check token revocation")
	}

	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// IdentityFromClaims resolves the account behind validated claims
func (s *Auther) IdentityFromClaims(ctx context.Context, claims AuthClaims) (Identity, error) {
	if claims == nil {
		return nil, ErrUnableToMapClaims
	}
	return s.provider.FindIdentityByIdentifier(ctx, claims.UserID())
}

var _ Authenticator = (*Auther)(nil)
