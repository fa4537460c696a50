package identity_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExtractRawToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		scheme   string
		expected string
		wantErr  bool
	}{
		{"bearer token", "Bearer abc.def.ghi", "Bearer", "abc.def.ghi", false},
		{"case insensitive scheme", "bearer abc.def.ghi", "Bearer", "abc.def.ghi", false},
		{"default scheme when empty", "Bearer abc.def.ghi", "", "abc.def.ghi", false},
		{"missing header", "", "Bearer", "", true},
		{"scheme only", "Bearer", "Bearer", "", true},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "Bearer", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := &MockContext{}
			ctx.On("GetString", router.HeaderAuthorization, "").Return(tc.header)

			token, err := identity.ExtractRawToken(ctx, tc.scheme)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, identity.IsMalformedError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, token)
		})
	}
}

func TestRenderError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		detail     string
		code       string
	}{
		{"validation maps to 400", identity.ErrTokenInvalidOrExpired, http.StatusBadRequest, "Invalid or expired token", "TOKEN_INVALID_OR_EXPIRED"},
		{"conflict maps to 400", identity.ErrEmailTaken, http.StatusBadRequest, "Email already registered", "EMAIL_TAKEN"},
		{"auth maps to 401", identity.ErrInvalidCredentials, http.StatusUnauthorized, "Incorrect email or password", "INVALID_CREDENTIALS"},
		{"not found maps to 404", identity.ErrIdentityNotFound, http.StatusNotFound, "identity not found", "IDENTITY_NOT_FOUND"},
		{"rate limit maps to 429", identity.ErrTooManyAttempts, http.StatusTooManyRequests, "too many attempts, retry later", "TOO_MANY_ATTEMPTS"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := &MockContext{}
			ctx.On("JSON", tc.status, map[string]any{
				"detail": tc.detail,
				"code":   tc.code,
			}).Return(nil)

			err := identity.RenderError(ctx, tc.err)
			assert.NoError(t, err)
			ctx.AssertExpectations(t)
		})
	}

	t.Run("authz maps to 403", func(t *testing.T) {
		richErr := goerrors.New("Insufficient permissions", goerrors.CategoryAuthz).
			WithTextCode("FORBIDDEN")

		ctx := &MockContext{}
		ctx.On("JSON", http.StatusForbidden, map[string]any{
			"detail": "Insufficient permissions",
			"code":   "FORBIDDEN",
		}).Return(nil)

		require.NoError(t, identity.RenderError(ctx, richErr))
		ctx.AssertExpectations(t)
	})

	t.Run("internal errors never leak details", func(t *testing.T) {
		ctx := &MockContext{}
		ctx.On("JSON", http.StatusInternalServerError, map[string]any{
			"detail": "Internal server error",
		}).Return(nil)

		require.NoError(t, identity.RenderError(ctx, assert.AnError))
		ctx.AssertExpectations(t)
	})
}

func protectedSetup(t *testing.T) (*identity.RouteAuthenticator, *identity.Auther, *MockIdentityProvider) {
	t.Helper()

	auther, provider, _ := newAuther(t)
	httpAuth, err := identity.NewHTTPAuthenticator(auther, newTestConfig())
	require.NoError(t, err)

	return httpAuth, auther, provider
}

func TestProtectedRoute(t *testing.T) {
	t.Run("valid token reaches the handler", func(t *testing.T) {
		httpAuth, auther, _ := protectedSetup(t)

		access, err := auther.TokenService().Mint(testIdentity(), identity.TokenKindAccess)
		require.NoError(t, err)

		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + access)
		ctx.On("Context").Return(context.Background())
		ctx.On("Locals", "user", mock.Anything).Return(nil)
		ctx.On("SetContext", mock.Anything).Return()

		called := false
		handler := httpAuth.ProtectedRoute(nil)(func(c router.Context) error {
			called = true
			return nil
		})

		require.NoError(t, handler(ctx))
		assert.True(t, called)
	})

	t.Run("missing header rejected with 401", func(t *testing.T) {
		httpAuth, _, _ := protectedSetup(t)

		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("")
		ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

		called := false
		handler := httpAuth.ProtectedRoute(nil)(func(c router.Context) error {
			called = true
			return nil
		})

		require.NoError(t, handler(ctx))
		assert.False(t, called)
	})

	t.Run("revoked token rejected", func(t *testing.T) {
		httpAuth, auther, _ := protectedSetup(t)

		access, err := auther.TokenService().Mint(testIdentity(), identity.TokenKindAccess)
		require.NoError(t, err)
		auther.Logout(context.Background(), access)

		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("Bearer " + access)
		ctx.On("Context").Return(context.Background())
		ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

		called := false
		handler := httpAuth.ProtectedRoute(nil)(func(c router.Context) error {
			called = true
			return nil
		})

		require.NoError(t, handler(ctx))
		assert.False(t, called)
	})

	t.Run("custom error handler wins", func(t *testing.T) {
		httpAuth, _, _ := protectedSetup(t)

		ctx := &MockContext{}
		ctx.On("GetString", router.HeaderAuthorization, "").Return("")

		var handled error
		handler := httpAuth.ProtectedRoute(func(c router.Context, err error) error {
			handled = err
			return nil
		})(func(c router.Context) error { return nil })

		require.NoError(t, handler(ctx))
		assert.Error(t, handled)
	})
}

func TestRequireRole(t *testing.T) {
	t.Run("admin passes", func(t *testing.T) {
		httpAuth, _, _ := protectedSetup(t)

		ctx := &MockContext{}
		ctx.On("Locals", "user").Return(&identity.JWTClaims{UID: "u1", UserRole: "admin"})

		called := false
		handler := httpAuth.RequireRole(identity.RoleAdmin)(func(c router.Context) error {
			called = true
			return nil
		})

		require.NoError(t, handler(ctx))
		assert.True(t, called)
	})

	t.Run("user blocked with 403", func(t *testing.T) {
		httpAuth, _, _ := protectedSetup(t)

		ctx := &MockContext{}
		ctx.On("Locals", "user").Return(&identity.JWTClaims{UID: "u1", UserRole: "user"})
		ctx.On("JSON", http.StatusForbidden, mock.Anything).Return(nil)

		called := false
		handler := httpAuth.RequireRole(identity.RoleAdmin)(func(c router.Context) error {
			called = true
			return nil
		})

		require.NoError(t, handler(ctx))
		assert.False(t, called)
	})

	t.Run("no claims rejected", func(t *testing.T) {
		httpAuth, _, _ := protectedSetup(t)

		ctx := &MockContext{}
		ctx.On("Locals", "user").Return(nil)
		ctx.On("JSON", http.StatusUnauthorized, mock.Anything).Return(nil)

		handler := httpAuth.RequireRole(identity.RoleAdmin)(func(c router.Context) error { return nil })
		require.NoError(t, handler(ctx))
	})
}

func TestRequireVerified(t *testing.T) {
	t.Run("verified identity passes", func(t *testing.T) {
		httpAuth, _, provider := protectedSetup(t)
		provider.On("FindIdentityByIdentifier", mock.Anything, "user-123").
			Return(testIdentity(), nil)

		ctx := &MockContext{}
		ctx.On("Locals", "user").Return(&identity.JWTClaims{UID: "user-123", UserRole: "user"})
		ctx.On("Context").Return(context.Background())

		called := false
		handler := httpAuth.RequireVerified()(func(c router.Context) error {
			called = true
			return nil
		})

		require.NoError(t, handler(ctx))
		assert.True(t, called)
	})

	t.Run("unverified identity blocked with 403", func(t *testing.T) {
		httpAuth, _, provider := protectedSetup(t)
		unverified := testIdentity()
		unverified.verified = false
		provider.On("FindIdentityByIdentifier", mock.Anything, "user-123").
			Return(unverified, nil)

		ctx := &MockContext{}
		ctx.On("Locals", "user").Return(&identity.JWTClaims{UID: "user-123", UserRole: "user"})
		ctx.On("Context").Return(context.Background())
		ctx.On("JSON", http.StatusForbidden, mock.Anything).Return(nil)

		called := false
		handler := httpAuth.RequireVerified()(func(c router.Context) error {
			called = true
			return nil
		})

		require.NoError(t, handler(ctx))
		assert.False(t, called)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	httpAuth, _, _ := protectedSetup(t)
	limiter := identity.NewRateLimiter(identity.RateLimit{Requests: 2, Window: time.Minute})

	handler := httpAuth.RateLimit(limiter, "auth")(func(c router.Context) error {
		return nil
	})

	for i := 0; i < 2; i++ {
		ctx := &MockContext{}
		ctx.On("IP").Return("9.9.9.9")
		require.NoError(t, handler(ctx))
	}

	ctx := &MockContext{}
	ctx.On("IP").Return("9.9.9.9")
	ctx.On("SetHeader", "Retry-After", mock.Anything).Return(nil)
	ctx.On("JSON", http.StatusTooManyRequests, mock.Anything).Return(nil)

	require.NoError(t, handler(ctx))
	ctx.AssertCalled(t, "SetHeader", "Retry-After", mock.Anything)

	t.Run("other addresses unaffected", func(t *testing.T) {
		ctx := &MockContext{}
		ctx.On("IP").Return("8.8.8.8")
		require.NoError(t, handler(ctx))
	})
}
