package identity

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Middleware is the surface the HTTP layer exposes to route registration
type Middleware interface {
	ProtectedRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc
	RequireVerified() router.MiddlewareFunc
	RequireRole(role UserRole) router.MiddlewareFunc
	RateLimit(limiter *RateLimiter, scope string) router.MiddlewareFunc
}

// RouteAuthenticator wires the Authenticator into go-router middleware
type RouteAuthenticator struct {
	auth         Authenticator
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// ExtractRawToken pulls the bearer credential from the Authorization
// header
func ExtractRawToken(c router.Context, authScheme string) (string, error) {
	if authScheme == "" {
		authScheme = "Bearer"
	}

	header := c.GetString(router.HeaderAuthorization, "")
	l := len(authScheme)
	if len(header) > l+1 && strings.EqualFold(header[:l], authScheme) {
		return strings.TrimSpace(header[l:]), nil
	}

	return "", ErrTokenMalformed
}

// ProtectedRoute validates the access token, rejects revoked tokens, and
// stores the claims under the configured context key for handlers
// downstream.
func (a *RouteAuthenticator) ProtectedRoute(errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	if errorHandler == nil {
		errorHandler = a.ErrorHandler
	}

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			raw, err := ExtractRawToken(ctx, a.cfg.GetAuthScheme())
			if err != nil {
				return errorHandler(ctx, err)
			}

			claims, err := a.auth.VerifyAccess(ctx.Context(), raw)
			if err != nil {
				return errorHandler(ctx, err)
			}

			ctx.Locals(a.contextKey(), claims)
			ctx.SetContext(WithClaimsContext(ctx.Context(), claims))

			return hf(ctx)
		}
	}
}

// RequireVerified gates a route on a verified email address. It resolves
// the account behind the claims, verification state is not baked into
// the token so a stale access token cannot bypass the check.
func (a *RouteAuthenticator) RequireVerified() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			claims, ok := GetRouterClaims(ctx, a.contextKey())
			if !ok {
				return a.ErrorHandler(ctx, ErrUnableToMapClaims)
			}

			identity, err := a.auth.IdentityFromClaims(ctx.Context(), claims)
			if err != nil {
				return a.ErrorHandler(ctx, err)
			}

			if !identity.Verified() {
				return a.ErrorHandler(ctx, errors.New("Email not verified", errors.CategoryAuthz).
					WithTextCode("EMAIL_NOT_VERIFIED").
					WithCode(errors.CodeForbidden))
			}

			return hf(ctx)
		}
	}
}

// RequireRole gates a route on the role carried in the claims
func (a *RouteAuthenticator) RequireRole(role UserRole) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			claims, ok := GetRouterClaims(ctx, a.contextKey())
			if !ok {
				return a.ErrorHandler(ctx, ErrUnableToMapClaims)
			}

			if !claims.IsAtLeast(string(role)) {
				return a.ErrorHandler(ctx, errors.New("Insufficient permissions", errors.CategoryAuthz).
					WithTextCode("FORBIDDEN").
					WithCode(errors.CodeForbidden))
			}

			return hf(ctx)
		}
	}
}

// RateLimit applies a fixed window limiter keyed by client IP and scope.
// Rejections carry a Retry-After header.
func (a *RouteAuthenticator) RateLimit(limiter *RateLimiter, scope string) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			key := scope + ":" + ctx.IP()
			if err := limiter.Check(key); err != nil {
				if retry := RetryAfterSeconds(err); retry > 0 {
					ctx.SetHeader("Retry-After", strconv.Itoa(retry))
				}
				return a.ErrorHandler(ctx, err)
			}
			return hf(ctx)
		}
	}
}

func (a *RouteAuthenticator) contextKey() string {
	if key := a.cfg.GetContextKey(); key != "" {
		return key
	}
	return "user"
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	return RenderError(c, richErr)
}

// RenderError writes a rich error as a JSON response, mapping the error
// category onto an HTTP status. Internal details never leak, the body
// only carries the public message and text code.
func RenderError(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	status := statusForError(richErr)
	body := map[string]any{
		"detail": publicMessage(richErr, status),
	}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return c.JSON(status, body)
}

func statusForError(richErr *errors.Error) int {
	switch richErr.Category {
	case errors.CategoryValidation, errors.CategoryBadInput, errors.CategoryConflict:
		return http.StatusBadRequest
	case errors.CategoryAuth:
		return http.StatusUnauthorized
	case errors.CategoryAuthz:
		return http.StatusForbidden
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryRateLimit:
		return http.StatusTooManyRequests
	}

	if richErr.Code >= http.StatusBadRequest && richErr.Code < 600 {
		return richErr.Code
	}

	return http.StatusInternalServerError
}

func publicMessage(richErr *errors.Error, status int) string {
	if status == http.StatusInternalServerError {
		return "Internal server error"
	}
	return richErr.Message
}
