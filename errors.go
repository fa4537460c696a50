package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes surfaced in API error payloads
const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodeUsernameTaken      = "USERNAME_TAKEN"
	TextCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	TextCodeAlreadyVerified    = "ALREADY_VERIFIED"
	TextCodeTokenInvalid       = "TOKEN_INVALID_OR_EXPIRED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenWrongKind     = "TOKEN_WRONG_KIND"
	TextCodeTokenRevoked       = "TOKEN_REVOKED"
	TextCodeRefreshInvalid     = "REFRESH_TOKEN_INVALID"
	TextCodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	TextCodeCurrentPassword    = "CURRENT_PASSWORD_INVALID"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeDataParseError     = "DATA_PARSE_ERROR"
	TextCodeClaimsMappingError = "CLAIMS_MAPPING_ERROR"
)

// ErrMismatchedHashAndPassword is returned when a password does not match
// its stored hash. Identity lookup misses map to the same error so callers
// cannot tell a missing account from a wrong password.
var ErrMismatchedHashAndPassword = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidCredentials is the undifferentiated login failure
var ErrInvalidCredentials = errors.New("Incorrect email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrEmailTaken is returned when the registration email is already in use
var ErrEmailTaken = errors.New("Email already registered", errors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(errors.CodeBadRequest)

// ErrUsernameTaken is returned when the registration username is already in use
var ErrUsernameTaken = errors.New("Username already taken", errors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(errors.CodeBadRequest)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithTextCode(TextCodeIdentityNotFound).
	WithCode(errors.CodeNotFound)

// ErrAlreadyVerified is returned when re-requesting verification for a
// verified account
var ErrAlreadyVerified = errors.New("Email already verified", errors.CategoryValidation).
	WithTextCode(TextCodeAlreadyVerified).
	WithCode(errors.CodeBadRequest)

// ErrTokenInvalidOrExpired collapses missing, used and expired ephemeral
// tokens into one external error so callers cannot probe which it was
var ErrTokenInvalidOrExpired = errors.New("Invalid or expired token", errors.CategoryValidation).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeBadRequest)

// ErrTokenExpired signals a JWT past its expiry
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed signals a JWT that failed parsing or signature checks
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrTokenWrongKind signals a refresh token presented where an access token
// is expected, or the inverse
var ErrTokenWrongKind = errors.New("token kind mismatch", errors.CategoryAuth).
	WithTextCode(TextCodeTokenWrongKind).
	WithCode(errors.CodeUnauthorized)

// ErrTokenRevoked signals a denylisted access token
var ErrTokenRevoked = errors.New("token has been revoked", errors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidRefreshToken is surfaced by the refresh flow
var ErrInvalidRefreshToken = errors.New("Invalid refresh token", errors.CategoryAuth).
	WithTextCode(TextCodeRefreshInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrTooManyAttempts is returned when a rate limit window is exhausted
var ErrTooManyAttempts = errors.New("too many attempts, retry later", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrCurrentPasswordInvalid is returned by the change password flow when
// the supplied current password fails verification
var ErrCurrentPasswordInvalid = errors.New("Current password is incorrect", errors.CategoryAuth).
	WithTextCode(TextCodeCurrentPassword).
	WithCode(errors.CodeBadRequest)

// ErrNoEmptyString rejects empty passwords before hashing
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims", errors.CategoryAuth).
	WithTextCode(TextCodeClaimsMappingError).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToParseData parse error
var ErrUnableToParseData = errors.New("unable to parse data", errors.CategoryBadInput).
	WithTextCode(TextCodeDataParseError).
	WithCode(errors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
