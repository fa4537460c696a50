package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestTokenKindIsValid(t *testing.T) {
	assert.True(t, identity.TokenKindAccess.IsValid())
	assert.True(t, identity.TokenKindRefresh.IsValid())
	assert.False(t, identity.TokenKind("session").IsValid())
	assert.False(t, identity.TokenKind("").IsValid())
}

func TestJWTClaims_UserIDFallsBackToSubject(t *testing.T) {
	claims := &identity.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"},
	}
	assert.Equal(t, "sub-1", claims.UserID())

	claims.UID = "uid-1"
	assert.Equal(t, "uid-1", claims.UserID())
}

func TestJWTClaims_Kind(t *testing.T) {
	claims := &identity.JWTClaims{TokenType: string(identity.TokenKindRefresh)}
	assert.Equal(t, identity.TokenKindRefresh, claims.Kind())
}

func TestJWTClaims_HasRole(t *testing.T) {
	claims := &identity.JWTClaims{UserRole: "admin"}
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("user"))
}

func TestJWTClaims_IsAtLeast(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		minRole  string
		expected bool
	}{
		{"admin meets admin", "admin", "admin", true},
		{"admin meets user", "admin", "user", true},
		{"user fails admin", "user", "admin", false},
		{"user meets user", "user", "user", true},
		{"unknown role fails", "wizard", "user", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			claims := &identity.JWTClaims{UserRole: tc.role}
			assert.Equal(t, tc.expected, claims.IsAtLeast(tc.minRole))
		})
	}
}

func TestJWTClaims_Times(t *testing.T) {
	t.Run("unset times are zero", func(t *testing.T) {
		claims := &identity.JWTClaims{}
		assert.True(t, claims.Expires().IsZero())
		assert.True(t, claims.IssuedAt().IsZero())
	})

	t.Run("set times round trip", func(t *testing.T) {
		issued := time.Now().Truncate(time.Second)
		expires := issued.Add(15 * time.Minute)
		claims := &identity.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				IssuedAt:  jwt.NewNumericDate(issued),
				ExpiresAt: jwt.NewNumericDate(expires),
			},
		}
		assert.Equal(t, issued, claims.IssuedAt())
		assert.Equal(t, expires, claims.Expires())
	})
}

func TestJWTClaims_Metadata(t *testing.T) {
	claims := &identity.JWTClaims{
		Metadata: map[string]any{"tenant": "acme"},
	}
	assert.Equal(t, "acme", claims.ClaimsMetadata()["tenant"])
}
