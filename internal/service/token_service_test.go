package service

import (
	"testing"
	"time"

	"rfid-fare-gateway/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-key-for-unit-tests"

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, 24*time.Hour, "test-issuer")
	userID := uuid.New()

	tokenStr, expiresAt, err := svc.Generate(userID, domain.RoleConductor)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
	assert.True(t, expiresAt.After(time.Now()))

	identity, err := svc.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, domain.RoleConductor, identity.Role)
}

func TestJWTTokenService_ExpiredToken(t *testing.T) {
	// Token with -1 hour expiry = already expired
	svc := NewJWTTokenService(testJWTSecret, -1*time.Hour, "test-issuer")

	tokenStr, _, err := svc.Generate(uuid.New(), domain.RolePassenger)
	require.NoError(t, err)

	_, err = svc.Validate(tokenStr)
	assert.Error(t, err, "expired token should fail validation")
}

func TestJWTTokenService_WrongSecret(t *testing.T) {
	svc1 := NewJWTTokenService("secret-1", time.Hour, "test-issuer")
	svc2 := NewJWTTokenService("secret-2", time.Hour, "test-issuer")

	tokenStr, _, err := svc1.Generate(uuid.New(), domain.RolePassenger)
	require.NoError(t, err)

	_, err = svc2.Validate(tokenStr)
	assert.Error(t, err)
}

func TestJWTTokenService_WrongIssuer(t *testing.T) {
	svc1 := NewJWTTokenService(testJWTSecret, time.Hour, "issuer-a")
	svc2 := NewJWTTokenService(testJWTSecret, time.Hour, "issuer-b")

	tokenStr, _, err := svc1.Generate(uuid.New(), domain.RolePassenger)
	require.NoError(t, err)

	_, err = svc2.Validate(tokenStr)
	assert.Error(t, err)
}

func TestJWTTokenService_RejectsBadClaims(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "test-issuer")
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
		require.NoError(t, err)
		return s
	}
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{"unknown role", jwt.MapClaims{"sub": uuid.NewString(), "role": "admin", "exp": exp, "iss": "test-issuer"}},
		{"bad subject", jwt.MapClaims{"sub": "nope", "role": "passenger", "exp": exp, "iss": "test-issuer"}},
		{"missing exp", jwt.MapClaims{"sub": uuid.NewString(), "role": "passenger", "iss": "test-issuer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Validate(sign(tt.claims))
			assert.Error(t, err)
		})
	}
}

func TestJWTTokenService_InvalidToken(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "test-issuer")
	_, err := svc.Validate("invalid.token.string")
	assert.Error(t, err)
}
