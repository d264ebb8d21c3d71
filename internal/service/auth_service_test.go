package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

func newTestAuthService() *AuthService {
	return NewAuthService(nil, AuthConfig{Secret: "test-secret", Issuer: "chronos-test", Expiry: time.Hour})
}

func TestAuthServiceMintAndValidate(t *testing.T) {
	svc := newTestAuthService()

	token, expiresAt, err := svc.Mint("cli", []string{ScopeCalendar}, 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "cli", claims.Subject)
	assert.Equal(t, []string{ScopeCalendar}, claims.Scopes)
	assert.True(t, HasScope(claims, ScopeCalendar))
	assert.False(t, HasScope(claims, ScopeAdmin))
}

func TestAuthServiceRejectsForeignAndExpiredTokens(t *testing.T) {
	svc := newTestAuthService()

	other := NewAuthService(nil, AuthConfig{Secret: "other-secret", Issuer: "chronos-test"})
	foreign, _, err := other.Mint("cli", nil, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := svc.Mint("cli", nil, time.Hour)
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.ValidateToken(stale)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceRejectsUnsignedAlgorithm(t *testing.T) {
	svc := newTestAuthService()
	claims := &models.APIClaims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "chronos-test", Subject: "x"}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.ValidateToken(unsigned)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestAuthServiceMintValidation(t *testing.T) {
	svc := newTestAuthService()
	_, _, err := svc.Mint(" ", nil, 0)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	noSecret := NewAuthService(nil, AuthConfig{})
	_, _, err = noSecret.Mint("cli", nil, 0)
	assert.ErrorIs(t, err, appErrors.ErrInternal)

	assert.True(t, HasScope(&models.APIClaims{Scopes: []string{ScopeAdmin}}, ScopeCalendar))
	assert.False(t, HasScope(nil, ScopeCalendar))
}
