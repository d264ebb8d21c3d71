package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

// API scopes carried in caller tokens.
const (
	ScopeCalendar = "calendar"
	ScopeAdmin    = "admin"
)

// AuthConfig defines configuration for API caller tokens.
type AuthConfig struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

// AuthService mints and validates the bearer tokens API callers present.
type AuthService struct {
	logger *zap.Logger
	config AuthConfig
	now    func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Expiry <= 0 {
		config.Expiry = 30 * 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "chronos"
	}
	return &AuthService{logger: logger, config: config, now: time.Now}
}

// Mint issues a token for subject with the given scopes. A zero ttl uses the configured expiry.
func (s *AuthService) Mint(subject string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(subject) == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "subject is required")
	}
	if s.config.Secret == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrInternal, "JWT secret is not configured")
	}
	if ttl <= 0 {
		ttl = s.config.Expiry
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeCalendar}
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.APIClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	s.logger.Sugar().Infow("api token minted", "subject", subject, "scopes", scopes, "expires_at", expiresAt)
	return signed, expiresAt, nil
}

// ValidateToken parses and validates a token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.APIClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.APIClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.APIClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// HasScope reports whether claims grant scope. The admin scope grants everything.
func HasScope(claims *models.APIClaims, scope string) bool {
	if claims == nil {
		return false
	}
	for _, s := range claims.Scopes {
		if s == scope || s == ScopeAdmin {
			return true
		}
	}
	return false
}
