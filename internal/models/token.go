package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProviderToken is an OAuth credential pair for one provider.
type ProviderToken struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// TokenStatus is the non-secret view of a stored provider token.
type TokenStatus struct {
	ProviderID      ProviderID `json:"providerId"`
	Connected       bool       `json:"connected"`
	HasRefreshToken bool       `json:"hasRefreshToken"`
	Expiry          *time.Time `json:"expiry,omitempty"`
}

// APIClaims are the JWT claims accepted on the HTTP surface.
type APIClaims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}
