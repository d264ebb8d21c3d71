package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

const (
	googleCalendarScope    = "https://www.googleapis.com/auth/calendar"
	microsoftCalendarScope = "Calendars.ReadWrite"
)

// OAuthClientConfig identifies the OAuth client used to refresh one provider's tokens.
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	// Tenant applies to Microsoft only.
	Tenant string
	// TokenURL overrides the provider's token endpoint.
	TokenURL string
}

// AuthBrokerConfig configures the broker.
type AuthBrokerConfig struct {
	Google        OAuthClientConfig
	Microsoft     OAuthClientConfig
	RefreshBuffer time.Duration
}

type sealedToken struct {
	Sealed string `json:"sealed"`
}

// AuthBroker hands out bearer tokens for providers, refreshing them shortly before expiry.
// Tokens are sealed at rest.
type AuthBroker struct {
	store      *StateStore
	cipher     *TokenCipher
	oauth      map[models.ProviderID]*oauth2.Config
	buffer     time.Duration
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	locks map[models.ProviderID]*sync.Mutex
}

// NewAuthBroker constructs the broker. httpClient is used for refresh calls and may be nil.
func NewAuthBroker(store *StateStore, cipher *TokenCipher, cfg AuthBrokerConfig, httpClient *http.Client, logger *zap.Logger) *AuthBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RefreshBuffer <= 0 {
		cfg.RefreshBuffer = 10 * time.Minute
	}
	googleEndpoint := google.Endpoint
	if cfg.Google.TokenURL != "" {
		googleEndpoint.TokenURL = cfg.Google.TokenURL
	}
	tenant := cfg.Microsoft.Tenant
	if tenant == "" {
		tenant = "common"
	}
	msEndpoint := microsoft.AzureADEndpoint(tenant)
	if cfg.Microsoft.TokenURL != "" {
		msEndpoint.TokenURL = cfg.Microsoft.TokenURL
	}
	return &AuthBroker{
		store:  store,
		cipher: cipher,
		oauth: map[models.ProviderID]*oauth2.Config{
			models.ProviderGoogle: {
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				Endpoint:     googleEndpoint,
				Scopes:       []string{googleCalendarScope},
			},
			models.ProviderOutlook: {
				ClientID:     cfg.Microsoft.ClientID,
				ClientSecret: cfg.Microsoft.ClientSecret,
				Endpoint:     msEndpoint,
				Scopes:       []string{microsoftCalendarScope, "offline_access"},
			},
		},
		buffer:     cfg.RefreshBuffer,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
		locks:      make(map[models.ProviderID]*sync.Mutex),
	}
}

func tokenKey(id models.ProviderID) string {
	return "oauth_token:" + string(id)
}

func (b *AuthBroker) lock(id models.ProviderID) func() {
	b.mu.Lock()
	l, ok := b.locks[id]
	if !ok {
		l = &sync.Mutex{}
		b.locks[id] = l
	}
	b.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// GetToken returns a usable access token, refreshing it when it expires within the buffer.
func (b *AuthBroker) GetToken(ctx context.Context, id models.ProviderID) (string, error) {
	unlock := b.lock(id)
	defer unlock()

	tok, ok, err := b.load(ctx, id)
	if err != nil {
		return "", err
	}
	if !ok || (tok.AccessToken == "" && tok.RefreshToken == "") {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, fmt.Sprintf("%s is not connected", id))
	}
	if tok.AccessToken != "" && !b.expiring(tok) {
		return tok.AccessToken, nil
	}
	if tok.RefreshToken == "" {
		if tok.AccessToken != "" && (tok.Expiry.IsZero() || b.now().Before(tok.Expiry)) {
			return tok.AccessToken, nil
		}
		return "", appErrors.Clone(appErrors.ErrUnauthorized, fmt.Sprintf("%s authorization expired; reconnect the account", id))
	}

	refreshed, err := b.refresh(ctx, id, tok)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Invalidate drops the cached access token and keeps the refresh token, forcing a refresh on next use.
func (b *AuthBroker) Invalidate(ctx context.Context, id models.ProviderID) error {
	unlock := b.lock(id)
	defer unlock()

	tok, ok, err := b.load(ctx, id)
	if err != nil || !ok {
		return err
	}
	tok.AccessToken = ""
	tok.Expiry = time.Time{}
	b.logger.Sugar().Infow("provider token invalidated", "provider", id)
	return b.save(ctx, id, tok)
}

// Store saves credentials obtained by the OAuth consent flow. A token without a refresh
// token keeps the previously stored one.
func (b *AuthBroker) Store(ctx context.Context, id models.ProviderID, tok models.ProviderToken) error {
	if !id.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown provider %q", id))
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return appErrors.Clone(appErrors.ErrValidation, "access token or refresh token is required")
	}
	unlock := b.lock(id)
	defer unlock()

	if tok.RefreshToken == "" {
		if existing, ok, err := b.load(ctx, id); err == nil && ok {
			tok.RefreshToken = existing.RefreshToken
		}
	}
	return b.save(ctx, id, tok)
}

// Clear forgets all credentials for the provider.
func (b *AuthBroker) Clear(ctx context.Context, id models.ProviderID) error {
	unlock := b.lock(id)
	defer unlock()
	return b.store.Remove(ctx, tokenKey(id))
}

// Status reports which providers are connected without exposing secrets.
func (b *AuthBroker) Status(ctx context.Context) ([]models.TokenStatus, error) {
	out := make([]models.TokenStatus, 0, 2)
	for _, id := range []models.ProviderID{models.ProviderGoogle, models.ProviderOutlook} {
		tok, ok, err := b.load(ctx, id)
		if err != nil {
			return nil, err
		}
		status := models.TokenStatus{ProviderID: id}
		if ok {
			status.Connected = tok.AccessToken != "" || tok.RefreshToken != ""
			status.HasRefreshToken = tok.RefreshToken != ""
			if !tok.Expiry.IsZero() {
				expiry := tok.Expiry
				status.Expiry = &expiry
			}
		}
		out = append(out, status)
	}
	return out, nil
}

// RefreshExpiring refreshes every stored token that expires within the buffer and returns
// how many were refreshed.
func (b *AuthBroker) RefreshExpiring(ctx context.Context) (int, error) {
	refreshed := 0
	var errs []error
	for _, id := range []models.ProviderID{models.ProviderGoogle, models.ProviderOutlook} {
		func() {
			unlock := b.lock(id)
			defer unlock()
			tok, ok, err := b.load(ctx, id)
			if err != nil {
				errs = append(errs, err)
				return
			}
			if !ok || tok.RefreshToken == "" || (tok.AccessToken != "" && !b.expiring(tok)) {
				return
			}
			if _, err := b.refresh(ctx, id, tok); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				return
			}
			refreshed++
		}()
	}
	return refreshed, errors.Join(errs...)
}

func (b *AuthBroker) expiring(tok models.ProviderToken) bool {
	if tok.Expiry.IsZero() {
		return false
	}
	return !b.now().Add(b.buffer).Before(tok.Expiry)
}

// refresh exchanges the refresh token. The caller holds the provider lock.
func (b *AuthBroker) refresh(ctx context.Context, id models.ProviderID, tok models.ProviderToken) (models.ProviderToken, error) {
	cfg, ok := b.oauth[id]
	if !ok || cfg.ClientID == "" {
		return tok, appErrors.Clone(appErrors.ErrUnauthorized, fmt.Sprintf("%s OAuth client is not configured", id))
	}
	if b.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
	}
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken, Expiry: time.Unix(1, 0)})
	fresh, err := src.Token()
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) && retrieve.Response != nil &&
			(retrieve.Response.StatusCode == http.StatusBadRequest || retrieve.Response.StatusCode == http.StatusUnauthorized) {
			b.logger.Sugar().Warnw("refresh token rejected; clearing credentials", "provider", id, "status", retrieve.Response.StatusCode, "code", retrieve.ErrorCode)
			if clearErr := b.store.Remove(ctx, tokenKey(id)); clearErr != nil {
				return tok, clearErr
			}
			return tok, appErrors.Clone(appErrors.ErrUnauthorized, fmt.Sprintf("%s authorization was revoked; reconnect the account", id))
		}
		b.logger.Sugar().Warnw("token refresh failed", "provider", id, "error", err)
		return tok, appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, fmt.Sprintf("%s token refresh failed", id))
	}

	updated := models.ProviderToken{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		TokenType:    fresh.TokenType,
		Expiry:       fresh.Expiry,
	}
	if updated.RefreshToken == "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if err := b.save(ctx, id, updated); err != nil {
		return tok, err
	}
	b.logger.Sugar().Infow("provider token refreshed", "provider", id, "expiry", updated.Expiry)
	return updated, nil
}

func (b *AuthBroker) load(ctx context.Context, id models.ProviderID) (models.ProviderToken, bool, error) {
	var stored sealedToken
	ok, err := b.store.Load(ctx, tokenKey(id), &stored)
	if err != nil || !ok {
		return models.ProviderToken{}, false, err
	}
	plain, err := b.cipher.Open(stored.Sealed)
	if err != nil {
		b.logger.Sugar().Warnw("stored token cannot be opened", "provider", id, "error", err)
		return models.ProviderToken{}, false, nil
	}
	var tok models.ProviderToken
	if err := json.Unmarshal(plain, &tok); err != nil {
		return models.ProviderToken{}, false, fmt.Errorf("decode %s token: %w", id, err)
	}
	return tok, true, nil
}

func (b *AuthBroker) save(ctx context.Context, id models.ProviderID, tok models.ProviderToken) error {
	plain, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode %s token: %w", id, err)
	}
	sealed, err := b.cipher.Seal(plain)
	if err != nil {
		return err
	}
	return b.store.Save(ctx, tokenKey(id), sealedToken{Sealed: sealed}, 0)
}
