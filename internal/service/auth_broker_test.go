package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/repository"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

type tokenServer struct {
	*httptest.Server
	calls  atomic.Int32
	status int
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.calls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		switch ts.status {
		case http.StatusOK:
			_, _ = w.Write([]byte(`{"access_token":"fresh-access","token_type":"Bearer","expires_in":3600}`))
		case http.StatusBadRequest:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been revoked"}`))
		default:
			w.WriteHeader(ts.status)
			_, _ = w.Write([]byte(`{"error":"server_error"}`))
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestBroker(t *testing.T, server *tokenServer) (*AuthBroker, *repository.MemoryKVRepository) {
	t.Helper()
	kv := repository.NewMemoryKVRepository()
	cipher, err := NewTokenCipher("test-secret")
	require.NoError(t, err)
	client := OAuthClientConfig{ClientID: "client", ClientSecret: "secret", TokenURL: server.URL + "/token"}
	broker := NewAuthBroker(NewStateStore(kv, nil), cipher, AuthBrokerConfig{Google: client, Microsoft: client}, server.Client(), nil)
	return broker, kv
}

func TestAuthBrokerReturnsValidTokenWithoutRefresh(t *testing.T) {
	server := newTokenServer(t)
	broker, kv := newTestBroker(t, server)
	ctx := context.Background()
	require.NoError(t, broker.Store(ctx, models.ProviderGoogle, models.ProviderToken{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}))

	token, err := broker.GetToken(ctx, models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)
	assert.Zero(t, server.calls.Load())

	raw, err := kv.Get(ctx, "oauth_token:google")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "access-1")
	assert.NotContains(t, string(raw), "refresh-1")
}

func TestAuthBrokerRefreshesExpiringToken(t *testing.T) {
	server := newTokenServer(t)
	broker, _ := newTestBroker(t, server)
	ctx := context.Background()
	require.NoError(t, broker.Store(ctx, models.ProviderOutlook, models.ProviderToken{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Minute),
	}))

	token, err := broker.GetToken(ctx, models.ProviderOutlook)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)
	assert.EqualValues(t, 1, server.calls.Load())

	token, err = broker.GetToken(ctx, models.ProviderOutlook)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)
	assert.EqualValues(t, 1, server.calls.Load())

	statuses, err := broker.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].Connected)
	assert.True(t, statuses[1].Connected)
	assert.True(t, statuses[1].HasRefreshToken)
	require.NotNil(t, statuses[1].Expiry)
	assert.True(t, statuses[1].Expiry.After(time.Now().Add(30*time.Minute)))
}

func TestAuthBrokerInvalidateForcesRefresh(t *testing.T) {
	server := newTokenServer(t)
	broker, _ := newTestBroker(t, server)
	ctx := context.Background()
	require.NoError(t, broker.Store(ctx, models.ProviderGoogle, models.ProviderToken{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(time.Hour),
	}))

	require.NoError(t, broker.Invalidate(ctx, models.ProviderGoogle))
	token, err := broker.GetToken(ctx, models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)
	assert.EqualValues(t, 1, server.calls.Load())
}

func TestAuthBrokerRevokedRefreshClearsCredentials(t *testing.T) {
	server := newTokenServer(t)
	server.status = http.StatusBadRequest
	broker, _ := newTestBroker(t, server)
	ctx := context.Background()
	require.NoError(t, broker.Store(ctx, models.ProviderGoogle, models.ProviderToken{RefreshToken: "refresh-1"}))

	_, err := broker.GetToken(ctx, models.ProviderGoogle)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	statuses, err := broker.Status(ctx)
	require.NoError(t, err)
	assert.False(t, statuses[0].Connected)
}

func TestAuthBrokerRefreshServerErrorIsNetworkFailure(t *testing.T) {
	server := newTokenServer(t)
	server.status = http.StatusInternalServerError
	broker, _ := newTestBroker(t, server)
	ctx := context.Background()
	require.NoError(t, broker.Store(ctx, models.ProviderGoogle, models.ProviderToken{RefreshToken: "refresh-1"}))

	_, err := broker.GetToken(ctx, models.ProviderGoogle)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNetwork.Code, appErrors.FromError(err).Code)

	statuses, err := broker.Status(ctx)
	require.NoError(t, err)
	assert.True(t, statuses[0].Connected)
}

func TestAuthBrokerStoreKeepsRefreshToken(t *testing.T) {
	server := newTokenServer(t)
	broker, _ := newTestBroker(t, server)
	ctx := context.Background()
	require.NoError(t, broker.Store(ctx, models.ProviderGoogle, models.ProviderToken{AccessToken: "a1", RefreshToken: "refresh-1", Expiry: time.Now().Add(-time.Minute)}))
	require.NoError(t, broker.Store(ctx, models.ProviderGoogle, models.ProviderToken{AccessToken: "a2", Expiry: time.Now().Add(-time.Minute)}))

	token, err := broker.GetToken(ctx, models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)
}

func TestAuthBrokerRejectsMissingCredentials(t *testing.T) {
	server := newTokenServer(t)
	broker, _ := newTestBroker(t, server)
	ctx := context.Background()

	_, err := broker.GetToken(ctx, models.ProviderGoogle)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	err = broker.Store(ctx, models.ProviderGoogle, models.ProviderToken{})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	err = broker.Store(ctx, "yahoo", models.ProviderToken{AccessToken: "x"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	require.NoError(t, broker.Store(ctx, models.ProviderGoogle, models.ProviderToken{AccessToken: "a1", Expiry: time.Now().Add(-time.Minute)}))
	_, err = broker.GetToken(ctx, models.ProviderGoogle)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	require.NoError(t, broker.Clear(ctx, models.ProviderGoogle))
	statuses, err := broker.Status(ctx)
	require.NoError(t, err)
	assert.False(t, statuses[0].Connected)
}

func TestAuthBrokerRefreshExpiring(t *testing.T) {
	server := newTokenServer(t)
	broker, _ := newTestBroker(t, server)
	ctx := context.Background()
	require.NoError(t, broker.Store(ctx, models.ProviderGoogle, models.ProviderToken{AccessToken: "a1", RefreshToken: "refresh-1", Expiry: time.Now().Add(time.Minute)}))
	require.NoError(t, broker.Store(ctx, models.ProviderOutlook, models.ProviderToken{AccessToken: "a2", RefreshToken: "refresh-1", Expiry: time.Now().Add(time.Hour)}))

	refreshed, err := broker.RefreshExpiring(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.EqualValues(t, 1, server.calls.Load())
}
