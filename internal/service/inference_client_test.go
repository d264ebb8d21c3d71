package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/pkg/config"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/middleware/requestid"
)

func TestInferenceClientComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "req-42", r.Header.Get(requestid.Header))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Equal(t, "lunch tomorrow", body.Messages[1].Content)
		assert.Equal(t, "json_object", body.ResponseFormat["type"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"intent\":\"view\"}"}}]}`))
	}))
	defer server.Close()

	client := NewInferenceClient(config.InferenceConfig{BaseURL: server.URL + "/v1/", APIKey: "test-key", Model: "test-model"}, server.Client(), nil)
	ctx := requestid.WithContext(context.Background(), "req-42")
	content, err := client.Complete(ctx, "system prompt", "lunch tomorrow")
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"view"}`, content)
}

func TestInferenceClientMapsFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, appErrors.ErrQuotaExhausted.Code},
		{"quota message", http.StatusForbidden, `{"error":{"message":"You exceeded your current quota"}}`, appErrors.ErrQuotaExhausted.Code},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"boom"}}`, appErrors.ErrServiceUnavailable.Code},
		{"not json", http.StatusOK, `<html>`, appErrors.ErrMalformedResponse.Code},
		{"no choices", http.StatusOK, `{"choices":[]}`, appErrors.ErrMalformedResponse.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewInferenceClient(config.InferenceConfig{BaseURL: server.URL, APIKey: "k"}, server.Client(), nil)
			_, err := client.Complete(context.Background(), "s", "u")
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
}

func TestInferenceClientWithoutKey(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewInferenceClient(config.InferenceConfig{BaseURL: server.URL}, server.Client(), nil)
	assert.False(t, client.Configured())
	_, err := client.Complete(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)
	assert.False(t, called)
}
