package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/chronos/pkg/config"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/middleware/requestid"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
	Message string `json:"message"`
}

func (e apiErrorEnvelope) text() string {
	if e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

// InferenceClient sends chat-completion requests to the configured backend.
type InferenceClient struct {
	cfg    config.InferenceConfig
	client *http.Client
	logger *zap.Logger
}

// NewInferenceClient constructs the client. The API key comes only from configuration.
func NewInferenceClient(cfg config.InferenceConfig, client *http.Client, logger *zap.Logger) *InferenceClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &InferenceClient{cfg: cfg, client: client, logger: logger}
}

// Configured reports whether an API key is available.
func (c *InferenceClient) Configured() bool {
	return c != nil && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Complete sends one system and one user message and returns the assistant content.
func (c *InferenceClient) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", appErrors.Clone(appErrors.ErrServiceUnavailable, "inference API key is not configured")
	}
	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("encode inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Sugar().Warnw("inference request failed", "error", err)
		return "", appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "inference service unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "inference response interrupted")
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var envelope apiErrorEnvelope
		_ = json.Unmarshal(body, &envelope)
		message := envelope.text()
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		c.logger.Sugar().Warnw("inference request rejected", "status", resp.StatusCode, "message", message, "latency", time.Since(started))
		if isQuotaFailure(resp.StatusCode, message) {
			return "", appErrors.Clone(appErrors.ErrQuotaExhausted, "inference quota used up; try again once capacity resets")
		}
		return "", appErrors.Clone(appErrors.ErrServiceUnavailable, fmt.Sprintf("inference service error (status %d): %s", resp.StatusCode, message))
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrMalformedResponse.Code, appErrors.ErrMalformedResponse.Status, "inference response is not JSON")
	}
	if len(decoded.Choices) == 0 || strings.TrimSpace(decoded.Choices[0].Message.Content) == "" {
		return "", appErrors.Clone(appErrors.ErrMalformedResponse, "inference response has no content")
	}
	c.logger.Sugar().Debugw("inference request completed", "latency", time.Since(started))
	return decoded.Choices[0].Message.Content, nil
}

func isQuotaFailure(status int, message string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	lower := strings.ToLower(message)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "insufficient")
}
