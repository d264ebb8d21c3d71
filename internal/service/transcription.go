package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/chronos/pkg/config"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/middleware/requestid"
)

var audioExtensions = map[string]string{
	"audio/mp4":   "mp4",
	"audio/m4a":   "mp4",
	"audio/x-m4a": "mp4",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/wave":  "wav",
	"audio/webm":  "webm",
	"video/webm":  "webm",
}

// Transcriber turns recorded speech into text through the speech-to-text backend.
type Transcriber struct {
	cfg    config.TranscriptionConfig
	client *http.Client
	logger *zap.Logger
}

// NewTranscriber constructs the transcriber. The API key comes only from configuration.
func NewTranscriber(cfg config.TranscriptionConfig, client *http.Client, logger *zap.Logger) *Transcriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Transcriber{cfg: cfg, client: client, logger: logger}
}

// MaxUploadBytes is the largest recording accepted.
func (t *Transcriber) MaxUploadBytes() int64 {
	return t.cfg.MaxUploadBytes
}

// AudioExtension maps a recording MIME type to the file extension the backend expects.
func AudioExtension(mimeType string) (string, bool) {
	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = mimeType
	}
	ext, ok := audioExtensions[strings.ToLower(strings.TrimSpace(base))]
	return ext, ok
}

// Transcribe uploads audio and returns the recognised text.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if strings.TrimSpace(t.cfg.APIKey) == "" {
		return "", appErrors.Clone(appErrors.ErrServiceUnavailable, "transcription API key is not configured")
	}
	if len(audio) == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "recording is empty")
	}
	if int64(len(audio)) > t.cfg.MaxUploadBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("recording exceeds %d bytes", t.cfg.MaxUploadBytes))
	}
	ext, ok := AudioExtension(mimeType)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported audio type %q", mimeType))
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "recording."+ext)
	if err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}
	for field, value := range map[string]string{"model": t.cfg.Model, "language": t.cfg.Language, "response_format": "json"} {
		if err := form.WriteField(field, value); err != nil {
			return "", fmt.Errorf("build transcription form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build transcription form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Sugar().Warnw("transcription request failed", "error", err)
		return "", appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "transcription service unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "transcription response interrupted")
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var envelope apiErrorEnvelope
		_ = json.Unmarshal(raw, &envelope)
		message := envelope.text()
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		t.logger.Sugar().Warnw("transcription rejected", "status", resp.StatusCode, "message", message)
		if isQuotaFailure(resp.StatusCode, message) {
			return "", appErrors.Clone(appErrors.ErrQuotaExhausted, "transcription quota used up; try again once capacity resets")
		}
		return "", appErrors.Clone(appErrors.ErrServiceUnavailable, fmt.Sprintf("transcription failed: %s", message))
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrMalformedResponse.Code, appErrors.ErrMalformedResponse.Status, "transcription response is not JSON")
	}
	text := strings.TrimSpace(decoded.Text)
	if text == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "no speech was recognised in the recording")
	}
	return text, nil
}
