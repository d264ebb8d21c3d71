package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/internal/dto"
	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/service"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

type classifierStub struct {
	intent   models.ParsedIntent
	err      error
	text     string
	timezone string
}

func (s *classifierStub) Classify(ctx context.Context, text string, now time.Time, timezone string) (models.ParsedIntent, error) {
	s.text, s.timezone = text, timezone
	return s.intent, s.err
}

type executorStub struct {
	result   models.AggregateResult
	err      error
	captured service.ExecuteRequest
}

func (s *executorStub) Execute(ctx context.Context, req service.ExecuteRequest) (models.AggregateResult, error) {
	s.captured = req
	return s.result, s.err
}

func newCommandRouter(classifier *classifierStub, executor *executorStub) *CommandHandler {
	prefs := &preferencesStub{prefs: models.Preferences{Timezone: "Europe/Paris"}}
	return NewCommandHandler(classifier, executor, service.NewDisambiguationEngine(60), prefs, nil)
}

func TestClassifyReportsPendingConfirmation(t *testing.T) {
	start := time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC)
	draft := draftAt("Gym", start, 60)
	draft.NeedsTimeConfirmation = true
	classifier := &classifierStub{intent: models.ParsedIntent{Type: models.IntentCreate, Draft: &draft, Confidence: 0.6}}
	h := newCommandRouter(classifier, &executorStub{})
	router := newTestRouter()
	router.POST("/commands/classify", h.Classify)

	w, env := doJSON(t, router, http.MethodPost, "/commands/classify", dto.ClassifyRequest{Text: "go to gym tomorrow"})
	require.Equal(t, http.StatusOK, w.Code)
	var body dto.ClassifyResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, string(service.DraftNeedsTime), body.NextInput)
	assert.Equal(t, models.IntentCreate, body.Intent.Type)
	assert.Equal(t, "go to gym tomorrow", classifier.text)
	assert.Equal(t, "Europe/Paris", classifier.timezone)
}

func TestClassifyRejectsBadInput(t *testing.T) {
	h := newCommandRouter(&classifierStub{}, &executorStub{})
	router := newTestRouter()
	router.POST("/commands/classify", h.Classify)

	w, env := doJSON(t, router, http.MethodPost, "/commands/classify", `{"text":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrValidation.Code, env.Error.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/commands/classify", dto.ClassifyRequest{Text: ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/commands/classify", dto.ClassifyRequest{Text: "lunch", Timezone: "Mars/Olympus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassifySurfacesQuotaExhaustion(t *testing.T) {
	h := newCommandRouter(&classifierStub{err: appErrors.ErrQuotaExhausted}, &executorStub{})
	router := newTestRouter()
	router.POST("/commands/classify", h.Classify)

	w, env := doJSON(t, router, http.MethodPost, "/commands/classify", dto.ClassifyRequest{Text: "lunch"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, appErrors.ErrQuotaExhausted.Code, env.Error.Code)
}

func TestExecutePassesTargetAndReportsPartial(t *testing.T) {
	executor := &executorStub{result: models.AggregateResult{
		Status:         models.StatusPartial,
		Intent:         models.IntentCreate,
		RetryProviders: []models.ProviderID{models.ProviderOutlook},
	}}
	h := newCommandRouter(&classifierStub{}, executor)
	router := newTestRouter()
	router.POST("/commands/execute", h.Execute)

	w, env := doJSON(t, router, http.MethodPost, "/commands/execute", map[string]interface{}{
		"intent":    map[string]interface{}{"intent": "delete", "searchQuery": "gym", "confidence": 0.9},
		"providers": []string{"google", "outlook"},
		"target":    map[string]string{"providerId": "google", "id": "evt-2"},
		"scope":     "all",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", env.Meta["status"])
	assert.Equal(t, []interface{}{"outlook"}, env.Meta["retryProviders"])
	require.NotNil(t, executor.captured.Target)
	assert.Equal(t, service.EventTarget{ProviderID: models.ProviderGoogle, ID: "evt-2"}, *executor.captured.Target)
	assert.Equal(t, models.ScopeAll, executor.captured.Scope)
	assert.Equal(t, "gym", executor.captured.Intent.SearchQuery)
}

func TestExecuteFailureAndErrors(t *testing.T) {
	executor := &executorStub{result: models.AggregateResult{Status: models.StatusFailure}}
	h := newCommandRouter(&classifierStub{}, executor)
	router := newTestRouter()
	router.POST("/commands/execute", h.Execute)
	body := map[string]interface{}{"intent": map[string]interface{}{"intent": "view"}}

	w, _ := doJSON(t, router, http.MethodPost, "/commands/execute", body)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	executor.err = appErrors.ErrScopeRequired
	w, env := doJSON(t, router, http.MethodPost, "/commands/execute", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrScopeRequired.Code, env.Error.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/commands/execute", map[string]interface{}{"intent": body["intent"], "scope": "some"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmTimeThenDuration(t *testing.T) {
	h := newCommandRouter(&classifierStub{}, &executorStub{})
	router := newTestRouter()
	router.POST("/drafts/time", h.ConfirmTime)
	router.POST("/drafts/duration", h.ConfirmDuration)

	draft := draftAt("Gym", time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC), 60)
	draft.NeedsTimeConfirmation = true
	draft.NeedsDurationConfirmation = true

	w, env := doJSON(t, router, http.MethodPost, "/drafts/time", dto.TimeConfirmationRequest{Draft: draft, Time: "6am"})
	require.Equal(t, http.StatusOK, w.Code)
	var timed dto.DraftResponse
	require.NoError(t, json.Unmarshal(env.Data, &timed))
	assert.Equal(t, 6, timed.Draft.Start.Hour())
	assert.Equal(t, string(service.DraftNeedsDuration), timed.NextInput)

	w, env = doJSON(t, router, http.MethodPost, "/drafts/duration", dto.DurationConfirmationRequest{Draft: timed.Draft, Duration: "90m"})
	require.Equal(t, http.StatusOK, w.Code)
	var sized dto.DraftResponse
	require.NoError(t, json.Unmarshal(env.Data, &sized))
	assert.Equal(t, 90*time.Minute, sized.Draft.Duration())
	assert.Equal(t, string(service.DraftReady), sized.NextInput)

	w, env = doJSON(t, router, http.MethodPost, "/drafts/time", dto.TimeConfirmationRequest{Draft: draft, Time: "whenever"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrInvalidTime.Code, env.Error.Code)
}
