package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

type completionStub struct {
	configured bool
	content    string
	err        error
	system     string
	user       string
	calls      int
}

func (s *completionStub) Configured() bool { return s.configured }

func (s *completionStub) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls++
	s.system = system
	s.user = user
	return s.content, s.err
}

type classificationObserverStub struct {
	mu     sync.Mutex
	events []string
}

func (s *classificationObserverStub) ObserveClassification(source, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, source+":"+outcome)
}

func newTestClassifier(client completionClient, metrics classificationObserver) *IntentClassifier {
	return NewIntentClassifier(client, NewFallbackParser(60, 30), nil, nil, metrics, ClassifierConfig{DefaultReminderMinutes: 60}, nil)
}

func TestClassifierAppliesLocalTimeAndDurationPolicy(t *testing.T) {
	client := &completionStub{configured: true, content: `{
		"intent": "create",
		"title": "Gym",
		"startDateTime": "2024-05-16T09:00:00Z",
		"durationMinutes": null,
		"needsTimeConfirmation": false,
		"needsDurationConfirmation": true,
		"confidence": 0.92
	}`}
	observer := &classificationObserverStub{}
	classifier := newTestClassifier(client, observer)

	intent, err := classifier.Classify(context.Background(), "gym tomorrow at 6pm", fixedNow, "UTC")
	require.NoError(t, err)
	assert.Equal(t, models.IntentSourceInference, intent.Source)
	require.NotNil(t, intent.Draft)
	assert.Equal(t, time.Date(2024, 5, 16, 18, 0, 0, 0, time.UTC), intent.Draft.Start)
	assert.Equal(t, 90*time.Minute, intent.Draft.Duration())
	assert.False(t, intent.Draft.NeedsTimeConfirmation)
	assert.True(t, intent.Draft.NeedsDurationConfirmation)
	assert.Equal(t, 60, intent.Draft.ReminderLeadMinutes)
	assert.Equal(t, "gym tomorrow at 6pm", client.user)
	assert.Contains(t, client.system, "Timezone: UTC")
	assert.Equal(t, []string{"inference:ok"}, observer.events)
}

func TestClassifierFlagsMissingTimeOfDay(t *testing.T) {
	client := &completionStub{configured: true, content: "```json\n" + `{"intent":"create","title":"Gym","startDateTime":"2024-05-16T09:00:00","durationMinutes":45,"confidence":0.7}` + "\n```"}
	intent, err := newTestClassifier(client, nil).Classify(context.Background(), "gym tomorrow", fixedNow, "UTC")
	require.NoError(t, err)
	assert.True(t, intent.Draft.NeedsTimeConfirmation)
	assert.Equal(t, 45, intent.Draft.SuggestedDurationMinutes)
}

func TestClassifierExplicitDurationOverridesBackend(t *testing.T) {
	client := &completionStub{configured: true, content: `{"intent":"create","title":"Lunch with Sara","startDateTime":"2024-05-17T13:00:00Z","durationMinutes":60,"confidence":0.9}`}
	intent, err := newTestClassifier(client, nil).Classify(context.Background(), "Lunch with Sara Friday 1pm for 45m", fixedNow, "UTC")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, intent.Draft.Duration())
}

func TestClassifierNormalizesRecurrence(t *testing.T) {
	client := &completionStub{configured: true, content: `{"intent":"create","title":"Yoga","startDateTime":"2024-05-20T18:00:00Z","recurrencePattern":"weekly;byday=mo","confidence":0.9}`}
	intent, err := newTestClassifier(client, nil).Classify(context.Background(), "yoga every monday at 6pm", fixedNow, "UTC")
	require.NoError(t, err)
	assert.Contains(t, intent.Draft.RecurrenceRule, "FREQ=WEEKLY")
	assert.Contains(t, intent.Draft.RecurrenceRule, "BYDAY=MO")
}

func TestClassifierModifyFlattensChanges(t *testing.T) {
	client := &completionStub{configured: true, content: `{"intent":"modify","searchQuery":" dentist ","changes":{"time":"3pm","duration":90,"location":null},"confidence":0.8}`}
	intent, err := newTestClassifier(client, nil).Classify(context.Background(), "move dentist to 3pm for 90 minutes", fixedNow, "UTC")
	require.NoError(t, err)
	assert.Equal(t, models.IntentModify, intent.Type)
	assert.Equal(t, "dentist", intent.SearchQuery)
	assert.Equal(t, map[string]string{"time": "3pm", "duration": "90"}, intent.Changes)
}

func TestClassifierViewDefaultsToToday(t *testing.T) {
	client := &completionStub{configured: true, content: `{"intent":"view","timeframe":"today","confidence":0.9}`}
	intent, err := newTestClassifier(client, nil).Classify(context.Background(), "what's on today", fixedNow, "UTC")
	require.NoError(t, err)
	require.NotNil(t, intent.RangeStart)
	assert.Equal(t, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), *intent.RangeStart)
	assert.Equal(t, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC), *intent.RangeEnd)
}

func TestClassifierMultipleCommands(t *testing.T) {
	client := &completionStub{configured: true, content: `{"intent":"multiple_commands","confidence":0.8,"commands":[
		{"intent":"create","title":"Lunch","startDateTime":"2024-05-16T12:00:00Z","confidence":0.8},
		{"intent":"delete","searchQuery":"gym","confidence":0.8}
	]}`}
	intent, err := newTestClassifier(client, nil).Classify(context.Background(), "add lunch tomorrow and cancel gym", fixedNow, "UTC")
	require.NoError(t, err)
	require.Len(t, intent.Commands, 2)
	assert.Equal(t, models.IntentCreate, intent.Commands[0].Type)
	assert.Equal(t, 12, intent.Commands[0].Draft.Start.Hour())
	assert.Equal(t, models.IntentDelete, intent.Commands[1].Type)
}

func TestClassifierFallsBackOnMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"unknown field":  `{"intent":"create","title":"Gym","startDateTime":"2024-05-16T09:00:00Z","mood":"happy"}`,
		"unknown intent": `{"intent":"reschedule","searchQuery":"gym"}`,
		"not json":       `sure! here is your event`,
		"nested":         `{"intent":"multiple_commands","commands":[{"intent":"multiple_commands","commands":[]}]}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			observer := &classificationObserverStub{}
			client := &completionStub{configured: true, content: content}
			intent, err := newTestClassifier(client, observer).Classify(context.Background(), "go to gym tomorrow", fixedNow, "UTC")
			require.NoError(t, err)
			assert.Equal(t, models.IntentSourceFallback, intent.Source)
			assert.Equal(t, "go to gym", intent.Draft.Title)
			assert.Equal(t, []string{"inference:malformed_response", "fallback:ok"}, observer.events)
		})
	}
}

func TestClassifierQuotaExhaustionSkipsFallback(t *testing.T) {
	client := &completionStub{configured: true, err: appErrors.Clone(appErrors.ErrQuotaExhausted, "quota")}
	_, err := newTestClassifier(client, nil).Classify(context.Background(), "go to gym tomorrow", fixedNow, "UTC")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrQuotaExhausted.Code, appErrors.FromError(err).Code)
}

func TestClassifierReturnsCauseWhenFallbackAlsoFails(t *testing.T) {
	client := &completionStub{configured: true, err: appErrors.Clone(appErrors.ErrServiceUnavailable, "down")}
	_, err := newTestClassifier(client, nil).Classify(context.Background(), "buy milk", fixedNow, "UTC")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)
}

func TestClassifierWithoutBackendUsesFallback(t *testing.T) {
	client := &completionStub{configured: false}
	intent, err := newTestClassifier(client, nil).Classify(context.Background(), "Lunch with Sara Friday 1pm", fixedNow, "UTC")
	require.NoError(t, err)
	assert.Equal(t, models.IntentSourceFallback, intent.Source)
	assert.Zero(t, client.calls)

	bare := NewIntentClassifier(nil, nil, nil, nil, nil, ClassifierConfig{}, nil)
	_, err = bare.Classify(context.Background(), "Lunch with Sara Friday 1pm", fixedNow, "UTC")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)
}

func TestClassifierRejectsBlankText(t *testing.T) {
	_, err := newTestClassifier(&completionStub{configured: true}, nil).Classify(context.Background(), "  ", fixedNow, "UTC")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
