package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/provider"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

type completionClient interface {
	Configured() bool
	Complete(ctx context.Context, system, user string) (string, error)
}

type fallbackParser interface {
	Parse(text string, now time.Time, loc *time.Location) (models.ParsedIntent, error)
}

type classificationObserver interface {
	ObserveClassification(source, outcome string)
}

// ClassifierConfig carries defaults applied to classified drafts.
type ClassifierConfig struct {
	DefaultReminderMinutes int
}

// IntentClassifier turns free text into a ParsedIntent using the inference backend, with
// the token parser as a fallback for non-quota failures.
type IntentClassifier struct {
	client     completionClient
	fallback   fallbackParser
	heuristics *DurationHeuristics
	validate   *validator.Validate
	metrics    classificationObserver
	cfg        ClassifierConfig
	logger     *zap.Logger
}

// NewIntentClassifier constructs the classifier. fallback and metrics may be nil.
func NewIntentClassifier(client completionClient, fallback fallbackParser, heuristics *DurationHeuristics, validate *validator.Validate, metrics classificationObserver, cfg ClassifierConfig, logger *zap.Logger) *IntentClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if heuristics == nil {
		heuristics = MustDefaultDurationHeuristics()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.DefaultReminderMinutes < 0 {
		cfg.DefaultReminderMinutes = 60
	}
	return &IntentClassifier{
		client:     client,
		fallback:   fallback,
		heuristics: heuristics,
		validate:   validate,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
}

// Classify infers the intent of text relative to now in timezone.
func (c *IntentClassifier) Classify(ctx context.Context, text string, now time.Time, timezone string) (models.ParsedIntent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.ParsedIntent{}, appErrors.Clone(appErrors.ErrValidation, "command text is required")
	}
	loc := loadZone(timezone)
	now = now.In(loc)

	if c.client == nil || !c.client.Configured() {
		if c.fallback == nil {
			c.observe(models.IntentSourceFallback, "unavailable")
			return models.ParsedIntent{}, appErrors.Clone(appErrors.ErrServiceUnavailable, "no inference backend is configured")
		}
		intent, err := c.fallback.Parse(text, now, loc)
		c.observe(models.IntentSourceFallback, outcomeOf(err))
		return intent, err
	}

	content, err := c.client.Complete(ctx, buildSystemPrompt(now, loc, c.heuristics), text)
	if err != nil {
		if errors.Is(err, appErrors.ErrQuotaExhausted) {
			c.observe(models.IntentSourceInference, "quota_exhausted")
			return models.ParsedIntent{}, err
		}
		return c.tryFallback(text, now, loc, err)
	}

	intent, err := c.decode(content, text, now, loc)
	if err != nil {
		c.logger.Sugar().Warnw("inference returned an unusable intent", "error", err)
		return c.tryFallback(text, now, loc, err)
	}
	c.observe(models.IntentSourceInference, "ok")
	return intent, nil
}

func (c *IntentClassifier) tryFallback(text string, now time.Time, loc *time.Location, cause error) (models.ParsedIntent, error) {
	c.observe(models.IntentSourceInference, strings.ToLower(appErrors.Code(cause)))
	if c.fallback == nil {
		return models.ParsedIntent{}, cause
	}
	intent, err := c.fallback.Parse(text, now, loc)
	if err != nil {
		c.logger.Sugar().Infow("fallback parser could not read command", "error", err)
		return models.ParsedIntent{}, cause
	}
	c.logger.Sugar().Infow("using fallback parser", "cause", appErrors.Code(cause))
	c.observe(models.IntentSourceFallback, "ok")
	return intent, nil
}

func (c *IntentClassifier) observe(source, outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveClassification(source, outcome)
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if code := appErrors.Code(err); code != "" {
		return strings.ToLower(code)
	}
	return "error"
}

// wireIntent is the JSON shape the inference backend must produce. Unknown fields are
// rejected.
type wireIntent struct {
	Intent                    string                     `json:"intent"`
	Title                     string                     `json:"title"`
	StartDateTime             string                     `json:"startDateTime"`
	EndDateTime               string                     `json:"endDateTime"`
	DurationMinutes           *float64                   `json:"durationMinutes"`
	Description               string                     `json:"description"`
	Location                  string                     `json:"location"`
	RecurrencePattern         string                     `json:"recurrencePattern"`
	NeedsTimeConfirmation     bool                       `json:"needsTimeConfirmation"`
	NeedsDurationConfirmation bool                       `json:"needsDurationConfirmation"`
	ReminderMinutes           *float64                   `json:"reminderMinutes"`
	Confidence                *float64                   `json:"confidence"`
	SearchQuery               string                     `json:"searchQuery"`
	Changes                   map[string]json.RawMessage `json:"changes"`
	Timeframe                 string                     `json:"timeframe"`
	Events                    []wireIntent               `json:"events"`
	Commands                  []wireIntent               `json:"commands"`
}

func malformed(format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrMalformedResponse, fmt.Sprintf(format, args...))
}

func (c *IntentClassifier) decode(content, text string, now time.Time, loc *time.Location) (models.ParsedIntent, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(stripCodeFence(content))))
	dec.DisallowUnknownFields()
	var w wireIntent
	if err := dec.Decode(&w); err != nil {
		return models.ParsedIntent{}, malformed("inference response does not match the intent schema: %v", err)
	}
	if dec.More() {
		return models.ParsedIntent{}, malformed("inference response has trailing content")
	}
	intent, err := c.toIntent(w, text, true, now, loc)
	if err != nil {
		return models.ParsedIntent{}, err
	}
	if err := intent.Validate(); err != nil {
		return models.ParsedIntent{}, malformed("inference intent is invalid: %v", err)
	}
	return intent, nil
}

func (c *IntentClassifier) toIntent(w wireIntent, text string, topLevel bool, now time.Time, loc *time.Location) (models.ParsedIntent, error) {
	confidence := 0.0
	if w.Confidence != nil {
		confidence = *w.Confidence
	}
	out := models.ParsedIntent{Type: models.IntentType(w.Intent), Confidence: confidence, Source: models.IntentSourceInference}

	switch out.Type {
	case models.IntentCreate:
		draft, err := c.toDraft(w, text, topLevel, now, loc)
		if err != nil {
			return out, err
		}
		out.Draft = &draft
	case models.IntentCreateMultiple:
		if len(w.Events) == 0 {
			return out, malformed("create_multiple has no events")
		}
		for i, ev := range w.Events {
			draft, err := c.toDraft(ev, text, false, now, loc)
			if err != nil {
				return out, malformed("event %d: %v", i, err)
			}
			out.Drafts = append(out.Drafts, draft)
		}
	case models.IntentDelete:
		out.SearchQuery = strings.TrimSpace(w.SearchQuery)
	case models.IntentModify:
		out.SearchQuery = strings.TrimSpace(w.SearchQuery)
		changes, err := flattenChanges(w.Changes)
		if err != nil {
			return out, err
		}
		out.Changes = changes
	case models.IntentView:
		out.Timeframe = w.Timeframe
		start, end, err := viewRange(w, now, loc)
		if err != nil {
			return out, err
		}
		out.RangeStart, out.RangeEnd = &start, &end
	case models.IntentMultipleCommands:
		if !topLevel {
			return out, malformed("multiple_commands cannot be nested")
		}
		for i, cmd := range w.Commands {
			member, err := c.toIntent(cmd, text, false, now, loc)
			if err != nil {
				return out, malformed("command %d: %v", i, err)
			}
			out.Commands = append(out.Commands, member)
		}
	case "":
		return out, malformed("inference response has no intent")
	default:
		return out, malformed("unknown intent %q", w.Intent)
	}
	return out, nil
}

// toDraft applies the local time-of-day and duration policies on top of what inference
// returned. When fromText is set the whole input describes this one draft, so an
// explicit time or duration in the text overrides the backend.
func (c *IntentClassifier) toDraft(w wireIntent, text string, fromText bool, now time.Time, loc *time.Location) (models.EventDraft, error) {
	title := strings.TrimSpace(w.Title)
	if title == "" {
		return models.EventDraft{}, malformed("create intent has no title")
	}

	needsTime := w.NeedsTimeConfirmation
	start := now
	if w.StartDateTime != "" {
		parsed, err := parseInstant(w.StartDateTime, loc)
		if err != nil {
			return models.EventDraft{}, malformed("cannot read startDateTime %q", w.StartDateTime)
		}
		start = parsed
	} else if !needsTime {
		return models.EventDraft{}, malformed("create intent has no startDateTime")
	}

	if fromText {
		if hour, minute, found := ExtractClock(text); found {
			start = time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, loc)
			needsTime = false
		} else {
			needsTime = true
		}
	}

	minutes := 0
	if fromText {
		if explicit, _, ok := ExtractDuration(text); ok {
			minutes = explicit
		}
	}
	if minutes == 0 && w.DurationMinutes != nil {
		if m := int(*w.DurationMinutes); m > 0 && m <= maxDurationMinutes {
			minutes = m
		}
	}
	if minutes == 0 {
		minutes = c.heuristics.Estimate(title)
	}

	reminder := c.cfg.DefaultReminderMinutes
	if w.ReminderMinutes != nil && *w.ReminderMinutes >= 0 {
		reminder = int(*w.ReminderMinutes)
	}

	rule := ""
	if pattern := strings.TrimSpace(w.RecurrencePattern); pattern != "" {
		pattern = strings.TrimPrefix(strings.ToUpper(pattern), "RRULE:")
		if !strings.Contains(pattern, "FREQ=") {
			pattern = "FREQ=" + pattern
		}
		normalized, err := provider.NormalizeRule(pattern)
		if err != nil {
			return models.EventDraft{}, malformed("recurrence %q is invalid: %v", w.RecurrencePattern, err)
		}
		rule = normalized
	}

	draft := models.EventDraft{
		Title:                     title,
		Start:                     start,
		End:                       start.Add(time.Duration(minutes) * time.Minute),
		Timezone:                  loc.String(),
		Description:               strings.TrimSpace(w.Description),
		Location:                  strings.TrimSpace(w.Location),
		RecurrenceRule:            rule,
		ReminderLeadMinutes:       reminder,
		NeedsTimeConfirmation:     needsTime,
		NeedsDurationConfirmation: true,
		SuggestedDurationMinutes:  minutes,
		OriginalInputText:         text,
	}
	if err := c.validate.Struct(draft); err != nil {
		return models.EventDraft{}, malformed("draft failed validation: %v", err)
	}
	return draft, nil
}

func flattenChanges(raw map[string]json.RawMessage) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		var value interface{}
		if err := json.Unmarshal(v, &value); err != nil {
			return nil, malformed("change %q is not JSON: %v", k, err)
		}
		switch typed := value.(type) {
		case nil:
			continue
		case string:
			out[k] = typed
		case float64:
			out[k] = strconv.FormatFloat(typed, 'f', -1, 64)
		default:
			return nil, malformed("change %q must be a string or number", k)
		}
	}
	return out, nil
}

func viewRange(w wireIntent, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	start, end := dayStart, dayStart.AddDate(0, 0, 1)
	if w.StartDateTime != "" {
		parsed, err := parseInstant(w.StartDateTime, loc)
		if err != nil {
			return start, end, malformed("cannot read startDateTime %q", w.StartDateTime)
		}
		start = parsed
		end = start.AddDate(0, 0, 1)
	}
	if w.EndDateTime != "" {
		parsed, err := parseInstant(w.EndDateTime, loc)
		if err != nil {
			return start, end, malformed("cannot read endDateTime %q", w.EndDateTime)
		}
		end = parsed
	}
	if !end.After(start) {
		return start, end, malformed("view range ends before it starts")
	}
	return start, end, nil
}

var localLayouts = []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02T15:04", time.DateOnly}

func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func loadZone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// buildSystemPrompt describes the calendar context and the JSON shapes the backend must return.
func buildSystemPrompt(now time.Time, loc *time.Location, heuristics *DurationHeuristics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You turn calendar requests into JSON. Reply with one JSON object and nothing else.\n\n")
	fmt.Fprintf(&b, "Current time: %s (%s). Timezone: %s.\n", now.Format(time.RFC3339), now.Weekday(), loc.String())
	fmt.Fprintf(&b, "\"today\" is %s. \"tomorrow\" is %s.\n", now.Format("Monday, January 2, 2006"), now.AddDate(0, 0, 1).Format("Monday, January 2, 2006"))
	b.WriteString("A bare weekday name means its next occurrence after today:\n")
	for i := 1; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		fmt.Fprintf(&b, "- %s = %s\n", d.Weekday(), d.Format(time.DateOnly))
	}

	b.WriteString(`
Intents:
- "create": one event. Fields: title, startDateTime (ISO 8601 with offset), durationMinutes,
  description, location, recurrencePattern (RRULE body such as "WEEKLY;BYDAY=MO,WE" or null),
  needsTimeConfirmation (true when no time of day was given), needsDurationConfirmation (always true),
  reminderMinutes (default 60, 0 for no reminder), confidence.
- "create_multiple": several events, each in "events" with the create fields.
- "delete": searchQuery, confidence.
- "modify": searchQuery, changes (object with any of time, date, title, duration, description, location), confidence.
- "view": timeframe, startDateTime, endDateTime, confidence.
- "multiple_commands": commands (array of the intents above, never nested), confidence.

Titles hold only the event name. Keep scheduling words out of descriptions.
If the user states a duration use it exactly; otherwise estimate from the kind of event:
`)
	for _, category := range heuristics.Categories {
		fmt.Fprintf(&b, "- %s (%s): %d minutes\n", category.Name, strings.Join(category.Keywords, ", "), category.Minutes)
	}
	fmt.Fprintf(&b, "- anything else: %d minutes\n", heuristics.Default)
	b.WriteString("When a recurrence uses BYDAY the startDateTime must fall on one of those days.\n")
	return b.String()
}
