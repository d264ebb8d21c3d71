package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

// DraftState is the confirmation stage of an in-flight draft.
type DraftState string

const (
	DraftNeedsTime     DraftState = "needs_time"
	DraftNeedsDuration DraftState = "needs_duration"
	DraftReady         DraftState = "ready"
)

// DisambiguationEngine walks a draft through time and duration confirmation. It holds no
// state of its own; the draft carries its flags.
type DisambiguationEngine struct {
	defaultDuration time.Duration
	now             func() time.Time
}

// NewDisambiguationEngine constructs the engine. defaultDurationMinutes is used when a
// draft has no usable duration yet.
func NewDisambiguationEngine(defaultDurationMinutes int) *DisambiguationEngine {
	if defaultDurationMinutes <= 0 {
		defaultDurationMinutes = 60
	}
	return &DisambiguationEngine{defaultDuration: time.Duration(defaultDurationMinutes) * time.Minute, now: time.Now}
}

// State reports the next confirmation the draft is waiting on.
func (e *DisambiguationEngine) State(draft models.EventDraft) DraftState {
	switch {
	case draft.NeedsTimeConfirmation:
		return DraftNeedsTime
	case draft.NeedsDurationConfirmation:
		return DraftNeedsDuration
	default:
		return DraftReady
	}
}

// SubmitTime sets the draft's time of day, keeping its date and duration.
func (e *DisambiguationEngine) SubmitTime(raw string, draft models.EventDraft) (models.EventDraft, error) {
	c, err := parseClockInput(raw)
	if err != nil {
		return draft, appErrors.Clone(appErrors.ErrInvalidTime, err.Error())
	}
	hour, minute := c.resolve(draft.Title + " " + draft.OriginalInputText)

	duration := draft.Duration()
	if duration <= 0 {
		duration = e.durationFor(draft)
	}
	loc := draft.Zone()
	day := draft.Start.In(loc)
	if draft.Start.IsZero() {
		day = e.now().In(loc)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)

	draft.Start = start
	draft.End = start.Add(duration)
	draft.NeedsTimeConfirmation = false
	return draft, nil
}

// SubmitDuration sets the draft's length in whole minutes, 1 to 1440.
func (e *DisambiguationEngine) SubmitDuration(raw string, draft models.EventDraft) (models.EventDraft, error) {
	value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(strings.ToLower(raw)), "m"))
	minutes, err := strconv.Atoi(value)
	if err != nil || minutes <= 0 || minutes > maxDurationMinutes {
		return draft, appErrors.ErrInvalidDuration
	}
	draft.End = draft.Start.Add(time.Duration(minutes) * time.Minute)
	draft.SuggestedDurationMinutes = minutes
	draft.NeedsDurationConfirmation = false
	return draft, nil
}

func (e *DisambiguationEngine) durationFor(draft models.EventDraft) time.Duration {
	if draft.SuggestedDurationMinutes > 0 {
		return time.Duration(draft.SuggestedDurationMinutes) * time.Minute
	}
	return e.defaultDuration
}
