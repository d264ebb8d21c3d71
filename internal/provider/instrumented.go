package provider

import (
	"context"
	"strings"
	"time"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

type callObserver interface {
	ObserveProviderCall(provider, operation, outcome string, duration time.Duration)
}

// instrumentedAdapter reports the latency and outcome of every adapter call.
type instrumentedAdapter struct {
	next     Adapter
	observer callObserver
}

// Instrument wraps a with call metrics. A nil observer returns a unchanged.
func Instrument(a Adapter, observer callObserver) Adapter {
	if observer == nil {
		return a
	}
	return &instrumentedAdapter{next: a, observer: observer}
}

func (i *instrumentedAdapter) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(appErrors.Code(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	i.observer.ObserveProviderCall(string(i.next.ID()), op, outcome, time.Since(start))
}

func (i *instrumentedAdapter) ID() models.ProviderID    { return i.next.ID() }
func (i *instrumentedAdapter) SupportsSoftDelete() bool { return i.next.SupportsSoftDelete() }

func (i *instrumentedAdapter) CreateEvent(ctx context.Context, draft models.EventDraft) (id string, err error) {
	defer func(start time.Time) { i.observe("create", start, err) }(time.Now())
	return i.next.CreateEvent(ctx, draft)
}

func (i *instrumentedAdapter) ListEvents(ctx context.Context, maxResults int, since time.Time) (events []models.CalendarEvent, err error) {
	defer func(start time.Time) { i.observe("list", start, err) }(time.Now())
	return i.next.ListEvents(ctx, maxResults, since)
}

func (i *instrumentedAdapter) GetEvent(ctx context.Context, id string) (event models.CalendarEvent, err error) {
	defer func(start time.Time) { i.observe("get", start, err) }(time.Now())
	return i.next.GetEvent(ctx, id)
}

func (i *instrumentedAdapter) DeleteEvent(ctx context.Context, id string, scope models.RecurrenceScope) (outcome models.DeleteOutcome, err error) {
	defer func(start time.Time) { i.observe("delete", start, err) }(time.Now())
	return i.next.DeleteEvent(ctx, id, scope)
}

func (i *instrumentedAdapter) RestoreEvent(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { i.observe("restore", start, err) }(time.Now())
	return i.next.RestoreEvent(ctx, id)
}

func (i *instrumentedAdapter) RestoreRecurrence(ctx context.Context, masterID, prior string) (err error) {
	defer func(start time.Time) { i.observe("restore_recurrence", start, err) }(time.Now())
	return i.next.RestoreRecurrence(ctx, masterID, prior)
}

func (i *instrumentedAdapter) ModifyEvent(ctx context.Context, id string, changes models.FieldChanges, scope models.RecurrenceScope) (err error) {
	defer func(start time.Time) { i.observe("modify", start, err) }(time.Now())
	return i.next.ModifyEvent(ctx, id, changes, scope)
}
