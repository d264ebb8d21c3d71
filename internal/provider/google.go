package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

const (
	googleStatusCancelled = "cancelled"
	googleStatusConfirmed = "confirmed"
)

// GoogleOptions configures the Google Calendar adapter.
type GoogleOptions struct {
	CalendarID string
	// Endpoint overrides the API base path, e.g. for tests.
	Endpoint   string
	HTTPClient *http.Client
}

// GoogleAdapter talks to Google Calendar v3. Deletes are soft: the event is marked
// cancelled and can be restored.
type GoogleAdapter struct {
	calendarID string
	endpoint   string
	transport  http.RoundTripper
	timeout    time.Duration
	tokens     TokenSource
	logger     *zap.Logger
}

// NewGoogleAdapter constructs the adapter.
func NewGoogleAdapter(opts GoogleOptions, tokens TokenSource, logger *zap.Logger) *GoogleAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}
	var (
		base    http.RoundTripper
		timeout = 30 * time.Second
	)
	if opts.HTTPClient != nil {
		base = opts.HTTPClient.Transport
		if opts.HTTPClient.Timeout > 0 {
			timeout = opts.HTTPClient.Timeout
		}
	}
	return &GoogleAdapter{
		calendarID: opts.CalendarID,
		endpoint:   opts.Endpoint,
		transport:  newRequestIDTransport("X-Request-ID", base),
		timeout:    timeout,
		tokens:     tokens,
		logger:     logger,
	}
}

func (g *GoogleAdapter) ID() models.ProviderID { return models.ProviderGoogle }

func (g *GoogleAdapter) SupportsSoftDelete() bool { return true }

// CreateEvent inserts the draft with a popup reminder at the requested lead time.
func (g *GoogleAdapter) CreateEvent(ctx context.Context, draft models.EventDraft) (string, error) {
	if draft.NeedsTimeConfirmation {
		return "", appErrors.ErrTimeUnconfirmed
	}
	if !draft.End.After(draft.Start) {
		return "", rejected(g.ID(), "event end must be after start")
	}
	event := &calendar.Event{
		Summary:     draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		Start:       googleDateTime(draft.Start, draft.Timezone),
		End:         googleDateTime(draft.End, draft.Timezone),
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{{
				Method:          "popup",
				Minutes:         int64(draft.ReminderLeadMinutes),
				ForceSendFields: []string{"Minutes"},
			}},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	if draft.RecurrenceRule != "" {
		rule, err := NormalizeRule(draft.RecurrenceRule)
		if err != nil {
			return "", rejected(g.ID(), "%v", err)
		}
		event.Recurrence = []string{"RRULE:" + rule}
	}

	var id string
	err := g.call(ctx, func(svc *calendar.Service) error {
		created, err := svc.Events.Insert(g.calendarID, event).Context(ctx).Do()
		if err != nil {
			return err
		}
		id = created.Id
		return nil
	})
	return id, err
}

// ListEvents returns expanded occurrences starting after since, ordered by start time.
func (g *GoogleAdapter) ListEvents(ctx context.Context, maxResults int, since time.Time) ([]models.CalendarEvent, error) {
	var events []models.CalendarEvent
	err := g.call(ctx, func(svc *calendar.Service) error {
		call := svc.Events.List(g.calendarID).
			TimeMin(since.UTC().Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			Context(ctx)
		if maxResults > 0 {
			call = call.MaxResults(int64(maxResults))
		}
		res, err := call.Do()
		if err != nil {
			return err
		}
		events = make([]models.CalendarEvent, 0, len(res.Items))
		for _, item := range res.Items {
			if item.Status == googleStatusCancelled {
				continue
			}
			events = append(events, fromGoogleEvent(item))
		}
		return nil
	})
	return events, err
}

// GetEvent fetches one event or occurrence.
func (g *GoogleAdapter) GetEvent(ctx context.Context, id string) (models.CalendarEvent, error) {
	var out models.CalendarEvent
	err := g.call(ctx, func(svc *calendar.Service) error {
		ev, err := svc.Events.Get(g.calendarID, id).Context(ctx).Do()
		if err != nil {
			return err
		}
		out = fromGoogleEvent(ev)
		return nil
	})
	return out, err
}

// DeleteEvent cancels the event, the whole series, or truncates the series before the
// targeted occurrence, depending on scope.
func (g *GoogleAdapter) DeleteEvent(ctx context.Context, id string, scope models.RecurrenceScope) (models.DeleteOutcome, error) {
	if scope == models.ScopeFollowing {
		return g.truncate(ctx, id)
	}
	target := id
	if scope == models.ScopeAll {
		master, err := g.masterID(ctx, id)
		if err != nil {
			return models.DeleteOutcome{}, err
		}
		target = master
	}
	if err := g.setStatus(ctx, target, googleStatusCancelled); err != nil {
		return models.DeleteOutcome{}, err
	}
	return models.DeleteOutcome{SoftDeleted: true, TargetID: target}, nil
}

// RestoreEvent reverses a soft delete.
func (g *GoogleAdapter) RestoreEvent(ctx context.Context, id string) error {
	return g.setStatus(ctx, id, googleStatusConfirmed)
}

// RestoreRecurrence writes prior back as the series RRULE.
func (g *GoogleAdapter) RestoreRecurrence(ctx context.Context, masterID, prior string) error {
	return g.call(ctx, func(svc *calendar.Service) error {
		master, err := svc.Events.Get(g.calendarID, masterID).Context(ctx).Do()
		if err != nil {
			return err
		}
		patch := &calendar.Event{Recurrence: replaceRule(master.Recurrence, prior)}
		_, err = svc.Events.Patch(g.calendarID, masterID, patch).Context(ctx).Do()
		return err
	})
}

// ModifyEvent patches a single event or occurrence, or rewrites the series master when
// scope is all.
func (g *GoogleAdapter) ModifyEvent(ctx context.Context, id string, changes models.FieldChanges, scope models.RecurrenceScope) error {
	if scope == models.ScopeFollowing {
		return rejected(g.ID(), "changing this and following occurrences is not supported")
	}
	if changes.IsEmpty() {
		return nil
	}
	if scope == models.ScopeAll {
		return g.replaceSeries(ctx, id, changes)
	}

	patch := &calendar.Event{}
	if changes.Title != nil {
		patch.Summary = *changes.Title
		patch.ForceSendFields = append(patch.ForceSendFields, "Summary")
	}
	if changes.Description != nil {
		patch.Description = *changes.Description
		patch.ForceSendFields = append(patch.ForceSendFields, "Description")
	}
	if changes.Location != nil {
		patch.Location = *changes.Location
		patch.ForceSendFields = append(patch.ForceSendFields, "Location")
	}
	if changes.Start != nil {
		patch.Start = googleDateTime(*changes.Start, zoneName(changes.Start.Location()))
	}
	if changes.End != nil {
		patch.End = googleDateTime(*changes.End, zoneName(changes.End.Location()))
	}
	return g.call(ctx, func(svc *calendar.Service) error {
		_, err := svc.Events.Patch(g.calendarID, id, patch).Context(ctx).Do()
		return err
	})
}

// replaceSeries reads the master, strips read-only fields, applies changes and writes
// the whole event back, keeping the original time zones.
func (g *GoogleAdapter) replaceSeries(ctx context.Context, id string, changes models.FieldChanges) error {
	masterID, err := g.masterID(ctx, id)
	if err != nil {
		return err
	}
	return g.call(ctx, func(svc *calendar.Service) error {
		master, err := svc.Events.Get(g.calendarID, masterID).Context(ctx).Do()
		if err != nil {
			return err
		}
		stripReadOnly(master)
		if changes.Title != nil {
			master.Summary = *changes.Title
		}
		if changes.Description != nil {
			master.Description = *changes.Description
		}
		if changes.Location != nil {
			master.Location = *changes.Location
		}
		if changes.Start != nil || changes.End != nil {
			start, _, _ := parseGoogleTime(master.Start)
			end, _, _ := parseGoogleTime(master.End)
			newStart, newEnd := shiftSeries(start, end, changes)
			master.Start = googleDateTime(newStart, master.Start.TimeZone)
			master.End = googleDateTime(newEnd, master.End.TimeZone)
		}
		_, err = svc.Events.Update(g.calendarID, masterID, master).Context(ctx).Do()
		return err
	})
}

func (g *GoogleAdapter) truncate(ctx context.Context, id string) (models.DeleteOutcome, error) {
	var outcome models.DeleteOutcome
	err := g.call(ctx, func(svc *calendar.Service) error {
		masterID, occurrence, ok := SplitInstanceID(id)
		if !ok {
			ev, err := svc.Events.Get(g.calendarID, id).Context(ctx).Do()
			if err != nil {
				return err
			}
			switch {
			case ev.RecurringEventId != "":
				masterID = ev.RecurringEventId
				occurrence, _, _ = parseGoogleTime(ev.OriginalStartTime)
				if occurrence.IsZero() {
					occurrence, _, _ = parseGoogleTime(ev.Start)
				}
			case len(ev.Recurrence) > 0:
				masterID = id
				occurrence, _, _ = parseGoogleTime(ev.Start)
			default:
				return rejected(g.ID(), "event is not part of a recurring series")
			}
		}

		master, err := svc.Events.Get(g.calendarID, masterID).Context(ctx).Do()
		if err != nil {
			return err
		}
		prior := ruleOf(master.Recurrence)
		if prior == "" {
			return rejected(g.ID(), "event is not part of a recurring series")
		}
		seriesStart, _, tz := parseGoogleTime(master.Start)
		if !occurrence.After(seriesStart) {
			// The first occurrence goes, and with it the whole series.
			if _, err := svc.Events.Patch(g.calendarID, masterID, &calendar.Event{Status: googleStatusCancelled}).Context(ctx).Do(); err != nil {
				return err
			}
			outcome = models.DeleteOutcome{SoftDeleted: true, TargetID: masterID}
			return nil
		}
		truncated, err := TruncateBefore(prior, occurrence, zoneOf(tz))
		if err != nil {
			return rejected(g.ID(), "%v", err)
		}
		patch := &calendar.Event{Recurrence: replaceRule(master.Recurrence, truncated)}
		if _, err := svc.Events.Patch(g.calendarID, masterID, patch).Context(ctx).Do(); err != nil {
			return err
		}
		outcome = models.DeleteOutcome{SoftDeleted: false, TargetID: masterID, PriorRecurrence: prior}
		return nil
	})
	return outcome, err
}

// masterID resolves the series master for id; non-recurring events resolve to themselves.
func (g *GoogleAdapter) masterID(ctx context.Context, id string) (string, error) {
	if master, _, ok := SplitInstanceID(id); ok {
		return master, nil
	}
	ev, err := g.GetEvent(ctx, id)
	if err != nil {
		return "", err
	}
	if ev.SeriesID != "" {
		return ev.SeriesID, nil
	}
	return id, nil
}

func (g *GoogleAdapter) setStatus(ctx context.Context, id, status string) error {
	return g.call(ctx, func(svc *calendar.Service) error {
		_, err := svc.Events.Patch(g.calendarID, id, &calendar.Event{Status: status}).Context(ctx).Do()
		return err
	})
}

func (g *GoogleAdapter) call(ctx context.Context, fn func(svc *calendar.Service) error) error {
	return withAuthRetry(ctx, g.tokens, g.ID(), func(token string) error {
		svc, err := g.service(ctx, token)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build google calendar client")
		}
		return g.mapError(fn(svc))
	})
}

func (g *GoogleAdapter) service(ctx context.Context, token string) (*calendar.Service, error) {
	client := &http.Client{
		Timeout: g.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   g.transport,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

func (g *GoogleAdapter) mapError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		reasons := make([]string, 0, len(apiErr.Errors))
		for _, item := range apiErr.Errors {
			reasons = append(reasons, item.Reason)
		}
		g.logger.Sugar().Warnw("google calendar request failed", "status", apiErr.Code, "reasons", reasons)
		return statusError(g.ID(), apiErr.Code, apiErr.Message, reasons...)
	}
	return networkError(g.ID(), err)
}

func fromGoogleEvent(e *calendar.Event) models.CalendarEvent {
	out := models.CalendarEvent{
		ID:             e.Id,
		Title:          firstNonEmpty(e.Summary, "Untitled"),
		Description:    e.Description,
		Location:       e.Location,
		RecurrenceRule: ruleOf(e.Recurrence),
		SeriesID:       e.RecurringEventId,
		Status:         e.Status,
		ProviderID:     models.ProviderGoogle,
	}
	out.Start, out.AllDay, out.Timezone = parseGoogleTime(e.Start)
	out.End, _, _ = parseGoogleTime(e.End)
	if e.OriginalStartTime != nil {
		if t, _, _ := parseGoogleTime(e.OriginalStartTime); !t.IsZero() {
			out.OriginalStart = &t
		}
	}
	if out.SeriesID == "" {
		if master, _, ok := SplitInstanceID(e.Id); ok {
			out.SeriesID = master
		}
	}
	return out
}

func parseGoogleTime(dt *calendar.EventDateTime) (time.Time, bool, string) {
	if dt == nil {
		return time.Time{}, false, ""
	}
	loc := zoneOf(dt.TimeZone)
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t.In(loc), false, dt.TimeZone
		}
	}
	if dt.Date != "" {
		if t, err := time.ParseInLocation(time.DateOnly, dt.Date, loc); err == nil {
			return t, true, dt.TimeZone
		}
	}
	return time.Time{}, false, dt.TimeZone
}

func googleDateTime(t time.Time, tz string) *calendar.EventDateTime {
	return &calendar.EventDateTime{DateTime: t.In(zoneOf(tz)).Format(time.RFC3339), TimeZone: tz}
}

func zoneName(loc *time.Location) string {
	if loc == nil || loc == time.Local || loc.String() == "Local" {
		return ""
	}
	return loc.String()
}

func ruleOf(lines []string) string {
	for _, line := range lines {
		if strings.HasPrefix(line, "RRULE:") {
			return strings.TrimPrefix(line, "RRULE:")
		}
	}
	return ""
}

// replaceRule swaps the RRULE line and keeps EXDATE/RDATE lines.
func replaceRule(lines []string, rule string) []string {
	out := make([]string, 0, len(lines)+1)
	for _, line := range lines {
		if !strings.HasPrefix(line, "RRULE:") {
			out = append(out, line)
		}
	}
	return append([]string{"RRULE:" + rule}, out...)
}

func stripReadOnly(e *calendar.Event) {
	e.Kind = ""
	e.Etag = ""
	e.HtmlLink = ""
	e.Created = ""
	e.Updated = ""
	e.ICalUID = ""
	e.Sequence = 0
	e.Organizer = nil
	e.Creator = nil
}
