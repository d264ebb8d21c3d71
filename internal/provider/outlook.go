package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

// OutlookOptions configures the Microsoft Graph adapter.
type OutlookOptions struct {
	BaseURL    string
	HTTPClient *http.Client
}

// OutlookAdapter talks to the Microsoft Graph calendar API. Graph deletes are permanent,
// so undo of a delete recreates the event from its snapshot.
type OutlookAdapter struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	logger  *zap.Logger
	now     func() time.Time
}

// NewOutlookAdapter constructs the adapter.
func NewOutlookAdapter(opts OutlookOptions, tokens TokenSource, logger *zap.Logger) *OutlookAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://graph.microsoft.com/v1.0"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	wrapped := *client
	wrapped.Transport = newRequestIDTransport("client-request-id", client.Transport)
	return &OutlookAdapter{baseURL: base, client: &wrapped, tokens: tokens, logger: logger, now: time.Now}
}

func (o *OutlookAdapter) ID() models.ProviderID { return models.ProviderOutlook }

func (o *OutlookAdapter) SupportsSoftDelete() bool { return false }

// CreateEvent posts a new event and returns its Graph id.
func (o *OutlookAdapter) CreateEvent(ctx context.Context, draft models.EventDraft) (string, error) {
	if draft.NeedsTimeConfirmation {
		return "", appErrors.ErrTimeUnconfirmed
	}
	if !draft.End.After(draft.Start) {
		return "", rejected(o.ID(), "event end must be after start")
	}
	tz := firstNonEmpty(draft.Timezone, "UTC")
	loc := draft.Zone()
	subject := draft.Title
	reminderOn := true
	lead := draft.ReminderLeadMinutes
	payload := graphEvent{
		Subject:                    &subject,
		Start:                      &graphDateTime{DateTime: draft.Start.In(loc).Format(graphTimeLayout), TimeZone: tz},
		End:                        &graphDateTime{DateTime: draft.End.In(loc).Format(graphTimeLayout), TimeZone: tz},
		IsReminderOn:               &reminderOn,
		ReminderMinutesBeforeStart: &lead,
	}
	if draft.Description != "" {
		payload.Body = &graphBody{ContentType: "text", Content: draft.Description}
	}
	if draft.Location != "" {
		payload.Location = &graphLocation{DisplayName: draft.Location}
	}
	if draft.RecurrenceRule != "" {
		rec, err := ToGraphRecurrence(draft.RecurrenceRule, draft.Start.In(loc), tz)
		if err != nil {
			return "", rejected(o.ID(), "%v", err)
		}
		payload.Recurrence = rec
	}

	var created graphEvent
	if err := o.do(ctx, http.MethodPost, "/me/events", nil, payload, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// ListEvents returns events starting at or after since, ordered by start.
func (o *OutlookAdapter) ListEvents(ctx context.Context, maxResults int, since time.Time) ([]models.CalendarEvent, error) {
	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("start/dateTime ge '%s'", since.UTC().Format("2006-01-02T15:04:05")))
	query.Set("$orderby", "start/dateTime")
	if maxResults > 0 {
		query.Set("$top", fmt.Sprintf("%d", maxResults))
	}
	var list graphEventList
	if err := o.do(ctx, http.MethodGet, "/me/events", query, nil, &list); err != nil {
		return nil, err
	}
	events := make([]models.CalendarEvent, 0, len(list.Value))
	for _, item := range list.Value {
		if item.IsCancelled != nil && *item.IsCancelled {
			continue
		}
		events = append(events, fromGraphEvent(item))
	}
	return events, nil
}

// GetEvent fetches a single event.
func (o *OutlookAdapter) GetEvent(ctx context.Context, id string) (models.CalendarEvent, error) {
	ev, err := o.get(ctx, id)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	return fromGraphEvent(ev), nil
}

// DeleteEvent removes an event. For occurrences and series masters scope decides whether
// one occurrence, the tail of the series, or the whole series goes.
func (o *OutlookAdapter) DeleteEvent(ctx context.Context, id string, scope models.RecurrenceScope) (models.DeleteOutcome, error) {
	ev, err := o.get(ctx, id)
	if err != nil {
		return models.DeleteOutcome{}, err
	}

	switch {
	case ev.SeriesMasterID != "":
		switch scope {
		case models.ScopeAll:
			return o.hardDelete(ctx, ev.SeriesMasterID)
		case models.ScopeFollowing:
			return o.truncate(ctx, ev.SeriesMasterID, graphStart(ev))
		default:
			return o.hardDelete(ctx, id)
		}
	case ev.Recurrence != nil:
		switch scope {
		case models.ScopeThis:
			inst, err := o.upcomingInstance(ctx, id)
			if err != nil {
				return models.DeleteOutcome{}, err
			}
			return o.hardDelete(ctx, inst.ID)
		case models.ScopeFollowing:
			inst, err := o.upcomingInstance(ctx, id)
			if err != nil {
				return models.DeleteOutcome{}, err
			}
			return o.truncate(ctx, id, graphStart(inst))
		default:
			return o.hardDelete(ctx, id)
		}
	default:
		return o.hardDelete(ctx, id)
	}
}

// RestoreEvent succeeds only if the event still exists; Graph deletes cannot be reverted.
func (o *OutlookAdapter) RestoreEvent(ctx context.Context, id string) error {
	_, err := o.get(ctx, id)
	return err
}

// RestoreRecurrence reinstates the recurrence JSON captured before a truncation.
func (o *OutlookAdapter) RestoreRecurrence(ctx context.Context, masterID, prior string) error {
	var rec graphRecurrence
	if err := json.Unmarshal([]byte(prior), &rec); err != nil {
		return rejected(o.ID(), "stored recurrence is unreadable: %v", err)
	}
	return o.do(ctx, http.MethodPatch, "/me/events/"+url.PathEscape(masterID), nil, graphRecurrencePatch{Recurrence: &rec}, nil)
}

// ModifyEvent patches an event. Series-wide time changes shift the master by the delta
// between the targeted occurrence and its new start.
func (o *OutlookAdapter) ModifyEvent(ctx context.Context, id string, changes models.FieldChanges, scope models.RecurrenceScope) error {
	if scope == models.ScopeFollowing {
		return rejected(o.ID(), "changing this and following occurrences is not supported")
	}
	if changes.IsEmpty() {
		return nil
	}
	ev, err := o.get(ctx, id)
	if err != nil {
		return err
	}

	target := id
	switch {
	case scope == models.ScopeAll && ev.SeriesMasterID != "":
		master, err := o.get(ctx, ev.SeriesMasterID)
		if err != nil {
			return err
		}
		return o.patchSeries(ctx, master, changes)
	case scope == models.ScopeAll && ev.Recurrence != nil:
		return o.patchSeries(ctx, ev, changes)
	case ev.Recurrence != nil:
		inst, err := o.upcomingInstance(ctx, id)
		if err != nil {
			return err
		}
		target = inst.ID
	}

	patch := graphEvent{Subject: changes.Title, Location: locationPatch(changes.Location), Body: bodyPatch(changes.Description)}
	if changes.Start != nil {
		patch.Start = &graphDateTime{DateTime: changes.Start.UTC().Format(graphTimeLayout), TimeZone: "UTC"}
	}
	if changes.End != nil {
		patch.End = &graphDateTime{DateTime: changes.End.UTC().Format(graphTimeLayout), TimeZone: "UTC"}
	}
	return o.do(ctx, http.MethodPatch, "/me/events/"+url.PathEscape(target), nil, patch, nil)
}

func (o *OutlookAdapter) patchSeries(ctx context.Context, master graphEvent, changes models.FieldChanges) error {
	patch := graphEvent{Subject: changes.Title, Location: locationPatch(changes.Location), Body: bodyPatch(changes.Description)}
	if changes.Start != nil || changes.End != nil {
		start, end := graphStart(master), graphEnd(master)
		newStart, newEnd := shiftSeries(start, end, changes)
		tz := "UTC"
		if master.Start != nil && master.Start.TimeZone != "" {
			tz = master.Start.TimeZone
		}
		loc := zoneOf(tz)
		patch.Start = &graphDateTime{DateTime: newStart.In(loc).Format(graphTimeLayout), TimeZone: tz}
		patch.End = &graphDateTime{DateTime: newEnd.In(loc).Format(graphTimeLayout), TimeZone: tz}
	}
	return o.do(ctx, http.MethodPatch, "/me/events/"+url.PathEscape(master.ID), nil, patch, nil)
}

func (o *OutlookAdapter) hardDelete(ctx context.Context, id string) (models.DeleteOutcome, error) {
	if err := o.do(ctx, http.MethodDelete, "/me/events/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return models.DeleteOutcome{}, err
	}
	return models.DeleteOutcome{SoftDeleted: false, TargetID: id}, nil
}

func (o *OutlookAdapter) truncate(ctx context.Context, masterID string, occurrence time.Time) (models.DeleteOutcome, error) {
	master, err := o.get(ctx, masterID)
	if err != nil {
		return models.DeleteOutcome{}, err
	}
	if master.Recurrence == nil {
		return models.DeleteOutcome{}, rejected(o.ID(), "event is not a recurring series")
	}
	prior, err := json.Marshal(master.Recurrence)
	if err != nil {
		return models.DeleteOutcome{}, fmt.Errorf("encode recurrence: %w", err)
	}

	loc := zoneOf(firstNonEmpty(master.Recurrence.Range.RecurrenceTimeZone, timeZoneOf(master.Start)))
	endDate := occurrence.In(loc).AddDate(0, 0, -1).Format(time.DateOnly)
	if endDate < master.Recurrence.Range.StartDate {
		// Truncating before the first occurrence leaves nothing, so drop the series.
		return o.hardDelete(ctx, masterID)
	}

	updated := *master.Recurrence
	updated.Range.Type = "endDate"
	updated.Range.EndDate = endDate
	updated.Range.NumberOfOccurrences = 0
	if err := o.do(ctx, http.MethodPatch, "/me/events/"+url.PathEscape(masterID), nil, graphRecurrencePatch{Recurrence: &updated}, nil); err != nil {
		return models.DeleteOutcome{}, err
	}
	return models.DeleteOutcome{SoftDeleted: false, TargetID: masterID, PriorRecurrence: string(prior)}, nil
}

func (o *OutlookAdapter) upcomingInstance(ctx context.Context, masterID string) (graphEvent, error) {
	now := o.now().UTC()
	query := url.Values{}
	query.Set("startDateTime", now.Format(time.RFC3339))
	query.Set("endDateTime", now.AddDate(1, 0, 0).Format(time.RFC3339))
	query.Set("$orderby", "start/dateTime")
	query.Set("$top", "1")
	var list graphEventList
	if err := o.do(ctx, http.MethodGet, "/me/events/"+url.PathEscape(masterID)+"/instances", query, nil, &list); err != nil {
		return graphEvent{}, err
	}
	if len(list.Value) == 0 {
		return graphEvent{}, appErrors.Clone(appErrors.ErrNotFound, "outlook: no upcoming occurrence for recurring event")
	}
	return list.Value[0], nil
}

func (o *OutlookAdapter) get(ctx context.Context, id string) (graphEvent, error) {
	var ev graphEvent
	err := o.do(ctx, http.MethodGet, "/me/events/"+url.PathEscape(id), nil, nil, &ev)
	return ev, err
}

func (o *OutlookAdapter) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	return withAuthRetry(ctx, o.tokens, o.ID(), func(token string) error {
		return o.send(ctx, token, method, path, query, body, out)
	})
}

func (o *OutlookAdapter) send(ctx context.Context, token, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode graph request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	endpoint := o.baseURL + path
	if len(query) > 0 {
		// OData expects %20 rather than + for spaces.
		endpoint += "?" + strings.ReplaceAll(query.Encode(), "+", "%20")
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return networkError(o.ID(), err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusMultipleChoices {
		var envelope graphErrorEnvelope
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope)
		o.logger.Sugar().Warnw("graph request failed", "method", method, "path", path, "status", resp.StatusCode, "code", envelope.Error.Code)
		return statusError(o.ID(), resp.StatusCode, envelope.Error.Message, envelope.Error.Code)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return appErrors.Wrap(err, appErrors.ErrProvider.Code, appErrors.ErrProvider.Status, "outlook: unreadable response")
	}
	return nil
}

var htmlTag = regexp.MustCompile(`<[^>]+>`)

func fromGraphEvent(ev graphEvent) models.CalendarEvent {
	out := models.CalendarEvent{
		ID:             ev.ID,
		Title:          "Untitled",
		Start:          graphStart(ev),
		End:            graphEnd(ev),
		Timezone:       timeZoneOf(ev.Start),
		SeriesID:       ev.SeriesMasterID,
		RecurrenceRule: FromGraphRecurrence(ev.Recurrence),
		ProviderID:     models.ProviderOutlook,
	}
	if ev.Subject != nil && *ev.Subject != "" {
		out.Title = *ev.Subject
	}
	if ev.Body != nil {
		content := ev.Body.Content
		if strings.EqualFold(ev.Body.ContentType, "html") {
			content = htmlTag.ReplaceAllString(content, " ")
		}
		out.Description = strings.Join(strings.Fields(content), " ")
	}
	if ev.Location != nil {
		out.Location = ev.Location.DisplayName
	}
	if ev.IsAllDay != nil {
		out.AllDay = *ev.IsAllDay
	}
	if ev.IsCancelled != nil && *ev.IsCancelled {
		out.Status = "cancelled"
	}
	if ev.OriginalStart != "" {
		if t, err := time.Parse(time.RFC3339, ev.OriginalStart); err == nil {
			out.OriginalStart = &t
		}
	}
	return out
}

func graphStart(ev graphEvent) time.Time { return parseGraphTime(ev.Start) }
func graphEnd(ev graphEvent) time.Time   { return parseGraphTime(ev.End) }

func parseGraphTime(dt *graphDateTime) time.Time {
	if dt == nil || dt.DateTime == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05.9999999", dt.DateTime, zoneOf(dt.TimeZone))
	if err != nil {
		return time.Time{}
	}
	return t
}

func timeZoneOf(dt *graphDateTime) string {
	if dt == nil {
		return ""
	}
	return dt.TimeZone
}

func locationPatch(location *string) *graphLocation {
	if location == nil {
		return nil
	}
	return &graphLocation{DisplayName: *location}
}

func bodyPatch(description *string) *graphBody {
	if description == nil {
		return nil
	}
	return &graphBody{ContentType: "text", Content: *description}
}

// shiftSeries applies changes to a series whose master occupies [start, end). Start edits
// move the series by the delta from the anchor occurrence; end edits change the duration.
func shiftSeries(start, end time.Time, changes models.FieldChanges) (time.Time, time.Time) {
	anchor := start
	if changes.Anchor != nil {
		anchor = *changes.Anchor
	}
	duration := end.Sub(start)
	newStart := start
	if changes.Start != nil {
		newStart = start.Add(changes.Start.Sub(anchor))
		if changes.End != nil {
			duration = changes.End.Sub(*changes.Start)
		}
	} else if changes.End != nil {
		duration = changes.End.Sub(anchor)
	}
	return newStart, newStart.Add(duration)
}
