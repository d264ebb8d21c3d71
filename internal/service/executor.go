package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/provider"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

type adapterRegistry interface {
	Get(id models.ProviderID) (provider.Adapter, error)
	Resolve(ids []models.ProviderID) ([]provider.Adapter, error)
}

type actionRecorder interface {
	Record(ctx context.Context, rec models.ActionRecord) error
}

type recentEventsRecorder interface {
	RememberEvents(ctx context.Context, events []models.CalendarEvent) error
}

type preferencesSource interface {
	Get(ctx context.Context) (models.Preferences, error)
}

type executionObserver interface {
	ObserveExecution(intent, status string)
}

// EventTarget names one event on one provider.
type EventTarget struct {
	ProviderID models.ProviderID `json:"providerId"`
	ID         string            `json:"id"`
}

// ExecuteRequest is a resolved intent plus the caller's choices.
type ExecuteRequest struct {
	Intent    models.ParsedIntent
	Providers []models.ProviderID
	// Target is set once the caller picked one of the candidates of a needs_selection result.
	Target   *EventTarget
	Scope    models.RecurrenceScope
	Timezone string
}

// ExecutorConfig tunes the executor.
type ExecutorConfig struct {
	ListMaxResults  int
	ReminderMinutes int
}

// CommandExecutor routes intents to provider adapters, fans creates out concurrently and
// records every effect in the ledger.
type CommandExecutor struct {
	adapters adapterRegistry
	dedup    *DedupGuard
	ledger   actionRecorder
	recent   recentEventsRecorder
	prefs    preferencesSource
	metrics  executionObserver
	cfg      ExecutorConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewCommandExecutor constructs the executor. recent, prefs and metrics may be nil.
func NewCommandExecutor(adapters adapterRegistry, dedup *DedupGuard, ledger actionRecorder, recent recentEventsRecorder, prefs preferencesSource, metrics executionObserver, cfg ExecutorConfig, logger *zap.Logger) *CommandExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ListMaxResults <= 0 {
		cfg.ListMaxResults = 50
	}
	if cfg.ReminderMinutes < 0 {
		cfg.ReminderMinutes = 0
	}
	return &CommandExecutor{
		adapters: adapters,
		dedup:    dedup,
		ledger:   ledger,
		recent:   recent,
		prefs:    prefs,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute carries out req.Intent. Provider failures are reported in the result; the
// returned error is reserved for input problems such as an unconfirmed time or no match.
func (e *CommandExecutor) Execute(ctx context.Context, req ExecuteRequest) (models.AggregateResult, error) {
	req = e.withPreferences(ctx, req)
	if err := req.Intent.Validate(); err != nil {
		return models.AggregateResult{}, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	var (
		result models.AggregateResult
		err    error
	)
	switch req.Intent.Type {
	case models.IntentCreate, models.IntentCreateMultiple:
		result, err = e.create(ctx, req)
	case models.IntentDelete:
		result, err = e.deleteByQuery(ctx, req)
	case models.IntentModify:
		result, err = e.modifyByQuery(ctx, req)
	case models.IntentView:
		result, err = e.view(ctx, req)
	case models.IntentMultipleCommands:
		result, err = e.multiple(ctx, req)
	}
	result.Intent = req.Intent.Type
	e.observe(req.Intent.Type, result, err)
	return result, err
}

func (e *CommandExecutor) withPreferences(ctx context.Context, req ExecuteRequest) ExecuteRequest {
	if e.prefs == nil || (len(req.Providers) > 0 && req.Timezone != "") {
		return req
	}
	prefs, err := e.prefs.Get(ctx)
	if err != nil {
		e.logger.Sugar().Warnw("load preferences", "error", err)
	}
	if len(req.Providers) == 0 {
		req.Providers = prefs.Providers
	}
	if req.Timezone == "" {
		req.Timezone = prefs.Timezone
	}
	return req
}

func (e *CommandExecutor) observe(intent models.IntentType, result models.AggregateResult, err error) {
	if e.metrics == nil {
		return
	}
	status := string(result.Status)
	if err != nil {
		status = strings.ToLower(appErrors.Code(err))
		if status == "" {
			status = "error"
		}
	}
	e.metrics.ObserveExecution(string(intent), status)
}

// create submits every draft to every selected provider and waits for all of them.
func (e *CommandExecutor) create(ctx context.Context, req ExecuteRequest) (models.AggregateResult, error) {
	drafts := req.Intent.AllDrafts()
	for _, d := range drafts {
		if d.NeedsTimeConfirmation {
			return models.AggregateResult{}, appErrors.Clone(appErrors.ErrTimeUnconfirmed, fmt.Sprintf("confirm the time for %q first", d.Title))
		}
		if !d.End.After(d.Start) {
			return models.AggregateResult{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%q must end after it starts", d.Title))
		}
	}
	adapters, err := e.adapters.Resolve(req.Providers)
	if err != nil {
		return models.AggregateResult{}, err
	}

	var (
		outcomes []models.ProviderOutcome
		created  []models.EventRef
	)
	requestIDs := make([]string, 0, len(drafts))
	for _, draft := range drafts {
		requestID := RequestID(draft)
		requestIDs = append(requestIDs, requestID)
		draftOutcomes := e.fanOut(ctx, draft, requestID, adapters)
		for _, o := range draftOutcomes {
			if o.OK && !o.Duplicate {
				snapshot := snapshotOf(draft, o.ProviderID, o.ExternalID)
				created = append(created, models.EventRef{ProviderID: o.ProviderID, ExternalID: o.ExternalID, Snapshot: snapshot, RequestID: requestID})
			}
		}
		outcomes = append(outcomes, draftOutcomes...)
	}

	result := models.AggregateResult{
		Status:         models.StatusFromOutcomes(outcomes),
		Outcomes:       outcomes,
		RetryProviders: failedProviders(outcomes),
	}
	if len(requestIDs) == 1 {
		result.RequestID = requestIDs[0]
	}
	result.Message = createMessage(drafts, result)

	if len(created) > 0 {
		rec := models.ActionRecord{
			ID:            uuid.NewString(),
			ActionType:    models.ActionCreate,
			Timestamp:     e.now().UTC(),
			Description:   describeDrafts(drafts),
			CreatedEvents: created,
		}
		result.ActionID = e.record(ctx, rec)
		e.remember(ctx, created)
	}
	return result, nil
}

// fanOut runs one draft against every adapter concurrently. Providers that already
// accepted the same request id within the dedup window are reported as duplicates.
func (e *CommandExecutor) fanOut(ctx context.Context, draft models.EventDraft, requestID string, adapters []provider.Adapter) []models.ProviderOutcome {
	outcomes := make([]models.ProviderOutcome, len(adapters))
	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter provider.Adapter) {
			defer wg.Done()
			outcomes[i] = e.submit(ctx, draft, requestID, adapter)
		}(i, adapter)
	}
	wg.Wait()
	return outcomes
}

func (e *CommandExecutor) submit(ctx context.Context, draft models.EventDraft, requestID string, adapter provider.Adapter) models.ProviderOutcome {
	id := adapter.ID()
	create := func(ctx context.Context) (string, error) {
		return adapter.CreateEvent(ctx, draft)
	}
	var (
		sub models.ProviderOutcome
		err error
	)
	if e.dedup != nil {
		var res Submission
		res, err = e.dedup.Submit(ctx, requestID, id, create)
		sub = models.ProviderOutcome{ProviderID: id, OK: true, ExternalID: res.ExternalID, Duplicate: res.Duplicate}
	} else {
		var externalID string
		externalID, err = create(ctx)
		sub = models.ProviderOutcome{ProviderID: id, OK: true, ExternalID: externalID}
	}
	if err != nil {
		e.logger.Sugar().Warnw("create event failed", "provider", id, "title", draft.Title, "error", err)
		return failedOutcome(id, err)
	}
	if sub.Duplicate {
		sub.Message = "already created"
	}
	return sub
}

// Search lists events from the selected providers and ranks them against query.
func (e *CommandExecutor) Search(ctx context.Context, providers []models.ProviderID, query, timezone string) ([]models.CalendarEvent, error) {
	req := e.withPreferences(ctx, ExecuteRequest{Providers: providers, Timezone: timezone})
	if strings.TrimSpace(query) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "search query is required")
	}
	events, err := e.listAll(ctx, req.Providers, e.startOfToday(req.Timezone))
	if err != nil {
		return nil, err
	}
	return SearchEvents(events, query), nil
}

// resolveTarget finds the single event a delete or modify applies to. A nil event with a
// nil error means the caller must choose among the returned candidates.
func (e *CommandExecutor) resolveTarget(ctx context.Context, req ExecuteRequest) (*models.CalendarEvent, []models.CalendarEvent, error) {
	if req.Target != nil {
		adapter, err := e.adapters.Get(req.Target.ProviderID)
		if err != nil {
			return nil, nil, err
		}
		ev, err := adapter.GetEvent(ctx, req.Target.ID)
		if err != nil {
			return nil, nil, err
		}
		ev.ProviderID = adapter.ID()
		return &ev, nil, nil
	}

	matches, err := e.Search(ctx, req.Providers, req.Intent.SearchQuery, req.Timezone)
	if err != nil {
		return nil, nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil, appErrors.Clone(appErrors.ErrNoMatch, fmt.Sprintf("no events match %q", req.Intent.SearchQuery))
	case 1:
		return &matches[0], nil, nil
	default:
		return nil, matches, nil
	}
}

func needsSelection(query string, candidates []models.CalendarEvent) models.AggregateResult {
	return models.AggregateResult{
		Status:     models.StatusNeedsSelection,
		Candidates: candidates,
		Message:    fmt.Sprintf("%d events match %q; pick one", len(candidates), query),
	}
}

func needsScope(target models.CalendarEvent) models.AggregateResult {
	return models.AggregateResult{
		Status:     models.StatusNeedsScope,
		Candidates: []models.CalendarEvent{target},
		Message:    fmt.Sprintf("%q repeats; choose this, following or all", target.Title),
	}
}

func (e *CommandExecutor) deleteByQuery(ctx context.Context, req ExecuteRequest) (models.AggregateResult, error) {
	target, candidates, err := e.resolveTarget(ctx, req)
	if err != nil {
		return models.AggregateResult{}, err
	}
	if target == nil {
		return needsSelection(req.Intent.SearchQuery, candidates), nil
	}
	if target.IsRecurring() && !req.Scope.Valid() {
		return needsScope(*target), nil
	}
	return e.deleteTarget(ctx, *target, req.Scope)
}

// DeleteEvent deletes one event addressed directly by provider and id.
func (e *CommandExecutor) DeleteEvent(ctx context.Context, target EventTarget, scope models.RecurrenceScope) (models.AggregateResult, error) {
	ev, err := e.fetch(ctx, target)
	if err != nil {
		return models.AggregateResult{}, err
	}
	if ev.IsRecurring() && !scope.Valid() {
		return models.AggregateResult{}, appErrors.ErrScopeRequired
	}
	result, err := e.deleteTarget(ctx, ev, scope)
	result.Intent = models.IntentDelete
	e.observe(models.IntentDelete, result, err)
	return result, err
}

func (e *CommandExecutor) deleteTarget(ctx context.Context, target models.CalendarEvent, scope models.RecurrenceScope) (models.AggregateResult, error) {
	adapter, err := e.adapters.Get(target.ProviderID)
	if err != nil {
		return models.AggregateResult{}, err
	}
	if !target.IsRecurring() {
		scope = ""
	}
	snapshot := e.seriesSnapshot(ctx, adapter, target, scope)

	outcome, err := adapter.DeleteEvent(ctx, target.ID, scope)
	if err != nil {
		e.logger.Sugar().Warnw("delete event failed", "provider", target.ProviderID, "event_id", target.ID, "error", err)
		return providerFailure(target.ProviderID, err, fmt.Sprintf("could not delete %q", target.Title)), nil
	}

	rec := models.ActionRecord{
		ID:          uuid.NewString(),
		ActionType:  models.ActionDelete,
		Timestamp:   e.now().UTC(),
		Description: fmt.Sprintf("delete %q", target.Title),
		DeletedEvents: []models.DeletedEventRef{{
			EventRef:        models.EventRef{ProviderID: target.ProviderID, ExternalID: target.ID, Snapshot: snapshot},
			Scope:           scope,
			SoftDeleted:     outcome.SoftDeleted,
			TargetID:        outcome.TargetID,
			PriorRecurrence: outcome.PriorRecurrence,
		}},
	}
	return models.AggregateResult{
		Status:   models.StatusSuccess,
		Outcomes: []models.ProviderOutcome{{ProviderID: target.ProviderID, OK: true, ExternalID: outcome.TargetID}},
		ActionID: e.record(ctx, rec),
		Message:  fmt.Sprintf("Deleted %q", target.Title),
	}, nil
}

// seriesSnapshot captures the series master when a whole series goes, so a hard delete can
// be undone by recreating the series rather than one occurrence.
func (e *CommandExecutor) seriesSnapshot(ctx context.Context, adapter provider.Adapter, target models.CalendarEvent, scope models.RecurrenceScope) models.CalendarEvent {
	if scope != models.ScopeAll || target.SeriesID == "" {
		return target
	}
	master, err := adapter.GetEvent(ctx, target.SeriesID)
	if err != nil || master.RecurrenceRule == "" {
		return target
	}
	master.ProviderID = target.ProviderID
	return master
}

func (e *CommandExecutor) modifyByQuery(ctx context.Context, req ExecuteRequest) (models.AggregateResult, error) {
	target, candidates, err := e.resolveTarget(ctx, req)
	if err != nil {
		return models.AggregateResult{}, err
	}
	if target == nil {
		return needsSelection(req.Intent.SearchQuery, candidates), nil
	}
	if target.IsRecurring() && !req.Scope.Valid() {
		return needsScope(*target), nil
	}
	return e.modifyTarget(ctx, *target, req.Intent.Changes, req.Scope, req.Timezone)
}

// ModifyEvent edits one event addressed directly by provider and id.
func (e *CommandExecutor) ModifyEvent(ctx context.Context, target EventTarget, changes map[string]string, scope models.RecurrenceScope, timezone string) (models.AggregateResult, error) {
	if len(changes) == 0 {
		return models.AggregateResult{}, appErrors.Clone(appErrors.ErrValidation, "no changes given")
	}
	ev, err := e.fetch(ctx, target)
	if err != nil {
		return models.AggregateResult{}, err
	}
	if ev.IsRecurring() && !scope.Valid() {
		return models.AggregateResult{}, appErrors.ErrScopeRequired
	}
	req := e.withPreferences(ctx, ExecuteRequest{Providers: []models.ProviderID{target.ProviderID}, Timezone: timezone})
	result, err := e.modifyTarget(ctx, ev, changes, scope, req.Timezone)
	result.Intent = models.IntentModify
	e.observe(models.IntentModify, result, err)
	return result, err
}

func (e *CommandExecutor) modifyTarget(ctx context.Context, target models.CalendarEvent, raw map[string]string, scope models.RecurrenceScope, timezone string) (models.AggregateResult, error) {
	adapter, err := e.adapters.Get(target.ProviderID)
	if err != nil {
		return models.AggregateResult{}, err
	}
	loc := loadZone(timezone)
	changes, err := ResolveChanges(raw, target, e.now().In(loc), loc)
	if err != nil {
		return models.AggregateResult{}, err
	}
	if !target.IsRecurring() {
		scope = ""
	}

	if err := adapter.ModifyEvent(ctx, target.ID, changes, scope); err != nil {
		e.logger.Sugar().Warnw("modify event failed", "provider", target.ProviderID, "event_id", target.ID, "error", err)
		return providerFailure(target.ProviderID, err, fmt.Sprintf("could not update %q", target.Title)), nil
	}

	after := changes.Apply(target)
	rec := models.ActionRecord{
		ID:          uuid.NewString(),
		ActionType:  models.ActionModify,
		Timestamp:   e.now().UTC(),
		Description: fmt.Sprintf("modify %q", target.Title),
		ModifiedEvents: []models.ModifiedEventRef{{
			ProviderID: target.ProviderID,
			ExternalID: target.ID,
			Before:     target,
			After:      after,
			Scope:      scope,
		}},
	}
	return models.AggregateResult{
		Status:   models.StatusSuccess,
		Outcomes: []models.ProviderOutcome{{ProviderID: target.ProviderID, OK: true, ExternalID: target.ID}},
		Events:   []models.CalendarEvent{after},
		ActionID: e.record(ctx, rec),
		Message:  fmt.Sprintf("Updated %q", after.Title),
	}, nil
}

// RestoreEvent reverses a soft delete. It is the primitive undo uses and is not itself recorded.
func (e *CommandExecutor) RestoreEvent(ctx context.Context, target EventTarget) (models.AggregateResult, error) {
	adapter, err := e.adapters.Get(target.ProviderID)
	if err != nil {
		return models.AggregateResult{}, err
	}
	if err := adapter.RestoreEvent(ctx, target.ID); err != nil {
		return providerFailure(target.ProviderID, err, "could not restore the event"), nil
	}
	return models.AggregateResult{
		Status:   models.StatusSuccess,
		Outcomes: []models.ProviderOutcome{{ProviderID: target.ProviderID, OK: true, ExternalID: target.ID}},
		Message:  "Restored",
	}, nil
}

func (e *CommandExecutor) fetch(ctx context.Context, target EventTarget) (models.CalendarEvent, error) {
	adapter, err := e.adapters.Get(target.ProviderID)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	ev, err := adapter.GetEvent(ctx, target.ID)
	if err != nil {
		return models.CalendarEvent{}, err
	}
	ev.ProviderID = adapter.ID()
	return ev, nil
}

// view lists the events starting inside the requested range across providers.
func (e *CommandExecutor) view(ctx context.Context, req ExecuteRequest) (models.AggregateResult, error) {
	loc := loadZone(req.Timezone)
	start, end := e.dayBounds(loc)
	if req.Intent.RangeStart != nil {
		start = *req.Intent.RangeStart
	}
	if req.Intent.RangeEnd != nil {
		end = *req.Intent.RangeEnd
	}
	return e.ListRange(ctx, req.Providers, start, end)
}

// ListRange returns events with start in [from, to) from the selected providers, sorted by start.
func (e *CommandExecutor) ListRange(ctx context.Context, providers []models.ProviderID, from, to time.Time) (models.AggregateResult, error) {
	if !to.After(from) {
		return models.AggregateResult{}, appErrors.Clone(appErrors.ErrValidation, "range end must be after start")
	}
	req := e.withPreferences(ctx, ExecuteRequest{Providers: providers, Timezone: "UTC"})
	adapters, err := e.adapters.Resolve(req.Providers)
	if err != nil {
		return models.AggregateResult{}, err
	}
	lists, outcomes := e.listEach(ctx, adapters, from)

	var events []models.CalendarEvent
	for _, list := range lists {
		for _, ev := range list {
			if !ev.Start.Before(from) && ev.Start.Before(to) {
				events = append(events, ev)
			}
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })

	status := models.StatusFromOutcomes(outcomes)
	return models.AggregateResult{
		Status:         status,
		Intent:         models.IntentView,
		Outcomes:       outcomes,
		RetryProviders: failedProviders(outcomes),
		Events:         events,
		Message:        fmt.Sprintf("%d events", len(events)),
	}, nil
}

// listAll merges listings from every selected provider. Providers that fail are skipped
// unless all of them fail.
func (e *CommandExecutor) listAll(ctx context.Context, providers []models.ProviderID, since time.Time) ([]models.CalendarEvent, error) {
	adapters, err := e.adapters.Resolve(providers)
	if err != nil {
		return nil, err
	}
	lists, outcomes := e.listEach(ctx, adapters, since)
	var events []models.CalendarEvent
	failed := 0
	for i, o := range outcomes {
		if !o.OK {
			failed++
			continue
		}
		events = append(events, lists[i]...)
	}
	if failed > 0 && failed == len(outcomes) {
		return nil, listFailure(outcomes)
	}
	return events, nil
}

func (e *CommandExecutor) listEach(ctx context.Context, adapters []provider.Adapter, since time.Time) ([][]models.CalendarEvent, []models.ProviderOutcome) {
	lists := make([][]models.CalendarEvent, len(adapters))
	outcomes := make([]models.ProviderOutcome, len(adapters))
	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter provider.Adapter) {
			defer wg.Done()
			events, err := adapter.ListEvents(ctx, e.cfg.ListMaxResults, since)
			if err != nil {
				e.logger.Sugar().Warnw("list events failed", "provider", adapter.ID(), "error", err)
				outcomes[i] = failedOutcome(adapter.ID(), err)
				return
			}
			for j := range events {
				events[j].ProviderID = adapter.ID()
			}
			lists[i] = events
			outcomes[i] = models.ProviderOutcome{ProviderID: adapter.ID(), OK: true}
		}(i, adapter)
	}
	wg.Wait()
	return lists, outcomes
}

// multiple runs each member in order. Target and scope selections never carry over.
// Members waiting on a selection count as pending, not failed.
func (e *CommandExecutor) multiple(ctx context.Context, req ExecuteRequest) (models.AggregateResult, error) {
	results := make([]models.AggregateResult, 0, len(req.Intent.Commands))
	succeeded, pending := 0, 0
	var pendingStatus models.AggregateStatus
	for _, cmd := range req.Intent.Commands {
		sub := ExecuteRequest{Intent: cmd, Providers: req.Providers, Timezone: req.Timezone}
		res, err := e.Execute(ctx, sub)
		if err != nil {
			appErr := appErrors.FromError(err)
			res = models.AggregateResult{Status: models.StatusFailure, Intent: cmd.Type, Message: appErr.Message}
		}
		switch res.Status {
		case models.StatusSuccess, models.StatusDuplicate:
			succeeded++
		case models.StatusNeedsSelection, models.StatusNeedsScope:
			pending++
			if pendingStatus == "" {
				pendingStatus = res.Status
			}
		}
		results = append(results, res)
	}

	status := models.StatusPartial
	switch {
	case succeeded == len(results):
		status = models.StatusSuccess
	case succeeded+pending == len(results):
		status = pendingStatus
	case succeeded == 0 && pending == 0:
		status = models.StatusFailure
	}
	message := fmt.Sprintf("%d of %d commands completed", succeeded, len(results))
	if pending > 0 {
		message += fmt.Sprintf(", %d awaiting a selection", pending)
	}
	return models.AggregateResult{
		Status:  status,
		Results: results,
		Message: message,
	}, nil
}

func (e *CommandExecutor) record(ctx context.Context, rec models.ActionRecord) string {
	if e.ledger == nil {
		return ""
	}
	if err := e.ledger.Record(ctx, rec); err != nil {
		e.logger.Sugar().Warnw("record action failed", "action_id", rec.ID, "type", rec.ActionType, "error", err)
		return ""
	}
	return rec.ID
}

func (e *CommandExecutor) remember(ctx context.Context, refs []models.EventRef) {
	if e.recent == nil {
		return
	}
	events := make([]models.CalendarEvent, 0, len(refs))
	for _, ref := range refs {
		events = append(events, ref.Snapshot)
	}
	if err := e.recent.RememberEvents(ctx, events); err != nil {
		e.logger.Sugar().Warnw("remember recent events failed", "error", err)
	}
}

func (e *CommandExecutor) startOfToday(timezone string) time.Time {
	start, _ := e.dayBounds(loadZone(timezone))
	return start
}

func (e *CommandExecutor) dayBounds(loc *time.Location) (time.Time, time.Time) {
	now := e.now().In(loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

func snapshotOf(draft models.EventDraft, id models.ProviderID, externalID string) models.CalendarEvent {
	return models.CalendarEvent{
		ID:             externalID,
		Title:          draft.Title,
		Start:          draft.Start,
		End:            draft.End,
		Timezone:       draft.Timezone,
		Description:    draft.Description,
		Location:       draft.Location,
		RecurrenceRule: draft.RecurrenceRule,
		ProviderID:     id,
	}
}

func failedOutcome(id models.ProviderID, err error) models.ProviderOutcome {
	appErr := appErrors.FromError(err)
	return models.ProviderOutcome{ProviderID: id, OK: false, Code: appErr.Code, Message: appErr.Error()}
}

func providerFailure(id models.ProviderID, err error, message string) models.AggregateResult {
	outcome := failedOutcome(id, err)
	return models.AggregateResult{
		Status:         models.StatusFailure,
		Outcomes:       []models.ProviderOutcome{outcome},
		RetryProviders: []models.ProviderID{id},
		Message:        fmt.Sprintf("%s: %s", message, outcome.Message),
	}
}

func listFailure(outcomes []models.ProviderOutcome) error {
	msgs := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		msgs = append(msgs, o.Message)
	}
	first := appErrors.ErrProvider
	if len(outcomes) > 0 && outcomes[0].Code != "" {
		first = appErrors.New(outcomes[0].Code, appErrors.ErrProvider.Status, outcomes[0].Message)
	}
	return appErrors.Wrap(errors.New(strings.Join(msgs, "; ")), first.Code, first.Status, "could not list events")
}

// failedProviders lists each provider with at least one failed outcome, once.
func failedProviders(outcomes []models.ProviderOutcome) []models.ProviderID {
	var out []models.ProviderID
	seen := make(map[models.ProviderID]struct{})
	for _, o := range outcomes {
		if o.OK {
			continue
		}
		if _, dup := seen[o.ProviderID]; dup {
			continue
		}
		seen[o.ProviderID] = struct{}{}
		out = append(out, o.ProviderID)
	}
	return out
}

func describeDrafts(drafts []models.EventDraft) string {
	titles := make([]string, 0, len(drafts))
	for _, d := range drafts {
		titles = append(titles, fmt.Sprintf("%q", d.Title))
	}
	return "create " + strings.Join(titles, ", ")
}

func createMessage(drafts []models.EventDraft, result models.AggregateResult) string {
	subject := "the event"
	if len(drafts) == 1 {
		subject = fmt.Sprintf("%q", drafts[0].Title)
	} else if len(drafts) > 1 {
		subject = fmt.Sprintf("%d events", len(drafts))
	}
	switch result.Status {
	case models.StatusSuccess:
		return "Created " + subject
	case models.StatusDuplicate:
		return subject + " was already created"
	case models.StatusPartial:
		return fmt.Sprintf("Created %s, but %s failed; retry those providers", subject, joinProviders(result.RetryProviders))
	default:
		return fmt.Sprintf("Could not create %s", subject)
	}
}

func joinProviders(ids []models.ProviderID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
