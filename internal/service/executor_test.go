package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

func TestExecutorCreateFansOutToEveryProvider(t *testing.T) {
	fx := newExecutorFixture(t)
	draft := confirmedDraft("Team sync", time.Date(2024, 5, 16, 10, 0, 0, 0, time.UTC), 30)

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{Intent: createIntent(draft), Providers: bothProviders()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, models.IntentCreate, result.Intent)
	assert.Equal(t, RequestID(draft), result.RequestID)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, models.ProviderGoogle, result.Outcomes[0].ProviderID)
	assert.Equal(t, models.ProviderOutlook, result.Outcomes[1].ProviderID)
	assert.Empty(t, result.RetryProviders)
	assert.NotEmpty(t, result.ActionID)
	assert.Equal(t, 1, fx.google.count())
	assert.Equal(t, 1, fx.outlook.count())

	history := fx.ledger.History()
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionCreate, history[0].ActionType)
	assert.Len(t, history[0].CreatedEvents, 2)

	recent, err := fx.prefs.RecentEvents(context.Background())
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestExecutorCreateIsIdempotentWithinWindow(t *testing.T) {
	fx := newExecutorFixture(t)
	draft := confirmedDraft("Team sync", time.Date(2024, 5, 16, 10, 0, 0, 0, time.UTC), 30)
	req := ExecuteRequest{Intent: createIntent(draft), Providers: bothProviders()}

	_, err := fx.exec.Execute(context.Background(), req)
	require.NoError(t, err)
	second, err := fx.exec.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, models.StatusDuplicate, second.Status)
	for _, o := range second.Outcomes {
		assert.True(t, o.Duplicate)
		assert.NotEmpty(t, o.ExternalID)
	}
	assert.Empty(t, second.ActionID)
	assert.Equal(t, 1, fx.google.createCount())
	assert.Equal(t, 1, fx.outlook.createCount())
	assert.Len(t, fx.ledger.History(), 1)
}

func TestExecutorConcurrentCreatesSubmitOnce(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.setCreateDelay(50 * time.Millisecond)
	fx.outlook.setCreateDelay(50 * time.Millisecond)
	draft := confirmedDraft("Standup", time.Date(2024, 5, 16, 9, 30, 0, 0, time.UTC), 15)
	req := ExecuteRequest{Intent: createIntent(draft), Providers: bothProviders()}

	results := make([]models.AggregateResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := fx.exec.Execute(context.Background(), req)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, fx.google.createCount())
	assert.Equal(t, 1, fx.outlook.createCount())
	statuses := []models.AggregateStatus{results[0].Status, results[1].Status}
	assert.ElementsMatch(t, []models.AggregateStatus{models.StatusSuccess, models.StatusDuplicate}, statuses)
	for _, res := range results {
		require.Len(t, res.Outcomes, 2)
		assert.NotEmpty(t, res.Outcomes[0].ExternalID)
	}
	assert.Equal(t, results[0].Outcomes[0].ExternalID, results[1].Outcomes[0].ExternalID)
	assert.Len(t, fx.ledger.History(), 1)
}

func TestExecutorPartialFailureRetriesOnlyFailedProvider(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.outlook.setCreateErr(appErrors.Clone(appErrors.ErrNetwork, "outlook unreachable"))
	draft := confirmedDraft("Dinner", time.Date(2024, 5, 16, 19, 0, 0, 0, time.UTC), 90)
	req := ExecuteRequest{Intent: createIntent(draft), Providers: bothProviders()}

	first, err := fx.exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, first.Status)
	assert.Equal(t, []models.ProviderID{models.ProviderOutlook}, first.RetryProviders)
	assert.Equal(t, appErrors.ErrNetwork.Code, first.Outcomes[1].Code)
	assert.Contains(t, first.Message, "outlook")

	fx.outlook.setCreateErr(nil)
	retry, err := fx.exec.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, retry.Status)
	assert.True(t, retry.Outcomes[0].Duplicate)
	assert.False(t, retry.Outcomes[1].Duplicate)
	assert.Equal(t, 1, fx.google.createCount())
	assert.Equal(t, 1, fx.outlook.count())
	assert.Len(t, fx.ledger.History(), 2)
}

func TestExecutorCreateAllProvidersFail(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.setCreateErr(appErrors.Clone(appErrors.ErrRateLimited, "slow down"))
	draft := confirmedDraft("Dinner", time.Date(2024, 5, 16, 19, 0, 0, 0, time.UTC), 90)

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{Intent: createIntent(draft)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailure, result.Status)
	assert.Equal(t, []models.ProviderID{models.ProviderGoogle}, result.RetryProviders)
	assert.Empty(t, fx.ledger.History())
}

func TestExecutorRejectsUnconfirmedTime(t *testing.T) {
	fx := newExecutorFixture(t)
	draft := confirmedDraft("Gym", time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC), 90)
	draft.NeedsTimeConfirmation = true

	_, err := fx.exec.Execute(context.Background(), ExecuteRequest{Intent: createIntent(draft)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTimeUnconfirmed.Code, appErrors.FromError(err).Code)
	assert.Zero(t, fx.google.createCount())
}

func TestExecutorRejectsInvertedRange(t *testing.T) {
	fx := newExecutorFixture(t)
	draft := confirmedDraft("Gym", time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC), 0)

	_, err := fx.exec.Execute(context.Background(), ExecuteRequest{Intent: createIntent(draft)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExecutorRejectsInvalidIntent(t *testing.T) {
	fx := newExecutorFixture(t)
	_, err := fx.exec.Execute(context.Background(), ExecuteRequest{Intent: models.ParsedIntent{Type: models.IntentDelete}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExecutorDeleteNeedsSelectionThenTarget(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.seed(calendarEvent("g-1", "Gym session", time.Date(2024, 5, 16, 7, 0, 0, 0, time.UTC), 90))
	fx.google.seed(calendarEvent("g-2", "Gym with Alex", time.Date(2024, 5, 17, 7, 0, 0, 0, time.UTC), 90))
	fx.google.seed(calendarEvent("g-3", "Dentist", time.Date(2024, 5, 17, 11, 0, 0, 0, time.UTC), 60))
	intent := models.ParsedIntent{Type: models.IntentDelete, Confidence: 0.9, SearchQuery: "gym"}

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{Intent: intent})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsSelection, result.Status)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, 3, fx.google.count())

	picked := result.Candidates[1]
	result, err = fx.exec.Execute(context.Background(), ExecuteRequest{
		Intent: intent,
		Target: &EventTarget{ProviderID: picked.ProviderID, ID: picked.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	_, exists := fx.google.event(picked.ID)
	assert.False(t, exists)
	assert.Equal(t, 2, fx.google.count())

	history := fx.ledger.History()
	require.Len(t, history, 1)
	assert.Equal(t, models.ActionDelete, history[0].ActionType)
	assert.True(t, history[0].DeletedEvents[0].SoftDeleted)
	assert.Equal(t, picked.Title, history[0].DeletedEvents[0].Snapshot.Title)
}

func TestExecutorDeleteSingleMatchProceeds(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.seed(calendarEvent("g-1", "Dentist", time.Date(2024, 5, 16, 11, 0, 0, 0, time.UTC), 60))

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{
		Intent: models.ParsedIntent{Type: models.IntentDelete, Confidence: 0.9, SearchQuery: "dentist"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Zero(t, fx.google.count())
}

func TestExecutorDeleteNoMatch(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.seed(calendarEvent("g-1", "Dentist", time.Date(2024, 5, 16, 11, 0, 0, 0, time.UTC), 60))

	_, err := fx.exec.Execute(context.Background(), ExecuteRequest{
		Intent: models.ParsedIntent{Type: models.IntentDelete, Confidence: 0.9, SearchQuery: "haircut"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNoMatch))
}

func TestExecutorRecurringDeleteNeedsScope(t *testing.T) {
	fx := newExecutorFixture(t)
	standup := calendarEvent("g-1", "Standup", time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC), 15)
	standup.RecurrenceRule = "FREQ=DAILY"
	fx.google.seed(standup)
	intent := models.ParsedIntent{Type: models.IntentDelete, Confidence: 0.9, SearchQuery: "standup"}

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{Intent: intent})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNeedsScope, result.Status)
	assert.Equal(t, 1, fx.google.count())

	result, err = fx.exec.Execute(context.Background(), ExecuteRequest{Intent: intent, Scope: models.ScopeAll})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	require.Len(t, fx.google.deletes, 1)
	assert.Equal(t, models.ScopeAll, fx.google.deletes[0].Scope)
}

func TestExecutorDirectDeleteRequiresScopeForSeries(t *testing.T) {
	fx := newExecutorFixture(t)
	standup := calendarEvent("g-1", "Standup", time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC), 15)
	standup.RecurrenceRule = "FREQ=DAILY"
	fx.google.seed(standup)

	_, err := fx.exec.DeleteEvent(context.Background(), EventTarget{ProviderID: models.ProviderGoogle, ID: "g-1"}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrScopeRequired.Code, appErrors.FromError(err).Code)
}

func TestExecutorDeleteProviderFailureIsReported(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.seed(calendarEvent("g-1", "Dentist", time.Date(2024, 5, 16, 11, 0, 0, 0, time.UTC), 60))
	fx.google.deleteErr = appErrors.Clone(appErrors.ErrAuthExpired, "token revoked")

	result, err := fx.exec.DeleteEvent(context.Background(), EventTarget{ProviderID: models.ProviderGoogle, ID: "g-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailure, result.Status)
	assert.Equal(t, []models.ProviderID{models.ProviderGoogle}, result.RetryProviders)
	assert.Equal(t, appErrors.ErrAuthExpired.Code, result.Outcomes[0].Code)
	assert.Empty(t, fx.ledger.History())
}

func TestExecutorModifyMovesTimeAndKeepsDuration(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.seed(calendarEvent("g-1", "Dentist", time.Date(2024, 5, 16, 10, 0, 0, 0, time.UTC), 60))

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{
		Intent: models.ParsedIntent{
			Type:        models.IntentModify,
			Confidence:  0.9,
			SearchQuery: "dentist",
			Changes:     map[string]string{"time": "3pm"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	require.Len(t, result.Events, 1)
	assert.Equal(t, time.Date(2024, 5, 16, 15, 0, 0, 0, time.UTC), result.Events[0].Start)
	assert.Equal(t, time.Date(2024, 5, 16, 16, 0, 0, 0, time.UTC), result.Events[0].End)

	stored, ok := fx.google.event("g-1")
	require.True(t, ok)
	assert.Equal(t, 15, stored.Start.Hour())

	history := fx.ledger.History()
	require.Len(t, history, 1)
	ref := history[0].ModifiedEvents[0]
	assert.Equal(t, 10, ref.Before.Start.Hour())
	assert.Equal(t, 15, ref.After.Start.Hour())
}

func TestExecutorDirectModifyRejectsUnknownChanges(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.seed(calendarEvent("g-1", "Dentist", time.Date(2024, 5, 16, 10, 0, 0, 0, time.UTC), 60))

	_, err := fx.exec.ModifyEvent(context.Background(), EventTarget{ProviderID: models.ProviderGoogle, ID: "g-1"}, map[string]string{"colour": "blue"}, "", "UTC")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.google.modifies)
}

func TestExecutorViewMergesAndSortsProviders(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.outlook.seed(calendarEvent("o-1", "Review", time.Date(2024, 5, 15, 14, 0, 0, 0, time.UTC), 60))
	fx.google.seed(calendarEvent("g-1", "Standup", time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC), 15))
	fx.google.seed(calendarEvent("g-2", "Tomorrow thing", time.Date(2024, 5, 16, 9, 0, 0, 0, time.UTC), 15))

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{
		Intent:    models.ParsedIntent{Type: models.IntentView, Confidence: 0.9},
		Providers: bothProviders(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, result.Status)
	assert.Equal(t, models.IntentView, result.Intent)
	require.Len(t, result.Events, 2)
	assert.Equal(t, "g-1", result.Events[0].ID)
	assert.Equal(t, "o-1", result.Events[1].ID)
	assert.Equal(t, models.ProviderOutlook, result.Events[1].ProviderID)
}

func TestExecutorViewReportsFailedProvider(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.seed(calendarEvent("g-1", "Standup", time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC), 15))
	fx.outlook.listErr = appErrors.Clone(appErrors.ErrNetwork, "down")

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{
		Intent:    models.ParsedIntent{Type: models.IntentView, Confidence: 0.9},
		Providers: bothProviders(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, result.Status)
	assert.Equal(t, []models.ProviderID{models.ProviderOutlook}, result.RetryProviders)
	assert.Len(t, result.Events, 1)
}

func TestExecutorSearchFailsWhenEveryProviderFails(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.listErr = appErrors.Clone(appErrors.ErrAuthExpired, "expired")

	_, err := fx.exec.Search(context.Background(), nil, "gym", "UTC")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrAuthExpired.Code, appErrors.FromError(err).Code)
}

func TestExecutorMultipleCommandsReportsEachMember(t *testing.T) {
	fx := newExecutorFixture(t)
	draft := confirmedDraft("Lunch", time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC), 60)
	intent := models.ParsedIntent{
		Type:       models.IntentMultipleCommands,
		Confidence: 0.8,
		Commands: []models.ParsedIntent{
			createIntent(draft),
			{Type: models.IntentDelete, Confidence: 0.8, SearchQuery: "haircut"},
		},
	}

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{Intent: intent})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, result.Status)
	require.Len(t, result.Results, 2)
	assert.Equal(t, models.StatusSuccess, result.Results[0].Status)
	assert.Equal(t, models.StatusFailure, result.Results[1].Status)
	assert.Equal(t, models.IntentDelete, result.Results[1].Intent)
	assert.Equal(t, 1, fx.google.count())
}

func TestExecutorMultipleCommandsTreatsSelectionAsPending(t *testing.T) {
	fx := newExecutorFixture(t)
	fx.google.seed(calendarEvent("g-1", "Gym session", time.Date(2024, 5, 16, 7, 0, 0, 0, time.UTC), 90))
	fx.google.seed(calendarEvent("g-2", "Gym with Alex", time.Date(2024, 5, 17, 7, 0, 0, 0, time.UTC), 90))
	draft := confirmedDraft("Lunch", time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC), 60)
	intent := models.ParsedIntent{
		Type:       models.IntentMultipleCommands,
		Confidence: 0.8,
		Commands: []models.ParsedIntent{
			createIntent(draft),
			{Type: models.IntentDelete, Confidence: 0.8, SearchQuery: "gym"},
		},
	}

	result, err := fx.exec.Execute(context.Background(), ExecuteRequest{Intent: intent})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.Equal(t, models.StatusNeedsSelection, result.Results[1].Status)
	assert.Equal(t, models.StatusNeedsSelection, result.Status)
	assert.Equal(t, "1 of 2 commands completed, 1 awaiting a selection", result.Message)

	intent.Commands = append(intent.Commands, models.ParsedIntent{Type: models.IntentDelete, Confidence: 0.8, SearchQuery: "haircut"})
	intent.Commands[0] = createIntent(confirmedDraft("Coffee", time.Date(2024, 5, 16, 15, 0, 0, 0, time.UTC), 30))
	result, err = fx.exec.Execute(context.Background(), ExecuteRequest{Intent: intent})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, result.Status)
	assert.Equal(t, "1 of 3 commands completed, 1 awaiting a selection", result.Message)
}
