package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRule(t *testing.T) {
	rule, err := NormalizeRule("rrule:freq=weekly;byday=mo,we")
	require.NoError(t, err)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,WE", rule)

	_, err = NormalizeRule("FREQ=SOMETIMES")
	assert.Error(t, err)
	_, err = NormalizeRule("  ")
	assert.Error(t, err)
	_, err = NormalizeRule("FREQ=MONTHLY;BYMONTHDAY=40")
	assert.Error(t, err)
}

func TestTruncateBeforeKeepsEarlierOccurrences(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	seriesStart := time.Date(2024, 5, 6, 10, 0, 0, 0, loc)
	target := time.Date(2024, 5, 27, 10, 0, 0, 0, loc)
	horizon := seriesStart.AddDate(0, 6, 0)

	for _, prior := range []string{"FREQ=WEEKLY;BYDAY=MO", "FREQ=DAILY;COUNT=60", "FREQ=WEEKLY;INTERVAL=1"} {
		truncated, err := TruncateBefore(prior, target, loc)
		require.NoError(t, err)
		assert.NotContains(t, truncated, "COUNT=")

		before, err := Occurrences(prior, seriesStart, seriesStart, target.Add(-time.Second))
		require.NoError(t, err)
		after, err := Occurrences(truncated, seriesStart, seriesStart, target.Add(-time.Second))
		require.NoError(t, err)
		assert.Equal(t, before, after, prior)

		tail, err := Occurrences(truncated, seriesStart, target, horizon)
		require.NoError(t, err)
		assert.Empty(t, tail, prior)
	}
}

func TestTruncateBeforeUntilIsEndOfPreviousLocalDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	truncated, err := TruncateBefore("FREQ=WEEKLY;BYDAY=MO", time.Date(2024, 5, 20, 10, 0, 0, 0, loc), loc)
	require.NoError(t, err)
	assert.Equal(t, "FREQ=WEEKLY;UNTIL=20240520T035959Z;BYDAY=MO", truncated)
}

func TestToGraphRecurrence(t *testing.T) {
	start := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

	rec, err := ToGraphRecurrence("FREQ=WEEKLY;BYDAY=MO,WE", start, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "weekly", rec.Pattern.Type)
	assert.Equal(t, []string{"monday", "wednesday"}, rec.Pattern.DaysOfWeek)
	assert.Equal(t, 1, rec.Pattern.Interval)
	assert.Equal(t, "noEnd", rec.Range.Type)
	assert.Equal(t, "2024-05-06", rec.Range.StartDate)

	rec, err = ToGraphRecurrence("FREQ=MONTHLY;COUNT=5", start, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "absoluteMonthly", rec.Pattern.Type)
	assert.Equal(t, 6, rec.Pattern.DayOfMonth)
	assert.Equal(t, "numbered", rec.Range.Type)
	assert.Equal(t, 5, rec.Range.NumberOfOccurrences)

	rec, err = ToGraphRecurrence("FREQ=MONTHLY;BYDAY=+2TU", start, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "relativeMonthly", rec.Pattern.Type)
	assert.Equal(t, "second", rec.Pattern.Index)

	rec, err = ToGraphRecurrence("FREQ=DAILY;UNTIL=20240531T235959Z", start, "UTC")
	require.NoError(t, err)
	assert.Equal(t, "endDate", rec.Range.Type)
	assert.Equal(t, "2024-05-31", rec.Range.EndDate)

	_, err = ToGraphRecurrence("FREQ=HOURLY", start, "UTC")
	assert.Error(t, err)
}

func TestFromGraphRecurrence(t *testing.T) {
	rule := FromGraphRecurrence(&graphRecurrence{
		Pattern: graphPattern{Type: "weekly", Interval: 2, DaysOfWeek: []string{"monday", "friday"}},
		Range:   graphRange{Type: "noEnd", StartDate: "2024-05-06"},
	})
	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,FR", rule)

	rule = FromGraphRecurrence(&graphRecurrence{
		Pattern: graphPattern{Type: "daily", Interval: 1},
		Range:   graphRange{Type: "numbered", NumberOfOccurrences: 3},
	})
	assert.Equal(t, "FREQ=DAILY;COUNT=3", rule)

	assert.Empty(t, FromGraphRecurrence(nil))
}
