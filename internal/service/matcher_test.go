package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/chronos/internal/models"
)

func matcherFixture() []models.CalendarEvent {
	day := time.Date(2024, 5, 16, 7, 0, 0, 0, time.UTC)
	checkup := calendarEvent("4", "Checkup", day.Add(4*time.Hour), 30)
	checkup.Description = "Dentist visit, bring gym card"
	return []models.CalendarEvent{
		calendarEvent("1", "Gym with Alex", day, 60),
		calendarEvent("2", "Team sync", day.Add(2*time.Hour), 30),
		calendarEvent("3", "gym", day.Add(24*time.Hour), 90),
		checkup,
	}
}

func eventIDs(events []models.CalendarEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func TestSearchEventsRanksExactTitleFirst(t *testing.T) {
	got := SearchEvents(matcherFixture(), "Gym")
	assert.Equal(t, []string{"3", "1", "4"}, eventIDs(got))
}

func TestSearchEventsPrefersMoreTitleTokens(t *testing.T) {
	got := SearchEvents(matcherFixture(), "gym  alex")
	assert.Equal(t, []string{"1", "3", "4"}, eventIDs(got))
}

func TestSearchEventsMatchesDescription(t *testing.T) {
	got := SearchEvents(matcherFixture(), "dentist")
	assert.Equal(t, []string{"4"}, eventIDs(got))
}

func TestSearchEventsEmptyQuery(t *testing.T) {
	assert.Empty(t, SearchEvents(matcherFixture(), "   "))
	assert.Empty(t, SearchEvents(matcherFixture(), "haircut"))
}
