package service

import (
	"sort"
	"strings"

	"github.com/noah-isme/chronos/internal/models"
)

// SearchEvents returns the events whose title or description contains at least one query
// token. Exact title matches rank first, then events with more tokens in the title. Ties
// keep their input order. An empty query matches nothing.
func SearchEvents(events []models.CalendarEvent, query string) []models.CalendarEvent {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return []models.CalendarEvent{}
	}
	tokens := strings.Fields(normalized)
	normalized = strings.Join(tokens, " ")

	type scored struct {
		event models.CalendarEvent
		exact bool
		score int
	}
	matches := make([]scored, 0, len(events))
	for _, ev := range events {
		haystack := strings.ToLower(ev.Title + " " + ev.Description)
		if !containsAny(haystack, tokens) {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(ev.Title))
		score := 0
		for _, t := range tokens {
			if strings.Contains(title, t) {
				score++
			}
		}
		matches = append(matches, scored{event: ev, exact: title == normalized, score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].exact != matches[j].exact {
			return matches[i].exact
		}
		return matches[i].score > matches[j].score
	})

	out := make([]models.CalendarEvent, len(matches))
	for i, m := range matches {
		out[i] = m.event
	}
	return out
}

func containsAny(haystack string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}
