package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

// ResolveChanges turns the loose change map produced by classification into concrete
// field edits against target. A new time keeps the date and duration, a new date keeps
// the time of day, and a new duration moves only the end.
func ResolveChanges(raw map[string]string, target models.CalendarEvent, now time.Time, loc *time.Location) (models.FieldChanges, error) {
	if loc == nil {
		loc = time.UTC
	}
	if target.Timezone != "" {
		if tz, err := time.LoadLocation(target.Timezone); err == nil {
			loc = tz
		}
	}
	start := target.Start.In(loc)
	duration := target.End.Sub(target.Start)
	if duration <= 0 {
		duration = time.Hour
	}

	var (
		changes   models.FieldChanges
		timeMoved bool
	)
	values := normalizeChangeKeys(raw)

	if v, ok := values["start"]; ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return changes, appErrors.Clone(appErrors.ErrInvalidTime, fmt.Sprintf("cannot read start %q", v))
		}
		start = t.In(loc)
		timeMoved = true
	}
	if v, ok := values["date"]; ok {
		d, found := findDate(v, now.In(loc))
		if !found {
			return changes, appErrors.Clone(appErrors.ErrInvalidTime, fmt.Sprintf("cannot read date %q", v))
		}
		start = time.Date(d.date.Year(), d.date.Month(), d.date.Day(), start.Hour(), start.Minute(), 0, 0, loc)
		timeMoved = true
	}
	if v, ok := values["time"]; ok {
		hour, minute, found := ExtractClock(v)
		if !found {
			c, err := parseClockInput(v)
			if err != nil {
				return changes, appErrors.Clone(appErrors.ErrInvalidTime, err.Error())
			}
			hour, minute = c.resolve(target.Title + " " + v)
		}
		start = time.Date(start.Year(), start.Month(), start.Day(), hour, minute, 0, 0, loc)
		timeMoved = true
	}
	if v, ok := values["duration"]; ok {
		minutes, err := parseDurationChange(v)
		if err != nil {
			return changes, err
		}
		duration = time.Duration(minutes) * time.Minute
		end := start.Add(duration)
		changes.End = &end
	}
	if timeMoved {
		end := start.Add(duration)
		changes.Start = &start
		changes.End = &end
	}
	if v, ok := values["title"]; ok && v != "" {
		changes.Title = &v
	}
	if v, ok := values["description"]; ok {
		changes.Description = &v
	}
	if v, ok := values["location"]; ok {
		changes.Location = &v
	}

	if changes.IsEmpty() {
		return changes, appErrors.Clone(appErrors.ErrValidation, "no recognised changes")
	}
	anchor := target.Start
	changes.Anchor = &anchor
	return changes, nil
}

var changeKeyAliases = map[string]string{
	"time": "time", "starttime": "time", "hour": "time",
	"date": "date", "day": "date",
	"start": "start", "startdatetime": "start",
	"duration": "duration", "durationminutes": "duration", "length": "duration",
	"title": "title", "name": "title", "summary": "title", "subject": "title",
	"description": "description", "notes": "description",
	"location": "location", "place": "location",
}

func normalizeChangeKeys(raw map[string]string) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(k, "_", ""), " ", ""))
		if canonical, ok := changeKeyAliases[key]; ok {
			out[canonical] = strings.TrimSpace(v)
		}
	}
	return out
}

func parseDurationChange(v string) (int, error) {
	if minutes, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if minutes <= 0 || minutes > maxDurationMinutes {
			return 0, appErrors.ErrInvalidDuration
		}
		return minutes, nil
	}
	if minutes, _, ok := ExtractDuration(v); ok {
		return minutes, nil
	}
	return 0, appErrors.ErrInvalidDuration
}
