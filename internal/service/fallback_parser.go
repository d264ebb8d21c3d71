package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
)

var (
	relativeDay = regexp.MustCompile(`(?i)\b(day after tomorrow|today|tonight|tomorrow)\b`)
	weekdayRef  = regexp.MustCompile(`(?i)\b(?:(next|this|on)\s+)?(monday|mon|tuesday|tues|tue|wednesday|wed|thursday|thurs|thur|thu|friday|fri|saturday|sat|sunday|sun)\b`)
	isoDate     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthDay    = regexp.MustCompile(`(?i)\b(?:on\s+)?(january|jan|february|feb|march|mar|april|apr|may|june|jun|july|jul|august|aug|september|sept|sep|october|oct|november|nov|december|dec)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	dayMonth    = regexp.MustCompile(`(?i)\b(?:on\s+)?(\d{1,2})(?:st|nd|rd|th)?\s+(january|jan|february|feb|march|mar|april|apr|may|june|jun|july|jul|august|aug|september|sept|sep|october|oct|november|nov|december|dec)\b`)
	spaces      = regexp.MustCompile(`\s+`)
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tues": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thurs": time.Thursday, "thur": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// dateMatch is a calendar date found in free text.
type dateMatch struct {
	date  time.Time
	index int
	span  string
}

// FallbackParser extracts a single create intent from date and time tokens. It does no
// semantic duration estimation; durations are explicit or the configured default.
type FallbackParser struct {
	defaultDuration int
	reminder        int
}

// NewFallbackParser constructs the parser.
func NewFallbackParser(defaultDurationMinutes, reminderMinutes int) *FallbackParser {
	if defaultDurationMinutes <= 0 {
		defaultDurationMinutes = 60
	}
	if reminderMinutes < 0 {
		reminderMinutes = 60
	}
	return &FallbackParser{defaultDuration: defaultDurationMinutes, reminder: reminderMinutes}
}

// Parse reads text relative to now in loc.
func (p *FallbackParser) Parse(text string, now time.Time, loc *time.Location) (models.ParsedIntent, error) {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	trimmed := strings.TrimSpace(text)

	duration := p.defaultDuration
	durationSpan := ""
	if minutes, span, ok := ExtractDuration(trimmed); ok {
		duration = minutes
		durationSpan = span
	}
	scan := trimmed
	if durationSpan != "" {
		scan = strings.Replace(scan, durationSpan, " ", 1)
	}

	date, hasDate := findDate(scan, now)
	hour, minute, hasTime := ExtractClock(scan)
	if !hasDate && !hasTime {
		return models.ParsedIntent{}, appErrors.Clone(appErrors.ErrInvalidTime, `could not understand the date or time; try "tomorrow 2pm" or "Friday at 3pm"`)
	}

	day := now
	if hasDate {
		day = date.date
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, loc)
	if hasTime {
		start = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		if !hasDate && start.Before(now) {
			start = start.AddDate(0, 0, 1)
		}
	}

	title := ""
	if hasDate && date.index > 0 {
		title = cleanTitle(scan[:date.index])
	}
	if len(title) < 2 {
		rest := scan
		if hasDate {
			rest = strings.Replace(rest, date.span, " ", 1)
		}
		if span := clockSpan(rest); span != "" {
			rest = strings.Replace(rest, span, " ", 1)
		}
		title = cleanTitle(rest)
	}
	if len(title) < 2 {
		title = "Event"
	}

	confidence := 0.8
	if !hasTime {
		confidence -= 0.2
	}
	if title == "Event" {
		confidence -= 0.3
	}

	draft := models.EventDraft{
		Title:                     title,
		Start:                     start,
		End:                       start.Add(time.Duration(duration) * time.Minute),
		Timezone:                  loc.String(),
		ReminderLeadMinutes:       p.reminder,
		NeedsTimeConfirmation:     !hasTime,
		NeedsDurationConfirmation: true,
		SuggestedDurationMinutes:  duration,
		OriginalInputText:         trimmed,
	}
	return models.ParsedIntent{
		Type:       models.IntentCreate,
		Confidence: confidence,
		Draft:      &draft,
		Source:     models.IntentSourceFallback,
	}, nil
}

func cleanTitle(raw string) string {
	title := spaces.ReplaceAllString(strings.TrimSpace(raw), " ")
	title = strings.Trim(title, " ,.-")
	for _, suffix := range []string{" on", " at", " for", " this", " next"} {
		if strings.HasSuffix(strings.ToLower(title), suffix) {
			title = strings.TrimSpace(title[:len(title)-len(suffix)])
		}
	}
	return title
}

// findDate returns the earliest date reference in text.
func findDate(text string, now time.Time) (dateMatch, bool) {
	var best *dateMatch
	consider := func(m dateMatch) {
		if best == nil || m.index < best.index {
			best = &m
		}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if loc := relativeDay.FindStringSubmatchIndex(text); loc != nil {
		word := strings.ToLower(text[loc[2]:loc[3]])
		offset := 0
		switch word {
		case "tomorrow":
			offset = 1
		case "day after tomorrow":
			offset = 2
		}
		consider(dateMatch{date: today.AddDate(0, 0, offset), index: loc[0], span: text[loc[0]:loc[1]]})
	}
	if loc := weekdayRef.FindStringSubmatchIndex(text); loc != nil {
		qualifier := ""
		if loc[2] >= 0 {
			qualifier = strings.ToLower(text[loc[2]:loc[3]])
		}
		target := weekdayNames[strings.ToLower(text[loc[4]:loc[5]])]
		offset := (int(target) - int(today.Weekday()) + 7) % 7
		if offset == 0 && qualifier != "this" {
			offset = 7
		}
		consider(dateMatch{date: today.AddDate(0, 0, offset), index: loc[0], span: text[loc[0]:loc[1]]})
	}
	if m := isoDate.FindStringSubmatchIndex(text); m != nil {
		if d, err := time.ParseInLocation(time.DateOnly, text[m[0]:m[1]], now.Location()); err == nil {
			consider(dateMatch{date: d, index: m[0], span: text[m[0]:m[1]]})
		}
	}
	if m := monthDay.FindStringSubmatchIndex(text); m != nil {
		if d, ok := calendarDay(today, text[m[2]:m[3]], text[m[4]:m[5]]); ok {
			consider(dateMatch{date: d, index: m[0], span: text[m[0]:m[1]]})
		}
	}
	if m := dayMonth.FindStringSubmatchIndex(text); m != nil {
		if d, ok := calendarDay(today, text[m[4]:m[5]], text[m[2]:m[3]]); ok {
			consider(dateMatch{date: d, index: m[0], span: text[m[0]:m[1]]})
		}
	}
	if best == nil {
		return dateMatch{}, false
	}
	return *best, true
}

// calendarDay resolves a month and day to the next such date on or after today.
func calendarDay(today time.Time, monthRaw, dayRaw string) (time.Time, bool) {
	month, ok := monthNames[strings.ToLower(monthRaw)]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayRaw)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(today.Year(), month, day, 0, 0, 0, 0, today.Location())
	if d.Month() != month {
		return time.Time{}, false
	}
	if d.Before(today) {
		d = d.AddDate(1, 0, 0)
	}
	return d, true
}
