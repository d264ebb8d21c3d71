package provider

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var errEmptyRule = errors.New("empty recurrence rule")

// NormalizeRule validates an RRULE body and returns it in canonical form without the
// RRULE: prefix.
func NormalizeRule(raw string) (string, error) {
	body := strings.TrimSpace(raw)
	body = strings.TrimPrefix(strings.ToUpper(body), "RRULE:")
	if body == "" {
		return "", errEmptyRule
	}
	opt, err := rrule.StrToROption(body)
	if err != nil {
		return "", fmt.Errorf("parse recurrence rule: %w", err)
	}
	if _, err := rrule.NewRRule(*opt); err != nil {
		return "", fmt.Errorf("invalid recurrence rule: %w", err)
	}
	return opt.RRuleString(), nil
}

// TruncateBefore ends a series on the day before occurrence so that occurrence and
// everything after it disappear. Earlier occurrences are unaffected. A COUNT limit is
// replaced by UNTIL because the two cannot be combined.
func TruncateBefore(rule string, occurrence time.Time, loc *time.Location) (string, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(rule, "RRULE:"))
	if err != nil {
		return "", fmt.Errorf("parse recurrence rule: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	opt.Count = 0
	opt.Until = endOfPreviousDay(occurrence, loc)
	return opt.RRuleString(), nil
}

func endOfPreviousDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	prev := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).Add(-time.Second)
	return prev.UTC()
}

// Occurrences expands rule starting at dtstart and returns the starts within [from, to].
func Occurrences(rule string, dtstart, from, to time.Time) ([]time.Time, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(rule, "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("parse recurrence rule: %w", err)
	}
	opt.Dtstart = dtstart
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("invalid recurrence rule: %w", err)
	}
	return r.Between(from, to, true), nil
}

var graphDayNames = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

var graphIndexNames = map[int]string{1: "first", 2: "second", 3: "third", 4: "fourth", -1: "last"}

// ToGraphRecurrence converts an RRULE into Graph's pattern and range for a series
// starting at start.
func ToGraphRecurrence(rule string, start time.Time, timezone string) (*graphRecurrence, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(rule, "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("parse recurrence rule: %w", err)
	}

	pattern := graphPattern{Interval: opt.Interval}
	if pattern.Interval <= 0 {
		pattern.Interval = 1
	}
	days := make([]string, 0, len(opt.Byweekday))
	nth := 0
	for i := range opt.Byweekday {
		days = append(days, graphDayNames[opt.Byweekday[i].Day()])
		if n := opt.Byweekday[i].N(); n != 0 {
			nth = n
		}
	}

	switch opt.Freq {
	case rrule.DAILY:
		pattern.Type = "daily"
	case rrule.WEEKLY:
		pattern.Type = "weekly"
		if len(days) == 0 {
			days = []string{graphDayNames[(int(start.Weekday())+6)%7]}
		}
		pattern.DaysOfWeek = days
		pattern.FirstDayOfWeek = "monday"
	case rrule.MONTHLY:
		if len(days) > 0 && nth != 0 {
			pattern.Type = "relativeMonthly"
			pattern.DaysOfWeek = days
			pattern.Index = graphIndexNames[nth]
		} else {
			pattern.Type = "absoluteMonthly"
			pattern.DayOfMonth = start.Day()
			if len(opt.Bymonthday) > 0 {
				pattern.DayOfMonth = opt.Bymonthday[0]
			}
		}
	case rrule.YEARLY:
		pattern.Type = "absoluteYearly"
		pattern.Month = int(start.Month())
		pattern.DayOfMonth = start.Day()
	default:
		return nil, fmt.Errorf("frequency %s is not supported by outlook", opt.Freq)
	}

	rng := graphRange{Type: "noEnd", StartDate: start.Format(time.DateOnly), RecurrenceTimeZone: timezone}
	switch {
	case !opt.Until.IsZero():
		rng.Type = "endDate"
		rng.EndDate = opt.Until.In(zoneOf(timezone)).Format(time.DateOnly)
	case opt.Count > 0:
		rng.Type = "numbered"
		rng.NumberOfOccurrences = opt.Count
	}
	return &graphRecurrence{Pattern: pattern, Range: rng}, nil
}

// FromGraphRecurrence renders a Graph pattern as an RRULE body. Unknown patterns yield "".
func FromGraphRecurrence(r *graphRecurrence) string {
	if r == nil {
		return ""
	}
	opt := rrule.ROption{Interval: r.Pattern.Interval}
	if opt.Interval == 1 {
		opt.Interval = 0
	}
	switch r.Pattern.Type {
	case "daily":
		opt.Freq = rrule.DAILY
	case "weekly":
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = graphWeekdays(r.Pattern.DaysOfWeek, 0)
	case "absoluteMonthly":
		opt.Freq = rrule.MONTHLY
		if r.Pattern.DayOfMonth > 0 {
			opt.Bymonthday = []int{r.Pattern.DayOfMonth}
		}
	case "relativeMonthly":
		opt.Freq = rrule.MONTHLY
		n := 1
		for k, v := range graphIndexNames {
			if v == r.Pattern.Index {
				n = k
			}
		}
		opt.Byweekday = graphWeekdays(r.Pattern.DaysOfWeek, n)
	case "absoluteYearly":
		opt.Freq = rrule.YEARLY
		if r.Pattern.Month > 0 {
			opt.Bymonth = []int{r.Pattern.Month}
		}
		if r.Pattern.DayOfMonth > 0 {
			opt.Bymonthday = []int{r.Pattern.DayOfMonth}
		}
	default:
		return ""
	}
	switch r.Range.Type {
	case "endDate":
		if end, err := time.ParseInLocation(time.DateOnly, r.Range.EndDate, zoneOf(r.Range.RecurrenceTimeZone)); err == nil {
			opt.Until = end.Add(24*time.Hour - time.Second)
		}
	case "numbered":
		opt.Count = r.Range.NumberOfOccurrences
	}
	return opt.RRuleString()
}

func graphWeekdays(names []string, n int) []rrule.Weekday {
	all := []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}
	out := make([]rrule.Weekday, 0, len(names))
	for _, name := range names {
		for i, dayName := range graphDayNames {
			if strings.EqualFold(name, dayName) {
				wd := all[i]
				if n != 0 {
					wd = wd.Nth(n)
				}
				out = append(out, wd)
			}
		}
	}
	return out
}
