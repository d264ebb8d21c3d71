package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	clockInput = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?$`)

	// clockInText finds a time of day inside free text. A bare number only counts after "at".
	clockInText = regexp.MustCompile(`(?i)\b(?:(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)|(\d{1,2}):(\d{2})|at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?|(noon|midnight))(?:\W|$)`)

	pmKeywords = []string{"tonight", "evening", "afternoon", "night"}
	amKeywords = []string{"morning"}
)

// clock is a parsed time of day before meridiem resolution.
type clock struct {
	hour     int
	minute   int
	meridiem string
}

// parseClockInput parses user input of the form H[:MM][am|pm], plus "noon" and "midnight".
func parseClockInput(raw string) (clock, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "noon":
		return clock{hour: 12, meridiem: "pm"}, nil
	case "midnight":
		return clock{hour: 12, meridiem: "am"}, nil
	}
	m := clockInput.FindStringSubmatch(value)
	if m == nil {
		return clock{}, fmt.Errorf("%q is not a time like 6am or 14:30", raw)
	}
	return clockFromParts(m[1], m[2], m[3])
}

func clockFromParts(hourRaw, minuteRaw, meridiemRaw string) (clock, error) {
	hour, err := strconv.Atoi(hourRaw)
	if err != nil {
		return clock{}, fmt.Errorf("invalid hour %q", hourRaw)
	}
	minute := 0
	if minuteRaw != "" {
		if minute, err = strconv.Atoi(minuteRaw); err != nil {
			return clock{}, fmt.Errorf("invalid minute %q", minuteRaw)
		}
	}
	meridiem := strings.ReplaceAll(strings.ToLower(meridiemRaw), ".", "")
	if hour < 0 || hour > 23 {
		return clock{}, fmt.Errorf("hour %d is out of range", hour)
	}
	if minute < 0 || minute > 59 {
		return clock{}, fmt.Errorf("minute %d is out of range", minute)
	}
	if meridiem != "" && (hour == 0 || hour > 12) {
		return clock{}, fmt.Errorf("hour %d cannot take %s", hour, meridiem)
	}
	return clock{hour: hour, minute: minute, meridiem: meridiem}, nil
}

// resolve turns the clock into a 24-hour value. Without am/pm the day-part keywords in
// context decide first, then the hour range: 7-11 morning, 12 noon, 1-6 afternoon.
func (c clock) resolve(context string) (hour, minute int) {
	switch c.meridiem {
	case "am":
		if c.hour == 12 {
			return 0, c.minute
		}
		return c.hour, c.minute
	case "pm":
		if c.hour == 12 {
			return 12, c.minute
		}
		return c.hour + 12, c.minute
	}
	if c.hour == 0 || c.hour > 12 {
		return c.hour, c.minute
	}

	switch dayPart(context) {
	case "pm":
		if c.hour == 12 {
			return 12, c.minute
		}
		return c.hour + 12, c.minute
	case "am":
		if c.hour == 12 {
			return 0, c.minute
		}
		return c.hour, c.minute
	}

	switch {
	case c.hour >= 7 && c.hour <= 11:
		return c.hour, c.minute
	case c.hour == 12:
		return 12, c.minute
	default:
		return c.hour + 12, c.minute
	}
}

// dayPart reports "pm" or "am" when the text names a part of the day, else "".
func dayPart(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	for _, w := range words {
		for _, k := range pmKeywords {
			if w == k {
				return "pm"
			}
		}
	}
	for _, w := range words {
		for _, k := range amKeywords {
			if w == k {
				return "am"
			}
		}
	}
	return ""
}

// ExtractClock finds the first time of day in text and resolves it to 24-hour form.
// found is false when the text carries no usable time, which callers treat as a
// time that still needs confirmation.
func ExtractClock(text string) (hour, minute int, found bool) {
	for _, m := range clockInText.FindAllStringSubmatch(text, -1) {
		var (
			c   clock
			err error
		)
		switch {
		case m[3] != "":
			c, err = clockFromParts(m[1], m[2], m[3])
		case m[4] != "":
			c, err = clockFromParts(m[4], m[5], "")
		case m[6] != "":
			c, err = clockFromParts(m[6], m[7], m[8])
		case m[9] != "":
			c, err = parseClockInput(m[9])
		default:
			continue
		}
		if err != nil {
			continue
		}
		h, min := c.resolve(text)
		return h, min, true
	}
	return 0, 0, false
}

// clockSpan returns the matched time text so callers can strip it from a title.
func clockSpan(text string) string {
	loc := clockInText.FindStringSubmatchIndex(text)
	if loc == nil {
		return ""
	}
	return strings.TrimSpace(text[loc[0]:loc[1]])
}
