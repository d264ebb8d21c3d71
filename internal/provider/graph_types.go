package provider

const graphTimeLayout = "2006-01-02T15:04:05.0000000"

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphPattern struct {
	Type           string   `json:"type"`
	Interval       int      `json:"interval"`
	DaysOfWeek     []string `json:"daysOfWeek,omitempty"`
	DayOfMonth     int      `json:"dayOfMonth,omitempty"`
	Month          int      `json:"month,omitempty"`
	Index          string   `json:"index,omitempty"`
	FirstDayOfWeek string   `json:"firstDayOfWeek,omitempty"`
}

type graphRange struct {
	Type                string `json:"type"`
	StartDate           string `json:"startDate"`
	EndDate             string `json:"endDate,omitempty"`
	NumberOfOccurrences int    `json:"numberOfOccurrences,omitempty"`
	RecurrenceTimeZone  string `json:"recurrenceTimeZone,omitempty"`
}

type graphRecurrence struct {
	Pattern graphPattern `json:"pattern"`
	Range   graphRange   `json:"range"`
}

type graphEvent struct {
	ID                         string           `json:"id,omitempty"`
	Subject                    *string          `json:"subject,omitempty"`
	Body                       *graphBody       `json:"body,omitempty"`
	Start                      *graphDateTime   `json:"start,omitempty"`
	End                        *graphDateTime   `json:"end,omitempty"`
	Location                   *graphLocation   `json:"location,omitempty"`
	IsAllDay                   *bool            `json:"isAllDay,omitempty"`
	IsCancelled                *bool            `json:"isCancelled,omitempty"`
	IsReminderOn               *bool            `json:"isReminderOn,omitempty"`
	ReminderMinutesBeforeStart *int             `json:"reminderMinutesBeforeStart,omitempty"`
	Recurrence                 *graphRecurrence `json:"recurrence,omitempty"`
	SeriesMasterID             string           `json:"seriesMasterId,omitempty"`
	Type                       string           `json:"type,omitempty"`
	OriginalStart              string           `json:"originalStart,omitempty"`
}

type graphEventList struct {
	Value []graphEvent `json:"value"`
}

type graphErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// graphRecurrencePatch clears or replaces a series recurrence; a nil pointer must still be sent.
type graphRecurrencePatch struct {
	Recurrence *graphRecurrence `json:"recurrence"`
}
