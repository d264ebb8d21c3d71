package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// ICSRenderer produces an iCalendar feed that other calendar apps can import.
type ICSRenderer struct {
	productID string
	now       func() time.Time
}

// NewICSRenderer constructs an iCalendar renderer.
func NewICSRenderer(productID string) *ICSRenderer {
	return &ICSRenderer{productID: productID, now: time.Now}
}

func (r *ICSRenderer) ContentType() string { return "text/calendar" }
func (r *ICSRenderer) Extension() string   { return "ics" }

// Render emits one VEVENT per item, keeping recurrence rules intact.
func (r *ICSRenderer) Render(agenda Agenda) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(r.productID)
	cal.SetXWRTimezone(agenda.zone().String())
	if agenda.Title != "" {
		cal.SetXWRCalName(agenda.Title)
	}

	stamp := r.now().UTC()
	for i, item := range agenda.Sorted() {
		uid := item.UID
		if uid == "" {
			uid = fmt.Sprintf("chronos-%d-%d@export", stamp.Unix(), i)
		}
		event := cal.AddEvent(uid)
		event.SetDtStampTime(stamp)
		event.SetSummary(item.Title)
		if item.AllDay {
			event.SetAllDayStartAt(item.Start)
			event.SetAllDayEndAt(item.End)
		} else {
			event.SetStartAt(item.Start.UTC())
			event.SetEndAt(item.End.UTC())
		}
		if item.Location != "" {
			event.SetLocation(item.Location)
		}
		if item.Description != "" {
			event.SetDescription(item.Description)
		}
		if item.RecurrenceRule != "" {
			event.AddRrule(item.RecurrenceRule)
		}
		event.SetStatus(ics.ObjectStatusConfirmed)
	}
	return []byte(cal.Serialize()), nil
}
