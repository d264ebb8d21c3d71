package export

import (
	"fmt"
	"sort"
	"time"
)

// Format identifies an agenda rendering.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
	FormatICS Format = "ics"
)

// Item is one agenda line.
type Item struct {
	UID            string
	Title          string
	Start          time.Time
	End            time.Time
	AllDay         bool
	Location       string
	Description    string
	Provider       string
	RecurrenceRule string
}

// Agenda is the renderer input: a titled list of items shown in one timezone.
type Agenda struct {
	Title    string
	Location *time.Location
	From     time.Time
	To       time.Time
	Items    []Item
}

// Sorted returns the items ordered by start, then title.
func (a Agenda) Sorted() []Item {
	items := make([]Item, len(a.Items))
	copy(items, a.Items)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Start.Equal(items[j].Start) {
			return items[i].Title < items[j].Title
		}
		return items[i].Start.Before(items[j].Start)
	})
	return items
}

func (a Agenda) zone() *time.Location {
	if a.Location == nil {
		return time.UTC
	}
	return a.Location
}

// Renderer turns an agenda into file bytes.
type Renderer interface {
	Render(agenda Agenda) ([]byte, error)
	ContentType() string
	Extension() string
}

// RendererFor returns the renderer for format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case FormatCSV:
		return NewCSVRenderer(), nil
	case FormatPDF:
		return NewPDFRenderer(), nil
	case FormatICS:
		return NewICSRenderer("-//chronos//agenda export//EN"), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
