package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"
)

var csvHeaders = []string{"date", "start", "end", "title", "location", "provider", "recurrence", "description"}

// CSVRenderer writes one row per agenda item.
type CSVRenderer struct{}

// NewCSVRenderer builds a CSV renderer.
func NewCSVRenderer() *CSVRenderer {
	return &CSVRenderer{}
}

func (r *CSVRenderer) ContentType() string { return "text/csv" }
func (r *CSVRenderer) Extension() string   { return "csv" }

// Render produces CSV encoded bytes with times shown in the agenda timezone.
func (r *CSVRenderer) Render(agenda Agenda) ([]byte, error) {
	loc := agenda.zone()
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, item := range agenda.Sorted() {
		start, end := item.Start.In(loc), item.End.In(loc)
		startText, endText := start.Format("15:04"), end.Format("15:04")
		if item.AllDay {
			startText, endText = "all day", ""
		}
		record := []string{
			start.Format(time.DateOnly),
			startText,
			endText,
			item.Title,
			item.Location,
			item.Provider,
			item.RecurrenceRule,
			item.Description,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
