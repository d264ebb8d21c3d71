package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFRenderer lays the agenda out as a day-grouped table.
type PDFRenderer struct{}

// NewPDFRenderer constructs a PDF renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) ContentType() string { return "application/pdf" }
func (r *PDFRenderer) Extension() string   { return "pdf" }

// Render creates an A4 document with one heading per day.
func (r *PDFRenderer) Render(agenda Agenda) ([]byte, error) {
	loc := agenda.zone()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	title := agenda.Title
	if title == "" {
		title = "Agenda"
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
	if !agenda.From.IsZero() && !agenda.To.IsZero() {
		pdf.SetFont("Arial", "", 9)
		span := fmt.Sprintf("%s to %s (%s)", agenda.From.In(loc).Format("Mon 2 Jan 2006"), agenda.To.In(loc).Format("Mon 2 Jan 2006"), loc.String())
		pdf.CellFormat(0, 6, span, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	items := agenda.Sorted()
	if len(items) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.CellFormat(0, 8, "No events in this range.", "", 1, "L", false, 0, "")
	}

	widths := []float64{30, 95, 40, 25}
	currentDay := ""
	for _, item := range items {
		start := item.Start.In(loc)
		day := start.Format("Monday 2 January 2006")
		if day != currentDay {
			currentDay = day
			pdf.Ln(2)
			pdf.SetFont("Arial", "B", 11)
			pdf.CellFormat(0, 8, day, "B", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 9)
		}
		when := start.Format("15:04") + "-" + item.End.In(loc).Format("15:04")
		if item.AllDay {
			when = "all day"
		}
		cells := []string{when, item.Title, item.Location, item.Provider}
		for i, value := range cells {
			pdf.CellFormat(widths[i], 7, value, "", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
