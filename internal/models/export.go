package models

import "time"

// ExportFormat enumerates agenda export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
	ExportFormatICS ExportFormat = "ics"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued   ExportStatus = "queued"
	ExportStatusRunning  ExportStatus = "running"
	ExportStatusFinished ExportStatus = "finished"
	ExportStatusFailed   ExportStatus = "failed"
)

// ExportJob tracks one agenda export.
type ExportJob struct {
	ID           string       `json:"id"`
	Format       ExportFormat `json:"format"`
	Status       ExportStatus `json:"status"`
	Providers    []ProviderID `json:"providers"`
	RangeStart   time.Time    `json:"rangeStart"`
	RangeEnd     time.Time    `json:"rangeEnd"`
	EventCount   int          `json:"eventCount"`
	FileName     string       `json:"fileName,omitempty"`
	DownloadURL  string       `json:"downloadUrl,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	FinishedAt   *time.Time   `json:"finishedAt,omitempty"`
}
