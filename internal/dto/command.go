package dto

import (
	"time"

	"github.com/noah-isme/chronos/internal/models"
)

// ClassifyRequest carries free text to turn into an intent.
type ClassifyRequest struct {
	Text     string `json:"text" validate:"required,max=2000"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

// ClassifyResponse wraps the parsed intent with the confirmation the caller must collect next.
type ClassifyResponse struct {
	Intent    models.ParsedIntent `json:"intent"`
	NextInput string              `json:"nextInput"`
}

// TargetRequest names one event picked from a needs_selection result.
type TargetRequest struct {
	ProviderID models.ProviderID `json:"providerId" validate:"required,oneof=google outlook"`
	ID         string            `json:"id" validate:"required"`
}

// ExecuteRequest submits a resolved intent for execution.
type ExecuteRequest struct {
	Intent    models.ParsedIntent    `json:"intent"`
	Providers []models.ProviderID    `json:"providers" validate:"omitempty,dive,oneof=google outlook"`
	Target    *TargetRequest         `json:"target"`
	Scope     models.RecurrenceScope `json:"scope" validate:"omitempty,oneof=this following all"`
	Timezone  string                 `json:"timezone" validate:"omitempty,timezone"`
}

// TimeConfirmationRequest answers a needs-time prompt.
type TimeConfirmationRequest struct {
	Draft models.EventDraft `json:"draft"`
	Time  string            `json:"time" validate:"required"`
}

// DurationConfirmationRequest answers a needs-duration prompt.
type DurationConfirmationRequest struct {
	Draft    models.EventDraft `json:"draft"`
	Duration string            `json:"duration" validate:"required"`
}

// DraftResponse returns an updated draft and its next confirmation state.
type DraftResponse struct {
	Draft     models.EventDraft `json:"draft"`
	NextInput string            `json:"nextInput"`
}

// TranscriptionResponse is the recognized text of an uploaded recording.
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}
