package dto

import (
	"time"

	"github.com/noah-isme/chronos/internal/models"
)

// ListEventsQuery filters GET /events.
type ListEventsQuery struct {
	From      time.Time           `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To        time.Time           `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Providers []models.ProviderID `form:"provider" validate:"omitempty,dive,oneof=google outlook"`
}

// SearchEventsRequest finds events by title, description or location.
type SearchEventsRequest struct {
	Query     string              `json:"query" validate:"required,max=200"`
	Providers []models.ProviderID `json:"providers" validate:"omitempty,dive,oneof=google outlook"`
	Timezone  string              `json:"timezone" validate:"omitempty,timezone"`
}

// DeleteEventQuery carries the recurrence scope of a direct delete.
type DeleteEventQuery struct {
	Scope models.RecurrenceScope `form:"scope" validate:"omitempty,oneof=this following all"`
}

// ModifyEventRequest patches one event with raw field changes.
type ModifyEventRequest struct {
	Changes  map[string]string      `json:"changes" validate:"required,min=1"`
	Scope    models.RecurrenceScope `json:"scope" validate:"omitempty,oneof=this following all"`
	Timezone string                 `json:"timezone" validate:"omitempty,timezone"`
}
