package dto

import "time"

// UpdatePreferencesRequest replaces the stored preferences. Zero values fall back to the configured defaults.
type UpdatePreferencesRequest struct {
	Providers              []string `json:"providers" validate:"omitempty,dive,oneof=google outlook"`
	Timezone               string   `json:"timezone" validate:"omitempty,timezone"`
	DefaultDurationMinutes int      `json:"defaultDurationMinutes" validate:"omitempty,min=1,max=1440"`
	ReminderMinutes        int      `json:"reminderMinutes" validate:"omitempty,min=0,max=40320"`
}

// StoreTokenRequest hands over credentials acquired by an external OAuth flow.
type StoreTokenRequest struct {
	AccessToken  string    `json:"accessToken" validate:"required_without=RefreshToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	Expiry       time.Time `json:"expiry"`
}

// CreateExportRequest asks for an agenda file over [from, to).
type CreateExportRequest struct {
	Format    string    `json:"format" validate:"required,oneof=csv pdf ics"`
	From      time.Time `json:"from" validate:"required"`
	To        time.Time `json:"to" validate:"required,gtfield=From"`
	Providers []string  `json:"providers" validate:"omitempty,dive,oneof=google outlook"`
}
