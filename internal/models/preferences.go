package models

// Preferences holds per-installation defaults applied to new commands.
type Preferences struct {
	Providers              []ProviderID `json:"providers"`
	Timezone               string       `json:"timezone"`
	DefaultDurationMinutes int          `json:"defaultDurationMinutes"`
	ReminderMinutes        int          `json:"reminderMinutes"`
}
