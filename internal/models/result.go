package models

// AggregateStatus summarises a fan-out across providers.
type AggregateStatus string

const (
	StatusSuccess        AggregateStatus = "success"
	StatusPartial        AggregateStatus = "partial"
	StatusFailure        AggregateStatus = "failure"
	StatusDuplicate      AggregateStatus = "duplicate"
	StatusNeedsSelection AggregateStatus = "needs_selection"
	StatusNeedsScope     AggregateStatus = "needs_scope"
)

// ProviderOutcome is the per-provider slice of an aggregate result.
type ProviderOutcome struct {
	ProviderID ProviderID `json:"providerId"`
	OK         bool       `json:"ok"`
	ExternalID string     `json:"externalId,omitempty"`
	Code       string     `json:"code,omitempty"`
	Message    string     `json:"message,omitempty"`
	Duplicate  bool       `json:"duplicate,omitempty"`
}

// AggregateResult is returned for every executed intent.
type AggregateResult struct {
	Status         AggregateStatus   `json:"status"`
	Intent         IntentType        `json:"intent"`
	RequestID      string            `json:"requestId,omitempty"`
	Outcomes       []ProviderOutcome `json:"outcomes,omitempty"`
	RetryProviders []ProviderID      `json:"retryProviders,omitempty"`
	Candidates     []CalendarEvent   `json:"candidates,omitempty"`
	Events         []CalendarEvent   `json:"events,omitempty"`
	ActionID       string            `json:"actionId,omitempty"`
	Message        string            `json:"message,omitempty"`
	Results        []AggregateResult `json:"results,omitempty"`
}

// StatusFromOutcomes derives the aggregate status: success only if every provider succeeded.
func StatusFromOutcomes(outcomes []ProviderOutcome) AggregateStatus {
	if len(outcomes) == 0 {
		return StatusFailure
	}
	ok, dup := 0, 0
	for _, o := range outcomes {
		if o.OK {
			ok++
			if o.Duplicate {
				dup++
			}
		}
	}
	switch {
	case dup == len(outcomes):
		return StatusDuplicate
	case ok == len(outcomes):
		return StatusSuccess
	case ok == 0:
		return StatusFailure
	default:
		return StatusPartial
	}
}
