package models

import (
	"errors"
	"fmt"
	"time"
)

// IntentType tags the variant carried by a ParsedIntent.
type IntentType string

const (
	IntentCreate           IntentType = "create"
	IntentCreateMultiple   IntentType = "create_multiple"
	IntentDelete           IntentType = "delete"
	IntentModify           IntentType = "modify"
	IntentView             IntentType = "view"
	IntentMultipleCommands IntentType = "multiple_commands"
)

// Intent sources.
const (
	IntentSourceInference = "inference"
	IntentSourceFallback  = "fallback"
)

// ParsedIntent is the classifier output. Exactly the fields of the tagged variant are populated.
type ParsedIntent struct {
	Type        IntentType        `json:"intent"`
	Confidence  float64           `json:"confidence"`
	Draft       *EventDraft       `json:"draft,omitempty"`
	Drafts      []EventDraft      `json:"drafts,omitempty"`
	SearchQuery string            `json:"searchQuery,omitempty"`
	Changes     map[string]string `json:"changes,omitempty"`
	Timeframe   string            `json:"timeframe,omitempty"`
	RangeStart  *time.Time        `json:"rangeStart,omitempty"`
	RangeEnd    *time.Time        `json:"rangeEnd,omitempty"`
	Commands    []ParsedIntent    `json:"commands,omitempty"`
	Source      string            `json:"source,omitempty"`
}

// Validate checks the variant invariants.
func (p ParsedIntent) Validate() error {
	return p.validate(false)
}

func (p ParsedIntent) validate(nested bool) error {
	switch p.Type {
	case IntentCreate:
		if p.Draft == nil {
			return errors.New("create intent requires a draft")
		}
		if p.Draft.Title == "" {
			return errors.New("create intent requires a title")
		}
	case IntentCreateMultiple:
		if len(p.Drafts) == 0 {
			return errors.New("create_multiple intent requires at least one draft")
		}
		for i, d := range p.Drafts {
			if d.Title == "" {
				return fmt.Errorf("draft %d has no title", i)
			}
		}
	case IntentDelete:
		if p.SearchQuery == "" {
			return errors.New("delete intent requires a search query")
		}
	case IntentModify:
		if p.SearchQuery == "" {
			return errors.New("modify intent requires a search query")
		}
		if len(p.Changes) == 0 {
			return errors.New("modify intent requires changes")
		}
	case IntentView:
		if p.RangeStart != nil && p.RangeEnd != nil && !p.RangeEnd.After(*p.RangeStart) {
			return errors.New("view range end must be after start")
		}
	case IntentMultipleCommands:
		if nested {
			return errors.New("multiple_commands cannot be nested")
		}
		if len(p.Commands) == 0 {
			return errors.New("multiple_commands requires commands")
		}
		for i, cmd := range p.Commands {
			if err := cmd.validate(true); err != nil {
				return fmt.Errorf("command %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown intent %q", p.Type)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %.2f out of range", p.Confidence)
	}
	return nil
}

// AllDrafts returns the drafts carried by create and create_multiple intents.
func (p ParsedIntent) AllDrafts() []EventDraft {
	switch p.Type {
	case IntentCreate:
		if p.Draft != nil {
			return []EventDraft{*p.Draft}
		}
	case IntentCreateMultiple:
		return p.Drafts
	}
	return nil
}
