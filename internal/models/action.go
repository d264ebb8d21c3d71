package models

import (
	"errors"
	"time"
)

// ActionType enumerates ledger record kinds.
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionDelete ActionType = "delete"
	ActionModify ActionType = "modify"
)

// EventRef points at one provider event together with the snapshot taken when it was touched.
type EventRef struct {
	ProviderID ProviderID    `json:"providerId"`
	ExternalID string        `json:"externalId"`
	Snapshot   CalendarEvent `json:"snapshot"`
	// RequestID is the idempotency key the event was created under, if any.
	RequestID string `json:"requestId,omitempty"`
}

// DeletedEventRef records what a delete did so it can be reversed.
type DeletedEventRef struct {
	EventRef
	Scope           RecurrenceScope `json:"scope,omitempty"`
	SoftDeleted     bool            `json:"softDeleted"`
	TargetID        string          `json:"targetId,omitempty"`
	PriorRecurrence string          `json:"priorRecurrence,omitempty"`
	// Restored is set while an undo has put the event back.
	Restored bool `json:"restored,omitempty"`
}

// ModifiedEventRef stores before and after snapshots of a modify.
type ModifiedEventRef struct {
	ProviderID ProviderID      `json:"providerId"`
	ExternalID string          `json:"externalId"`
	Before     CalendarEvent   `json:"before"`
	After      CalendarEvent   `json:"after"`
	Scope      RecurrenceScope `json:"scope,omitempty"`
}

// ActionRecord is one reversible user action.
type ActionRecord struct {
	ID             string             `json:"id"`
	ActionType     ActionType         `json:"actionType"`
	Timestamp      time.Time          `json:"timestamp"`
	Description    string             `json:"description,omitempty"`
	CreatedEvents  []EventRef         `json:"createdEvents,omitempty"`
	DeletedEvents  []DeletedEventRef  `json:"deletedEvents,omitempty"`
	ModifiedEvents []ModifiedEventRef `json:"modifiedEvents,omitempty"`
}

// Validate ensures exactly the payload matching the action type is present.
func (r ActionRecord) Validate() error {
	if r.ID == "" {
		return errors.New("action record requires an id")
	}
	created, deleted, modified := len(r.CreatedEvents) > 0, len(r.DeletedEvents) > 0, len(r.ModifiedEvents) > 0
	switch r.ActionType {
	case ActionCreate:
		if !created || deleted || modified {
			return errors.New("create record must carry only created events")
		}
	case ActionDelete:
		if !deleted || created || modified {
			return errors.New("delete record must carry only deleted events")
		}
	case ActionModify:
		if !modified || created || deleted {
			return errors.New("modify record must carry only modified events")
		}
	default:
		return errors.New("unknown action type")
	}
	return nil
}

// LedgerState is the persisted form of the undo and redo stacks.
type LedgerState struct {
	UndoStack []ActionRecord `json:"undoStack"`
	RedoStack []ActionRecord `json:"redoStack"`
}
