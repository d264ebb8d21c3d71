package models

import (
	"strings"
	"time"
)

// ProviderID identifies a remote calendar backend.
type ProviderID string

const (
	ProviderGoogle  ProviderID = "google"
	ProviderOutlook ProviderID = "outlook"
)

// Valid reports whether the provider is one the service knows how to talk to.
func (p ProviderID) Valid() bool {
	return p == ProviderGoogle || p == ProviderOutlook
}

// ParseProviderID normalises user input such as "Google" or "microsoft".
func ParseProviderID(raw string) (ProviderID, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "google", "gcal":
		return ProviderGoogle, true
	case "outlook", "microsoft", "graph":
		return ProviderOutlook, true
	}
	return "", false
}

// RecurrenceScope selects which occurrences of a recurring series an operation touches.
type RecurrenceScope string

const (
	ScopeThis      RecurrenceScope = "this"
	ScopeFollowing RecurrenceScope = "following"
	ScopeAll       RecurrenceScope = "all"
)

// Valid reports whether the scope is one of this, following or all.
func (s RecurrenceScope) Valid() bool {
	return s == ScopeThis || s == ScopeFollowing || s == ScopeAll
}

// EventDraft is an event proposal awaiting confirmation or submission.
type EventDraft struct {
	Title                     string    `json:"title" validate:"required"`
	Start                     time.Time `json:"start"`
	End                       time.Time `json:"end"`
	Timezone                  string    `json:"timezone"`
	Description               string    `json:"description,omitempty"`
	Location                  string    `json:"location,omitempty"`
	RecurrenceRule            string    `json:"recurrenceRule,omitempty"`
	ReminderLeadMinutes       int       `json:"reminderLeadMinutes" validate:"gte=0"`
	NeedsTimeConfirmation     bool      `json:"needsTimeConfirmation"`
	NeedsDurationConfirmation bool      `json:"needsDurationConfirmation"`
	SuggestedDurationMinutes  int       `json:"suggestedDurationMinutes,omitempty"`
	OriginalInputText         string    `json:"originalInputText,omitempty"`
}

// Duration returns the span between start and end.
func (d EventDraft) Duration() time.Duration {
	return d.End.Sub(d.Start)
}

// Zone resolves the draft's IANA timezone, falling back to UTC.
func (d EventDraft) Zone() *time.Location {
	if d.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Confirmed reports whether both the time and the duration have been settled.
func (d EventDraft) Confirmed() bool {
	return !d.NeedsTimeConfirmation && !d.NeedsDurationConfirmation
}

// CalendarEvent is a provider-side event as returned from a listing.
type CalendarEvent struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	AllDay         bool       `json:"allDay,omitempty"`
	Timezone       string     `json:"timezone,omitempty"`
	Description    string     `json:"description,omitempty"`
	Location       string     `json:"location,omitempty"`
	RecurrenceRule string     `json:"recurrenceRule,omitempty"`
	SeriesID       string     `json:"seriesId,omitempty"`
	OriginalStart  *time.Time `json:"originalStart,omitempty"`
	Status         string     `json:"status,omitempty"`
	ProviderID     ProviderID `json:"providerId"`
}

// IsRecurring reports whether the event is a series master or an instance of one.
func (e CalendarEvent) IsRecurring() bool {
	return e.RecurrenceRule != "" || e.SeriesID != ""
}

// Draft converts a snapshot back into a draft suitable for recreation.
func (e CalendarEvent) Draft(reminderMinutes int) EventDraft {
	return EventDraft{
		Title:               e.Title,
		Start:               e.Start,
		End:                 e.End,
		Timezone:            e.Timezone,
		Description:         e.Description,
		Location:            e.Location,
		RecurrenceRule:      e.RecurrenceRule,
		ReminderLeadMinutes: reminderMinutes,
	}
}

// FieldChanges carries the resolved edits for a modify operation. Nil fields are left untouched.
type FieldChanges struct {
	Title       *string    `json:"title,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
	Description *string    `json:"description,omitempty"`
	Location    *string    `json:"location,omitempty"`
	// Anchor is the start of the occurrence the user targeted. Series-wide time edits are applied
	// as the delta between Anchor and Start.
	Anchor *time.Time `json:"anchor,omitempty"`
}

// IsEmpty reports whether no field would change.
func (c FieldChanges) IsEmpty() bool {
	return c.Title == nil && c.Start == nil && c.End == nil && c.Description == nil && c.Location == nil
}

// ChangesFromSnapshot builds the edits that bring an event back to snapshot, anchored at current.
func ChangesFromSnapshot(snapshot, current CalendarEvent) FieldChanges {
	title := snapshot.Title
	description := snapshot.Description
	location := snapshot.Location
	start := snapshot.Start
	end := snapshot.End
	anchor := current.Start
	return FieldChanges{
		Title:       &title,
		Start:       &start,
		End:         &end,
		Description: &description,
		Location:    &location,
		Anchor:      &anchor,
	}
}

// Apply returns a copy of the event with the changes applied.
func (c FieldChanges) Apply(event CalendarEvent) CalendarEvent {
	out := event
	if c.Title != nil {
		out.Title = *c.Title
	}
	if c.Description != nil {
		out.Description = *c.Description
	}
	if c.Location != nil {
		out.Location = *c.Location
	}
	if c.Start != nil {
		out.Start = *c.Start
	}
	if c.End != nil {
		out.End = *c.End
	}
	return out
}

// DeleteOutcome reports how a provider carried out a delete.
type DeleteOutcome struct {
	SoftDeleted     bool   `json:"softDeleted"`
	TargetID        string `json:"targetId"`
	PriorRecurrence string `json:"priorRecurrence,omitempty"`
}
