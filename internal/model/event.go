package model

import "time"

// EventType classifies a pipeline progress event.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeOutput   EventType = "output"
	EventTypeError    EventType = "error"
	EventTypeComplete EventType = "complete"
)

// Event is one progress event emitted during a pipeline run. Events are
// delivered in the exact order state transitions occur.
type Event struct {
	Type      EventType      `json:"type"`
	Stage     StageID        `json:"stage,omitempty"`
	Status    StageStatus    `json:"status,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventSink receives pipeline events for the lifetime of one run. There is
// exactly one sink per run; delivery is not guaranteed if the sink's consumer
// goes away, and the run proceeds regardless.
type EventSink func(Event)
