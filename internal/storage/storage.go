package storage

import (
	"context"
	"time"
)

// EventKind identifies a sandbox lifecycle transition.
type EventKind string

const (
	EventCreated      EventKind = "created"
	EventCreateFailed EventKind = "create_failed"
	EventStopped      EventKind = "stopped"
	EventReaped       EventKind = "reaped"
)

// Event is one journal entry.
type Event struct {
	ID        int64     `json:"id" yaml:"id"`
	Kind      EventKind `json:"kind" yaml:"kind"`
	SandboxID string    `json:"container_id,omitempty" yaml:"container_id,omitempty"`
	ProjectID string    `json:"project_id" yaml:"project_id"`
	Version   string    `json:"dotnet_version,omitempty" yaml:"dotnet_version,omitempty"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	At        time.Time `json:"at" yaml:"at"`
}

// EventListOptions controls filtering and pagination for ListEvents.
type EventListOptions struct {
	ProjectID string
	Kind      EventKind
	Limit     int
	Offset    int
}

// Store is the persistence interface for the lifecycle journal.
type Store interface {
	// RecordEvent appends an event. At defaults to now when zero.
	RecordEvent(ctx context.Context, e *Event) error

	// ListEvents returns events newest first.
	ListEvents(ctx context.Context, opts EventListOptions) ([]Event, error)

	// Close releases resources.
	Close() error
}
