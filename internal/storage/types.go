package storage

import (
	"context"
	"errors"
	"time"

	"worldevents/internal/event"
)

var (
	ErrNotFound = errors.New("event not found")
	ErrExists   = errors.New("event already exists")
)

// Config configures storage.
//
// Driver values:
//   - "memory" (or empty): in-process store, lost on restart
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Filter narrows ListEvents. Zero fields are ignored.
type Filter struct {
	States []event.State
	Type   event.Type
	Scope  event.Scope

	// EndedAfter keeps events whose EndTime is after the given instant.
	EndedAfter time.Time

	// Limit bounds the result size; 0 means no limit.
	Limit int
}

// Update is a partial, single-event atomic update. Nil fields are unchanged.
type Update struct {
	State        *event.State
	Participants []event.Participant // nil = unchanged; empty slice = clear
	Metadata     map[string]string
}

// Store is the persistence API used by the scheduler.
type Store interface {
	CreateEvent(ctx context.Context, ev event.ScheduledEvent) error
	GetEvent(ctx context.Context, id string) (event.ScheduledEvent, error)
	UpdateEvent(ctx context.Context, id string, u Update) error
	ListEvents(ctx context.Context, f Filter) ([]event.ScheduledEvent, error)
	Close() error
}
