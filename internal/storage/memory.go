package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"worldevents/internal/event"
)

// memoryStore keeps events in a map. Reads and writes copy, so callers can
// never mutate stored state behind the store's back.
type memoryStore struct {
	mu     sync.RWMutex
	events map[string]event.ScheduledEvent
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{events: map[string]event.ScheduledEvent{}}
}

func (m *memoryStore) CreateEvent(_ context.Context, ev event.ScheduledEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, ev.ID)
	}
	m.events[ev.ID] = ev.Clone()
	return nil
}

func (m *memoryStore) GetEvent(_ context.Context, id string) (event.ScheduledEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return event.ScheduledEvent{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ev.Clone(), nil
}

func (m *memoryStore) UpdateEvent(_ context.Context, id string, u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if u.State != nil {
		ev.State = *u.State
	}
	if u.Participants != nil {
		ev.Participants = event.CloneParticipants(u.Participants)
	}
	if u.Metadata != nil {
		md := make(map[string]string, len(u.Metadata))
		for k, v := range u.Metadata {
			md[k] = v
		}
		ev.Metadata = md
	}
	m.events[id] = ev
	return nil
}

func (m *memoryStore) ListEvents(_ context.Context, f Filter) ([]event.ScheduledEvent, error) {
	m.mu.RLock()
	out := make([]event.ScheduledEvent, 0, len(m.events))
	for _, ev := range m.events {
		if matches(ev, f) {
			out = append(out, ev.Clone())
		}
	}
	m.mu.RUnlock()

	// Stable order: by start time, then id.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

func matches(ev event.ScheduledEvent, f Filter) bool {
	if len(f.States) > 0 {
		ok := false
		for _, s := range f.States {
			if ev.State == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Type != "" && ev.Type != f.Type {
		return false
	}
	if f.Scope != "" && ev.Scope != f.Scope {
		return false
	}
	if !f.EndedAfter.IsZero() && !ev.EndTime.After(f.EndedAfter) {
		return false
	}
	return true
}
