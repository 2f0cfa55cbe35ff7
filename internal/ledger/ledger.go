// Package ledger tracks participants and contributions for active events.
//
// The scheduler opens a ledger entry when an event becomes active and
// closes it atomically when the event leaves the active state. Join and
// Contribute race freely against that close: they either succeed cleanly
// against an open entry or fail with ErrNotActive, never a silent drop
// and never a double count.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"worldevents/internal/event"
	logx "worldevents/pkg/logx"
)

var (
	ErrNotActive = errors.New("event is not active")
	ErrCapacity  = errors.New("event is at participant capacity")
	ErrNotJoined = errors.New("player has not joined the event")
)

// JoinResult reports the outcome of a successful Join.
type JoinResult struct {
	AlreadyJoined bool
	Participants  int
}

type entry struct {
	mu    sync.Mutex
	open  bool
	max   int
	order []event.Participant
	index map[string]int // playerID -> position in order
}

type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
	log     logx.Logger
}

func New(log logx.Logger) *Ledger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{entries: map[string]*entry{}, log: log}
}

// Open creates the live entry for an event entering the active state.
// seed restores participants for events resumed after a restart.
// Opening an already-open event is a no-op.
func (l *Ledger) Open(eventID string, maxParticipants int, seed []event.Participant) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[eventID]; ok {
		return
	}
	e := &entry{
		open:  true,
		max:   maxParticipants,
		order: event.CloneParticipants(seed),
		index: make(map[string]int, len(seed)),
	}
	for i, p := range e.order {
		e.index[p.PlayerID] = i
	}
	l.entries[eventID] = e
	l.log.Debug("ledger entry opened",
		logx.String("event_id", eventID),
		logx.Int("seed", len(seed)),
		logx.Int("max", maxParticipants))
}

// Close marks the entry closed, removes it, and returns the final
// participant snapshot. Closing an unknown event returns nil.
func (l *Ledger) Close(eventID string) []event.Participant {
	l.mu.Lock()
	e := l.entries[eventID]
	delete(l.entries, eventID)
	l.mu.Unlock()
	if e == nil {
		return nil
	}

	// Take the entry lock so an in-flight Join/Contribute finishes (or
	// observes closed) before we snapshot.
	e.mu.Lock()
	e.open = false
	snap := event.CloneParticipants(e.order)
	e.mu.Unlock()
	return snap
}

func (l *Ledger) lookup(eventID string) *entry {
	l.mu.RLock()
	e := l.entries[eventID]
	l.mu.RUnlock()
	return e
}

// Join adds a player to an active event.
//
// Joining twice with the same player is an idempotent success: the result
// reports AlreadyJoined and the participant list is unchanged.
func (l *Ledger) Join(eventID, playerID string, now time.Time) (JoinResult, error) {
	if playerID == "" {
		return JoinResult{}, errors.New("player id is required")
	}
	e := l.lookup(eventID)
	if e == nil {
		return JoinResult{}, ErrNotActive
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return JoinResult{}, ErrNotActive
	}
	if _, ok := e.index[playerID]; ok {
		return JoinResult{AlreadyJoined: true, Participants: len(e.order)}, nil
	}
	if e.max > 0 && len(e.order) >= e.max {
		return JoinResult{}, fmt.Errorf("%w (%d)", ErrCapacity, e.max)
	}
	e.index[playerID] = len(e.order)
	e.order = append(e.order, event.Participant{PlayerID: playerID, JoinedAt: now})
	return JoinResult{Participants: len(e.order)}, nil
}

// Contribute adds amount to an existing participant's counter.
// There is no implicit join and no upper bound; inputs are assumed to come
// from already-validated gameplay actions.
func (l *Ledger) Contribute(eventID, playerID string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("negative contribution %d", amount)
	}
	e := l.lookup(eventID)
	if e == nil {
		return ErrNotActive
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return ErrNotActive
	}
	i, ok := e.index[playerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotJoined, playerID)
	}
	e.order[i].Contribution += amount
	return nil
}

// Snapshot returns a copy of the current participant list for an open
// entry. ok is false if the event has no open entry.
func (l *Ledger) Snapshot(eventID string) (ps []event.Participant, ok bool) {
	e := l.lookup(eventID)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return nil, false
	}
	return event.CloneParticipants(e.order), true
}
