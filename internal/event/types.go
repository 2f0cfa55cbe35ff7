// Package event defines the core domain types for world events.
//
// Everything here is plain data. Mutation rules (state transitions,
// participant bookkeeping) are enforced by the scheduler and ledger
// packages, not by these types.
package event

import "time"

// Type identifies an event type registered in the catalog
// (e.g. "meteor_shower", "aurora_borealis").
type Type string

// Scope identifies where an event takes place: a realm identifier,
// or ScopeAll for world-wide events.
type Scope string

// ScopeAll marks an event visible in every realm. It is an ordinary
// scope value for uniqueness purposes: an "all" event only collides
// with another "all" event of the same type, never with a realm-scoped one.
const ScopeAll Scope = "all"

// State is the lifecycle phase of a scheduled event.
type State string

const (
	StateScheduled State = "scheduled"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// Live reports whether the event still occupies its (type, scope) slot.
func (s State) Live() bool {
	return s == StateScheduled || s == StateActive
}

// CanTransition reports whether s -> to is a legal transition.
//
// Legal transitions: scheduled->active, active->completed,
// scheduled->cancelled, active->cancelled. Terminal states admit none.
func (s State) CanTransition(to State) bool {
	switch s {
	case StateScheduled:
		return to == StateActive || to == StateCancelled
	case StateActive:
		return to == StateCompleted || to == StateCancelled
	default:
		return false
	}
}

// Rewards maps a currency name ("xp", "stardust", ...) to an amount.
type Rewards map[string]int64

// Clone returns an independent copy. Rewards are snapshotted onto events
// at creation time so later catalog edits never change in-flight events.
func (r Rewards) Clone() Rewards {
	if r == nil {
		return nil
	}
	cp := make(Rewards, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// Anchor pins an event to a world position with an effect radius.
type Anchor struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
	Radius float64 `json:"radius"`
}

// Participant is one player's membership in an event.
//
// Contribution is monotonically non-decreasing; it only ever grows
// through ledger.Contribute.
type Participant struct {
	PlayerID     string    `json:"player_id"`
	JoinedAt     time.Time `json:"joined_at"`
	Contribution int64     `json:"contribution"`
}

// ScheduledEvent is one time-boxed occurrence of an event type.
type ScheduledEvent struct {
	ID        string
	Type      Type
	Scope     Scope
	State     State
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Anchor is optional; nil means the event has no spatial extent.
	Anchor *Anchor

	// Recurrence holds the rule string this event was spawned from,
	// empty for one-shot / manually triggered events.
	Recurrence string

	// BaseRewards is the per-currency reward snapshot taken from the
	// catalog when the event was created.
	BaseRewards Rewards

	// Participants is ordered by join time and unique by PlayerID.
	// It is only authoritative once the event is terminal; while the
	// event is active the ledger holds the live set.
	Participants []Participant

	Metadata  map[string]string
	CreatedAt time.Time
}

// CloneParticipants returns an independent copy of the participant list.
func CloneParticipants(ps []Participant) []Participant {
	if ps == nil {
		return nil
	}
	cp := make([]Participant, len(ps))
	copy(cp, ps)
	return cp
}

// Clone returns a deep copy safe to hand out across goroutines.
func (e ScheduledEvent) Clone() ScheduledEvent {
	cp := e
	cp.BaseRewards = e.BaseRewards.Clone()
	cp.Participants = CloneParticipants(e.Participants)
	if e.Anchor != nil {
		a := *e.Anchor
		cp.Anchor = &a
	}
	if e.Metadata != nil {
		m := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		cp.Metadata = m
	}
	return cp
}
