package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"worldevents/internal/event"
	"worldevents/internal/eventbus"
	"worldevents/internal/ledger"
	"worldevents/internal/storage"
	logx "worldevents/pkg/logx"
)

// ScheduleEvent creates one event in the scheduled state. Defaults:
// scope "all", start now, duration from the catalog. Fails with
// catalog.ErrUnknownEventType for unregistered types and ErrDuplicate
// when the (type, scope) slot is occupied.
func (s *Service) ScheduleEvent(ctx context.Context, req ScheduleRequest) (event.ScheduledEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, err := s.scheduleLocked(ctx, s.now(), req)
	if err != nil {
		return event.ScheduledEvent{}, err
	}
	// Promotion happens on the next tick, like every other event.
	return ev.Clone(), nil
}

// Trigger is the operator entry point: schedule an event of the given
// type starting now. It bypasses recurrence matching but flows through
// the same creation path and state machine as automatic triggers.
func (s *Service) Trigger(ctx context.Context, typ event.Type, scope event.Scope, duration time.Duration, anchor *event.Anchor) (event.ScheduledEvent, error) {
	return s.ScheduleEvent(ctx, ScheduleRequest{
		Type:     typ,
		Scope:    scope,
		Duration: duration,
		Anchor:   anchor,
	})
}

func (s *Service) scheduleLocked(ctx context.Context, now time.Time, req ScheduleRequest) (event.ScheduledEvent, error) {
	cfg, err := s.catalog.Lookup(req.Type)
	if err != nil {
		return event.ScheduledEvent{}, err
	}

	scope := req.Scope
	if scope == "" {
		scope = event.ScopeAll
	}
	key := liveKey{req.Type, scope}
	if id, occupied := s.byKey[key]; occupied {
		return event.ScheduledEvent{}, fmt.Errorf("%w (type %q, scope %q, event %s)", ErrDuplicate, req.Type, scope, id)
	}

	dur := req.Duration
	if dur <= 0 {
		dur = cfg.DefaultDuration
	}
	if dur < cfg.MinDuration {
		s.log.Debug("duration clamped to minimum", logx.String("type", string(req.Type)), logx.Duration("requested", dur))
		dur = cfg.MinDuration
	}
	if dur > cfg.MaxDuration {
		s.log.Debug("duration clamped to maximum", logx.String("type", string(req.Type)), logx.Duration("requested", dur))
		dur = cfg.MaxDuration
	}

	start := req.StartTime
	if start.IsZero() {
		start = now
	}

	ev := event.ScheduledEvent{
		ID:          uuid.NewString(),
		Type:        req.Type,
		Scope:       scope,
		State:       event.StateScheduled,
		StartTime:   start,
		EndTime:     start.Add(dur),
		Duration:    dur,
		Anchor:      req.Anchor,
		Recurrence:  req.Recurrence,
		BaseRewards: cfg.BaseRewards.Clone(),
		Metadata:    req.Metadata,
		CreatedAt:   now,
	}

	if err := s.store.CreateEvent(ctx, ev); err != nil {
		return event.ScheduledEvent{}, fmt.Errorf("persist event: %w", err)
	}

	s.live[ev.ID] = ev
	s.byKey[key] = ev.ID
	s.pushTransitionLocked(transition{at: ev.StartTime, id: ev.ID, to: event.StateActive})

	s.publishEvent(eventbus.TopicEventScheduled, ev)
	s.log.Info("event scheduled",
		logx.String("event_id", ev.ID),
		logx.String("type", string(ev.Type)),
		logx.String("scope", string(ev.Scope)),
		logx.Time("starts", ev.StartTime),
		logx.Duration("duration", dur))
	return ev, nil
}

// CancelEvent transitions a scheduled or active event to cancelled with
// no settlement. Cancelling an already-terminal event returns false with
// no error (idempotent no-op); an unknown id returns storage.ErrNotFound.
func (s *Service) CancelEvent(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, live := s.live[id]
	if !live {
		stored, err := s.store.GetEvent(ctx, id)
		if err != nil {
			return false, err
		}
		if stored.State.Terminal() {
			return false, nil
		}
		// Live in the store but not in the index: not ours to cancel
		// (e.g. created by another instance); treat as terminal no-op.
		s.log.Warn("cancel requested for untracked live event", logx.String("event_id", id))
		return false, nil
	}

	// Discard the ledger (no settlement), but keep whatever participation
	// happened for history.
	parts := s.ledger.Close(id)
	ev.State = event.StateCancelled
	ev.Participants = parts
	if err := s.persistStateLocked(ctx, id, event.StateCancelled, parts); err != nil {
		s.log.Error("failed to persist cancellation", logx.String("event_id", id), logx.Err(err))
	}
	delete(s.live, id)
	delete(s.byKey, liveKey{ev.Type, ev.Scope})

	s.log.Info("event cancelled",
		logx.String("event_id", id),
		logx.String("type", string(ev.Type)))
	return true, nil
}

// Join adds a player to an active event and announces it. Errors:
// storage.ErrNotFound (unknown event), ledger.ErrNotActive,
// ledger.ErrCapacity. Re-joining is an idempotent success.
func (s *Service) Join(ctx context.Context, eventID, playerID string) (ledger.JoinResult, error) {
	res, err := s.ledger.Join(eventID, playerID, s.now())
	if err != nil {
		if errors.Is(err, ledger.ErrNotActive) {
			return ledger.JoinResult{}, s.classifyInactive(ctx, eventID)
		}
		return ledger.JoinResult{}, err
	}
	if res.AlreadyJoined {
		return res, nil
	}

	s.persistParticipants(ctx, eventID)
	s.bus.Publish(eventbus.Message{
		Topic: eventbus.TopicPlayerJoined,
		Data: eventbus.JoinPayload{
			EventID:      eventID,
			PlayerID:     playerID,
			Participants: res.Participants,
		},
	})
	return res, nil
}

// Contribute adds amount to an existing participant's counter. Errors:
// storage.ErrNotFound, ledger.ErrNotActive, ledger.ErrNotJoined.
func (s *Service) Contribute(ctx context.Context, eventID, playerID string, amount int64) error {
	if err := s.ledger.Contribute(eventID, playerID, amount); err != nil {
		if errors.Is(err, ledger.ErrNotActive) {
			return s.classifyInactive(ctx, eventID)
		}
		return err
	}
	return nil
}

// classifyInactive distinguishes "no such event" from "event exists but
// is not active" after the ledger reported ErrNotActive.
func (s *Service) classifyInactive(ctx context.Context, eventID string) error {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		// Store trouble: surface the ledger's verdict rather than the
		// lookup failure.
		s.log.Warn("event lookup failed while classifying join error", logx.String("event_id", eventID), logx.Err(err))
	}
	return ledger.ErrNotActive
}

// persistParticipants writes the current ledger snapshot to the store,
// best-effort. The ledger stays authoritative while the event is active.
func (s *Service) persistParticipants(ctx context.Context, eventID string) {
	snap, ok := s.ledger.Snapshot(eventID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under the driver lock: if the event left the live index
	// after the snapshot was taken, the closing transition has already
	// written the final participant list and this snapshot is stale.
	if _, live := s.live[eventID]; !live {
		return
	}
	if err := s.store.UpdateEvent(ctx, eventID, storage.Update{Participants: snap}); err != nil {
		s.log.Warn("failed to persist participants", logx.String("event_id", eventID), logx.Err(err))
	}
}

// ActiveEvents returns currently active events, optionally filtered by
// scope.
func (s *Service) ActiveEvents(ctx context.Context, scope event.Scope) ([]event.ScheduledEvent, error) {
	return s.store.ListEvents(ctx, storage.Filter{
		States: []event.State{event.StateActive},
		Scope:  scope,
	})
}

// UpcomingEvents returns scheduled events ordered by start time.
func (s *Service) UpcomingEvents(ctx context.Context) ([]event.ScheduledEvent, error) {
	return s.store.ListEvents(ctx, storage.Filter{
		States: []event.State{event.StateScheduled},
	})
}

// History returns terminal events, most recently ended first. limit <= 0
// uses the configured default.
func (s *Service) History(ctx context.Context, limit int) ([]event.ScheduledEvent, error) {
	if limit <= 0 {
		s.mu.Lock()
		limit = s.cfg.HistoryLimit
		s.mu.Unlock()
	}
	evs, err := s.store.ListEvents(ctx, storage.Filter{
		States: []event.State{event.StateCompleted, event.StateCancelled},
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(evs, func(i, j int) bool { return evs[i].EndTime.After(evs[j].EndTime) })
	if len(evs) > limit {
		evs = evs[:limit]
	}
	return evs, nil
}

// GetEvent returns one event by id.
func (s *Service) GetEvent(ctx context.Context, id string) (event.ScheduledEvent, error) {
	return s.store.GetEvent(ctx, id)
}
