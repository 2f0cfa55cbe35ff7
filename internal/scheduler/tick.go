package scheduler

import (
	"context"
	"time"

	"worldevents/internal/event"
	"worldevents/internal/eventbus"
	"worldevents/internal/storage"
	logx "worldevents/pkg/logx"
)

// tickTimeout bounds the store work done by one tick.
const tickTimeout = 30 * time.Second

// Tick runs one scheduling pass at the given instant. It returns false
// when a previous tick is still in flight and this one was skipped.
//
// Per-definition errors are logged and isolated so one bad definition
// never aborts the rest of the pass.
func (s *Service) Tick(now time.Time) bool {
	if !s.gate.tryAcquire() {
		s.mu.Lock()
		s.ticksSkipped++
		s.mu.Unlock()
		s.log.Warn("tick still in flight, skipping", logx.Time("at", now))
		return false
	}
	defer s.gate.release()

	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticksRun++

	s.evaluateDefinitionsLocked(ctx, now)
	s.advanceLocked(ctx, now)
	return true
}

// evaluateDefinitionsLocked spawns events for recurring definitions whose
// rule matches the current minute and whose (type, scope) slot is free.
func (s *Service) evaluateDefinitionsLocked(ctx context.Context, now time.Time) {
	local := now
	if s.loc != nil {
		local = now.In(s.loc)
	}
	for _, def := range s.defs {
		if !def.Rule.Matches(local) {
			continue
		}
		if _, occupied := s.byKey[liveKey{def.Type, def.Scope}]; occupied {
			s.log.Debug("recurrence suppressed, slot occupied",
				logx.String("definition", def.Name))
			continue
		}
		_, err := s.scheduleLocked(ctx, now, ScheduleRequest{
			Type:       def.Type,
			Scope:      def.Scope,
			StartTime:  now,
			Duration:   def.Duration,
			Anchor:     def.Anchor,
			Recurrence: def.Rule.String(),
		})
		if err != nil {
			s.log.Error("recurring definition failed",
				logx.String("definition", def.Name),
				logx.Err(err))
		}
	}
}

// advanceLocked applies every due transition: scheduled events whose
// start has passed become active, then active events whose end has
// passed complete and settle. A promotion at time T pushes a completion
// entry, so an event whose whole window already elapsed passes through
// both states in one tick.
func (s *Service) advanceLocked(ctx context.Context, now time.Time) {
	for {
		tr, ok := s.popDueLocked(now)
		if !ok {
			return
		}
		ev, live := s.live[tr.id]
		if !live || !ev.State.CanTransition(tr.to) {
			// Stale entry: the event was cancelled or already moved on.
			continue
		}
		switch tr.to {
		case event.StateActive:
			s.promoteLocked(ctx, ev)
		case event.StateCompleted:
			s.completeLocked(ctx, ev)
		}
	}
}

func (s *Service) promoteLocked(ctx context.Context, ev event.ScheduledEvent) {
	ev.State = event.StateActive
	if err := s.persistStateLocked(ctx, ev.ID, event.StateActive, nil); err != nil {
		s.log.Error("failed to persist promotion", logx.String("event_id", ev.ID), logx.Err(err))
	}
	s.live[ev.ID] = ev

	maxP := 0
	if cfg, err := s.catalog.Lookup(ev.Type); err == nil {
		maxP = cfg.MaxParticipants
	}
	s.ledger.Open(ev.ID, maxP, ev.Participants)
	s.pushTransitionLocked(transition{at: ev.EndTime, id: ev.ID, to: event.StateCompleted})

	s.publishEvent(eventbus.TopicEventStarted, ev)
	s.log.Info("event started",
		logx.String("event_id", ev.ID),
		logx.String("type", string(ev.Type)),
		logx.String("scope", string(ev.Scope)),
		logx.Time("ends", ev.EndTime))
}

func (s *Service) completeLocked(ctx context.Context, ev event.ScheduledEvent) {
	// Closing the ledger first resolves the join-vs-demote race: from here
	// on a concurrent Join/Contribute gets ErrNotActive.
	parts := s.ledger.Close(ev.ID)

	ev.State = event.StateCompleted
	ev.Participants = parts
	if err := s.persistStateLocked(ctx, ev.ID, event.StateCompleted, parts); err != nil {
		s.log.Error("failed to persist completion", logx.String("event_id", ev.ID), logx.Err(err))
	}
	delete(s.live, ev.ID)
	delete(s.byKey, liveKey{ev.Type, ev.Scope})

	s.settleLocked(ev, parts)
	s.publishEvent(eventbus.TopicEventEnded, ev)
	s.log.Info("event ended",
		logx.String("event_id", ev.ID),
		logx.String("type", string(ev.Type)),
		logx.Int("participants", len(parts)))
}

func (s *Service) persistStateLocked(ctx context.Context, id string, st event.State, parts []event.Participant) error {
	u := storage.Update{State: &st}
	if parts != nil {
		u.Participants = parts
	}
	return s.store.UpdateEvent(ctx, id, u)
}
