// Package eventbus is the outbound notification sink for world-event
// lifecycle topics. Connected game clients (or a broker bridge) subscribe;
// the scheduler publishes and never waits on consumers.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topic names the notification channels emitted by the scheduler.
type Topic string

const (
	TopicEventScheduled Topic = "event_scheduled"
	TopicEventStarted   Topic = "event_started"
	TopicEventEnded     Topic = "event_ended"
	TopicPlayerJoined   Topic = "player_joined_event"
)

// Message is one notification.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop messages (bounded backpressure).
//
// Data should be small and JSON-serializable (see the *Payload types).
type Message struct {
	Topic Topic
	Time  time.Time
	Data  any
}

// EventPayload describes an event for the scheduled/started/ended topics.
type EventPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Scope     string    `json:"scope"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// JoinPayload describes a player joining an active event.
type JoinPayload struct {
	EventID      string `json:"event_id"`
	PlayerID     string `json:"player_id"`
	Participants int    `json:"participants"`
}

type Bus interface {
	Publish(m Message)
	Subscribe(buffer int) (ch <-chan Message, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Message{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Message
	seq  atomic.Uint64
}

func (b *memBus) Publish(m Message) {
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Message, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If subscriber is slow, we drop.
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- m:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Message, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
