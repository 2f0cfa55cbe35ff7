package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"worldevents/internal/event"
	logx "worldevents/pkg/logx"
)

type captureSink struct {
	mu     sync.Mutex
	grants map[string]event.Rewards
}

func newCaptureSink() *captureSink {
	return &captureSink{grants: map[string]event.Rewards{}}
}

func (c *captureSink) GrantReward(_ context.Context, playerID string, amounts event.Rewards) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants[playerID] = amounts.Clone()
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.grants)
}

func TestDispatcherDeliversGrants(t *testing.T) {
	t.Parallel()
	sink := newCaptureSink()
	d := NewDispatcher(Config{Workers: 2, QueueSize: 16, RatePerSec: 1000}, sink, logx.Nop())

	ctx := context.Background()
	d.Start(ctx)
	defer d.Stop(ctx)

	d.Enqueue(
		Grant{EventID: "ev1", PlayerID: "alice", Amounts: event.Rewards{"xp": 71}},
		Grant{EventID: "ev1", PlayerID: "bob", Amounts: event.Rewards{"xp": 93}},
	)

	deadline := time.Now().Add(3 * time.Second)
	for sink.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("grants delivered = %d, want 2", sink.count())
		}
		time.Sleep(10 * time.Millisecond)
	}

	stats := d.Stats()
	if stats.Dispatched != 2 || stats.Failed != 0 || stats.Dropped != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.grants["alice"]["xp"] != 71 {
		t.Fatalf("alice grant = %v", sink.grants["alice"])
	}
}

func TestEnqueueBeforeStartDrops(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(Config{}, newCaptureSink(), logx.Nop())
	d.Enqueue(Grant{EventID: "ev1", PlayerID: "alice"})
	if stats := d.Stats(); stats.Dropped != 1 {
		t.Fatalf("dropped = %d, want 1", stats.Dropped)
	}
}
