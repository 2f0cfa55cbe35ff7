package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Message{Topic: TopicEventStarted, Data: EventPayload{ID: "ev1"}})

	for i, ch := range []<-chan Message{ch1, ch2} {
		select {
		case m := <-ch:
			if m.Topic != TopicEventStarted {
				t.Fatalf("sub %d topic = %s", i, m.Topic)
			}
			if m.Time.IsZero() {
				t.Fatalf("sub %d: publish did not stamp time", i)
			}
		default:
			t.Fatalf("sub %d received nothing", i)
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Message{Topic: TopicEventScheduled})
	b.Publish(Message{Topic: TopicEventEnded}) // buffer full, dropped

	if got := len(ch); got != 1 {
		t.Fatalf("buffered = %d, want 1", got)
	}
	m := <-ch
	if m.Topic != TopicEventScheduled {
		t.Fatalf("kept message = %s, want first", m.Topic)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4)
	unsub()
	unsub() // idempotent

	// Publish after close must not panic.
	b.Publish(Message{Topic: TopicPlayerJoined, Time: time.Now()})

	if _, ok := <-ch; ok {
		t.Fatal("received on closed subscription")
	}
}
