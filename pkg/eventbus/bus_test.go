package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutToSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()

	b.Publish(Event{Type: TypeScheduleRegistered, Identity: "a"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != TypeScheduleRegistered || e.Identity != "a" {
				t.Fatalf("subscriber %d got %+v", i, e)
			}
			if e.Time.IsZero() {
				t.Fatalf("subscriber %d: expected Publish to stamp time", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event", i)
		}
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "one"})
	b.Publish(Event{Type: "two"})

	if e := <-ch; e.Type != "one" {
		t.Fatalf("first event = %s, want one", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("expected second event to be dropped, got %s", e.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	b.Publish(Event{Type: "after"})
}

func TestRecorderFiltersByType(t *testing.T) {
	t.Parallel()
	r := NewRecorder(nil)
	r.Publish(Event{Type: TypeAgentConnected, Identity: "a"})
	r.Publish(Event{Type: TypeScheduleRegistered, Identity: "a"})
	r.Publish(Event{Type: TypeScheduleTriggered, Identity: "a"})

	if got := len(r.Events()); got != 3 {
		t.Fatalf("Events() = %d, want 3", got)
	}
	got := r.Events(TypeScheduleRegistered, TypeScheduleTriggered)
	if len(got) != 2 || got[0].Type != TypeScheduleRegistered {
		t.Fatalf("filtered events = %+v", got)
	}
}
