package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the schedule harness.
const (
	TypeAgentConnected      = "agent.connected"
	TypeAgentDisconnected   = "agent.disconnected"
	TypeScheduleRegistered  = "schedule.registered"
	TypeScheduleTriggered   = "schedule.triggered"
	TypeScheduleCancelled   = "schedule.cancelled"
	TypeLifecycleDispatched = "lifecycle.dispatched"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers get buffered channels; slow subscribers drop events.
type Event struct {
	Type     string
	Identity string
	Time     time.Time
	Data     any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Deliver under the read lock so unsubscribe (write lock) can't close a
	// channel mid-send; sends never block.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Recorder is a Bus that also keeps every published event, in order.
// Tests use it to assert on what the harness announced without draining channels.
type Recorder struct {
	Bus

	mu     sync.Mutex
	events []Event
}

// NewRecorder wraps next (or a fresh in-memory bus when nil).
func NewRecorder(next Bus) *Recorder {
	if next == nil {
		next = New()
	}
	return &Recorder{Bus: next}
}

func (r *Recorder) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.Bus.Publish(e)
}

// Events returns recorded events, optionally filtered by type.
func (r *Recorder) Events(types ...string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(types) == 0 {
		out := make([]Event, len(r.events))
		copy(out, r.events)
		return out
	}
	want := make(map[string]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	var out []Event
	for _, e := range r.events {
		if _, ok := want[e.Type]; ok {
			out = append(out, e)
		}
	}
	return out
}
