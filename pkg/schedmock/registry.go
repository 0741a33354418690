package schedmock

import (
	"sort"
	"strings"
	"sync"

	"github.com/eclipse-volttron/volttron-testing/pkg/agent"
)

// Registry stores events per agent identity in registration order.
// One Registry belongs to one Harness; it is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	events map[string][]*Event
}

func NewRegistry() *Registry {
	return &Registry{events: map[string][]*Event{}}
}

// identityOf resolves an ID, core or agent to its identity key.
func identityOf(ref agent.Identifier) string {
	if ref == nil {
		return ""
	}
	return strings.TrimSpace(ref.Identity())
}

// track makes identity known even before it registers anything.
func (r *Registry) track(identity string) {
	r.mu.Lock()
	if _, ok := r.events[identity]; !ok {
		r.events[identity] = nil
	}
	r.mu.Unlock()
}

func (r *Registry) add(ev *Event) {
	r.mu.Lock()
	r.events[ev.identity] = append(r.events[ev.identity], ev)
	r.mu.Unlock()
}

// Owns reports whether ev is still stored under its identity.
func (r *Registry) Owns(ev *Event) bool {
	if ev == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.events[ev.identity] {
		if e == ev {
			return true
		}
	}
	return false
}

// Known reports whether identity has an entry.
func (r *Registry) Known(ref agent.Identifier) bool {
	r.mu.RLock()
	_, ok := r.events[identityOf(ref)]
	r.mu.RUnlock()
	return ok
}

// Identities lists every identity with an entry, sorted.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.events))
	for id := range r.events {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Events returns every event of ref, cancelled ones included, in
// registration order. Unknown identities give an empty slice.
func (r *Registry) Events(ref agent.Identifier) []*Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.events[identityOf(ref)]
	out := make([]*Event, len(src))
	copy(out, src)
	return out
}

// Filter returns the active events of ref with the given kind, in
// registration order. AnyKind matches all kinds.
func (r *Registry) Filter(ref agent.Identifier, kind Kind) []*Event {
	all := r.Events(ref)
	out := make([]*Event, 0, len(all))
	for _, ev := range all {
		if kind != AnyKind && ev.kind != kind {
			continue
		}
		if ev.Cancelled() {
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (r *Registry) Periodic(ref agent.Identifier) []*Event { return r.Filter(ref, KindPeriodic) }
func (r *Registry) Cron(ref agent.Identifier) []*Event     { return r.Filter(ref, KindCron) }
func (r *Registry) Time(ref agent.Identifier) []*Event     { return r.Filter(ref, KindTime) }
func (r *Registry) Active(ref agent.Identifier) []*Event   { return r.Filter(ref, AnyKind) }

// cancelAll flags every event of identity and returns those that were
// still active. Events stay in the registry.
func (r *Registry) cancelAll(identity string) []*Event {
	r.mu.RLock()
	src := r.events[identity]
	evs := make([]*Event, len(src))
	copy(evs, src)
	r.mu.RUnlock()

	var changed []*Event
	for _, ev := range evs {
		if ev.markCancelled() {
			changed = append(changed, ev)
		}
	}
	return changed
}

// Clear drops the entry for ref and returns how many events it held.
// Dropped events remain readable through held references but can no
// longer be triggered.
func (r *Registry) Clear(ref agent.Identifier) int {
	id := identityOf(ref)
	r.mu.Lock()
	n := len(r.events[id])
	delete(r.events, id)
	r.mu.Unlock()
	return n
}
