package schedmock

import (
	"context"
	"reflect"
	"time"

	"github.com/eclipse-volttron/volttron-testing/pkg/agent"
)

// Matcher is one criterion an event must satisfy in VerifyEventScheduled.
type Matcher func(ev *Event) bool

// MatchPeriod matches periodic events with exactly period d.
func MatchPeriod(d time.Duration) Matcher {
	return func(ev *Event) bool { return ev.kind == KindPeriodic && ev.period == d }
}

// MatchCron matches cron events whose stored expression equals spec.
func MatchCron(spec string) Matcher {
	return func(ev *Event) bool { return ev.kind == KindCron && ev.cronSchedule == spec }
}

// MatchTime matches one-shot events scheduled at the same instant as at.
func MatchTime(at time.Time) Matcher {
	return func(ev *Event) bool { return ev.kind == KindTime && ev.scheduledTime.Equal(at) }
}

// MatchName matches the namespaced name or the short name given at registration.
func MatchName(name string) Matcher {
	return func(ev *Event) bool {
		return ev.name == name || (name != "" && ev.name == ev.identity+":"+name)
	}
}

// MatchArgs matches when the positional arguments equal args.
func MatchArgs(args ...any) Matcher {
	if args == nil {
		args = []any{}
	}
	return func(ev *Event) bool { return reflect.DeepEqual(ev.args, args) }
}

// MatchKwarg matches when keyword key is present and equals value.
func MatchKwarg(key string, value any) Matcher {
	return func(ev *Event) bool {
		v, ok := ev.kwargs[key]
		return ok && reflect.DeepEqual(v, value)
	}
}

func MatchFunc(fn func(ev *Event) bool) Matcher { return Matcher(fn) }

func matchAll(ev *Event, ms []Matcher) bool {
	for _, m := range ms {
		if m != nil && !m(ev) {
			return false
		}
	}
	return true
}

// FindEvent returns the first active event of kind for ref matching every
// matcher, without waiting.
func (r *Registry) FindEvent(ref agent.Identifier, kind Kind, matchers ...Matcher) (*Event, bool) {
	for _, ev := range r.Filter(ref, kind) {
		if matchAll(ev, matchers) {
			return ev, true
		}
	}
	return nil, false
}

// verify polls until a matching active event shows up or timeout elapses.
func (e *env) verify(ctx context.Context, ref agent.Identifier, kind Kind, timeout time.Duration, matchers []Matcher) bool {
	if timeout <= 0 {
		timeout = e.settings.VerifyTimeout
	}
	poll := e.settings.PollInterval
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if _, ok := e.reg.FindEvent(ref, kind, matchers...); ok {
			return true
		}
		select {
		case <-ctx.Done():
			_, ok := e.reg.FindEvent(ref, kind, matchers...)
			return ok
		case <-ticker.C:
		}
	}
}
