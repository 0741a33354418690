package schedmock

import (
	"fmt"
	"sync"
	"time"

	"github.com/eclipse-volttron/volttron-testing/pkg/agent"
)

// Kind classifies a registration.
type Kind string

const (
	// AnyKind matches every kind in queries and verification.
	AnyKind      Kind = ""
	KindPeriodic Kind = "periodic"
	KindCron     Kind = "cron"
	KindTime     Kind = "time"
)

func (k Kind) String() string {
	if k == AnyKind {
		return "any"
	}
	return string(k)
}

// Event is one recorded scheduling call.
//
// Exactly one of Period, CronSchedule and ScheduledTime is meaningful,
// depending on Kind. The event is also its own cancellation handle: the
// registry and the agent hold the same pointer.
type Event struct {
	id       string
	identity string
	name     string
	kind     Kind
	callback agent.Callback
	args     []any
	kwargs   map[string]any

	period        time.Duration
	cronSchedule  string
	scheduledTime time.Time
	createdAt     time.Time
	loc           *time.Location

	mu        sync.Mutex
	lastRun   time.Time
	runCount  int
	cancelled bool
	lastErr   error

	// onCancel runs after the flag flips from false to true.
	onCancel func(*Event)
}

// EventInfo is a point-in-time copy of an Event.
type EventInfo struct {
	ID            string         `json:"id"`
	Identity      string         `json:"identity"`
	Name          string         `json:"name,omitempty"`
	Kind          Kind           `json:"kind"`
	Args          []any          `json:"args"`
	Kwargs        map[string]any `json:"kwargs"`
	Period        time.Duration  `json:"period,omitempty"`
	CronSchedule  string         `json:"cron_schedule,omitempty"`
	ScheduledTime time.Time      `json:"scheduled_time,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	LastRun       time.Time      `json:"last_run,omitempty"`
	RunCount      int            `json:"run_count"`
	Cancelled     bool           `json:"cancelled"`
	LastError     string         `json:"last_error,omitempty"`
}

func (e *Event) ID() string               { return e.id }
func (e *Event) Identity() string         { return e.identity }
func (e *Event) Name() string             { return e.name }
func (e *Event) Kind() Kind               { return e.kind }
func (e *Event) Callback() agent.Callback { return e.callback }

// Args returns a copy of the positional arguments captured at registration.
func (e *Event) Args() []any {
	out := make([]any, len(e.args))
	copy(out, e.args)
	return out
}

// Kwargs returns a copy of the keyword arguments captured at registration.
func (e *Event) Kwargs() map[string]any {
	out := make(map[string]any, len(e.kwargs))
	for k, v := range e.kwargs {
		out[k] = v
	}
	return out
}

func (e *Event) Period() time.Duration    { return e.period }
func (e *Event) CronSchedule() string     { return e.cronSchedule }
func (e *Event) ScheduledTime() time.Time { return e.scheduledTime }
func (e *Event) CreatedAt() time.Time     { return e.createdAt }

// LastRun is zero until the event was triggered at least once.
func (e *Event) LastRun() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun
}

func (e *Event) RunCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runCount
}

func (e *Event) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// Active reports !Cancelled().
func (e *Event) Active() bool { return !e.Cancelled() }

// LastError is the error (or recovered panic) of the most recent trigger.
func (e *Event) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Cancel marks the event inactive. It does not interrupt a running trigger
// and never removes the event from the registry.
func (e *Event) Cancel() {
	if e.markCancelled() && e.onCancel != nil {
		e.onCancel(e)
	}
}

// markCancelled flips the flag and reports whether it changed.
func (e *Event) markCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelled {
		return false
	}
	e.cancelled = true
	return true
}

// recordRun increments the run count, then stamps the run time.
func (e *Event) recordRun(at time.Time, err error) {
	e.mu.Lock()
	e.runCount++
	e.lastRun = at
	e.lastErr = err
	e.mu.Unlock()
}

// Spec renders the kind-specific schedule parameter.
func (e *Event) Spec() string {
	switch e.kind {
	case KindPeriodic:
		return "every " + e.period.String()
	case KindCron:
		return e.cronSchedule
	case KindTime:
		return e.scheduledTime.Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Label is the name when set, otherwise "<kind>:<spec>".
func (e *Event) Label() string {
	if e.name != "" {
		return e.name
	}
	return fmt.Sprintf("%s:%s", e.kind, e.Spec())
}

func (e *Event) String() string {
	return fmt.Sprintf("%s[%s %s]", e.identity, e.id, e.Label())
}

// Info returns a snapshot of the event.
func (e *Event) Info() EventInfo {
	e.mu.Lock()
	lastRun, runCount, cancelled, lastErr := e.lastRun, e.runCount, e.cancelled, e.lastErr
	e.mu.Unlock()

	info := EventInfo{
		ID:            e.id,
		Identity:      e.identity,
		Name:          e.name,
		Kind:          e.kind,
		Args:          e.Args(),
		Kwargs:        e.Kwargs(),
		Period:        e.period,
		CronSchedule:  e.cronSchedule,
		ScheduledTime: e.scheduledTime,
		CreatedAt:     e.createdAt,
		LastRun:       lastRun,
		RunCount:      runCount,
		Cancelled:     cancelled,
	}
	if lastErr != nil {
		info.LastError = lastErr.Error()
	}
	return info
}

// NextRuns returns up to n times the event would fire under a real
// scheduler, counted from the last run (or creation). It is informational:
// nothing fires at these times. Cancelled events, one-shot events that
// already ran, and cron expressions the parser rejects yield nil.
func (e *Event) NextRuns(n int) []time.Time {
	if n <= 0 || e.Cancelled() {
		return nil
	}
	from := e.LastRun()
	if from.IsZero() {
		from = e.createdAt
	}
	switch e.kind {
	case KindPeriodic:
		out := make([]time.Time, 0, n)
		t := from
		for i := 0; i < n; i++ {
			t = t.Add(e.period)
			out = append(out, t)
		}
		return out
	case KindCron:
		return previewCron(e.cronSchedule, from, e.loc, n)
	case KindTime:
		if e.RunCount() > 0 {
			return nil
		}
		return []time.Time{e.scheduledTime}
	default:
		return nil
	}
}
