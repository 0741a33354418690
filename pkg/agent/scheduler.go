package agent

import (
	"context"
	"time"
)

// Callback is the function an agent hands to the scheduler.
// The scheduler passes back the positional and keyword arguments captured at
// registration time.
type Callback func(ctx context.Context, args Args) (any, error)

// Func adapts a plain func() to a Callback.
func Func(fn func()) Callback {
	return func(context.Context, Args) (any, error) {
		fn()
		return nil, nil
	}
}

// FuncErr adapts a context-aware job (the shape production jobs usually have)
// to a Callback.
func FuncErr(fn func(ctx context.Context) error) Callback {
	return func(ctx context.Context, _ Args) (any, error) {
		return nil, fn(ctx)
	}
}

// Args carries the arguments captured when a callback was registered.
type Args struct {
	Positional []any
	Keyword    map[string]any
}

// At returns the i-th positional argument, or nil when out of range.
func (a Args) At(i int) any {
	if i < 0 || i >= len(a.Positional) {
		return nil
	}
	return a.Positional[i]
}

// Get returns a keyword argument.
func (a Args) Get(key string) (any, bool) {
	v, ok := a.Keyword[key]
	return v, ok
}

// Handle is returned by every registration. Cancelling it marks the stored
// registration inactive; it never interrupts a callback that is already running.
type Handle interface {
	ID() string
	Cancel()
	Cancelled() bool
}

// Scheduler is the scheduling facility an agent core calls into.
//
// Production wires a real scheduler here; the test harness wires a recording
// substitute that never fires on its own.
type Scheduler interface {
	// Periodic registers cb to run every period (period must be > 0).
	Periodic(cb Callback, period time.Duration, opts ...ScheduleOption) (Handle, error)
	// Cron registers cb against a cron expression. The expression is stored as-is.
	Cron(cb Callback, spec string, opts ...ScheduleOption) (Handle, error)
	// Schedule registers cb to run once at the given time. Past times are accepted.
	Schedule(cb Callback, at time.Time, opts ...ScheduleOption) (Handle, error)
	// After registers cb to run once, delay from now.
	After(cb Callback, delay time.Duration, opts ...ScheduleOption) (Handle, error)
	// CancelAll cancels every registration made through this scheduler.
	CancelAll() int
}

// Registration holds the optional parts of a scheduling call.
type Registration struct {
	Name   string
	Args   []any
	Kwargs map[string]any
}

type ScheduleOption func(*Registration)

// WithName labels the registration. Labels are informational and need not be unique.
func WithName(name string) ScheduleOption {
	return func(r *Registration) { r.Name = name }
}

// WithArgs appends positional arguments.
func WithArgs(args ...any) ScheduleOption {
	return func(r *Registration) { r.Args = append(r.Args, args...) }
}

// WithKwarg sets one keyword argument.
func WithKwarg(key string, value any) ScheduleOption {
	return func(r *Registration) {
		if r.Kwargs == nil {
			r.Kwargs = map[string]any{}
		}
		r.Kwargs[key] = value
	}
}

// WithKwargs merges keyword arguments.
func WithKwargs(kw map[string]any) ScheduleOption {
	return func(r *Registration) {
		if len(kw) == 0 {
			return
		}
		if r.Kwargs == nil {
			r.Kwargs = make(map[string]any, len(kw))
		}
		for k, v := range kw {
			r.Kwargs[k] = v
		}
	}
}

// NewRegistration applies opts to a fresh Registration.
// The result owns its slices and maps; later changes by the caller to values
// passed in via WithKwargs are not observed.
func NewRegistration(opts ...ScheduleOption) Registration {
	var r Registration
	for _, o := range opts {
		if o != nil {
			o(&r)
		}
	}
	if r.Args == nil {
		r.Args = []any{}
	}
	if r.Kwargs == nil {
		r.Kwargs = map[string]any{}
	}
	return r
}
