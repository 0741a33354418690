package schedmock

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eclipse-volttron/volttron-testing/pkg/agent"
	"github.com/eclipse-volttron/volttron-testing/pkg/config"
	"github.com/eclipse-volttron/volttron-testing/pkg/eventbus"
	logx "github.com/eclipse-volttron/volttron-testing/pkg/logx"
)

var _ agent.Scheduler = (*Wrapper)(nil)

// Wrapper is the scheduler the harness plugs into an agent core. It records
// every call as an Event and never runs anything on its own.
type Wrapper struct {
	identity string
	env      *env
}

// NewWrapper returns a wrapper writing to reg, using the wall clock and no
// logging. The harness builds its own wrappers; this is for using a Registry
// without one.
func NewWrapper(identity string, reg *Registry) *Wrapper {
	settings, err := config.Default().Resolve()
	if err != nil {
		// Default() only holds constants; a failure here is a bug in package config.
		panic(fmt.Sprintf("schedmock: default config does not resolve: %v", err))
	}
	e := newEnv(reg, settings)
	id := strings.TrimSpace(identity)
	reg.track(id)
	return &Wrapper{identity: id, env: e}
}

func (w *Wrapper) Identity() string { return w.identity }

// Periodic records a periodic registration. period must be > 0.
func (w *Wrapper) Periodic(cb agent.Callback, period time.Duration, opts ...agent.ScheduleOption) (agent.Handle, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be > 0, got %s", ErrInvalidArgument, period)
	}
	return asHandle(w.register(KindPeriodic, cb, opts, func(ev *Event) { ev.period = period }))
}

// Cron records a cron registration. The expression is stored verbatim and
// only has to be non-blank.
func (w *Wrapper) Cron(cb agent.Callback, spec string, opts ...agent.ScheduleOption) (agent.Handle, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("%w: cron schedule required", ErrInvalidArgument)
	}
	return asHandle(w.register(KindCron, cb, opts, func(ev *Event) { ev.cronSchedule = spec }))
}

// Schedule records a one-shot registration. Times in the past are accepted.
func (w *Wrapper) Schedule(cb agent.Callback, at time.Time, opts ...agent.ScheduleOption) (agent.Handle, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("%w: scheduled time required", ErrInvalidArgument)
	}
	return asHandle(w.register(KindTime, cb, opts, func(ev *Event) { ev.scheduledTime = at }))
}

// After records a one-shot registration delay from the harness clock's now.
func (w *Wrapper) After(cb agent.Callback, delay time.Duration, opts ...agent.ScheduleOption) (agent.Handle, error) {
	if delay < 0 {
		return nil, fmt.Errorf("%w: delay must be >= 0, got %s", ErrInvalidArgument, delay)
	}
	at := w.env.now().Add(delay)
	return asHandle(w.register(KindTime, cb, opts, func(ev *Event) { ev.scheduledTime = at }))
}

// CancelAll cancels every event of this identity and returns how many were
// still active.
func (w *Wrapper) CancelAll() int {
	return w.env.cancelAll(w.identity)
}

// asHandle keeps a failed registration from becoming a non-nil Handle.
func asHandle(ev *Event, err error) (agent.Handle, error) {
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (w *Wrapper) ns(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || w.identity == "" {
		return name
	}
	if strings.HasPrefix(name, w.identity+":") {
		return name
	}
	return w.identity + ":" + name
}

func (w *Wrapper) register(kind Kind, cb agent.Callback, opts []agent.ScheduleOption, set func(*Event)) (*Event, error) {
	if cb == nil {
		return nil, fmt.Errorf("%w: callback required", ErrInvalidArgument)
	}
	reg := agent.NewRegistration(opts...)
	ev := &Event{
		id:        uuid.NewString(),
		identity:  w.identity,
		name:      w.ns(reg.Name),
		kind:      kind,
		callback:  cb,
		args:      reg.Args,
		kwargs:    reg.Kwargs,
		createdAt: w.env.now(),
		loc:       w.env.settings.Location,
		onCancel:  w.env.noteCancelled,
	}
	set(ev)
	w.env.reg.add(ev)

	if w.env.log.Enabled(logx.LevelDebug) {
		fields := []logx.Field{
			logx.String("agent", ev.identity),
			logx.String("id", ev.id),
			logx.String("kind", string(kind)),
			logx.String("spec", ev.Spec()),
		}
		if ev.name != "" {
			fields = append(fields, logx.String("name", ev.name))
		}
		if next := ev.NextRuns(w.env.settings.PreviewRuns); len(next) > 0 {
			fields = append(fields, logx.Time("next", next[0]))
		}
		w.env.log.Debug("schedule registered", fields...)
	}
	w.env.publish(eventbus.TypeScheduleRegistered, ev.identity, ev.Info())
	w.env.metrics.IncRegistration(string(kind))
	w.env.refreshActive(ev.identity)
	return ev, nil
}
