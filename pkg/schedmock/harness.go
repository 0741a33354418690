package schedmock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eclipse-volttron/volttron-testing/internal/observability"
	"github.com/eclipse-volttron/volttron-testing/internal/runtime/supervisor"
	"github.com/eclipse-volttron/volttron-testing/pkg/agent"
	"github.com/eclipse-volttron/volttron-testing/pkg/config"
	"github.com/eclipse-volttron/volttron-testing/pkg/eventbus"
	logx "github.com/eclipse-volttron/volttron-testing/pkg/logx"
)

// Harness connects agents to recording schedulers and gives tests the
// query, verify and trigger surface over what they registered.
//
// Each Harness owns its Registry; nothing is shared between harnesses.
type Harness struct {
	env      *env
	capture  *logx.Capture
	agentLog logx.Logger

	mu     sync.RWMutex
	agents map[string]*connection
	closed bool
}

type connection struct {
	agent       agent.Agent
	wrapper     *Wrapper
	connectedAt time.Time
}

// Response is the outcome of a lifecycle trigger.
type Response struct {
	Identity string
	Hook     agent.Hook
	Value    any
}

type options struct {
	log     logx.Logger
	hasLog  bool
	clock   Clock
	bus     eventbus.Bus
	reg     prometheus.Registerer
	capture *logx.Capture
}

type Option func(*options)

// WithLogger sets the harness's own logger (registrations, failures).
// Agent log lines always go to the capture sink; see ServerLog.
func WithLogger(log logx.Logger) Option {
	return func(o *options) { o.log, o.hasLog = log, true }
}

// WithClock sets the clock used for CreatedAt, LastRun and After.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithBus publishes harness events on bus instead of a private one.
func WithBus(bus eventbus.Bus) Option {
	return func(o *options) { o.bus = bus }
}

// WithRegisterer registers harness metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.reg = reg }
}

// WithCapture records agent log lines into c.
func WithCapture(c *logx.Capture) Option {
	return func(o *options) { o.capture = c }
}

// New builds a harness from cfg. A zero Config gets the defaults.
func New(cfg config.Config, opts ...Option) (*Harness, error) {
	settings, err := cfg.Resolve()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if !o.hasLog {
		o.log = logx.New(settings.Logging)
	}
	if o.clock == nil {
		o.clock = SystemClock
	}
	if o.bus == nil {
		o.bus = eventbus.New()
	}
	if o.reg == nil {
		o.reg = prometheus.NewRegistry()
	}
	if o.capture == nil {
		o.capture = logx.NewCapture()
	}

	metrics, err := observability.NewHarnessCollector(o.reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	log := o.log.With(logx.String("comp", "schedmock"))
	e := newEnv(NewRegistry(), settings)
	e.clock = o.clock
	e.log = log
	e.bus = o.bus
	e.metrics = metrics
	e.sup = supervisor.New(context.Background(), supervisor.WithLogger(log))

	agentCfg := settings.Logging
	if agentCfg.Level == "" {
		agentCfg.Level = "debug"
	}
	return &Harness{
		env:      e,
		capture:  o.capture,
		agentLog: logx.New(agentCfg, o.capture),
		agents:   map[string]*connection{},
	}, nil
}

// Registry exposes the harness's event store.
func (h *Harness) Registry() *Registry { return h.env.reg }

// Gatherer exposes harness metrics, when the registerer can be gathered.
func (h *Harness) Gatherer() prometheus.Gatherer { return h.env.metrics.Gatherer() }

// ConnectAgent plugs a recording scheduler and a capturing logger into the
// agent's core.
func (h *Harness) ConnectAgent(a agent.Agent) error {
	if a == nil {
		return fmt.Errorf("%w: nil agent", ErrConfiguration)
	}
	id := identityOf(a)
	if id == "" {
		return fmt.Errorf("%w: agent identity is empty", ErrConfiguration)
	}
	core := a.Core()
	if core == nil {
		return fmt.Errorf("%w: agent %q has no core", ErrConfiguration, id)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if _, ok := h.agents[id]; ok {
		h.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrAlreadyConnected, id)
	}
	w := &Wrapper{identity: id, env: h.env}
	h.env.reg.track(id)
	h.agents[id] = &connection{agent: a, wrapper: w, connectedAt: h.env.now()}
	h.mu.Unlock()

	core.SetScheduler(w)
	core.SetLogger(h.agentLog.With(logx.String("agent", id)))

	h.env.log.Info("agent connected", logx.String("agent", id))
	h.env.publish(eventbus.TypeAgentConnected, id, nil)
	h.env.refreshActive(id)
	return nil
}

// DisconnectAgent detaches the scheduler and drops the agent's events from
// the registry. Later scheduling calls by the agent fail with
// agent.ErrNotConnected; held events can no longer be triggered.
func (h *Harness) DisconnectAgent(ref agent.Identifier) error {
	id := identityOf(ref)
	h.mu.Lock()
	conn, ok := h.agents[id]
	if ok {
		delete(h.agents, id)
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w (agent %q)", agent.ErrNotConnected, id)
	}

	conn.agent.Core().SetScheduler(nil)
	n := h.env.reg.Clear(agent.ID(id))
	h.env.metrics.ForgetIdentity(id)

	h.env.log.Info("agent disconnected", logx.String("agent", id), logx.Int("events", n))
	h.env.publish(eventbus.TypeAgentDisconnected, id, nil)
	return nil
}

// Connected reports whether ref is connected.
func (h *Harness) Connected(ref agent.Identifier) bool {
	_, ok := h.connection(identityOf(ref))
	return ok
}

func (h *Harness) connection(id string) (*connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.agents[id]
	return c, ok
}

// Wrapper returns the scheduler attached to ref.
func (h *Harness) Wrapper(ref agent.Identifier) (*Wrapper, bool) {
	c, ok := h.connection(identityOf(ref))
	if !ok {
		return nil, false
	}
	return c.wrapper, true
}

// Start connects a and runs its setup and start hooks, each only when the
// agent implements it. The response is that of the start hook.
//
// A failing setup hook disconnects the agent again, so Start can be retried.
// A failing start hook leaves the agent connected with whatever it managed
// to schedule, for the test to inspect.
func (h *Harness) Start(ctx context.Context, a agent.Agent, sender string) (Response, error) {
	if err := h.ConnectAgent(a); err != nil {
		return Response{}, err
	}
	id := identityOf(a)
	if _, err := h.TriggerSetupEvent(ctx, a, sender); err != nil && !errors.Is(err, ErrLifecycleNotFound) {
		if derr := h.DisconnectAgent(a); derr != nil {
			h.env.log.Warn("disconnect after failed setup", logx.String("agent", id), logx.Err(derr))
		}
		return Response{Identity: id, Hook: agent.HookSetup}, err
	}
	resp, err := h.TriggerStartEvent(ctx, a, sender)
	if errors.Is(err, ErrLifecycleNotFound) {
		return Response{Identity: id, Hook: agent.HookStart}, nil
	}
	return resp, err
}

func (h *Harness) TriggerSetupEvent(ctx context.Context, ref agent.Identifier, sender string) (Response, error) {
	return h.dispatch(ctx, ref, agent.HookSetup, sender)
}

func (h *Harness) TriggerStartEvent(ctx context.Context, ref agent.Identifier, sender string) (Response, error) {
	return h.dispatch(ctx, ref, agent.HookStart, sender)
}

func (h *Harness) TriggerStopEvent(ctx context.Context, ref agent.Identifier, sender string) (Response, error) {
	return h.dispatch(ctx, ref, agent.HookStop, sender)
}

func (h *Harness) dispatch(ctx context.Context, ref agent.Identifier, hook agent.Hook, sender string) (Response, error) {
	id := identityOf(ref)
	conn, ok := h.connection(id)
	if !ok {
		return Response{}, fmt.Errorf("%w (agent %q)", agent.ErrNotConnected, id)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	value, found, err := agent.Dispatch(ctx, conn.agent, hook, sender)
	if !found && err == nil {
		return Response{}, fmt.Errorf("%w: agent %q has no %s hook", ErrLifecycleNotFound, id, hook)
	}
	resp := Response{Identity: id, Hook: hook, Value: value}

	fields := []logx.Field{logx.String("agent", id), logx.String("hook", string(hook)), logx.String("sender", sender)}
	if err != nil {
		h.env.log.Warn("lifecycle hook failed", append(fields, logx.Err(err))...)
	} else {
		h.env.log.Debug("lifecycle hook dispatched", fields...)
	}
	h.env.publish(eventbus.TypeLifecycleDispatched, id, resp)
	return resp, err
}

// ScheduledEvents returns every event of ref, cancelled ones included.
func (h *Harness) ScheduledEvents(ref agent.Identifier) []*Event { return h.env.reg.Events(ref) }

// PeriodicEvents, CronEvents and TimeEvents return active events only.
func (h *Harness) PeriodicEvents(ref agent.Identifier) []*Event { return h.env.reg.Periodic(ref) }
func (h *Harness) CronEvents(ref agent.Identifier) []*Event     { return h.env.reg.Cron(ref) }
func (h *Harness) TimeEvents(ref agent.Identifier) []*Event     { return h.env.reg.Time(ref) }
func (h *Harness) ActiveEvents(ref agent.Identifier) []*Event   { return h.env.reg.Active(ref) }

// CancelAll cancels every event of ref and returns how many were active.
func (h *Harness) CancelAll(ref agent.Identifier) int {
	return h.env.cancelAll(identityOf(ref))
}

// TriggerScheduledEvent runs ev's callback synchronously with its stored
// arguments and returns the callback's result unchanged.
func (h *Harness) TriggerScheduledEvent(ctx context.Context, ev *Event) (any, error) {
	return h.env.trigger(ctx, ev)
}

// RunScheduledEventAsync triggers ev on a background goroutine after delay.
func (h *Harness) RunScheduledEventAsync(ev *Event, delay time.Duration) *Task {
	return h.env.runAsync(ev, delay)
}

// VerifyEventScheduled polls until ref has an active event of kind matching
// every matcher. timeout <= 0 uses the configured verify timeout. It
// returns false only after the whole timeout elapsed.
func (h *Harness) VerifyEventScheduled(ref agent.Identifier, kind Kind, timeout time.Duration, matchers ...Matcher) bool {
	return h.env.verify(context.Background(), ref, kind, timeout, matchers)
}

// VerifyEventScheduledContext is VerifyEventScheduled that also stops when
// ctx is done.
func (h *Harness) VerifyEventScheduledContext(ctx context.Context, ref agent.Identifier, kind Kind, timeout time.Duration, matchers ...Matcher) bool {
	return h.env.verify(ctx, ref, kind, timeout, matchers)
}

// ServerLog returns every captured agent log line.
func (h *Harness) ServerLog() []logx.Entry { return h.capture.Entries() }

// AgentLog returns the captured log lines of one agent.
func (h *Harness) AgentLog(ref agent.Identifier) []logx.Entry {
	return h.capture.Filter("agent", identityOf(ref))
}

// Subscribe returns harness notifications. Slow subscribers miss events.
func (h *Harness) Subscribe(buffer int) (<-chan eventbus.Event, func()) {
	return h.env.bus.Subscribe(buffer)
}

// AgentSnapshot summarizes one identity.
type AgentSnapshot struct {
	Identity  string       `json:"identity"`
	Connected bool         `json:"connected"`
	Total     int          `json:"total"`
	Active    map[Kind]int `json:"active"`
	Events    []EventInfo  `json:"events"`
}

// Snapshot is a diagnostic view of the harness.
type Snapshot struct {
	Agents     []AgentSnapshot             `json:"agents"`
	Goroutines supervisor.Counters         `json:"goroutines"`
	Tasks      []supervisor.GoroutineStats `json:"tasks,omitempty"`
}

func (h *Harness) Snapshot() Snapshot {
	ids := map[string]struct{}{}
	for _, id := range h.env.reg.Identities() {
		ids[id] = struct{}{}
	}
	h.mu.RLock()
	for id := range h.agents {
		ids[id] = struct{}{}
	}
	h.mu.RUnlock()

	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	out := Snapshot{
		Agents:     make([]AgentSnapshot, 0, len(sorted)),
		Goroutines: h.env.sup.Counters(),
		Tasks:      h.env.sup.Stats(),
	}
	for _, id := range sorted {
		evs := h.env.reg.Events(agent.ID(id))
		as := AgentSnapshot{
			Identity:  id,
			Connected: h.Connected(agent.ID(id)),
			Total:     len(evs),
			Active:    map[Kind]int{},
			Events:    make([]EventInfo, 0, len(evs)),
		}
		for _, ev := range evs {
			info := ev.Info()
			if !info.Cancelled {
				as.Active[info.Kind]++
			}
			as.Events = append(as.Events, info)
		}
		out.Agents = append(out.Agents, as)
	}
	return out
}

// Close cancels pending background triggers, detaches every agent's
// scheduler and waits for background goroutines, bounded by ctx. The
// registry stays readable.
func (h *Harness) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	conns := make([]*connection, 0, len(h.agents))
	for _, c := range h.agents {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.agent.Core().SetScheduler(nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// Task failures are reported on their Task, not here.
	if err := h.env.sup.Stop(ctx); err != nil && ctx.Err() != nil {
		return fmt.Errorf("close harness: %w", ctx.Err())
	}
	return nil
}
