package agent

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logx "github.com/eclipse-volttron/volttron-testing/pkg/logx"
)

// ErrNotConnected is returned when an agent uses its scheduler before one was
// attached (e.g. the agent was never connected to the test harness).
var ErrNotConnected = errors.New("scheduler not available: agent not connected to the test harness")

// Identifier is anything that names an agent: an ID, a *Core, or an Agent.
type Identifier interface {
	Identity() string
}

// ID is a bare agent identity.
type ID string

func (id ID) Identity() string { return string(id) }

// Agent is the unit the harness connects. Embed Base to satisfy it.
type Agent interface {
	Identifier
	Core() *Core
}

// Core is an agent's execution context. It carries the identity and the
// optional capability slots the runtime fills in when the agent is connected.
type Core struct {
	identity string

	mu        sync.RWMutex
	scheduler Scheduler
	log       logx.Logger
}

func NewCore(identity string) *Core {
	return &Core{identity: strings.TrimSpace(identity)}
}

func (c *Core) Identity() string {
	if c == nil {
		return ""
	}
	return c.identity
}

// SetScheduler fills the scheduler slot. Passing nil detaches it.
func (c *Core) SetScheduler(s Scheduler) {
	c.mu.Lock()
	c.scheduler = s
	c.mu.Unlock()
}

// Schedule returns the attached scheduler or ErrNotConnected.
func (c *Core) Schedule() (Scheduler, error) {
	if c == nil {
		return nil, ErrNotConnected
	}
	c.mu.RLock()
	s := c.scheduler
	c.mu.RUnlock()
	if s == nil {
		return nil, fmt.Errorf("%w (agent %q)", ErrNotConnected, c.identity)
	}
	return s, nil
}

// Connected reports whether a scheduler is attached.
func (c *Core) Connected() bool {
	_, err := c.Schedule()
	return err == nil
}

func (c *Core) Periodic(cb Callback, period time.Duration, opts ...ScheduleOption) (Handle, error) {
	s, err := c.Schedule()
	if err != nil {
		return nil, err
	}
	return s.Periodic(cb, period, opts...)
}

func (c *Core) Cron(cb Callback, spec string, opts ...ScheduleOption) (Handle, error) {
	s, err := c.Schedule()
	if err != nil {
		return nil, err
	}
	return s.Cron(cb, spec, opts...)
}

// At registers a one-shot callback at an absolute time.
func (c *Core) At(cb Callback, at time.Time, opts ...ScheduleOption) (Handle, error) {
	s, err := c.Schedule()
	if err != nil {
		return nil, err
	}
	return s.Schedule(cb, at, opts...)
}

func (c *Core) After(cb Callback, delay time.Duration, opts ...ScheduleOption) (Handle, error) {
	s, err := c.Schedule()
	if err != nil {
		return nil, err
	}
	return s.After(cb, delay, opts...)
}

func (c *Core) CancelAll() (int, error) {
	s, err := c.Schedule()
	if err != nil {
		return 0, err
	}
	return s.CancelAll(), nil
}

// SetLogger attaches the logger the agent should use.
func (c *Core) SetLogger(log logx.Logger) {
	c.mu.Lock()
	c.log = log
	c.mu.Unlock()
}

// Log returns the attached logger, or a no-op logger.
func (c *Core) Log() logx.Logger {
	if c == nil {
		return logx.Nop()
	}
	c.mu.RLock()
	l := c.log
	c.mu.RUnlock()
	if l.IsZero() {
		return logx.Nop()
	}
	return l
}

// Base is embedded by agent implementations to satisfy Agent.
//
//	type Driver struct{ agent.Base }
//	d := &Driver{Base: agent.NewBase("campus.driver")}
type Base struct {
	core *Core
}

func NewBase(identity string) Base { return Base{core: NewCore(identity)} }

func (b Base) Core() *Core { return b.core }

func (b Base) Identity() string { return b.core.Identity() }
