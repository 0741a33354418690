package agent

import (
	"context"
	"sync"
)

// HookFunc is the shape of a Mock lifecycle handler.
type HookFunc func(ctx context.Context, core *Core, sender string) (any, error)

// HookCall records one lifecycle dispatch on a Mock.
type HookCall struct {
	Hook   Hook
	Sender string
}

// Mock is a ready-made agent for tests. Each stage runs the matching func when
// set and is a no-op otherwise; every dispatch is recorded.
type Mock struct {
	Base

	Setup HookFunc
	Start HookFunc
	Stop  HookFunc

	mu    sync.Mutex
	calls []HookCall
}

func NewMock(identity string) *Mock {
	return &Mock{Base: NewBase(identity)}
}

func (m *Mock) OnSetup(ctx context.Context, sender string) (any, error) {
	return m.run(ctx, HookSetup, m.Setup, sender)
}

func (m *Mock) OnStart(ctx context.Context, sender string) (any, error) {
	return m.run(ctx, HookStart, m.Start, sender)
}

func (m *Mock) OnStop(ctx context.Context, sender string) (any, error) {
	return m.run(ctx, HookStop, m.Stop, sender)
}

func (m *Mock) run(ctx context.Context, hook Hook, fn HookFunc, sender string) (any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, HookCall{Hook: hook, Sender: sender})
	m.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, m.Core(), sender)
}

// Calls returns the recorded lifecycle dispatches in order.
func (m *Mock) Calls() []HookCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HookCall, len(m.calls))
	copy(out, m.calls)
	return out
}
