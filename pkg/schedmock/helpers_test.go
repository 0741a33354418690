package schedmock

import (
	"context"
	"testing"
	"time"

	"github.com/eclipse-volttron/volttron-testing/pkg/agent"
	"github.com/eclipse-volttron/volttron-testing/pkg/config"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.PollInterval = "10ms"
	cfg.VerifyTimeout = "300ms"
	cfg.JoinTimeout = "300ms"
	cfg.Timezone = "UTC"
	return cfg
}

func newTestHarness(t *testing.T, opts ...Option) *Harness {
	t.Helper()
	h, err := New(testConfig(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Close(ctx)
	})
	return h
}

// connect connects a fresh mock agent and returns its core.
func connect(t *testing.T, h *Harness, identity string) *agent.Mock {
	t.Helper()
	m := agent.NewMock(identity)
	if err := h.ConnectAgent(m); err != nil {
		t.Fatalf("ConnectAgent(%q): %v", identity, err)
	}
	return m
}

// mustEvent unwraps a registration result:
//
//	ev := mustEvent(t)(core.Periodic(cb, time.Second))
func mustEvent(t *testing.T) func(agent.Handle, error) *Event {
	t.Helper()
	return func(hd agent.Handle, err error) *Event {
		t.Helper()
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		ev, ok := hd.(*Event)
		if !ok {
			t.Fatalf("handle type = %T, want *Event", hd)
		}
		return ev
	}
}

var noop = agent.Func(func() {})
