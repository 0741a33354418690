package schedmock

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/eclipse-volttron/volttron-testing/internal/observability"
	"github.com/eclipse-volttron/volttron-testing/internal/runtime/supervisor"
	"github.com/eclipse-volttron/volttron-testing/pkg/agent"
	"github.com/eclipse-volttron/volttron-testing/pkg/config"
	"github.com/eclipse-volttron/volttron-testing/pkg/eventbus"
	logx "github.com/eclipse-volttron/volttron-testing/pkg/logx"
)

// env is what the harness shares with its wrappers and trigger engine.
type env struct {
	reg      *Registry
	clock    Clock
	log      logx.Logger
	bus      eventbus.Bus
	metrics  *observability.HarnessCollector
	settings config.Settings
	sup      *supervisor.Supervisor

	// warn throttles "callback failed" warnings; denied ones go to debug.
	warn *rate.Limiter
}

func newEnv(reg *Registry, settings config.Settings) *env {
	every := settings.FailureWarnEvery
	if every <= 0 {
		every = config.DefaultFailureWarnEvery
	}
	return &env{
		reg:      reg,
		clock:    SystemClock,
		log:      logx.Nop(),
		settings: settings,
		warn:     rate.NewLimiter(rate.Every(every), 1),
	}
}

func (e *env) now() time.Time {
	if e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}

func (e *env) publish(typ, identity string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Identity: identity, Time: e.now(), Data: data})
}

// refreshActive updates the gauge of a tracked identity. Identities dropped
// by DisconnectAgent keep no series, even when a held event is cancelled later.
func (e *env) refreshActive(identity string) {
	if e.metrics == nil || !e.reg.Known(agent.ID(identity)) {
		return
	}
	e.metrics.SetActive(identity, len(e.reg.Active(agent.ID(identity))))
}

// noteCancelled is installed as Event.onCancel.
func (e *env) noteCancelled(ev *Event) {
	e.log.Debug("schedule cancelled",
		logx.String("agent", ev.identity),
		logx.String("id", ev.id),
		logx.String("kind", string(ev.kind)),
		logx.String("label", ev.Label()),
	)
	e.publish(eventbus.TypeScheduleCancelled, ev.identity, ev.Info())
	e.refreshActive(ev.identity)
}

// cancelAll cancels every event of identity and returns how many changed.
func (e *env) cancelAll(identity string) int {
	changed := e.reg.cancelAll(identity)
	for _, ev := range changed {
		e.publish(eventbus.TypeScheduleCancelled, ev.identity, ev.Info())
	}
	if len(changed) > 0 {
		e.log.Debug("schedules cancelled", logx.String("agent", identity), logx.Int("count", len(changed)))
		e.refreshActive(identity)
	}
	return len(changed)
}
