package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Trigger outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

// HarnessCollector exposes schedule-harness metrics.
// A nil *HarnessCollector is valid and records nothing.
type HarnessCollector struct {
	gatherer prometheus.Gatherer

	Registrations   *prometheus.CounterVec
	Triggers        *prometheus.CounterVec
	TriggerDuration *prometheus.HistogramVec
	ActiveEvents    *prometheus.GaugeVec
}

// NewHarnessCollector registers harness metrics against reg.
// Registering twice against the same registry reuses the existing collectors.
func NewHarnessCollector(reg prometheus.Registerer) (*HarnessCollector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	var gatherer prometheus.Gatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	regs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedmock_registrations_total",
		Help: "Scheduling calls recorded by the harness, by event kind.",
	}, []string{"kind"}), "schedmock_registrations_total")
	if err != nil {
		return nil, err
	}

	triggers, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedmock_triggers_total",
		Help: "Manual triggers of stored callbacks, by event kind and outcome.",
	}, []string{"kind", "outcome"}), "schedmock_triggers_total")
	if err != nil {
		return nil, err
	}

	dur, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schedmock_trigger_duration_seconds",
		Help:    "Wall time spent inside triggered callbacks.",
		Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind"}), "schedmock_trigger_duration_seconds")
	if err != nil {
		return nil, err
	}

	active, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "schedmock_active_events",
		Help: "Registered, non-cancelled events per agent identity.",
	}, []string{"identity"}), "schedmock_active_events")
	if err != nil {
		return nil, err
	}

	return &HarnessCollector{
		gatherer:        gatherer,
		Registrations:   regs,
		Triggers:        triggers,
		TriggerDuration: dur,
		ActiveEvents:    active,
	}, nil
}

// Gatherer returns the gatherer behind the registerer, if it has one.
func (c *HarnessCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *HarnessCollector) IncRegistration(kind string) {
	if c == nil {
		return
	}
	c.Registrations.WithLabelValues(kind).Inc()
}

func (c *HarnessCollector) ObserveTrigger(kind, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Triggers.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeError {
		c.TriggerDuration.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (c *HarnessCollector) SetActive(identity string, n int) {
	if c == nil {
		return
	}
	c.ActiveEvents.WithLabelValues(identity).Set(float64(n))
}

// ForgetIdentity drops the per-identity gauge (agent disconnected).
func (c *HarnessCollector) ForgetIdentity(identity string) {
	if c == nil {
		return
	}
	c.ActiveEvents.DeleteLabelValues(identity)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
