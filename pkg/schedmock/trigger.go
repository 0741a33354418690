package schedmock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/eclipse-volttron/volttron-testing/internal/observability"
	"github.com/eclipse-volttron/volttron-testing/pkg/agent"
	"github.com/eclipse-volttron/volttron-testing/pkg/eventbus"
	logx "github.com/eclipse-volttron/volttron-testing/pkg/logx"
)

// TriggerResult is published with schedule.triggered.
type TriggerResult struct {
	Event    EventInfo     `json:"event"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"err,omitempty"`
}

// trigger runs ev's callback on the calling goroutine.
//
// Bookkeeping (run count, then last run) happens before trigger returns,
// whether the callback returned normally, returned an error, or panicked.
// Callback errors come back unchanged; panics are re-raised.
func (e *env) trigger(ctx context.Context, ev *Event) (result any, err error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil event", ErrInvalidArgument)
	}
	if ev.Cancelled() {
		e.metrics.ObserveTrigger(string(ev.kind), observability.OutcomeCancelled, 0)
		return nil, fmt.Errorf("%w: event %s is cancelled", ErrInvalidState, ev)
	}
	if !e.reg.Owns(ev) {
		e.metrics.ObserveTrigger(string(ev.kind), observability.OutcomeRejected, 0)
		return nil, fmt.Errorf("%w: event %s is not tracked by this harness", ErrInvalidState, ev)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	args := agent.Args{Positional: ev.Args(), Keyword: ev.Kwargs()}
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.finishTrigger(ev, started, fmt.Errorf("%w: %v", ErrCallbackPanic, r))
			panic(r)
		}
		e.finishTrigger(ev, started, err)
	}()

	return ev.callback(ctx, args)
}

func (e *env) finishTrigger(ev *Event, started time.Time, err error) {
	ev.recordRun(e.now(), err)
	took := time.Since(started)

	outcome := observability.OutcomeOK
	if err != nil {
		outcome = observability.OutcomeError
		fields := []logx.Field{
			logx.String("agent", ev.identity),
			logx.String("id", ev.id),
			logx.String("label", ev.Label()),
			logx.Int("run", ev.RunCount()),
			logx.Err(err),
		}
		if e.warn == nil || e.warn.Allow() {
			e.log.Warn("scheduled callback failed", fields...)
		} else {
			e.log.Debug("scheduled callback failed", fields...)
		}
	}
	e.metrics.ObserveTrigger(string(ev.kind), outcome, took)

	res := TriggerResult{Event: ev.Info(), Duration: took}
	if err != nil {
		res.Err = err.Error()
	}
	e.publish(eventbus.TypeScheduleTriggered, ev.identity, res)
}

// Task is the handle of a background trigger.
type Task struct {
	event       *Event
	joinTimeout time.Duration

	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

func newTask(ev *Event, joinTimeout time.Duration) *Task {
	return &Task{event: ev, joinTimeout: joinTimeout, done: make(chan struct{})}
}

func (t *Task) finish(v any, err error) {
	t.once.Do(func() {
		t.value, t.err = v, err
		close(t.done)
	})
}

// Event returns the event the task triggers.
func (t *Task) Event() *Event { return t.event }

// Done is closed once the task finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the callback outcome. finished is false while the task is
// still pending or running.
func (t *Task) Result() (value any, finished bool, err error) {
	select {
	case <-t.done:
		return t.value, true, t.err
	default:
		return nil, false, nil
	}
}

// Wait blocks up to timeout (the configured join timeout when <= 0) and
// returns the callback outcome. On timeout it returns ErrJoinTimeout and
// leaves the task running.
func (t *Task) Wait(timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = t.joinTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return t.value, t.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s (event %s)", ErrJoinTimeout, timeout, t.event)
	}
}

// WaitContext is Wait bounded by ctx instead of a timeout.
func (t *Task) WaitContext(ctx context.Context) (any, error) {
	select {
	case <-t.done:
		return t.value, t.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w (event %s)", ErrJoinTimeout, ctx.Err(), t.event)
	}
}

// runAsync triggers ev on a supervised goroutine after delay.
// Closing the harness during the delay finishes the task with
// context.Canceled without calling the callback.
func (e *env) runAsync(ev *Event, delay time.Duration) *Task {
	if delay < 0 {
		delay = 0
	}
	t := newTask(ev, e.settings.JoinTimeout)
	if ev == nil {
		t.finish(nil, fmt.Errorf("%w: nil event", ErrInvalidArgument))
		return t
	}
	if e.sup == nil || e.sup.Context().Err() != nil {
		t.finish(nil, fmt.Errorf("%w: cannot run %s", ErrClosed, ev))
		return t
	}

	e.sup.Go("trigger:"+ev.Label(), func(ctx context.Context) error {
		defer func() {
			if r := recover(); r != nil {
				t.finish(nil, fmt.Errorf("%w: %v", ErrCallbackPanic, r))
				panic(r)
			}
		}()

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				t.finish(nil, ctx.Err())
				return ctx.Err()
			case <-timer.C:
			}
		}

		v, err := e.trigger(ctx, ev)
		t.finish(v, err)
		return err
	})
	return t
}
