package schedmock

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eclipse-volttron/volttron-testing/pkg/agent"
)

func TestTriggerRunningAverage(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	core := connect(t, h, "averager").Core()

	var (
		mu     sync.Mutex
		buffer []float64
	)
	average := func(context.Context, agent.Args) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(buffer) == 0 {
			return 0.0, nil
		}
		var sum float64
		for _, v := range buffer {
			sum += v
		}
		avg := sum / float64(len(buffer))
		buffer = buffer[:0]
		return avg, nil
	}
	if _, err := core.Periodic(average, 10*time.Second); err != nil {
		t.Fatalf("Periodic: %v", err)
	}

	evs := h.PeriodicEvents(core)
	if len(evs) != 1 {
		t.Fatalf("PeriodicEvents = %d, want 1", len(evs))
	}
	ev := evs[0]
	if ev.Period() != 10*time.Second || ev.RunCount() != 0 {
		t.Fatalf("unexpected event: %+v", ev.Info())
	}

	rounds := []struct {
		seed []float64
		want float64
	}{
		{seed: []float64{10, 20, 30}, want: 20},
		{seed: []float64{5, 15}, want: 10},
		{seed: []float64{100}, want: 100},
	}
	for i, r := range rounds {
		mu.Lock()
		buffer = append(buffer, r.seed...)
		mu.Unlock()

		got, err := h.TriggerScheduledEvent(context.Background(), ev)
		if err != nil {
			t.Fatalf("round %d: trigger: %v", i, err)
		}
		if got.(float64) != r.want {
			t.Fatalf("round %d: result = %v, want %v", i, got, r.want)
		}
	}
	if ev.RunCount() != 3 {
		t.Fatalf("RunCount = %d, want 3", ev.RunCount())
	}
}

func TestTriggerPassesStoredArguments(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	core := connect(t, h, "args").Core()

	var seen agent.Args
	cb := func(_ context.Context, a agent.Args) (any, error) {
		seen = a
		return map[string]any{"first": a.At(0), "kw": a.Keyword["kwarg1"]}, nil
	}
	ev := mustEvent(t)(core.Periodic(cb, time.Minute, agent.WithArgs("arg1", "arg2"), agent.WithKwarg("kwarg1", "value1")))

	if !reflect.DeepEqual(ev.Args(), []any{"arg1", "arg2"}) {
		t.Fatalf("stored args = %v", ev.Args())
	}
	if !reflect.DeepEqual(ev.Kwargs(), map[string]any{"kwarg1": "value1"}) {
		t.Fatalf("stored kwargs = %v", ev.Kwargs())
	}

	got, err := h.TriggerScheduledEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if !reflect.DeepEqual(seen.Positional, []any{"arg1", "arg2"}) {
		t.Fatalf("callback positional = %v", seen.Positional)
	}
	if v, ok := seen.Get("kwarg1"); !ok || v != "value1" {
		t.Fatalf("callback kwarg1 = %v, %v", v, ok)
	}
	want := map[string]any{"first": "arg1", "kw": "value1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("result = %v, want %v", got, want)
	}
}

func TestTriggerBookkeepingSurvivesErrors(t *testing.T) {
	t.Parallel()
	clock := NewManualClock(testEpoch)
	h := newTestHarness(t, WithClock(clock))
	core := connect(t, h, "flaky").Core()

	boom := errors.New("device offline")
	ev := mustEvent(t)(core.Cron(agent.FuncErr(func(context.Context) error { return boom }), "*/1 * * * *"))

	const n = 5
	var lastTick time.Time
	for i := 0; i < n; i++ {
		lastTick = clock.Advance(time.Minute)
		_, err := h.TriggerScheduledEvent(context.Background(), ev)
		if err != boom {
			t.Fatalf("trigger %d: err = %v, want the callback error unchanged", i, err)
		}
	}
	if ev.RunCount() != n {
		t.Fatalf("RunCount = %d, want %d", ev.RunCount(), n)
	}
	if !ev.LastRun().Equal(lastTick) {
		t.Fatalf("LastRun = %v, want %v", ev.LastRun(), lastTick)
	}
	if !errors.Is(ev.LastError(), boom) {
		t.Fatalf("LastError = %v", ev.LastError())
	}
}

func TestTriggerPanicPropagatesAfterBookkeeping(t *testing.T) {
	t.Parallel()
	clock := NewManualClock(testEpoch)
	h := newTestHarness(t, WithClock(clock))
	core := connect(t, h, "panicky").Core()
	ev := mustEvent(t)(core.Periodic(agent.Func(func() { panic("kaboom") }), time.Second))

	func() {
		defer func() {
			if r := recover(); r != "kaboom" {
				t.Fatalf("recovered %v, want kaboom", r)
			}
		}()
		_, _ = h.TriggerScheduledEvent(context.Background(), ev)
		t.Fatal("trigger should have panicked")
	}()

	if ev.RunCount() != 1 || !ev.LastRun().Equal(testEpoch) {
		t.Fatalf("bookkeeping after panic: count=%d last=%v", ev.RunCount(), ev.LastRun())
	}
	if !errors.Is(ev.LastError(), ErrCallbackPanic) {
		t.Fatalf("LastError = %v, want ErrCallbackPanic", ev.LastError())
	}
}

func TestTriggerCancelledEventNeverRuns(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	core := connect(t, h, "cancelled").Core()

	var calls atomic.Int32
	hd, err := core.Periodic(agent.Func(func() { calls.Add(1) }), time.Second)
	if err != nil {
		t.Fatalf("Periodic: %v", err)
	}
	hd.Cancel()
	ev := hd.(*Event)

	for i := 0; i < 3; i++ {
		if _, err := h.TriggerScheduledEvent(context.Background(), ev); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("err = %v, want ErrInvalidState", err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("callback ran %d times", calls.Load())
	}
	if ev.RunCount() != 0 {
		t.Fatalf("RunCount = %d, want 0", ev.RunCount())
	}
}

func TestTriggerRejectsEventsOfDisconnectedAgents(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	m := connect(t, h, "leaver")
	ev := mustEvent(t)(m.Core().Periodic(noop, time.Second))

	if err := h.DisconnectAgent(m); err != nil {
		t.Fatalf("DisconnectAgent: %v", err)
	}
	if _, err := h.TriggerScheduledEvent(context.Background(), ev); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if _, err := m.Core().Periodic(noop, time.Second); !errors.Is(err, agent.ErrNotConnected) {
		t.Fatalf("scheduling after disconnect: err = %v, want ErrNotConnected", err)
	}

	other := newTestHarness(t)
	connect(t, other, "leaver")
	if _, err := other.TriggerScheduledEvent(context.Background(), ev); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("foreign harness: err = %v, want ErrInvalidState", err)
	}
}

func TestRunScheduledEventAsync(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	core := connect(t, h, "async").Core()

	release := make(chan struct{})
	ev := mustEvent(t)(core.Periodic(func(ctx context.Context, a agent.Args) (any, error) {
		<-release
		return a.At(0), nil
	}, time.Second, agent.WithArgs("done")))

	task := h.RunScheduledEventAsync(ev, 20*time.Millisecond)
	if task.Event() != ev {
		t.Fatalf("task event = %v, want %v", task.Event(), ev)
	}
	if _, finished, _ := task.Result(); finished {
		t.Fatal("task finished before its delay")
	}

	if _, err := task.Wait(50 * time.Millisecond); !errors.Is(err, ErrJoinTimeout) {
		t.Fatalf("Wait err = %v, want ErrJoinTimeout", err)
	}
	close(release)

	v, err := task.Wait(2 * time.Second)
	if err != nil || v != "done" {
		t.Fatalf("Wait = %v, %v", v, err)
	}
	select {
	case <-task.Done():
	default:
		t.Fatal("Done not closed after completion")
	}
	if ev.RunCount() != 1 {
		t.Fatalf("RunCount = %d, want 1", ev.RunCount())
	}
}

func TestRunScheduledEventAsyncPanic(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	core := connect(t, h, "async.panic").Core()
	ev := mustEvent(t)(core.Periodic(agent.Func(func() { panic("bad sensor") }), time.Second))

	_, err := h.RunScheduledEventAsync(ev, 0).Wait(2 * time.Second)
	if !errors.Is(err, ErrCallbackPanic) {
		t.Fatalf("err = %v, want ErrCallbackPanic", err)
	}
	if ev.RunCount() != 1 {
		t.Fatalf("RunCount = %d, want 1", ev.RunCount())
	}

	// The supervisor records the panic just after the task is resolved.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var panics uint64
		for _, st := range h.Snapshot().Tasks {
			panics += st.Panics
		}
		if panics == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("supervisor panics = %d, want 1", panics)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseCancelsPendingAsyncTriggers(t *testing.T) {
	t.Parallel()
	h, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m := agent.NewMock("late")
	if err := h.ConnectAgent(m); err != nil {
		t.Fatalf("ConnectAgent: %v", err)
	}
	var calls atomic.Int32
	ev := mustEvent(t)(m.Core().Periodic(agent.Func(func() { calls.Add(1) }), time.Second))

	task := h.RunScheduledEventAsync(ev, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := task.Wait(time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("task err = %v, want context.Canceled", err)
	}
	if calls.Load() != 0 || ev.RunCount() != 0 {
		t.Fatalf("callback ran after close: calls=%d runs=%d", calls.Load(), ev.RunCount())
	}
	if _, err := h.RunScheduledEventAsync(ev, 0).Wait(time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("after close err = %v, want ErrClosed", err)
	}
}
