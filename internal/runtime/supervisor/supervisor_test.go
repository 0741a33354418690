package supervisor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGoRecoversPanicAndRecordsError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("boom", func(ctx context.Context) error { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Wait error = %v, want panic error", err)
	}
	stats := s.Stats()
	if len(stats) != 1 || stats[0].Panics != 1 || stats[0].Active != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGoIgnoresContextCanceled(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop error = %v, want nil", err)
	}
	if c := s.Counters(); c.Active != 0 || c.Started != 1 {
		t.Fatalf("counters = %+v", c)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	release := make(chan struct{})
	s.Go("blocked", func(ctx context.Context) error {
		<-release
		return nil
	})
	t.Cleanup(func() { close(release) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait error = %v, want deadline exceeded", err)
	}
}

func TestGoWrapsReturnedError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	sentinel := errors.New("bad")
	s.Go("failing", func(ctx context.Context) error { return sentinel })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, sentinel) {
		t.Fatalf("Wait error = %v, want wrapped sentinel", err)
	}
}
