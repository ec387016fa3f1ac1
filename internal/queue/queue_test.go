package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddDeliversThroughDispatcher(t *testing.T) {
	loop := NewLoop(4)
	q := New(Options{Workers: 2, Dispatcher: loop})
	t.Cleanup(q.Close)

	got := make(chan string, 1)
	id, err := q.Add(context.Background(), "users/me", func(ctx context.Context) func() {
		return func() { got <- "delivered" }
	})
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if id == "" {
		t.Fatalf("Add returned empty id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	if err := loop.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	select {
	case v := <-got:
		if v != "delivered" {
			t.Fatalf("delivery = %q", v)
		}
	default:
		t.Fatalf("callback did not run on the loop goroutine")
	}
}

func TestCancelAllSuppressesDelivery(t *testing.T) {
	q := New(Options{Workers: 1, Dispatcher: Inline})
	t.Cleanup(q.Close)

	started := make(chan struct{})
	var delivered atomic.Bool
	_, err := q.Add(context.Background(), "haikus", func(ctx context.Context) func() {
		close(started)
		<-ctx.Done()
		return func() { delivered.Store(true) }
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	<-started

	if n := q.CancelAll("haikus"); n != 1 {
		t.Fatalf("CancelAll = %d, want 1", n)
	}
	waitFor(t, func() bool { return q.Pending("haikus") == 0 })
	if delivered.Load() {
		t.Fatalf("cancelled request delivered its callback")
	}
}

func TestCancelAllSuppressesPostedButUnrunDelivery(t *testing.T) {
	loop := NewLoop(4)
	q := New(Options{Workers: 1, Dispatcher: loop})
	t.Cleanup(q.Close)

	var delivered atomic.Bool
	_, _ = q.Add(context.Background(), "vote", func(context.Context) func() {
		return func() { delivered.Store(true) }
	})
	waitFor(t, func() bool { return len(loop.ch) == 1 })

	if n := q.CancelAll("vote"); n != 1 {
		t.Fatalf("CancelAll = %d, want 1 for a posted callback", n)
	}
	if n := loop.Drain(); n != 1 {
		t.Fatalf("Drain = %d, want 1", n)
	}
	if delivered.Load() {
		t.Fatalf("cancelled callback ran after being posted")
	}
}

func TestPendingClearsAfterDelivery(t *testing.T) {
	loop := NewLoop(4)
	q := New(Options{Workers: 1, Dispatcher: loop})
	t.Cleanup(q.Close)

	_, _ = q.Add(context.Background(), "me", func(context.Context) func() { return func() {} })
	waitFor(t, func() bool { return len(loop.ch) == 1 })
	if got := q.Pending("me"); got != 1 {
		t.Fatalf("Pending before delivery = %d, want 1", got)
	}
	loop.Drain()
	if got := q.Pending("me"); got != 0 {
		t.Fatalf("Pending after delivery = %d, want 0", got)
	}
}

func TestCancelAllLeavesOtherTags(t *testing.T) {
	q := New(Options{Workers: 2})
	t.Cleanup(q.Close)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	var other atomic.Bool
	_, _ = q.Add(context.Background(), "a", func(ctx context.Context) func() {
		<-ctx.Done()
		return func() { t.Errorf("tag a delivered after cancel") }
	})
	_, _ = q.Add(context.Background(), "b", func(context.Context) func() {
		<-release
		return func() {
			other.Store(true)
			wg.Done()
		}
	})

	waitFor(t, func() bool { return q.Pending("a") == 1 })
	q.CancelAll("a")
	close(release)
	wg.Wait()
	if !other.Load() {
		t.Fatalf("tag b was not delivered")
	}
}

func TestPanicIsContained(t *testing.T) {
	q := New(Options{Workers: 1})
	t.Cleanup(q.Close)

	_, _ = q.Add(context.Background(), "boom", func(context.Context) func() { panic("boom") })
	done := make(chan struct{})
	_, _ = q.Add(context.Background(), "ok", func(context.Context) func() {
		return func() { close(done) }
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not survive a panicking job")
	}
}

func TestAddAfterClose(t *testing.T) {
	q := New(Options{Workers: 1})
	q.Close()
	q.Close()
	if _, err := q.Add(context.Background(), "x", func(context.Context) func() { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("Add after Close = %v, want ErrClosed", err)
	}
}

func TestCloseCancelsRunningJobs(t *testing.T) {
	q := New(Options{Workers: 1})
	started := make(chan struct{})
	var sawCancel atomic.Bool
	_, _ = q.Add(context.Background(), "slow", func(ctx context.Context) func() {
		close(started)
		<-ctx.Done()
		sawCancel.Store(true)
		return nil
	})
	<-started
	q.Close()
	if !sawCancel.Load() {
		t.Fatalf("Close returned before the running job saw cancellation")
	}
}

func TestLoopStopDropsPosts(t *testing.T) {
	loop := NewLoop(1)
	loop.Stop()
	loop.Stop()
	loop.Post(func() { t.Fatalf("posted after Stop") })
	if n := loop.Drain(); n != 0 {
		t.Fatalf("Drain = %d, want 0", n)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run after Stop = %v, want nil", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
