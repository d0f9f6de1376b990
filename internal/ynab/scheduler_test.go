package ynab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	logx "ynabot/pkg/logx"
)

// testScheduler returns a scheduler with a fake clock and recorded sleeps so
// retry/backoff timing can be asserted without waiting.
func testScheduler(t *testing.T, cfg SchedulerConfig) (*Scheduler, *fakeTime, context.CancelFunc) {
	t.Helper()
	ft := &fakeTime{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

	s := NewScheduler(cfg, logx.Nop())
	s.now = ft.Now
	s.sleep = ft.Sleep
	s.quota = newQuotaWindow(s.cfg.RequestLimit, s.cfg.Window, ft.Now)
	s.pace = rate.NewLimiter(rate.Inf, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, ft, cancel
}

type fakeTime struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	f.mu.Unlock()
	return nil
}

func (f *fakeTime) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

func TestSchedulerFIFOOrder(t *testing.T) {
	s, _, _ := testScheduler(t, SchedulerConfig{})

	var mu sync.Mutex
	var order []string
	results := make([]chan error, 3)
	names := []string{"a", "b", "c"}

	// Push directly onto the queue so arrival order is deterministic, then
	// collect execution order from the worker.
	for i, name := range names {
		name := name
		results[i] = make(chan error, 1)
		s.queue <- &call{name: name, done: results[i], fn: func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}}
	}
	for i := range results {
		if err := <-results[i]; err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("execution order = %v, want [a b c]", order)
	}
}

func TestSchedulerPacesDispatches(t *testing.T) {
	cfg := SchedulerConfig{RequestLimit: 50, Window: 2 * time.Second}
	s := NewScheduler(cfg, logx.Nop())

	// The limiter itself must encode window/limit spacing with no burst
	// headroom beyond a single call.
	interval := cfg.Window / time.Duration(cfg.RequestLimit)
	if got, want := s.pace.Limit(), rate.Every(interval); got != want {
		t.Fatalf("pace limit = %v, want %v", got, want)
	}
	if got := s.pace.Burst(); got != 1 {
		t.Fatalf("pace burst = %d, want 1", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Three instant calls: the first token is free, the next two each wait
	// one interval, so total elapsed is bounded below by two intervals.
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := s.Do(ctx, "paced", func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Fatalf("three dispatches in %v, want at least %v of spacing", elapsed, 2*interval)
	}
}

func TestSchedulerBackoffSteps(t *testing.T) {
	s, ft, _ := testScheduler(t, SchedulerConfig{RetryMax: 3})

	boom := errors.New("boom")
	attempts := 0
	err := s.Do(context.Background(), "fail", func(ctx context.Context) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error surfaced, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	sleeps := ft.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Fatalf("backoff sleeps = %v, want [1s 2s]", sleeps)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	t.Parallel()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, w := range want {
		if got := backoffDelay(i + 1); got != w {
			t.Fatalf("backoffDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestSchedulerThrottleUsesSuggestedDelay(t *testing.T) {
	s, ft, _ := testScheduler(t, SchedulerConfig{RetryMax: 3})

	attempts := 0
	err := s.Do(context.Background(), "throttled", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &ThrottleError{RetryAfter: 5 * time.Second}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	sleeps := ft.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 5*time.Second || sleeps[1] != 5*time.Second {
		t.Fatalf("throttle sleeps = %v, want [5s 5s]", sleeps)
	}
}

func TestSchedulerThrottleDefaultDelay(t *testing.T) {
	s, ft, _ := testScheduler(t, SchedulerConfig{RetryMax: 2})

	attempts := 0
	err := s.Do(context.Background(), "throttled", func(ctx context.Context) error {
		attempts++
		if attempts == 1 {
			return &ThrottleError{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	sleeps := ft.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != defaultRetryAfter {
		t.Fatalf("sleeps = %v, want [%v]", sleeps, defaultRetryAfter)
	}
}

func TestSchedulerThrottleExhaustionIsQuotaExceeded(t *testing.T) {
	s, _, _ := testScheduler(t, SchedulerConfig{RetryMax: 3})

	err := s.Do(context.Background(), "throttled", func(ctx context.Context) error {
		return &ThrottleError{RetryAfter: time.Second}
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestSchedulerAuthFailureNotRetried(t *testing.T) {
	s, ft, _ := testScheduler(t, SchedulerConfig{RetryMax: 3})

	attempts := 0
	err := s.Do(context.Background(), "auth", func(ctx context.Context) error {
		attempts++
		return &AuthError{Status: 401}
	})
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if len(ft.Sleeps()) != 0 {
		t.Fatalf("unexpected sleeps: %v", ft.Sleeps())
	}
}

func TestSchedulerQuotaGateSuspendsUntilReset(t *testing.T) {
	s, ft, _ := testScheduler(t, SchedulerConfig{RequestLimit: 2, Window: time.Hour})

	for i := 0; i < 2; i++ {
		if err := s.Do(context.Background(), "ok", func(ctx context.Context) error { return nil }); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if len(ft.Sleeps()) != 0 {
		t.Fatalf("unexpected sleeps before ceiling: %v", ft.Sleeps())
	}

	// Third call must suspend until the window resets, plus the margin.
	if err := s.Do(context.Background(), "gated", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("gated call: %v", err)
	}
	sleeps := ft.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != time.Hour+quotaResetMargin {
		t.Fatalf("quota sleeps = %v, want [%v]", sleeps, time.Hour+quotaResetMargin)
	}

	st := s.Quota()
	if st.Used != 1 || st.Limit != 2 {
		t.Fatalf("quota status after reset = %+v", st)
	}
}

func TestSchedulerFailedCallStillConsumesQuota(t *testing.T) {
	s, _, _ := testScheduler(t, SchedulerConfig{RequestLimit: 10, RetryMax: 1})

	_ = s.Do(context.Background(), "fail", func(ctx context.Context) error {
		return errors.New("boom")
	})
	if st := s.Quota(); st.Used != 1 {
		t.Fatalf("quota used = %d, want 1", st.Used)
	}
}

func TestSchedulerDetachesAbandonedCall(t *testing.T) {
	s, _, _ := testScheduler(t, SchedulerConfig{})

	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Do(ctx, "slow", func(ctx context.Context) error {
			close(started)
			<-release
			close(finished)
			return nil
		})
	}()

	<-started
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The abandoned call still runs to completion.
	close(release)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("detached call did not finish")
	}
}
