package ynab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "ynabot/pkg/logx"
)

// SchedulerConfig controls the request scheduler.
type SchedulerConfig struct {
	// RequestLimit is the per-window ceiling. Keep it below the provider's
	// hard limit (YNAB: 200/h); the default is 180.
	RequestLimit int
	// Window is the quota window length (default 1h).
	Window time.Duration
	// RetryMax is the attempt budget per operation (default 3).
	RetryMax int
	// QueueSize bounds the pending-call queue (default 64).
	QueueSize int
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.RequestLimit <= 0 {
		c.RequestLimit = 180
	}
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	return c
}

const (
	// quotaResetMargin pads the wait past the window boundary so a slightly
	// fast local clock can't dispatch into the old window.
	quotaResetMargin = time.Second

	// defaultRetryAfter is used when a throttling response carries no
	// suggested delay.
	defaultRetryAfter = 60 * time.Second

	backoffBase = time.Second
	backoffCap  = 10 * time.Second
)

type call struct {
	name string
	fn   func(ctx context.Context) error
	// done is buffered so the worker never blocks on a caller that gave up
	// waiting. The underlying call still runs to completion.
	done chan error
}

// QuotaStatus is a read-only view of the current quota window.
type QuotaStatus struct {
	Used    int
	Limit   int
	ResetAt time.Time
}

// Scheduler serializes all outbound API calls through a single worker:
// strict FIFO, one call in flight, fixed spacing between dispatches, and a
// hard per-window request budget. Retries happen inside the worker so callers
// see at most one terminal error per operation.
type Scheduler struct {
	log logx.Logger
	cfg SchedulerConfig

	queue chan *call
	quota *quotaWindow
	pace  *rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	statMu sync.Mutex
	stat   QuotaStatus
}

func NewScheduler(cfg SchedulerConfig, log logx.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Scheduler{
		log:   log,
		cfg:   cfg,
		queue: make(chan *call, cfg.QueueSize),
		now:   time.Now,
		sleep: sleepCtx,
		// One token per inter-request interval, no burst beyond a single
		// call, so dispatch spacing holds regardless of call latency.
		pace: rate.NewLimiter(rate.Every(cfg.Window/time.Duration(cfg.RequestLimit)), 1),
	}
	s.quota = newQuotaWindow(cfg.RequestLimit, cfg.Window, func() time.Time { return s.now() })
	s.stat = QuotaStatus{Limit: cfg.RequestLimit}
	return s
}

// Do enqueues one idempotent outbound call and waits for its result.
//
// If ctx is cancelled while the call is queued or in flight, Do returns
// ctx.Err() and detaches: the worker still runs the call to completion (and
// it still consumes quota), only the result is discarded.
func (s *Scheduler) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	c := &call{name: name, fn: fn, done: make(chan error, 1)}
	select {
	case s.queue <- c:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes the queue until ctx is cancelled. It is the only goroutine
// that touches the quota window.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain(ctx.Err())
			return nil
		case c := <-s.queue:
			s.dispatch(ctx, c)
		}
	}
}

func (s *Scheduler) drain(err error) {
	for {
		select {
		case c := <-s.queue:
			c.done <- err
		default:
			return
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, c *call) {
	// Quota gate: suspend, don't drop. Queued work survives the wait.
	if wait := s.quota.reserve(); wait > 0 {
		s.log.Warn("request quota exhausted; waiting for window reset",
			logx.String("call", c.name), logx.Duration("wait", wait))
		if err := s.sleep(ctx, wait+quotaResetMargin); err != nil {
			c.done <- err
			return
		}
		s.quota.reserve() // boundary has passed; rolls the window
	}

	// Fixed inter-request spacing, independent of call latency.
	if err := s.pace.Wait(ctx); err != nil {
		c.done <- err
		return
	}

	s.quota.consume()
	s.publishQuota()

	c.done <- s.execWithRetry(ctx, c)
}

func (s *Scheduler) execWithRetry(ctx context.Context, c *call) error {
	maxAttempts := s.cfg.RetryMax
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = c.fn(ctx)
		if err == nil {
			return nil
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			// Retrying a bad token only burns quota.
			return err
		}

		var thr *ThrottleError
		if errors.As(err, &thr) {
			if attempt == maxAttempts {
				return fmt.Errorf("%w: %s still throttled after %d attempts", ErrQuotaExceeded, c.name, maxAttempts)
			}
			wait := thr.RetryAfter
			if wait <= 0 {
				wait = defaultRetryAfter
			}
			s.log.Warn("throttled by provider; retrying",
				logx.String("call", c.name), logx.Int("attempt", attempt), logx.Duration("wait", wait))
			if serr := s.sleep(ctx, wait); serr != nil {
				return serr
			}
			continue
		}

		if attempt == maxAttempts {
			// Surface the original failure unchanged.
			return err
		}
		delay := backoffDelay(attempt)
		s.log.Debug("request failed; retrying",
			logx.String("call", c.name), logx.Int("attempt", attempt),
			logx.Duration("delay", delay), logx.Err(err))
		if serr := s.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return err
}

// backoffDelay returns the exponential backoff step for the given attempt:
// 1s, 2s, 4s, ... capped at 10s.
func backoffDelay(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	return d
}

func (s *Scheduler) publishQuota() {
	used, limit, resetAt := s.quota.snapshot()
	s.statMu.Lock()
	s.stat = QuotaStatus{Used: used, Limit: limit, ResetAt: resetAt}
	s.statMu.Unlock()
}

// Quota returns the last published quota window usage.
func (s *Scheduler) Quota() QuotaStatus {
	s.statMu.Lock()
	defer s.statMu.Unlock()
	return s.stat
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
