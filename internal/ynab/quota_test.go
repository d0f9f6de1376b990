package ynab

import (
	"testing"
	"time"
)

func TestQuotaWindowReserve(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := newQuotaWindow(3, time.Hour, func() time.Time { return now })

	for i := 0; i < 3; i++ {
		if wait := q.reserve(); wait != 0 {
			t.Fatalf("request %d: unexpected wait %v", i+1, wait)
		}
		q.consume()
	}

	wait := q.reserve()
	if wait != time.Hour {
		t.Fatalf("expected full window wait, got %v", wait)
	}

	// Partway through the window the wait shrinks accordingly.
	now = now.Add(40 * time.Minute)
	if wait := q.reserve(); wait != 20*time.Minute {
		t.Fatalf("expected 20m wait, got %v", wait)
	}
}

func TestQuotaWindowResetsAtBoundary(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := newQuotaWindow(2, time.Hour, func() time.Time { return now })

	q.reserve()
	q.consume()
	q.consume()

	now = now.Add(time.Hour + time.Second)
	if wait := q.reserve(); wait != 0 {
		t.Fatalf("expected reset at boundary, got wait %v", wait)
	}
	used, limit, resetAt := q.snapshot()
	if used != 0 || limit != 2 {
		t.Fatalf("unexpected snapshot: used=%d limit=%d", used, limit)
	}
	if want := now.Add(time.Hour); !resetAt.Equal(want) {
		t.Fatalf("resetAt = %v, want %v", resetAt, want)
	}
}

func TestQuotaWindowNeverExceedsCeiling(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	q := newQuotaWindow(5, time.Hour, func() time.Time { return now })

	// Arbitrary sequence of requests over several hours: within any single
	// window the tracker must admit at most the ceiling.
	granted := 0
	for i := 0; i < 500; i++ {
		if wait := q.reserve(); wait == 0 {
			q.consume()
			granted++
		} else {
			now = now.Add(wait + time.Second)
			continue
		}
		now = now.Add(37 * time.Second)
	}
	// 500 iterations * 37s spans ~5.1h plus waits; sanity-check the total is
	// far below one ceiling-per-iteration.
	if granted > 5*8 {
		t.Fatalf("granted %d requests, more than ceiling allows across elapsed windows", granted)
	}
}
