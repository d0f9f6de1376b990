package ynab

import "time"

// quotaWindow tracks the rolling one-hour request budget. It is owned by the
// scheduler worker goroutine and must not be shared.
//
// The ceiling is set below the provider's hard limit (180 of 200/h) so a
// clock-skewed window boundary can't push us over.
type quotaWindow struct {
	limit  int
	window time.Duration

	count   int
	resetAt time.Time

	now func() time.Time
}

func newQuotaWindow(limit int, window time.Duration, now func() time.Time) *quotaWindow {
	if now == nil {
		now = time.Now
	}
	return &quotaWindow{
		limit:   limit,
		window:  window,
		resetAt: now().Add(window),
		now:     now,
	}
}

// reserve rolls the window forward if its boundary has passed and reports how
// long the caller must wait before the next request may go out. Zero means
// the budget has room now.
func (q *quotaWindow) reserve() time.Duration {
	now := q.now()
	if !now.Before(q.resetAt) {
		q.count = 0
		q.resetAt = now.Add(q.window)
	}
	if q.count < q.limit {
		return 0
	}
	return q.resetAt.Sub(now)
}

// consume records one dispatched request. Failed calls still count; the
// provider bills them against the same quota.
func (q *quotaWindow) consume() { q.count++ }

// snapshot returns the current usage for status reporting.
func (q *quotaWindow) snapshot() (used, limit int, resetAt time.Time) {
	return q.count, q.limit, q.resetAt
}
