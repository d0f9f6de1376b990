package ynab

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQuotaExceeded is returned when the provider keeps throttling an
	// operation past the scheduler's retry budget.
	ErrQuotaExceeded = errors.New("ynab: request quota exceeded")

	// ErrNoOpenBudget is returned by budget resolution when the account has
	// no named, open budget to fall back to.
	ErrNoOpenBudget = errors.New("ynab: no open budget found")
)

// APIError is a non-throttling HTTP failure from the API.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("ynab: api error (status %d)", e.Status)
	}
	return fmt.Sprintf("ynab: api error (status %d): %s", e.Status, e.Detail)
}

// AuthError marks a 401/403 response. It is never retried.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("ynab: authentication failed (status %d)", e.Status)
}

// ThrottleError marks a 429 response. RetryAfter is the provider's suggested
// wait; zero means the header was absent.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("ynab: throttled (retry after %s)", e.RetryAfter)
	}
	return "ynab: throttled"
}

// IsCritical reports whether err should be surfaced to the operator as an
// alert rather than quietly retried on the next cycle.
func IsCritical(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrNoOpenBudget) {
		return true
	}
	var ae *AuthError
	return errors.As(err, &ae)
}
