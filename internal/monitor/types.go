package monitor

import (
	"context"

	"ynabot/internal/ynab"
)

// Ledger is the transaction source. *ynab.Client satisfies it.
type Ledger interface {
	Transactions(ctx context.Context, since string) ([]ynab.Transaction, error)
}

// CategoryProvider is the budget-context source. *ynab.CategoryCache
// satisfies it.
type CategoryProvider interface {
	Get(ctx context.Context, force bool) ([]ynab.CategoryGroup, error)
}

// Notifier delivers one logical message per call. The monitor only cares
// about ordering and enrichment; rendering and transport live behind this
// interface.
type Notifier interface {
	SendBatch(ctx context.Context, batch Batch) error
	SendAlert(ctx context.Context, alertErr error) error
}

// Batch is an ordered set of newly-detected entries plus the budget context
// resolved for them. Categories may be missing entries; the notifier renders
// those without budget figures.
type Batch struct {
	Entries    []ynab.Transaction
	Categories map[string]CategoryContext
}

// CategoryContext is the budget view attached to a notification.
// Remaining comes straight from the source balance; it is not recomputed.
type CategoryContext struct {
	Name      string
	Group     string
	Budgeted  int64
	Spent     int64
	Remaining int64
	HasBudget bool
}

// Stats is a point-in-time view of the monitor for status reporting.
type Stats struct {
	Cycles    int
	LastCycle string
	LastError string
	KnownIDs  int
	LastNew   int
}

// enrich derives the notification view of one category.
func enrich(group string, c ynab.Category) CategoryContext {
	spent := c.Activity
	if spent < 0 {
		spent = -spent
	}
	return CategoryContext{
		Name:      c.Name,
		Group:     group,
		Budgeted:  c.Budgeted,
		Spent:     spent,
		Remaining: c.Balance,
		HasBudget: c.Budgeted > 0,
	}
}
