package app

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// statusCommand renders the /status reply: uptime, cycle counters, and the
// current quota window.
func (a *App) statusCommand(ctx context.Context) (string, error) {
	stats := a.mon.Snapshot()
	quota := a.sched.Quota()

	var sb strings.Builder
	sb.WriteString("<b>ynabot status</b>\n")
	fmt.Fprintf(&sb, "uptime: %s\n", time.Since(a.startAt).Round(time.Second))
	fmt.Fprintf(&sb, "cycles: %d\n", stats.Cycles)
	if stats.LastCycle != "" {
		fmt.Fprintf(&sb, "last cycle: %s\n", stats.LastCycle)
	}
	fmt.Fprintf(&sb, "known transactions: %d\n", stats.KnownIDs)
	fmt.Fprintf(&sb, "last new: %d\n", stats.LastNew)
	if stats.LastError != "" {
		fmt.Fprintf(&sb, "last error: %s\n", stats.LastError)
	}
	fmt.Fprintf(&sb, "quota: %d/%d", quota.Used, quota.Limit)
	if !quota.ResetAt.IsZero() {
		fmt.Fprintf(&sb, " (resets %s)", quota.ResetAt.UTC().Format("15:04:05 MST"))
	}
	return sb.String(), nil
}

// checkCommand forces an immediate poll cycle.
func (a *App) checkCommand(ctx context.Context) (string, error) {
	if err := a.mon.RunCycle(ctx); err != nil {
		return "", err
	}
	stats := a.mon.Snapshot()
	if stats.LastNew == 0 {
		return "checked: no new transactions", nil
	}
	return fmt.Sprintf("checked: %d new transaction(s) sent", stats.LastNew), nil
}
