package monitor

import (
	"strings"

	"ynabot/internal/ynab"
)

// FilterConfig lists the substring patterns that mark an entry as system
// noise. The rule set is data, not code, so deployments with localized
// ledgers can swap the strings.
type FilterConfig struct {
	PayeePatterns []string `json:"payee_patterns"`
	MemoPatterns  []string `json:"memo_patterns"`
}

// DefaultFilterConfig matches the adjustments YNAB itself writes into a
// budget: opening balances, manual balance fixes, closed-account markers and
// transfer markers.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		PayeePatterns: []string{"Starting Balance", "Manual Balance Adjustment"},
		MemoPatterns:  []string{"Starting Balance", "Closed Account", "Transfer"},
	}
}

// Filter decides which fetched entries are worth surfacing.
type Filter struct {
	payee []string
	memo  []string
}

func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{
		payee: append([]string(nil), cfg.PayeePatterns...),
		memo:  append([]string(nil), cfg.MemoPatterns...),
	}
}

// Keep reports whether the entry should survive filtering: not deleted, not
// an inter-account transfer, settled (cleared or reconciled), and free of
// noise patterns in payee and memo.
func (f *Filter) Keep(t ynab.Transaction) bool {
	if t.Deleted || t.TransferAccountID != "" {
		return false
	}
	if t.Cleared != ynab.ClearedCleared && t.Cleared != ynab.ClearedReconciled {
		return false
	}
	for _, p := range f.payee {
		if p != "" && strings.Contains(t.PayeeName, p) {
			return false
		}
	}
	for _, p := range f.memo {
		if p != "" && strings.Contains(t.Memo, p) {
			return false
		}
	}
	return true
}
