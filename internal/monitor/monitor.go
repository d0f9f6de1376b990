package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ynabot/internal/storage"
	"ynabot/internal/ynab"

	logx "ynabot/pkg/logx"
)

const dateLayout = "2006-01-02"

// Monitor turns the repeatedly-fetched transaction snapshot into a stream of
// new-entry notifications.
//
// Delivery is at-least-once: known ids are committed only after the notifier
// accepts a batch, so a crash between send and persist can replay that batch
// on the next start. The reverse (recorded but never sent) cannot happen.
type Monitor struct {
	log    logx.Logger
	ledger Ledger
	cats   CategoryProvider
	store  storage.Store
	notif  Notifier

	fmu    sync.RWMutex
	filter *Filter

	// busy guards against overlapping cycles; an overlapping trigger is a
	// caller bug and gets skipped, not queued.
	busy atomic.Bool

	known  map[string]struct{}
	loaded bool

	now func() time.Time

	statMu sync.Mutex
	stats  Stats
}

func New(ledger Ledger, cats CategoryProvider, store storage.Store, notif Notifier, filter FilterConfig, log logx.Logger) *Monitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{
		log:    log,
		ledger: ledger,
		cats:   cats,
		store:  store,
		notif:  notif,
		filter: NewFilter(filter),
		known:  map[string]struct{}{},
		now:    time.Now,
	}
}

// ApplyFilter swaps the noise patterns at runtime (config reload).
func (m *Monitor) ApplyFilter(cfg FilterConfig) {
	m.fmu.Lock()
	m.filter = NewFilter(cfg)
	m.fmu.Unlock()
}

// LoadState pulls the persisted known-id set. Missing or corrupt state loads
// as empty and the next cycle re-baselines.
func (m *Monitor) LoadState(ctx context.Context) error {
	st, err := m.store.Load(ctx)
	if err != nil {
		m.log.Warn("loading state failed; starting from empty state", logx.Err(err))
		st = storage.State{}
	}
	m.known = make(map[string]struct{}, len(st.KnownIDs))
	for _, id := range st.KnownIDs {
		m.known[id] = struct{}{}
	}
	m.loaded = true
	if len(m.known) > 0 {
		m.log.Info("state loaded", logx.Int("known_ids", len(m.known)), logx.Time("saved_at", st.SavedAt))
	}
	return nil
}

// RunCycle executes one poll cycle. It is non-reentrant: a cycle triggered
// while one is still in flight is skipped.
func (m *Monitor) RunCycle(ctx context.Context) error {
	if !m.busy.CompareAndSwap(false, true) {
		m.log.Warn("poll cycle still running; skipping this trigger")
		return nil
	}
	defer m.busy.Store(false)

	start := m.now()
	sent, err := m.cycle(ctx)

	m.statMu.Lock()
	m.stats.Cycles++
	m.stats.LastCycle = start.Format(time.RFC3339)
	m.stats.KnownIDs = len(m.known)
	m.stats.LastNew = sent
	if err != nil {
		m.stats.LastError = err.Error()
	} else {
		m.stats.LastError = ""
	}
	m.statMu.Unlock()

	return err
}

// cycle runs one fetch/diff/notify pass and reports how many new entries
// went out. Quiet, baseline, and failed cycles all report zero.
func (m *Monitor) cycle(ctx context.Context) (int, error) {
	if !m.loaded {
		_ = m.LoadState(ctx)
	}

	today := m.now().Format(dateLayout)
	m.log.Debug("fetching transactions", logx.String("since", today))

	txns, err := m.ledger.Transactions(ctx, today)
	if err != nil {
		err = fmt.Errorf("fetching transactions: %w", err)
		m.alert(ctx, err)
		return 0, err
	}

	filtered := m.filterEntries(txns)
	sortEntries(filtered)
	m.log.Debug("transactions fetched",
		logx.Int("total", len(txns)), logx.Int("kept", len(filtered)), logx.Int("known", len(m.known)))

	// Fresh start (or state lost): record what exists without notifying, so
	// a wiped state file never causes a notification storm.
	if len(m.known) == 0 {
		for _, t := range filtered {
			m.known[t.ID] = struct{}{}
		}
		m.persist(ctx)
		m.log.Info("baseline established", logx.Int("entries", len(filtered)))
		return 0, nil
	}

	fresh := diffEntries(filtered, m.known)
	if len(fresh) == 0 {
		return 0, nil
	}
	m.log.Info("new transactions detected", logx.Int("count", len(fresh)))

	batch := Batch{Entries: fresh, Categories: map[string]CategoryContext{}}

	// Force-refresh so the notification carries current budget figures.
	groups, err := m.cats.Get(ctx, true)
	switch {
	case err == nil:
		batch.Categories = buildLookup(fresh, groups)
	case ynab.IsCritical(err):
		err = fmt.Errorf("resolving categories: %w", err)
		m.alert(ctx, err)
		return 0, err
	default:
		// Transient: the batch still goes out, just without budget context.
		m.log.Warn("category resolution failed; sending without budget context", logx.Err(err))
	}

	if err := m.notif.SendBatch(ctx, batch); err != nil {
		// No commit: the same entries are re-offered next cycle.
		return 0, fmt.Errorf("sending notification: %w", err)
	}

	for _, t := range fresh {
		m.known[t.ID] = struct{}{}
	}
	m.persist(ctx)
	return len(fresh), nil
}

func (m *Monitor) filterEntries(txns []ynab.Transaction) []ynab.Transaction {
	m.fmu.RLock()
	f := m.filter
	m.fmu.RUnlock()

	kept := make([]ynab.Transaction, 0, len(txns))
	for _, t := range txns {
		if f.Keep(t) {
			kept = append(kept, t)
		}
	}
	return kept
}

// sortEntries orders newest-first: descending by date, then descending by id
// for entries sharing a date. ISO dates compare correctly as strings. The id
// tie-break assumes lexically greater ids are newer; that is an
// approximation of recency, kept for determinism.
func sortEntries(entries []ynab.Transaction) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date > entries[j].Date
		}
		return entries[i].ID > entries[j].ID
	})
}

// diffEntries returns the entries whose id is not yet known, preserving
// order.
func diffEntries(entries []ynab.Transaction, known map[string]struct{}) []ynab.Transaction {
	var fresh []ynab.Transaction
	for _, t := range entries {
		if _, ok := known[t.ID]; !ok {
			fresh = append(fresh, t)
		}
	}
	return fresh
}

// buildLookup resolves budget context for each new entry's category. Entries
// with no category, or whose category vanished from the tree, simply stay
// absent from the map.
func buildLookup(entries []ynab.Transaction, groups []ynab.CategoryGroup) map[string]CategoryContext {
	wanted := make(map[string]struct{}, len(entries))
	for _, t := range entries {
		if t.CategoryID != "" {
			wanted[t.CategoryID] = struct{}{}
		}
	}

	out := make(map[string]CategoryContext, len(wanted))
	for _, g := range groups {
		for _, c := range g.Categories {
			if _, ok := wanted[c.ID]; ok {
				out[c.ID] = enrich(g.Name, c)
			}
		}
	}
	return out
}

// persist flushes the known-id set. Failure is logged, not fatal: the
// in-memory set stays authoritative for the rest of the run.
func (m *Monitor) persist(ctx context.Context) {
	ids := make([]string, 0, len(m.known))
	for id := range m.known {
		ids = append(ids, id)
	}
	st := storage.State{KnownIDs: ids, SavedAt: m.now()}
	if err := m.store.Save(ctx, st); err != nil {
		m.log.Warn("persisting state failed; continuing with in-memory state", logx.Err(err))
	}
}

// alert pushes a critical failure to the operator, best-effort.
func (m *Monitor) alert(ctx context.Context, cause error) {
	if err := m.notif.SendAlert(ctx, cause); err != nil {
		m.log.Warn("sending alert failed", logx.Err(err))
	}
}

// Snapshot returns current monitor statistics for status reporting.
func (m *Monitor) Snapshot() Stats {
	m.statMu.Lock()
	defer m.statMu.Unlock()
	return m.stats
}
