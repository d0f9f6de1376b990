// Package app wires configuration, the API scheduler, the monitor, and the
// Telegram transport into one runnable bot.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"ynabot/internal/config"
	"ynabot/internal/format"
	"ynabot/internal/monitor"
	"ynabot/internal/notify"
	"ynabot/internal/runtime/supervisor"
	"ynabot/internal/storage"
	"ynabot/internal/transport"
	"ynabot/internal/transport/telegram"
	"ynabot/internal/ynab"
	logx "ynabot/pkg/logx"
)

const defaultStatePath = "./ynabot_state.json"

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter *telegram.Adapter
	sched   *ynab.Scheduler
	client  *ynab.Client
	cats    *ynab.CategoryCache
	store   storage.Store
	mon     *monitor.Monitor
	notif   *notify.Service
	fmtr    *format.Formatter

	cron    *cron.Cron
	cronID  cron.EntryID
	startAt time.Time
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
	// An omitted logging section still gets console output.
	if !logCfg.Console && !logCfg.File.Enabled {
		logCfg.Console = true
	}
	logSvc, log := logx.New(logCfg)
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		ChatID:      cfg.Telegram.ChatID,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	window, err := config.ParseDurationOrDefault("ynab.quota_window", cfg.YNAB.QuotaWindow, time.Hour)
	if err != nil {
		return nil, err
	}
	reqTimeout, err := config.ParseDurationOrDefault("ynab.request_timeout", cfg.YNAB.RequestTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	ttl, err := config.ParseDurationOrDefault("ynab.category_ttl", cfg.YNAB.CategoryTTL, ynab.DefaultCategoryTTL)
	if err != nil {
		return nil, err
	}

	sched := ynab.NewScheduler(ynab.SchedulerConfig{
		RequestLimit: cfg.YNAB.RequestLimit,
		Window:       window,
		RetryMax:     cfg.YNAB.RetryMax,
	}, logSvc.Logger().With(logx.String("comp", "scheduler")))

	client := ynab.NewClient(ynab.ClientConfig{
		BaseURL:  cfg.YNAB.BaseURL,
		Token:    cfg.YNAB.AccessToken,
		BudgetID: cfg.YNAB.BudgetID,
		Timeout:  reqTimeout,
	}, sched, logSvc.Logger().With(logx.String("comp", "ynab")))

	cats := ynab.NewCategoryCache(client, ttl, logSvc.Logger().With(logx.String("comp", "categories")))

	// State persistence defaults to a JSON file next to the binary.
	storeCfg := storage.Config{Driver: "file", Path: defaultStatePath}
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		storeCfg = storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path, BusyTimeout: busy}
		if storeCfg.Path == "" {
			storeCfg.Path = defaultStatePath
		}
	}
	store, err := storage.Open(storeCfg, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	fmtr := format.New(format.Config{Currency: cfg.Format.Currency, Text: cfg.Format.Text})
	notifSvc := notify.New(ad, fmtr, transport.ChatTarget{ChatID: cfg.Telegram.ChatID},
		logSvc.Logger().With(logx.String("comp", "notify")))

	filter := monitor.DefaultFilterConfig()
	if cfg.Monitor.Filter != nil {
		filter = *cfg.Monitor.Filter
	}
	mon := monitor.New(client, cats, store, notifSvc, filter,
		logSvc.Logger().With(logx.String("comp", "monitor")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		sched:   sched,
		client:  client,
		cats:    cats,
		store:   store,
		mon:     mon,
		notif:   notifSvc,
		fmtr:    fmtr,
	}, nil
}

// Done is closed when the app context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.startAt = time.Now()
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)
	cfg := a.cfgm.Get()
	interval := cfg.PollInterval()

	a.adapter.Handle("/status", a.statusCommand)
	a.adapter.Handle("/check", a.checkCommand)
	if err := a.adapter.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("ynab.scheduler", a.sched.Run)

	if cfg.Monitor.NotifyOnStart {
		sctx, cancel := context.WithTimeout(a.sup.Context(), 15*time.Second)
		if err := a.notif.SendText(sctx, a.fmtr.Startup(interval)); err != nil {
			a.log.Warn("startup message failed", logx.Err(err))
		}
		cancel()
	}

	// First poll happens immediately so a restart doesn't silently sit out
	// a full interval.
	firstTimeout := cfg.FirstCycleTimeout()
	a.sup.Go0("monitor.first_cycle", func(c context.Context) {
		cctx, cancel := context.WithTimeout(c, firstTimeout)
		defer cancel()
		if err := a.mon.RunCycle(cctx); err != nil {
			a.log.Warn("first cycle failed", logx.Err(err))
		}
	})

	a.cron = cron.New()
	id, err := a.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		cctx, cancel := context.WithTimeout(a.sup.Context(), interval)
		defer cancel()
		if err := a.mon.RunCycle(cctx); err != nil {
			a.log.Warn("cycle failed", logx.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule poll: %w", err)
	}
	a.cronID = id
	a.cron.Start()
	a.log.Info("polling scheduled", logx.Duration("interval", interval))

	a.startConfigReload()
	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.notifySystemd()

	a.log.Info("app started")
	return nil
}

// startConfigReload applies hot-reloadable settings: log level/output,
// filter patterns, and the poll interval. Credentials and storage changes
// need a restart.
func (a *App) startConfigReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(last, newCfg)
				last = newCfg
			}
		}
	})
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   newCfg.Logging.Level,
		Console: newCfg.Logging.Console || !newCfg.Logging.File.Enabled,
		File: logx.FileConfig{
			Enabled: newCfg.Logging.File.Enabled,
			Path:    newCfg.Logging.File.Path,
		},
	})

	filter := monitor.DefaultFilterConfig()
	if newCfg.Monitor.Filter != nil {
		filter = *newCfg.Monitor.Filter
	}
	a.mon.ApplyFilter(filter)

	if oldCfg != nil && oldCfg.PollInterval() != newCfg.PollInterval() && a.cron != nil {
		interval := newCfg.PollInterval()
		a.cron.Remove(a.cronID)
		id, err := a.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
			cctx, cancel := context.WithTimeout(a.sup.Context(), interval)
			defer cancel()
			if err := a.mon.RunCycle(cctx); err != nil {
				a.log.Warn("cycle failed", logx.Err(err))
			}
		})
		if err != nil {
			a.log.Warn("reschedule failed; keeping previous interval", logx.Err(err))
		} else {
			a.cronID = id
			a.log.Info("poll interval updated", logx.Duration("interval", interval))
		}
	}

	if oldCfg != nil {
		if oldCfg.YNAB != newCfg.YNAB || derefStorage(oldCfg.Storage) != derefStorage(newCfg.Storage) ||
			oldCfg.Telegram != newCfg.Telegram {
			a.log.Warn("credential/storage/transport changes need a restart to take effect")
		}
	}
}

func derefStorage(s *config.StorageConfig) config.StorageConfig {
	if s == nil {
		return config.StorageConfig{}
	}
	return *s
}

// notifySystemd reports READY and feeds the watchdog when the process runs
// under systemd with Type=notify. Outside systemd both calls are no-ops.
func (a *App) notifySystemd() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	wd, err := daemon.SdWatchdogEnabled(false)
	if err != nil || wd <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		ticker := time.NewTicker(wd / 2)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-time.After(2 * time.Second):
			a.log.Warn("cron jobs still running at stop deadline")
		}
	}

	// Best-effort farewell while the adapter is still up.
	if cfg := a.cfgm.Get(); cfg != nil && cfg.Monitor.NotifyOnStart {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.notif.SendText(sctx, a.fmtr.Shutdown()); err != nil {
			a.log.Debug("shutdown message failed", logx.Err(err))
		}
		cancel()
	}

	a.sup.Cancel()

	a.step(ctx, "adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

// step runs one shutdown action with an upper bound so a single component
// can't stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	stepCtx := ctx
	var cancel context.CancelFunc
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < max {
			max = rem
		}
	}
	stepCtx, cancel = context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
	}
}

// RunOnce performs a single poll cycle and returns: -once mode.
func (a *App) RunOnce(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log))
	sup.Go("ynab.scheduler", a.sched.Run)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = sup.Stop(stopCtx)
		cancel()
		_ = a.store.Close()
	}()

	cctx, cancel := context.WithTimeout(ctx, a.cfgm.Get().FirstCycleTimeout())
	defer cancel()
	return a.mon.RunCycle(cctx)
}

// CheckConnections verifies the configured credentials actually work:
// resolves the budget and fetches the category list. -check mode.
func (a *App) CheckConnections(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log))
	sup.Go("ynab.scheduler", a.sched.Run)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = sup.Stop(stopCtx)
		cancel()
	}()

	id, err := a.client.ResolveBudgetID(ctx)
	if err != nil {
		return fmt.Errorf("resolve budget: %w", err)
	}
	a.log.Info("budget resolved", logx.String("budget_id", id))

	groups, err := a.client.CategoryGroups(ctx)
	if err != nil {
		return fmt.Errorf("fetch categories: %w", err)
	}
	a.log.Info("categories fetched", logx.Int("groups", len(groups)))
	return nil
}
