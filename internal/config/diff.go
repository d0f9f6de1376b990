package config

import (
	"reflect"
	"sort"
	"strings"

	logx "ynabot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Tokens never appear in the output.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	// YNAB (never log the token; only whether it changed)
	if oldCfg.YNAB != newCfg.YNAB {
		changed = append(changed, "ynab")
		attrs = append(attrs,
			logx.String("ynab.budget_id", strings.TrimSpace(newCfg.YNAB.BudgetID)),
			logx.Int("ynab.request_limit", newCfg.YNAB.RequestLimit),
			logx.String("ynab.quota_window", strings.TrimSpace(newCfg.YNAB.QuotaWindow)),
			logx.Bool("ynab.token_changed", oldCfg.YNAB.AccessToken != newCfg.YNAB.AccessToken),
		)
	}

	// Telegram (never log the token)
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	// Monitor (interval, startup message, filter patterns)
	if !reflect.DeepEqual(oldCfg.Monitor, newCfg.Monitor) {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.poll_interval", strings.TrimSpace(newCfg.Monitor.PollInterval)),
			logx.Bool("monitor.notify_on_start", newCfg.Monitor.NotifyOnStart),
			logx.Bool("monitor.filter_set", newCfg.Monitor.Filter != nil),
		)
	}

	if !reflect.DeepEqual(oldCfg.Format, newCfg.Format) {
		changed = append(changed, "format")
		attrs = append(attrs, logx.String("format.currency", strings.TrimSpace(newCfg.Format.Currency)))
	}

	// Storage. Nil means in-memory only.
	oldS, newS := derefStorage(oldCfg.Storage), derefStorage(newCfg.Storage)
	if oldS != newS || (oldCfg.Storage == nil) != (newCfg.Storage == nil) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newS.Path) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefStorage(s *StorageConfig) StorageConfig {
	if s == nil {
		return StorageConfig{}
	}
	return *s
}
