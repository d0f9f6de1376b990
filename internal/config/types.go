package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ynabot/internal/format"
	"ynabot/internal/monitor"
)

type Config struct {
	YNAB     YNABConfig     `json:"ynab"`
	Telegram TelegramConfig `json:"telegram"`
	Monitor  MonitorConfig  `json:"monitor"`
	Format   FormatConfig   `json:"format,omitempty"`
	Storage  *StorageConfig `json:"storage,omitempty"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// YNABConfig controls API access and the request quota.
//
// All durations are Go duration strings (e.g. "30s", "1h").
type YNABConfig struct {
	// AccessToken is a YNAB personal access token. Prefer the
	// YNAB_ACCESS_TOKEN env var over putting it in the file.
	AccessToken string `json:"access_token,omitempty"`

	// BudgetID selects the budget to watch. Empty or "default" picks the
	// first open budget on the account.
	BudgetID string `json:"budget_id,omitempty"`

	// BaseURL overrides the API endpoint. Leave empty for production.
	BaseURL string `json:"base_url,omitempty"`

	// RequestLimit caps API calls per QuotaWindow. The API allows 200/h;
	// the default of 180 keeps 10% headroom for manual use.
	RequestLimit int    `json:"request_limit,omitempty"`
	QuotaWindow  string `json:"quota_window,omitempty"` // default "1h"

	RetryMax       int    `json:"retry_max,omitempty"`       // default 3
	RequestTimeout string `json:"request_timeout,omitempty"` // default "30s"
	CategoryTTL    string `json:"category_ttl,omitempty"`    // default "30m"
}

type TelegramConfig struct {
	// Token is the bot token. Prefer the TELEGRAM_BOT_TOKEN env var.
	Token string `json:"token,omitempty"`
	// ChatID is the chat that receives notifications. Prefer the
	// TELEGRAM_CHAT_ID env var.
	ChatID int64 `json:"chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// MonitorConfig controls the polling cycle and transaction filtering.
type MonitorConfig struct {
	// PollInterval is a Go duration string. Default "5m". Intervals under
	// QuotaWindow/RequestLimit would starve on the quota and are rejected.
	PollInterval string `json:"poll_interval,omitempty"`

	// NotifyOnStart sends a startup message to the chat.
	NotifyOnStart bool `json:"notify_on_start,omitempty"`

	// FirstCycleTimeout bounds the immediate poll performed at startup.
	FirstCycleTimeout string `json:"first_cycle_timeout,omitempty"` // default "2m"

	// Filter replaces the built-in payee/memo skip patterns when set.
	Filter *monitor.FilterConfig `json:"filter,omitempty"`
}

type FormatConfig struct {
	// Currency is an ISO code used for the symbol; default "EUR".
	Currency string `json:"currency,omitempty"`
	// Text overrides user-facing phrases (localization).
	Text format.TextConfig `json:"text,omitempty"`
}

// StorageConfig controls where known-transaction state is persisted.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./ynabot_state.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console,omitempty"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

const (
	defaultPollInterval      = 5 * time.Minute
	defaultFirstCycleTimeout = 2 * time.Minute
	defaultQuotaWindow       = time.Hour
	defaultRequestLimit      = 180
)

// ApplyEnv overlays secrets and identifiers from the environment so the
// config file never needs to hold credentials.
func (c *Config) ApplyEnv() error {
	if v := strings.TrimSpace(os.Getenv("YNAB_ACCESS_TOKEN")); v != "" {
		c.YNAB.AccessToken = v
	}
	if v := strings.TrimSpace(os.Getenv("YNAB_BUDGET_ID")); v != "" {
		c.YNAB.BudgetID = v
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: invalid chat id %q: %w", v, err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// Validate checks required fields and duration syntax. It does not touch
// the network; connectivity is verified separately at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.YNAB.AccessToken) == "" {
		return fmt.Errorf("ynab.access_token is required (or set YNAB_ACCESS_TOKEN)")
	}
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set TELEGRAM_BOT_TOKEN)")
	}
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required (or set TELEGRAM_CHAT_ID)")
	}
	if c.YNAB.RequestLimit < 0 {
		return fmt.Errorf("ynab.request_limit must be >= 0")
	}

	window, err := ParseDurationOrDefault("ynab.quota_window", c.YNAB.QuotaWindow, defaultQuotaWindow)
	if err != nil {
		return err
	}
	if _, err := ParseDurationField("ynab.request_timeout", c.YNAB.RequestTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("ynab.category_ttl", c.YNAB.CategoryTTL); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("monitor.first_cycle_timeout", c.Monitor.FirstCycleTimeout); err != nil {
		return err
	}

	interval, err := ParseDurationOrDefault("monitor.poll_interval", c.Monitor.PollInterval, defaultPollInterval)
	if err != nil {
		return err
	}
	limit := c.YNAB.RequestLimit
	if limit == 0 {
		limit = defaultRequestLimit
	}
	// Each cycle costs at least one API call; polling faster than the quota
	// admits would stall every cycle on the rate gate.
	if minInterval := window / time.Duration(limit); interval < minInterval {
		return fmt.Errorf("monitor.poll_interval %s is below the quota floor %s (%d requests per %s)",
			interval, minInterval, limit, window)
	}

	if c.Storage != nil {
		switch strings.TrimSpace(c.Storage.Driver) {
		case "", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// PollInterval returns the parsed poll interval with the default applied.
// Call Validate first; a malformed value falls back to the default here.
func (c *Config) PollInterval() time.Duration {
	d, err := ParseDurationOrDefault("monitor.poll_interval", c.Monitor.PollInterval, defaultPollInterval)
	if err != nil {
		return defaultPollInterval
	}
	return d
}

// FirstCycleTimeout returns the parsed startup-poll timeout.
func (c *Config) FirstCycleTimeout() time.Duration {
	d, err := ParseDurationOrDefault("monitor.first_cycle_timeout", c.Monitor.FirstCycleTimeout, defaultFirstCycleTimeout)
	if err != nil {
		return defaultFirstCycleTimeout
	}
	return d
}
