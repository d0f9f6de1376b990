package ynab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "ynabot/pkg/logx"
)

// ClientConfig configures the API client.
type ClientConfig struct {
	// BaseURL defaults to the public v1 endpoint.
	BaseURL string
	// Token is the personal access token (bearer auth).
	Token string
	// BudgetID pins the monitored budget. Empty or "default" means "resolve
	// the first named, open budget".
	BudgetID string
	// Timeout is the per-request HTTP timeout (default 30s).
	Timeout time.Duration
}

const defaultBaseURL = "https://api.ynab.com/v1"

// Client exposes the typed read operations the monitor needs. Every call goes
// through the scheduler; the client itself never retries.
type Client struct {
	cfg   ClientConfig
	log   logx.Logger
	sched *Scheduler
	http  *http.Client

	mu       sync.Mutex
	resolved string
}

func NewClient(cfg ClientConfig, sched *Scheduler, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:   cfg,
		log:   log,
		sched: sched,
		http:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Budgets fetches the budget list.
func (c *Client) Budgets(ctx context.Context) ([]Budget, error) {
	var env budgetsEnvelope
	err := c.sched.Do(ctx, "budgets", func(ctx context.Context) error {
		return c.get(ctx, "/budgets", &env)
	})
	if err != nil {
		return nil, err
	}
	return env.Data.Budgets, nil
}

// ResolveBudgetID returns the monitored budget id. A configured id wins;
// otherwise the first named, open budget is picked and cached for the
// client's lifetime.
func (c *Client) ResolveBudgetID(ctx context.Context) (string, error) {
	if id := strings.TrimSpace(c.cfg.BudgetID); id != "" && id != "default" {
		return id, nil
	}

	c.mu.Lock()
	cached := c.resolved
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	budgets, err := c.Budgets(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving budget: %w", err)
	}
	for _, b := range budgets {
		if b.Name != "" && !b.Closed {
			c.mu.Lock()
			c.resolved = b.ID
			c.mu.Unlock()
			c.log.Info("resolved default budget", logx.String("budget_id", b.ID), logx.String("name", b.Name))
			return b.ID, nil
		}
	}
	return "", ErrNoOpenBudget
}

// Transactions returns every entry touched on or after since (inclusive,
// YYYY-MM-DD). An empty since returns the full history.
func (c *Client) Transactions(ctx context.Context, since string) ([]Transaction, error) {
	budgetID, err := c.ResolveBudgetID(ctx)
	if err != nil {
		return nil, err
	}

	path := "/budgets/" + url.PathEscape(budgetID) + "/transactions"
	if since != "" {
		path += "?since_date=" + url.QueryEscape(since)
	}

	var env transactionsEnvelope
	err = c.sched.Do(ctx, "transactions", func(ctx context.Context) error {
		return c.get(ctx, path, &env)
	})
	if err != nil {
		return nil, err
	}
	return env.Data.Transactions, nil
}

// CategoryGroups returns the category tree with budget figures.
func (c *Client) CategoryGroups(ctx context.Context) ([]CategoryGroup, error) {
	budgetID, err := c.ResolveBudgetID(ctx)
	if err != nil {
		return nil, err
	}

	var env categoriesEnvelope
	err = c.sched.Do(ctx, "categories", func(ctx context.Context) error {
		return c.get(ctx, "/budgets/"+url.PathEscape(budgetID)+"/categories", &env)
	})
	if err != nil {
		return nil, err
	}
	return env.Data.CategoryGroups, nil
}

// get performs exactly one outbound call and classifies the response. Retry
// policy lives in the scheduler, not here.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ynab: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ThrottleError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 400:
		var env errorEnvelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &APIError{Status: resp.StatusCode, Detail: env.Error.Detail}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ynab: decoding response: %w", err)
	}
	return nil
}

// parseRetryAfter reads a Retry-After header given in whole seconds. Zero
// means absent/unparseable; the scheduler substitutes its default.
func parseRetryAfter(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
