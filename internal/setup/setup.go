// Package setup implements the interactive first-run wizard: it collects
// credentials, verifies them against both APIs, and writes the config file.
package setup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"ynabot/internal/runtime/supervisor"
	"ynabot/internal/ynab"
	logx "ynabot/pkg/logx"
)

type Wizard struct {
	in  *bufio.Reader
	out io.Writer
	log logx.Logger
}

func New(in io.Reader, out io.Writer, log logx.Logger) *Wizard {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Wizard{in: bufio.NewReader(in), out: out, log: log}
}

// Run walks through the prompts and writes the config to path. An existing
// file is only replaced after confirmation.
func (w *Wizard) Run(ctx context.Context, path string) error {
	fmt.Fprintln(w.out, "ynabot setup")
	fmt.Fprintln(w.out)

	if _, err := os.Stat(path); err == nil {
		ok, err := w.confirm(fmt.Sprintf("%s already exists. Overwrite?", path))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("aborted: %s exists", path)
		}
	}

	ynabToken, err := w.promptRequired("YNAB personal access token")
	if err != nil {
		return err
	}

	budgetID, err := w.pickBudget(ctx, ynabToken)
	if err != nil {
		return err
	}

	tgToken, err := w.promptRequired("Telegram bot token")
	if err != nil {
		return err
	}
	chatID, err := w.promptChatID()
	if err != nil {
		return err
	}
	interval, err := w.promptInterval()
	if err != nil {
		return err
	}
	notifyOnStart, err := w.confirm("Send a message when the bot starts?")
	if err != nil {
		return err
	}

	// Config fields carry json tags, so build the YAML document explicitly.
	doc := map[string]any{
		"ynab": map[string]any{
			"access_token": ynabToken,
			"budget_id":    budgetID,
		},
		"telegram": map[string]any{
			"token":   tgToken,
			"chat_id": chatID,
		},
		"monitor": map[string]any{
			"poll_interval":   interval.String(),
			"notify_on_start": notifyOnStart,
		},
		"storage": map[string]any{
			"driver": "file",
			"path":   "./ynabot_state.json",
		},
		"logging": map[string]any{
			"level":   "info",
			"console": true,
		},
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return err
	}

	fmt.Fprintf(w.out, "\nWrote %s. Start the bot with: ynabot -config %s\n", path, path)
	return nil
}

// pickBudget verifies the token by listing budgets and lets the user choose
// one. A single open budget is picked automatically.
func (w *Wizard) pickBudget(ctx context.Context, token string) (string, error) {
	sched := ynab.NewScheduler(ynab.SchedulerConfig{}, w.log)
	sup := supervisor.New(ctx, supervisor.WithLogger(w.log))
	sup.Go("ynab.scheduler", sched.Run)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = sup.Stop(stopCtx)
		cancel()
	}()

	client := ynab.NewClient(ynab.ClientConfig{Token: token}, sched, w.log)
	fmt.Fprintln(w.out, "Checking YNAB access...")
	budgets, err := client.Budgets(ctx)
	if err != nil {
		return "", fmt.Errorf("could not list budgets (is the token right?): %w", err)
	}

	open := budgets[:0:0]
	for _, b := range budgets {
		if !b.Closed {
			open = append(open, b)
		}
	}
	switch len(open) {
	case 0:
		return "", ynab.ErrNoOpenBudget
	case 1:
		fmt.Fprintf(w.out, "Using budget %q\n", open[0].Name)
		return open[0].ID, nil
	}

	fmt.Fprintln(w.out, "Open budgets:")
	for i, b := range open {
		fmt.Fprintf(w.out, "  %d) %s\n", i+1, b.Name)
	}
	for {
		raw, err := w.prompt(fmt.Sprintf("Pick a budget [1-%d]", len(open)))
		if err != nil {
			return "", err
		}
		n, err := strconv.Atoi(raw)
		if err == nil && n >= 1 && n <= len(open) {
			return open[n-1].ID, nil
		}
		fmt.Fprintln(w.out, "Invalid choice.")
	}
}

func (w *Wizard) promptChatID() (int64, error) {
	for {
		raw, err := w.prompt("Telegram chat id (e.g. from @userinfobot)")
		if err != nil {
			return 0, err
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && id != 0 {
			return id, nil
		}
		fmt.Fprintln(w.out, "Chat id must be a non-zero integer.")
	}
}

func (w *Wizard) promptInterval() (time.Duration, error) {
	for {
		raw, err := w.prompt("Poll interval [5m]")
		if err != nil {
			return 0, err
		}
		if raw == "" {
			return 5 * time.Minute, nil
		}
		d, err := time.ParseDuration(raw)
		if err == nil && d >= 20*time.Second {
			return d, nil
		}
		fmt.Fprintln(w.out, "Use a Go duration of at least 20s (e.g. 5m, 90s).")
	}
}

func (w *Wizard) promptRequired(label string) (string, error) {
	for {
		v, err := w.prompt(label)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
		fmt.Fprintln(w.out, "A value is required.")
	}
}

func (w *Wizard) confirm(label string) (bool, error) {
	v, err := w.prompt(label + " [y/N]")
	if err != nil {
		return false, err
	}
	v = strings.ToLower(v)
	return v == "y" || v == "yes", nil
}

func (w *Wizard) prompt(label string) (string, error) {
	fmt.Fprintf(w.out, "%s: ", label)
	line, err := w.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
