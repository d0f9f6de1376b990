package format

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ynabot/internal/monitor"
	"ynabot/internal/ynab"
)

// Config configures the formatter.
type Config struct {
	// Currency is an ISO code; EUR renders €, everything else $.
	Currency string
	Text     TextConfig
}

// Message is one rendered notification: a plain-text body and its HTML
// variant for transports that support rich text.
type Message struct {
	Plain string
	HTML  string
}

const progressBarWidth = 10

// Formatter renders monitor output into chat messages.
type Formatter struct {
	text   TextConfig
	symbol string
}

func New(cfg Config) *Formatter {
	symbol := "$"
	if strings.EqualFold(cfg.Currency, "EUR") {
		symbol = "€"
	}
	return &Formatter{text: cfg.Text.withDefaults(), symbol: symbol}
}

// Batch renders an ordered batch of new entries as one logical message.
func (f *Formatter) Batch(b monitor.Batch) Message {
	var sb strings.Builder

	if len(b.Entries) > 1 {
		fmt.Fprintf(&sb, "**%d %s**\n\n", len(b.Entries), f.text.NewTransactions)
	}

	for i, e := range b.Entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		f.writeEntry(&sb, e, b)
	}

	plain := sb.String()
	return Message{Plain: plain, HTML: toHTML(plain)}
}

func (f *Formatter) writeEntry(sb *strings.Builder, e ynab.Transaction, b monitor.Batch) {
	kind := f.text.Expense
	if e.Inflow() {
		kind = f.text.Income
	}
	payee := e.PayeeName
	if payee == "" {
		payee = f.text.UnknownPayee
	}

	fmt.Fprintf(sb, "**%s** %s, %s: *%s*", f.Money(e.Amount), kind, f.text.Payee, payee)
	if e.Memo != "" {
		fmt.Fprintf(sb, ". %s: *%s*", f.text.Memo, e.Memo)
	}
	sb.WriteString(".")

	// Budget context only makes sense for outflows.
	cc, ok := b.Categories[e.CategoryID]
	if !ok || e.Inflow() {
		return
	}
	fmt.Fprintf(sb, "\n**%s:** %s (%s)\n", f.text.Category, cc.Name, cc.Group)

	if !cc.HasBudget {
		fmt.Fprintf(sb, "└ %s", f.text.NoBudget)
		return
	}

	pct := percentUsed(cc.Spent, cc.Budgeted)
	fmt.Fprintf(sb, "└ %s: %s - %s: %s (%d%%)\n",
		f.text.Budget, f.Money(cc.Budgeted), f.text.Spent, f.Money(cc.Spent), pct)
	fmt.Fprintf(sb, "└ %s %s: %s", progressBar(pct), f.text.Remaining, f.signedMoney(cc.Remaining))
	if pct > 100 {
		fmt.Fprintf(sb, " (%s)", f.text.OverBudgetNote)
	}
}

// Alert renders a critical-error notification.
func (f *Formatter) Alert(cause error) Message {
	plain := fmt.Sprintf("🚨 %s: %s", f.text.BotError, cause.Error())
	return Message{Plain: plain, HTML: toHTML(plain)}
}

// Startup renders the optional started message.
func (f *Formatter) Startup(interval time.Duration) Message {
	plain := fmt.Sprintf("🤖 %s\n%s %s", f.text.BotStarted, f.text.Monitoring, interval)
	return Message{Plain: plain, HTML: toHTML(plain)}
}

// Shutdown renders the shutting-down message.
func (f *Formatter) Shutdown() Message {
	plain := "🛑 " + f.text.BotShutdown
	return Message{Plain: plain, HTML: toHTML(plain)}
}

// Money renders a milliunit amount as an unsigned fixed-point value with the
// currency symbol, e.g. 12.50 €.
func (f *Formatter) Money(milliunits int64) string {
	v := decimal.NewFromInt(milliunits).Div(decimal.NewFromInt(1000)).Abs()
	return v.StringFixed(2) + " " + f.symbol
}

// signedMoney keeps the sign, for remaining-budget values that can go
// negative.
func (f *Formatter) signedMoney(milliunits int64) string {
	if milliunits < 0 {
		return "-" + f.Money(milliunits)
	}
	return f.Money(milliunits)
}

// percentUsed is the rounded spent/budgeted percentage, uncapped so callers
// can detect overspend.
func percentUsed(spent, budgeted int64) int {
	if budgeted <= 0 {
		return 0
	}
	return int((spent*100 + budgeted/2) / budgeted)
}

// progressBar renders pct as a 10-cell bar, e.g. ███░░░░░░░. Values over
// 100% fill the bar completely.
func progressBar(pct int) string {
	filled := pct * progressBarWidth / 100
	if filled > progressBarWidth {
		filled = progressBarWidth
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
}

var (
	reBold   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	reItalic = regexp.MustCompile(`\*(.*?)\*`)
	reCode   = regexp.MustCompile("`(.*?)`")
)

// toHTML converts the light markdown used above into the HTML subset chat
// transports accept (<b>, <i>, <code>). Raw HTML in payees/memos is escaped
// first.
func toHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = reBold.ReplaceAllString(s, "<b>$1</b>")
	s = reItalic.ReplaceAllString(s, "<i>$1</i>")
	s = reCode.ReplaceAllString(s, "<code>$1</code>")
	return s
}
