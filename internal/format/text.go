package format

// TextConfig holds every user-facing phrase so deployments can localize the
// notification text without touching code. Zero-value fields fall back to
// the English defaults.
type TextConfig struct {
	Income          string `json:"income,omitempty"`
	Expense         string `json:"expense,omitempty"`
	Payee           string `json:"payee,omitempty"`
	Memo            string `json:"memo,omitempty"`
	Category        string `json:"category,omitempty"`
	Budget          string `json:"budget,omitempty"`
	Spent           string `json:"spent,omitempty"`
	Remaining       string `json:"remaining,omitempty"`
	NewTransactions string `json:"new_transactions,omitempty"`
	NoBudget        string `json:"no_budget,omitempty"`
	OverBudgetNote  string `json:"over_budget_note,omitempty"`
	UnknownPayee    string `json:"unknown_payee,omitempty"`
	BotStarted      string `json:"bot_started,omitempty"`
	BotError        string `json:"bot_error,omitempty"`
	BotShutdown     string `json:"bot_shutdown,omitempty"`
	Monitoring      string `json:"monitoring,omitempty"`
}

func defaultText() TextConfig {
	return TextConfig{
		Income:          "Income",
		Expense:         "Expense",
		Payee:           "Payee",
		Memo:            "Memo",
		Category:        "Category",
		Budget:          "Budget",
		Spent:           "Spent",
		Remaining:       "Remaining",
		NewTransactions: "new transactions",
		NoBudget:        "No budget set for this category",
		OverBudgetNote:  "over budget",
		UnknownPayee:    "Unknown",
		BotStarted:      "YNAB bot started",
		BotError:        "YNAB bot error",
		BotShutdown:     "YNAB bot shutting down",
		Monitoring:      "Monitoring for new transactions every",
	}
}

// withDefaults fills empty fields from the English defaults.
func (t TextConfig) withDefaults() TextConfig {
	def := defaultText()
	fill := func(dst *string, d string) {
		if *dst == "" {
			*dst = d
		}
	}
	fill(&t.Income, def.Income)
	fill(&t.Expense, def.Expense)
	fill(&t.Payee, def.Payee)
	fill(&t.Memo, def.Memo)
	fill(&t.Category, def.Category)
	fill(&t.Budget, def.Budget)
	fill(&t.Spent, def.Spent)
	fill(&t.Remaining, def.Remaining)
	fill(&t.NewTransactions, def.NewTransactions)
	fill(&t.NoBudget, def.NoBudget)
	fill(&t.OverBudgetNote, def.OverBudgetNote)
	fill(&t.UnknownPayee, def.UnknownPayee)
	fill(&t.BotStarted, def.BotStarted)
	fill(&t.BotError, def.BotError)
	fill(&t.BotShutdown, def.BotShutdown)
	fill(&t.Monitoring, def.Monitoring)
	return t
}
