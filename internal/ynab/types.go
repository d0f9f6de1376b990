package ynab

// Wire types for the YNAB v1 API. Amounts are milliunits (1/1000 of the
// budget currency) and stay integral until formatting.

// Budget is one entry of GET /budgets.
type Budget struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Closed bool   `json:"closed"`
}

// Cleared states reported on a transaction.
const (
	ClearedUncleared  = "uncleared"
	ClearedCleared    = "cleared"
	ClearedReconciled = "reconciled"
)

// Transaction is a single ledger entry. Date is the ISO calendar date
// (YYYY-MM-DD) as reported by the API; IDs are opaque, stable strings.
type Transaction struct {
	ID                string `json:"id"`
	Date              string `json:"date"`
	Amount            int64  `json:"amount"`
	PayeeName         string `json:"payee_name"`
	Memo              string `json:"memo"`
	Cleared           string `json:"cleared"`
	Deleted           bool   `json:"deleted"`
	TransferAccountID string `json:"transfer_account_id"`
	CategoryID        string `json:"category_id"`
	CategoryName      string `json:"category_name"`
}

// Inflow reports whether the entry adds money to the budget.
func (t Transaction) Inflow() bool { return t.Amount > 0 }

// Category carries the budget figures for one category.
type Category struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Budgeted int64  `json:"budgeted"`
	Activity int64  `json:"activity"`
	Balance  int64  `json:"balance"`
	Hidden   bool   `json:"hidden"`
	Deleted  bool   `json:"deleted"`
}

// CategoryGroup is one entry of GET /budgets/{id}/categories.
type CategoryGroup struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Hidden     bool       `json:"hidden"`
	Deleted    bool       `json:"deleted"`
	Categories []Category `json:"categories"`
}

// Response envelopes. The API wraps every payload in {"data": {...}}.

type budgetsEnvelope struct {
	Data struct {
		Budgets []Budget `json:"budgets"`
	} `json:"data"`
}

type transactionsEnvelope struct {
	Data struct {
		Transactions []Transaction `json:"transactions"`
	} `json:"data"`
}

type categoriesEnvelope struct {
	Data struct {
		CategoryGroups []CategoryGroup `json:"category_groups"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Detail string `json:"detail"`
	} `json:"error"`
}
