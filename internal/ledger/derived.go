package ledger

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/SrirammananS/finday/internal/domain"
)

// dedupeTransactions collapses transactions sharing (id, date, amount) into
// one, keeping the first occurrence and the original order. The remote
// store can hold duplicate rows (legacy monthly tables, concurrent
// writers); the pass is idempotent.
func dedupeTransactions(txs []*domain.Transaction) []*domain.Transaction {
	seen := make(map[string]bool, len(txs))
	out := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		key := tx.ID + "|" + tx.Date.Format("2006-01-02") + "|" + tx.Amount.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tx)
	}
	return out
}

// categorizeLocked picks a category whose keywords match the description.
// Caller holds mu. Returns empty when nothing matches.
func (o *Orchestrator) categorizeLocked(description string) string {
	desc := strings.ToLower(description)

	names := make([]string, 0, len(o.categories))
	for name := range o.categories {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic pick when several match

	for _, name := range names {
		for _, kw := range o.categories[name].Keywords {
			if kw != "" && strings.Contains(desc, strings.ToLower(kw)) {
				return name
			}
		}
	}
	return ""
}

// Transactions returns a copy of the transaction list in storage order.
func (o *Orchestrator) Transactions() []*domain.Transaction {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*domain.Transaction, len(o.transactions))
	copy(out, o.transactions)
	return out
}

// Accounts returns the accounts sorted by name.
func (o *Orchestrator) Accounts() []*domain.Account {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*domain.Account, 0, len(o.accounts))
	for _, a := range o.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Account returns one account by id.
func (o *Orchestrator) Account(id string) (*domain.Account, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.accounts[id]
	return a, ok
}

// Categories returns the categories sorted by name.
func (o *Orchestrator) Categories() []*domain.Category {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*domain.Category, 0, len(o.categories))
	for _, c := range o.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bills returns the bill templates sorted by name.
func (o *Orchestrator) Bills() []*domain.Bill {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*domain.Bill, 0, len(o.bills))
	for _, b := range o.bills {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BillPayments returns the generated instances sorted by due date, newest
// first.
func (o *Orchestrator) BillPayments() []*domain.BillPayment {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*domain.BillPayment, 0, len(o.payments))
	for _, p := range o.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.After(out[j].DueDate) })
	return out
}

// ClosedPeriods returns the sorted list of immutable periods.
func (o *Orchestrator) ClosedPeriods() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]string, 0, len(o.closed))
	for p := range o.closed {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// FriendBalances folds every transaction carrying a counterparty name into
// a running balance per friend. An expense means the friend owes the owner
// its absolute amount; income reduces what they owe. Derived on demand,
// never stored.
func (o *Orchestrator) FriendBalances() []*domain.FriendBalance {
	o.mu.Lock()
	defer o.mu.Unlock()

	totals := make(map[string]decimal.Decimal)
	for _, tx := range o.transactions {
		if tx.Friend == "" {
			continue
		}
		totals[tx.Friend] = totals[tx.Friend].Sub(tx.Amount)
	}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*domain.FriendBalance, 0, len(names))
	for _, name := range names {
		out = append(out, &domain.FriendBalance{Name: name, Balance: totals[name]})
	}
	return out
}

// MonthlySummary aggregates one calendar month of transactions.
type MonthlySummary struct {
	Year         int
	Month        int
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Net          decimal.Decimal
	Count        int
}

// Summary computes income, expense and net totals for a month.
func (o *Orchestrator) Summary(year, month int) MonthlySummary {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := MonthlySummary{Year: year, Month: month}
	for _, tx := range o.transactions {
		if tx.Date.Year() != year || int(tx.Date.Month()) != month {
			continue
		}
		s.Count++
		if tx.IsExpense() {
			s.TotalExpense = s.TotalExpense.Add(tx.Amount.Abs())
		} else {
			s.TotalIncome = s.TotalIncome.Add(tx.Amount)
		}
	}
	s.Net = s.TotalIncome.Sub(s.TotalExpense)
	return s
}
