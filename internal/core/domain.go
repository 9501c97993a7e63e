package core

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Direction = "income"
	Outcome Direction = "outcome"
)

const (
	// Estimated balances carry optimistic local deltas the server has not confirmed yet.
	Estimated BalanceState = iota
	// Confirmed balances were read back from the remote ledger.
	Confirmed
)

type (
	Direction string

	BalanceState int

	// Transaction is a single ledger movement. Amount is an exact decimal string and is
	// always non-negative; the sign comes from the category. Records created locally carry a
	// negative ID until the server assigns one, and a ClientKey that identifies the create
	// across retries.
	Transaction struct {
		ID              int64      `json:"id"`
		AccountID       int64      `json:"accountId"`
		CategoryID      int64      `json:"categoryId"`
		Amount          string     `json:"amount"`
		TransactionDate time.Time  `json:"transactionDate"`
		Comment         *string    `json:"comment,omitempty"`
		CreatedAt       *time.Time `json:"createdAt,omitempty"`
		UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
		IsSynced        bool       `json:"isSynced"`
		ClientKey       string     `json:"clientKey,omitempty"`
	}

	Category struct {
		ID       int64  `json:"id" yaml:"id"`
		Name     string `json:"name" yaml:"name"`
		Emoji    string `json:"emoji" yaml:"emoji"`
		IsIncome bool   `json:"isIncome" yaml:"is_income"`
	}

	Account struct {
		ID        int64           `json:"id"`
		UserID    int64           `json:"userId"`
		Name      string          `json:"name"`
		Balance   decimal.Decimal `json:"balance"`
		Currency  string          `json:"currency"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
		State     BalanceState    `json:"state"`
	}

	// EnrichedTransaction is what readers get back: the record plus the reference data
	// needed to render it. Category is nil when the id is unknown.
	EnrichedTransaction struct {
		Transaction
		Account  Account
		Category *Category
	}

	// Period is a closed date range.
	Period struct {
		From time.Time
		To   time.Time
	}
)

var (
	ErrInvalidPeriod = errors.New("invalid period")
	ErrNoAccount     = errors.New("no account provisioned")
)

// Direction reports whether the category adds to or subtracts from the balance.
func (c Category) Direction() Direction {
	if c.IsIncome {
		return Income
	}
	return Outcome
}

func (s BalanceState) String() string {
	switch s {
	case Estimated:
		return "estimated"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// NewPeriod builds a period covering whole days from the start of from to the end of to.
func NewPeriod(from, to time.Time) (Period, error) {
	if to.Before(from) {
		return Period{}, ErrInvalidPeriod
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), to.Location())
	return Period{From: start, To: end}, nil
}

// MonthPeriod returns the calendar month containing t.
func MonthPeriod(t time.Time) Period {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	p, _ := NewPeriod(start, start.AddDate(0, 1, -1))
	return p
}

func (p Period) Validate() error {
	if p.From.IsZero() || p.To.IsZero() || p.To.Before(p.From) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains reports whether t falls inside the closed range.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && !t.After(p.To)
}

// Clone returns a copy that shares no pointers with t.
func (t Transaction) Clone() Transaction {
	out := t
	if t.Comment != nil {
		c := *t.Comment
		out.Comment = &c
	}
	if t.CreatedAt != nil {
		c := *t.CreatedAt
		out.CreatedAt = &c
	}
	if t.UpdatedAt != nil {
		u := *t.UpdatedAt
		out.UpdatedAt = &u
	}
	return out
}

// CategoryIndex maps category id to category.
type CategoryIndex map[int64]Category

func IndexCategories(cats []Category) CategoryIndex {
	idx := make(CategoryIndex, len(cats))
	for _, c := range cats {
		idx[c.ID] = c
	}
	return idx
}

// Lookup returns a pointer to a copy of the category, or nil when the id is unknown.
func (idx CategoryIndex) Lookup(id int64) *Category {
	c, ok := idx[id]
	if !ok {
		return nil
	}
	return &c
}
