package remote

import (
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// DateLayout is the query format for period bounds.
const DateLayout = "2006-01-02"

// Wire shapes shared with the emulator. Amounts and balances are decimal strings.
type (
	AccountDTO struct {
		ID        int64     `json:"id"`
		UserID    int64     `json:"userId"`
		Name      string    `json:"name"`
		Balance   string    `json:"balance"`
		Currency  string    `json:"currency"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	AccountRequest struct {
		Name     string `json:"name"`
		Balance  string `json:"balance"`
		Currency string `json:"currency"`
	}

	TransactionDTO struct {
		ID              int64      `json:"id"`
		AccountID       int64      `json:"accountId"`
		CategoryID      int64      `json:"categoryId"`
		Amount          string     `json:"amount"`
		TransactionDate time.Time  `json:"transactionDate"`
		Comment         *string    `json:"comment,omitempty"`
		CreatedAt       *time.Time `json:"createdAt,omitempty"`
		UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
	}

	CategoryDTO struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Emoji    string `json:"emoji"`
		IsIncome bool   `json:"isIncome"`
	}

	// ErrorBody is the JSON error envelope for non-2xx responses.
	ErrorBody struct {
		Error string `json:"error"`
	}
)

func (d AccountDTO) toCore() (core.Account, error) {
	balance, err := decimal.NewFromString(d.Balance)
	if err != nil {
		return core.Account{}, &Error{Kind: Decoding, Err: err}
	}
	return core.Account{
		ID:        d.ID,
		UserID:    d.UserID,
		Name:      d.Name,
		Balance:   balance,
		Currency:  d.Currency,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		State:     core.Confirmed,
	}, nil
}

func (d TransactionDTO) toCore() core.Transaction {
	return core.Transaction{
		ID:              d.ID,
		AccountID:       d.AccountID,
		CategoryID:      d.CategoryID,
		Amount:          d.Amount,
		TransactionDate: d.TransactionDate,
		Comment:         d.Comment,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		IsSynced:        true,
	}
}

func transactionDTO(t core.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:              t.ID,
		AccountID:       t.AccountID,
		CategoryID:      t.CategoryID,
		Amount:          t.Amount,
		TransactionDate: t.TransactionDate,
		Comment:         t.Comment,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func (d CategoryDTO) toCore() core.Category {
	return core.Category{ID: d.ID, Name: d.Name, Emoji: d.Emoji, IsIncome: d.IsIncome}
}
