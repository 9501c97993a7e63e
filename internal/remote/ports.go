package remote

import (
	"context"

	"fintrack/internal/core"
)

// Ports consumed by the ledger and the engine. *Client implements all of them.
type (
	AccountAPI interface {
		ListAccounts(ctx context.Context) ([]core.Account, error)
		CreateAccount(ctx context.Context, in NewAccount) (core.Account, error)
		UpdateAccount(ctx context.Context, a core.Account) (core.Account, error)
	}

	TransactionAPI interface {
		ListTransactions(ctx context.Context, accountID int64, p core.Period) ([]core.Transaction, error)
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// DeleteTransaction returns an Error of kind NotFound for unknown ids.
		DeleteTransaction(ctx context.Context, id int64) error
	}

	CategoryAPI interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	API interface {
		AccountAPI
		TransactionAPI
		CategoryAPI
	}
)

// NewAccount is the payload for provisioning an account.
type NewAccount struct {
	Name     string
	Currency string
	Balance  string
}
