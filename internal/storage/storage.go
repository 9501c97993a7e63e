// Package storage defines the capability interfaces every local persistence engine
// implements. The engine is chosen by configuration (see package backend); callers only
// ever see these interfaces.
package storage

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidID     = errors.New("invalid id")
)

type (
	// TransactionStore is a durable set of transactions keyed by id. FetchAll and
	// FetchByPeriod return records in insertion order.
	TransactionStore interface {
		FetchAll(ctx context.Context) ([]core.Transaction, error)
		FetchByPeriod(ctx context.Context, p core.Period) ([]core.Transaction, error)
		FetchByID(ctx context.Context, id int64) (core.Transaction, error)
		// Create fails with ErrAlreadyExists when the id is taken.
		Create(ctx context.Context, t core.Transaction) error
		// Edit fails with ErrNotFound when the id is absent.
		Edit(ctx context.Context, t core.Transaction) error
		// Delete is a no-op for unknown ids.
		Delete(ctx context.Context, id int64) error
		// Upsert inserts or replaces every record in a single atomic write.
		Upsert(ctx context.Context, txs ...core.Transaction) error
	}

	// DeletionMarks is the tombstone set of ids whose remote delete is still owed.
	DeletionMarks interface {
		FetchPendingDeletions(ctx context.Context) ([]int64, error)
		MarkDeletion(ctx context.Context, id int64) error
		ClearDeletionMark(ctx context.Context, id int64) error
	}

	// PendingStore holds unconfirmed local writes and the tombstone set.
	PendingStore interface {
		TransactionStore
		DeletionMarks
	}

	AccountStore interface {
		// LoadAccount returns ErrNotFound until an account has been saved.
		LoadAccount(ctx context.Context) (core.Account, error)
		SaveAccount(ctx context.Context, a core.Account) error
	}

	// Stores bundles everything one backend provides.
	Stores struct {
		Cache    TransactionStore
		Pending  PendingStore
		Accounts AccountStore
	}
)

// Error marks a local persistence failure. It never wraps ErrNotFound or ErrAlreadyExists,
// which are expected outcomes rather than storage failures.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Class implements core.Classifier.
func (e *Error) Class() core.ErrorClass { return core.ClassStorage }

// Wrap returns nil for nil, passes the sentinel errors through, and wraps anything else.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrInvalidID) {
		return err
	}
	return &Error{Op: op, Err: err}
}
