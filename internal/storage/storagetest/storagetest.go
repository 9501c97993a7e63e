// Package storagetest is a conformance suite run against every storage backend.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Factory returns a fresh, empty set of stores. Cleanup is the factory's job.
type Factory func(t *testing.T) storage.Stores

func Run(t *testing.T, newStores Factory) {
	t.Run("TransactionStore/Cache", func(t *testing.T) {
		testTransactionStore(t, func(t *testing.T) storage.TransactionStore { return newStores(t).Cache })
	})
	t.Run("TransactionStore/Pending", func(t *testing.T) {
		testTransactionStore(t, func(t *testing.T) storage.TransactionStore { return newStores(t).Pending })
	})
	t.Run("DeletionMarks", func(t *testing.T) { testDeletionMarks(t, newStores(t).Pending) })
	t.Run("AccountStore", func(t *testing.T) { testAccountStore(t, newStores(t).Accounts) })
}

// Tx builds a transaction dated day days after 2024-03-01 UTC.
func Tx(id int64, amount string, day int) core.Transaction {
	return core.Transaction{
		ID:              id,
		AccountID:       1,
		CategoryID:      10,
		Amount:          amount,
		TransactionDate: time.Date(2024, 3, 1+day, 12, 0, 0, 0, time.UTC),
	}
}

func ids(txs []core.Transaction) []int64 {
	out := make([]int64, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func testTransactionStore(t *testing.T, newStore func(t *testing.T) storage.TransactionStore) {
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		s := newStore(t)
		comment := "lunch"
		updated := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
		tx := Tx(7, "12.50", 0)
		tx.Comment = &comment
		tx.UpdatedAt = &updated
		tx.IsSynced = true

		require.NoError(t, s.Create(ctx, tx))
		got, err := s.FetchByID(ctx, 7)
		require.NoError(t, err)
		require.Equal(t, "12.50", got.Amount)
		require.True(t, got.TransactionDate.Equal(tx.TransactionDate))
		require.NotNil(t, got.Comment)
		require.Equal(t, "lunch", *got.Comment)
		require.NotNil(t, got.UpdatedAt)
		require.True(t, got.UpdatedAt.Equal(updated))
		require.Nil(t, got.CreatedAt)
		require.True(t, got.IsSynced)
	})

	t.Run("duplicate create", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, Tx(1, "1", 0)))
		require.ErrorIs(t, s.Create(ctx, Tx(1, "2", 0)), storage.ErrAlreadyExists)
	})

	t.Run("missing id", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FetchByID(ctx, 99)
		require.ErrorIs(t, err, storage.ErrNotFound)
		require.ErrorIs(t, s.Edit(ctx, Tx(99, "1", 0)), storage.ErrNotFound)
		require.NoError(t, s.Delete(ctx, 99))
	})

	t.Run("edit keeps insertion order", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []int64{3, 1, 2} {
			require.NoError(t, s.Create(ctx, Tx(id, "1", 0)))
		}
		require.NoError(t, s.Edit(ctx, Tx(3, "9.99", 1)))
		all, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Equal(t, []int64{3, 1, 2}, ids(all))
		require.Equal(t, "9.99", all[0].Amount)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, Tx(1, "1", 0)))
		require.NoError(t, s.Create(ctx, Tx(2, "1", 0)))
		require.NoError(t, s.Delete(ctx, 1))
		all, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Equal(t, []int64{2}, ids(all))
	})

	t.Run("period is a closed range", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, Tx(1, "1", 0), Tx(2, "1", 5), Tx(3, "1", 10), Tx(4, "1", 30)))
		p, err := core.NewPeriod(
			time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		)
		require.NoError(t, err)
		got, err := s.FetchByPeriod(ctx, p)
		require.NoError(t, err)
		require.Equal(t, []int64{2, 3}, ids(got))
	})

	t.Run("upsert replaces in place", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, Tx(1, "1", 0), Tx(2, "2", 0)))
		require.NoError(t, s.Upsert(ctx, Tx(1, "5", 0), Tx(3, "3", 0)))
		all, err := s.FetchAll(ctx)
		require.NoError(t, err)
		require.Equal(t, []int64{1, 2, 3}, ids(all))
		require.Equal(t, "5", all[0].Amount)
	})

	t.Run("placeholder id keeps client key", func(t *testing.T) {
		s := newStore(t)
		tx := Tx(-3, "4.20", 0)
		tx.ClientKey = "5f0c3c1e-8d7a-4a43-9f57-2b6f0f3f1c11"
		require.NoError(t, s.Upsert(ctx, tx))
		got, err := s.FetchByID(ctx, -3)
		require.NoError(t, err)
		require.Equal(t, tx.ClientKey, got.ClientKey)

		tx.Amount = "5"
		require.NoError(t, s.Edit(ctx, tx))
		got, err = s.FetchByID(ctx, -3)
		require.NoError(t, err)
		require.Equal(t, "5", got.Amount)
		require.Equal(t, tx.ClientKey, got.ClientKey)
	})

	t.Run("upsert of nothing", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx))
	})
}

func testDeletionMarks(t *testing.T, s storage.PendingStore) {
	ctx := context.Background()

	marks, err := s.FetchPendingDeletions(ctx)
	require.NoError(t, err)
	require.Empty(t, marks)

	require.NoError(t, s.MarkDeletion(ctx, 5))
	require.NoError(t, s.MarkDeletion(ctx, 3))
	require.NoError(t, s.MarkDeletion(ctx, 5))

	marks, err = s.FetchPendingDeletions(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{3, 5}, marks)

	require.NoError(t, s.ClearDeletionMark(ctx, 5))
	require.NoError(t, s.ClearDeletionMark(ctx, 42))
	marks, err = s.FetchPendingDeletions(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, marks)

	// Marks are independent of the pending transactions themselves.
	require.NoError(t, s.Create(ctx, Tx(3, "1", 0)))
	require.NoError(t, s.Delete(ctx, 3))
	marks, err = s.FetchPendingDeletions(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, marks)
}

func testAccountStore(t *testing.T, s storage.AccountStore) {
	ctx := context.Background()

	_, err := s.LoadAccount(ctx)
	require.ErrorIs(t, err, storage.ErrNotFound)

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	acct := core.Account{
		ID:        4,
		UserID:    2,
		Name:      "Main",
		Balance:   decimal.RequireFromString("1234.56"),
		Currency:  "RUB",
		CreatedAt: created,
		UpdatedAt: created,
		State:     core.Confirmed,
	}
	require.NoError(t, s.SaveAccount(ctx, acct))

	got, err := s.LoadAccount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), got.ID)
	require.Equal(t, "Main", got.Name)
	require.True(t, got.Balance.Equal(acct.Balance))
	require.Equal(t, core.Confirmed, got.State)
	require.True(t, got.CreatedAt.Equal(created))

	acct.Balance = decimal.RequireFromString("1000")
	acct.State = core.Estimated
	require.NoError(t, s.SaveAccount(ctx, acct))
	got, err = s.LoadAccount(ctx)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, core.Estimated, got.State)
}
