package emulator

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

var seedCategories = []core.Category{
	{ID: 1, Name: "Groceries", Emoji: "🛒"},
	{ID: 2, Name: "Salary", Emoji: "💼", IsIncome: true},
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.SeedCategories(seedCategories))
	return s
}

func txDTO(id int64, category int64, amount string) remote.TransactionDTO {
	return remote.TransactionDTO{
		ID:              id,
		AccountID:       1,
		CategoryID:      category,
		Amount:          amount,
		TransactionDate: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func balance(t *testing.T, s *Store) string {
	t.Helper()
	accounts, err := s.ListAccounts()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	return accounts[0].Balance
}

func TestStore_BalanceFollowsWrites(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateAccount(remote.AccountRequest{Name: "Main", Currency: "EUR", Balance: "100"})
	require.NoError(t, err)

	_, replayed, err := s.CreateTransaction(txDTO(1, 1, "30"), "")
	require.NoError(t, err)
	require.False(t, replayed)
	require.Equal(t, "70.00", balance(t, s))

	_, _, err = s.CreateTransaction(txDTO(2, 2, "50"), "")
	require.NoError(t, err)
	require.Equal(t, "120.00", balance(t, s))

	_, err = s.UpdateTransaction(txDTO(1, 1, "10"))
	require.NoError(t, err)
	require.Equal(t, "140.00", balance(t, s))

	require.NoError(t, s.DeleteTransaction(2))
	require.Equal(t, "90.00", balance(t, s))
}

func TestStore_RepeatedCreateDoesNotDoubleCount(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateAccount(remote.AccountRequest{Name: "Main", Currency: "EUR", Balance: "0"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := s.CreateTransaction(txDTO(7, 1, "25"), "key-7")
		require.NoError(t, err)
	}
	require.Equal(t, "-25.00", balance(t, s))

	// A keyed retry without an id resolves to the stored record.
	out, replayed, err := s.CreateTransaction(txDTO(0, 1, "25"), "key-7")
	require.NoError(t, err)
	require.True(t, replayed)
	require.Equal(t, int64(7), out.ID)
	require.Equal(t, "-25.00", balance(t, s))
}

func TestStore_AssignsIDsAboveClientIDs(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateAccount(remote.AccountRequest{Name: "Main", Currency: "EUR"})
	require.NoError(t, err)

	_, _, err = s.CreateTransaction(txDTO(40, 1, "1"), "")
	require.NoError(t, err)
	out, _, err := s.CreateTransaction(txDTO(0, 1, "1"), "")
	require.NoError(t, err)
	require.Equal(t, int64(41), out.ID)
	require.NotNil(t, out.CreatedAt)
}

func TestStore_CreateNeverReplacesAnotherRecord(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateAccount(remote.AccountRequest{Name: "Main", Currency: "EUR", Balance: "100"})
	require.NoError(t, err)

	first, _, err := s.CreateTransaction(txDTO(1, 2, "1000"), "key-a")
	require.NoError(t, err)
	require.Equal(t, int64(1), first.ID)

	tests := []struct {
		name string
		key  string
	}{
		{name: "no key", key: ""},
		{name: "unknown key", key: "key-b"},
	}
	want := []string{"1095.00", "1090.00"}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, replayed, err := s.CreateTransaction(txDTO(1, 1, "5"), tt.key)
			require.NoError(t, err)
			require.False(t, replayed)
			require.NotEqual(t, int64(1), out.ID)

			got, err := s.ListTransactions(1, time.Time{}, time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			require.Equal(t, "1000", got[0].Amount)
			require.Equal(t, want[i], balance(t, s))
		})
	}
}

func TestStore_Validation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateAccount(remote.AccountRequest{Name: "Main", Currency: "EUR"})
	require.NoError(t, err)

	tests := []struct {
		name string
		tx   remote.TransactionDTO
	}{
		{"unknown category", txDTO(1, 99, "1")},
		{"bad amount", txDTO(1, 1, "abc")},
		{"negative amount", txDTO(1, 1, "-4")},
		{"unknown account", func() remote.TransactionDTO { d := txDTO(1, 1, "1"); d.AccountID = 9; return d }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.CreateTransaction(tt.tx, "")
			require.True(t, errors.Is(err, ErrInvalid), "err = %v", err)
		})
	}

	_, err = s.CreateAccount(remote.AccountRequest{Balance: "1"})
	require.ErrorIs(t, err, ErrInvalid)
}

func TestStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpdateTransaction(txDTO(5, 1, "1"))
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteTransaction(5), ErrNotFound)
	_, err = s.UpdateAccount(3, remote.AccountRequest{Balance: "1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListTransactionsFiltersByAccountAndRange(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateAccount(remote.AccountRequest{Name: "Main", Currency: "EUR"})
	require.NoError(t, err)
	_, err = s.CreateAccount(remote.AccountRequest{Name: "Other", Currency: "EUR"})
	require.NoError(t, err)

	inside := txDTO(1, 1, "1")
	outside := txDTO(2, 1, "1")
	outside.TransactionDate = time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	other := txDTO(3, 1, "1")
	other.AccountID = 2
	for _, d := range []remote.TransactionDTO{inside, outside, other} {
		_, _, err := s.CreateTransaction(d, "")
		require.NoError(t, err)
	}

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
	got, err := s.ListTransactions(1, from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].ID)
}

func TestStore_UpdateAccountSetsBalance(t *testing.T) {
	s := newTestStore(t)
	acct, err := s.CreateAccount(remote.AccountRequest{Name: "Main", Currency: "EUR", Balance: "5"})
	require.NoError(t, err)

	updated, err := s.UpdateAccount(acct.ID, remote.AccountRequest{Name: "Renamed", Balance: "12.5"})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, "EUR", updated.Currency)
	require.Equal(t, "12.50", updated.Balance)
}

func TestStore_SeedCategoriesReplaces(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SeedCategories(seedCategories[:1]))
	cats, err := s.ListCategories()
	require.NoError(t, err)
	require.Len(t, cats, 1)
	require.Equal(t, "Groceries", cats[0].Name)
}
