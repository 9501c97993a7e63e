// Package emulator is a small reference implementation of the ledger service the sync engine
// talks to. It keeps accounts, transactions and categories in one bbolt file and moves the
// balance of the owning account by the signed amount of every accepted write.
package emulator

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalid is returned for requests that fail validation.
	ErrInvalid = errors.New("invalid request")
)

// Bucket names.
const (
	BucketAccounts     = "accounts"
	BucketTransactions = "transactions"
	BucketCategories   = "categories"
	BucketIdempotency  = "idempotency_keys"
)

type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// NewStore opens or creates the database and initializes its buckets.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{BucketAccounts, BucketTransactions, BucketCategories, BucketIdempotency} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SeedCategories replaces the category set.
func (s *Store) SeedCategories(cats []core.Category) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(BucketCategories)); err != nil {
			return err
		}
		b, err := tx.CreateBucket([]byte(BucketCategories))
		if err != nil {
			return err
		}
		for _, c := range cats {
			if err := putJSON(b, c.ID, remote.CategoryDTO{ID: c.ID, Name: c.Name, Emoji: c.Emoji, IsIncome: c.IsIncome}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ListCategories() ([]remote.CategoryDTO, error) {
	out := []remote.CategoryDTO{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketCategories)).ForEach(func(_, v []byte) error {
			var c remote.CategoryDTO
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	return out, err
}

func (s *Store) ListAccounts() ([]remote.AccountDTO, error) {
	out := []remote.AccountDTO{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketAccounts)).ForEach(func(_, v []byte) error {
			var a remote.AccountDTO
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, a)
			return nil
		})
	})
	return out, err
}

func (s *Store) CreateAccount(req remote.AccountRequest) (remote.AccountDTO, error) {
	balance, err := parseBalance(req.Balance)
	if err != nil {
		return remote.AccountDTO{}, err
	}
	if req.Name == "" || req.Currency == "" {
		return remote.AccountDTO{}, fmt.Errorf("%w: name and currency are required", ErrInvalid)
	}

	var acct remote.AccountDTO
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketAccounts))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		now := s.now()
		acct = remote.AccountDTO{
			ID:        int64(seq),
			UserID:    1,
			Name:      req.Name,
			Balance:   core.FormatAmount(balance),
			Currency:  req.Currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return putJSON(b, acct.ID, acct)
	})
	return acct, err
}

func (s *Store) UpdateAccount(id int64, req remote.AccountRequest) (remote.AccountDTO, error) {
	balance, err := parseBalance(req.Balance)
	if err != nil {
		return remote.AccountDTO{}, err
	}

	var acct remote.AccountDTO
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketAccounts))
		if err := getJSON(b, id, &acct); err != nil {
			return err
		}
		if req.Name != "" {
			acct.Name = req.Name
		}
		if req.Currency != "" {
			acct.Currency = req.Currency
		}
		if req.Balance != "" {
			acct.Balance = core.FormatAmount(balance)
		}
		acct.UpdatedAt = s.now()
		return putJSON(b, id, acct)
	})
	return acct, err
}

// ListTransactions returns the account's transactions dated inside the closed range,
// ordered by id.
func (s *Store) ListTransactions(accountID int64, from, to time.Time) ([]remote.TransactionDTO, error) {
	out := []remote.TransactionDTO{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketTransactions)).ForEach(func(_, v []byte) error {
			var t remote.TransactionDTO
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if t.AccountID == accountID && !t.TransactionDate.Before(from) && !t.TransactionDate.After(to) {
				out = append(out, t)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

// CreateTransaction stores t. A repeated idempotency key whose record still exists replaces
// that record, so replays never double count; replayed reports that case. Otherwise t keeps
// its id only when it is positive and free, and gets a fresh one when it has none or when
// the id already belongs to another record.
func (s *Store) CreateTransaction(t remote.TransactionDTO, idempotencyKey string) (out remote.TransactionDTO, replayed bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		txs := tx.Bucket([]byte(BucketTransactions))
		keys := tx.Bucket([]byte(BucketIdempotency))

		var prior *remote.TransactionDTO
		if idempotencyKey != "" {
			if v := keys.Get([]byte(idempotencyKey)); v != nil {
				var old remote.TransactionDTO
				switch err := getJSON(txs, btoi(v), &old); {
				case err == nil:
					t.ID, prior, replayed = old.ID, &old, true
				case !errors.Is(err, ErrNotFound):
					return err
				}
			}
		}
		if prior == nil && (t.ID <= 0 || txs.Get(itob(t.ID)) != nil) {
			id, err := nextTransactionID(txs)
			if err != nil {
				return err
			}
			t.ID = id
		}

		now := s.now()
		t.UpdatedAt = &now
		if prior != nil {
			t.CreatedAt = prior.CreatedAt
		} else if t.CreatedAt == nil {
			t.CreatedAt = &now
		}

		if err := s.apply(tx, prior, &t); err != nil {
			return err
		}
		if idempotencyKey != "" {
			if err := keys.Put([]byte(idempotencyKey), itob(t.ID)); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	return out, replayed, err
}

// UpdateTransaction replaces an existing record.
func (s *Store) UpdateTransaction(t remote.TransactionDTO) (remote.TransactionDTO, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		var old remote.TransactionDTO
		if err := getJSON(tx.Bucket([]byte(BucketTransactions)), t.ID, &old); err != nil {
			return err
		}
		now := s.now()
		t.CreatedAt = old.CreatedAt
		t.UpdatedAt = &now
		return s.apply(tx, &old, &t)
	})
	return t, err
}

func (s *Store) DeleteTransaction(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var old remote.TransactionDTO
		if err := getJSON(tx.Bucket([]byte(BucketTransactions)), id, &old); err != nil {
			return err
		}
		return s.apply(tx, &old, nil)
	})
}

// apply swaps prior for next (either may be nil) and moves the owning account balances
// by the difference, all inside tx.
func (s *Store) apply(tx *bolt.Tx, prior, next *remote.TransactionDTO) error {
	cats := tx.Bucket([]byte(BucketCategories))
	txs := tx.Bucket([]byte(BucketTransactions))

	if next != nil {
		if _, err := parseAmount(next.Amount); err != nil {
			return err
		}
		var c remote.CategoryDTO
		if err := getJSON(cats, next.CategoryID, &c); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: unknown category %d", ErrInvalid, next.CategoryID)
			}
			return err
		}
		var a remote.AccountDTO
		if err := getJSON(tx.Bucket([]byte(BucketAccounts)), next.AccountID, &a); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: unknown account %d", ErrInvalid, next.AccountID)
			}
			return err
		}
	}

	if prior != nil {
		d, err := signed(cats, *prior)
		if err != nil {
			return err
		}
		if err := s.adjust(tx, prior.AccountID, d.Neg()); err != nil {
			return err
		}
	}
	if next == nil {
		return txs.Delete(itob(prior.ID))
	}

	d, err := signed(cats, *next)
	if err != nil {
		return err
	}
	if err := s.adjust(tx, next.AccountID, d); err != nil {
		return err
	}
	return putJSON(txs, next.ID, *next)
}

func (s *Store) adjust(tx *bolt.Tx, accountID int64, d decimal.Decimal) error {
	if d.IsZero() {
		return nil
	}
	b := tx.Bucket([]byte(BucketAccounts))
	var a remote.AccountDTO
	if err := getJSON(b, accountID, &a); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	balance, err := decimal.NewFromString(a.Balance)
	if err != nil {
		return fmt.Errorf("corrupt balance on account %d: %w", accountID, err)
	}
	a.Balance = core.FormatAmount(balance.Add(d))
	a.UpdatedAt = s.now()
	return putJSON(b, accountID, a)
}

func signed(cats *bolt.Bucket, t remote.TransactionDTO) (decimal.Decimal, error) {
	var c remote.CategoryDTO
	if err := getJSON(cats, t.CategoryID, &c); err != nil {
		if errors.Is(err, ErrNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	amount, err := parseAmount(t.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	if c.IsIncome {
		return amount, nil
	}
	return amount.Neg(), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := core.ParseAmount(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrInvalid, s)
	}
	return d, nil
}

func parseBalance(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: balance %q", ErrInvalid, s)
	}
	return d, nil
}

// nextTransactionID is one past the highest stored id, so client-chosen ids never collide
// with generated ones.
func nextTransactionID(b *bolt.Bucket) (int64, error) {
	k, _ := b.Cursor().Last()
	if k == nil {
		return 1, nil
	}
	return btoi(k) + 1, nil
}

func putJSON(b *bolt.Bucket, id int64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return b.Put(itob(id), data)
}

func getJSON(b *bolt.Bucket, id int64, v any) error {
	data := b.Get(itob(id))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// itob returns an 8-byte big endian representation of v.
func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
