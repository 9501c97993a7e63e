// Package bolt implements the storage interfaces on a single bbolt file. Records are JSON
// values keyed by big-endian id; each carries a sequence number that fixes insertion order.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// Bucket names.
const (
	BucketCache     = "transactions"
	BucketPending   = "pending_transactions"
	BucketDeletions = "pending_deletions"
	BucketMeta      = "meta"
)

var accountKey = []byte("account")

type Store struct {
	db *bolt.DB
}

type record struct {
	Seq uint64           `json:"seq"`
	Tx  core.Transaction `json:"tx"`
}

// Open opens or creates the database at path and initializes its buckets.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{BucketCache, BucketPending, BucketDeletions, BucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Cache:    &transactionBucket{db: s.db, name: []byte(BucketCache)},
		Pending:  &pendingBucket{transactionBucket: transactionBucket{db: s.db, name: []byte(BucketPending)}},
		Accounts: &accountBucket{db: s.db},
	}
}

type transactionBucket struct {
	db   *bolt.DB
	name []byte
}

func (b *transactionBucket) bucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	bk := tx.Bucket(b.name)
	if bk == nil {
		return nil, fmt.Errorf("bucket %s not found", b.name)
	}
	return bk, nil
}

func (b *transactionBucket) list(ctx context.Context, keep func(core.Transaction) bool) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []record
	err := b.db.View(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx)
		if err != nil {
			return err
		}
		return bk.ForEach(func(_, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			if keep == nil || keep(r.Tx) {
				records = append(records, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, storage.Wrap("list "+string(b.name), err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	out := make([]core.Transaction, len(records))
	for i, r := range records {
		out[i] = r.Tx
	}
	return out, nil
}

func (b *transactionBucket) FetchAll(ctx context.Context) ([]core.Transaction, error) {
	return b.list(ctx, nil)
}

func (b *transactionBucket) FetchByPeriod(ctx context.Context, p core.Period) ([]core.Transaction, error) {
	return b.list(ctx, func(t core.Transaction) bool { return p.Contains(t.TransactionDate) })
}

func (b *transactionBucket) FetchByID(ctx context.Context, id int64) (core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return core.Transaction{}, err
	}
	var r record
	err := b.db.View(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx)
		if err != nil {
			return err
		}
		data := bk.Get(itob(id))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return core.Transaction{}, storage.Wrap("get "+string(b.name), err)
	}
	return r.Tx, nil
}

// put writes t, keeping the existing sequence number when the id is present.
func (b *transactionBucket) put(bk *bolt.Bucket, t core.Transaction) error {
	key := itob(t.ID)
	r := record{Tx: t}
	if data := bk.Get(key); data != nil {
		var old record
		if err := json.Unmarshal(data, &old); err != nil {
			return fmt.Errorf("decode record: %w", err)
		}
		r.Seq = old.Seq
	} else {
		seq, err := bk.NextSequence()
		if err != nil {
			return err
		}
		r.Seq = seq
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return bk.Put(key, data)
}

func (b *transactionBucket) update(ctx context.Context, op string, fn func(bk *bolt.Bucket) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx)
		if err != nil {
			return err
		}
		return fn(bk)
	})
	return storage.Wrap(op+" "+string(b.name), err)
}

func (b *transactionBucket) Create(ctx context.Context, t core.Transaction) error {
	return b.update(ctx, "create", func(bk *bolt.Bucket) error {
		if bk.Get(itob(t.ID)) != nil {
			return storage.ErrAlreadyExists
		}
		return b.put(bk, t)
	})
}

func (b *transactionBucket) Edit(ctx context.Context, t core.Transaction) error {
	return b.update(ctx, "edit", func(bk *bolt.Bucket) error {
		if bk.Get(itob(t.ID)) == nil {
			return storage.ErrNotFound
		}
		return b.put(bk, t)
	})
}

func (b *transactionBucket) Delete(ctx context.Context, id int64) error {
	return b.update(ctx, "delete", func(bk *bolt.Bucket) error {
		return bk.Delete(itob(id))
	})
}

func (b *transactionBucket) Upsert(ctx context.Context, txs ...core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return b.update(ctx, "upsert", func(bk *bolt.Bucket) error {
		for _, t := range txs {
			if err := b.put(bk, t); err != nil {
				return err
			}
		}
		return nil
	})
}

type pendingBucket struct {
	transactionBucket
}

func (p *pendingBucket) FetchPendingDeletions(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type mark struct {
		id  int64
		seq uint64
	}
	var marks []mark
	err := p.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(BucketDeletions))
		if bk == nil {
			return fmt.Errorf("bucket %s not found", BucketDeletions)
		}
		return bk.ForEach(func(k, v []byte) error {
			marks = append(marks, mark{id: btoi(k), seq: binary.BigEndian.Uint64(v)})
			return nil
		})
	})
	if err != nil {
		return nil, storage.Wrap("list deletions", err)
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].seq < marks[j].seq })
	out := make([]int64, len(marks))
	for i, m := range marks {
		out[i] = m.id
	}
	return out, nil
}

func (p *pendingBucket) MarkDeletion(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(BucketDeletions))
		if bk == nil {
			return fmt.Errorf("bucket %s not found", BucketDeletions)
		}
		if bk.Get(itob(id)) != nil {
			return nil
		}
		seq, err := bk.NextSequence()
		if err != nil {
			return err
		}
		v := make([]byte, 8)
		binary.BigEndian.PutUint64(v, seq)
		return bk.Put(itob(id), v)
	})
	return storage.Wrap("mark deletion", err)
}

func (p *pendingBucket) ClearDeletionMark(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := p.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket([]byte(BucketDeletions))
		if bk == nil {
			return fmt.Errorf("bucket %s not found", BucketDeletions)
		}
		return bk.Delete(itob(id))
	})
	return storage.Wrap("clear deletion", err)
}

type accountBucket struct {
	db *bolt.DB
}

func (a *accountBucket) LoadAccount(ctx context.Context) (core.Account, error) {
	if err := ctx.Err(); err != nil {
		return core.Account{}, err
	}
	var acct core.Account
	err := a.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(BucketMeta)).Get(accountKey)
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &acct)
	})
	if err != nil {
		return core.Account{}, storage.Wrap("load account", err)
	}
	return acct, nil
}

func (a *accountBucket) SaveAccount(ctx context.Context, acct core.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	err = a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(BucketMeta)).Put(accountKey, data)
	})
	return storage.Wrap("save account", err)
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
