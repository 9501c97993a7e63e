// Package memory keeps every store in process memory. It backs tests and the
// "memory" storage backend; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

var (
	_ storage.TransactionStore = (*TransactionSet)(nil)
	_ storage.PendingStore     = (*PendingSet)(nil)
	_ storage.AccountStore     = (*AccountSlot)(nil)
)

type entry struct {
	seq int64
	tx  core.Transaction
}

// TransactionSet is an insertion-ordered map of transactions.
type TransactionSet struct {
	mu    sync.Mutex
	next  int64
	items map[int64]entry
}

func NewTransactionSet() *TransactionSet {
	return &TransactionSet{items: make(map[int64]entry)}
}

// New returns a fresh, empty set of stores.
func New() storage.Stores {
	return storage.Stores{
		Cache:    NewTransactionSet(),
		Pending:  NewPendingSet(),
		Accounts: &AccountSlot{},
	}
}

func (s *TransactionSet) sorted(keep func(core.Transaction) bool) []core.Transaction {
	list := make([]entry, 0, len(s.items))
	for _, e := range s.items {
		if keep == nil || keep(e.tx) {
			list = append(list, e)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	out := make([]core.Transaction, len(list))
	for i, e := range list {
		out[i] = e.tx.Clone()
	}
	return out
}

func (s *TransactionSet) FetchAll(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(nil), nil
}

func (s *TransactionSet) FetchByPeriod(_ context.Context, p core.Period) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(t core.Transaction) bool { return p.Contains(t.TransactionDate) }), nil
}

func (s *TransactionSet) FetchByID(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return core.Transaction{}, storage.ErrNotFound
	}
	return e.tx.Clone(), nil
}

func (s *TransactionSet) Create(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[t.ID]; ok {
		return storage.ErrAlreadyExists
	}
	s.put(t)
	return nil
}

func (s *TransactionSet) Edit(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[t.ID]; !ok {
		return storage.ErrNotFound
	}
	s.put(t)
	return nil
}

func (s *TransactionSet) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *TransactionSet) Upsert(_ context.Context, txs ...core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range txs {
		s.put(t)
	}
	return nil
}

// put keeps the original insertion position when replacing.
func (s *TransactionSet) put(t core.Transaction) {
	e, ok := s.items[t.ID]
	if !ok {
		s.next++
		e.seq = s.next
	}
	e.tx = t.Clone()
	s.items[t.ID] = e
}

// Len is used by tests.
func (s *TransactionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// PendingSet is a TransactionSet plus the tombstone set.
type PendingSet struct {
	*TransactionSet
	marksMu sync.Mutex
	marks   []int64
}

func NewPendingSet() *PendingSet {
	return &PendingSet{TransactionSet: NewTransactionSet()}
}

func (p *PendingSet) FetchPendingDeletions(_ context.Context) ([]int64, error) {
	p.marksMu.Lock()
	defer p.marksMu.Unlock()
	return append([]int64(nil), p.marks...), nil
}

func (p *PendingSet) MarkDeletion(_ context.Context, id int64) error {
	p.marksMu.Lock()
	defer p.marksMu.Unlock()
	for _, m := range p.marks {
		if m == id {
			return nil
		}
	}
	p.marks = append(p.marks, id)
	return nil
}

func (p *PendingSet) ClearDeletionMark(_ context.Context, id int64) error {
	p.marksMu.Lock()
	defer p.marksMu.Unlock()
	out := p.marks[:0]
	for _, m := range p.marks {
		if m != id {
			out = append(out, m)
		}
	}
	p.marks = out
	return nil
}

// AccountSlot holds the single account record.
type AccountSlot struct {
	mu      sync.Mutex
	account *core.Account
}

func (a *AccountSlot) LoadAccount(_ context.Context) (core.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.account == nil {
		return core.Account{}, storage.ErrNotFound
	}
	return *a.account, nil
}

func (a *AccountSlot) SaveAccount(_ context.Context, acct core.Account) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.account = &acct
	return nil
}
