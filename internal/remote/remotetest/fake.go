// Package remotetest provides an in-memory stand-in for the ledger service.
package remotetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/remote"
)

var _ remote.API = (*Fake)(nil)

// ErrUnreachable is the NoResponse error Fake returns while Down is set.
var ErrUnreachable = &remote.Error{Kind: remote.NoResponse, Err: errors.New("connection refused")}

// Fake keeps accounts and transactions in memory and moves the balance of account 1 by the
// signed amount of every accepted write, like the real service.
type Fake struct {
	mu sync.Mutex

	accounts     []core.Account
	transactions map[int64]core.Transaction
	keys         map[string]int64
	lastID       int64
	holds        map[string]*hold
	categories   core.CategoryIndex
	catList      []core.Category

	// Down makes every call fail with ErrUnreachable.
	Down bool
	// Fail maps a method name to the error it returns next; entries are consumed.
	Fail map[string]error
	// Calls counts invocations per method name.
	Calls map[string]int
	// Creates records the ids passed to CreateTransaction, in order.
	Creates []int64
	// Replays counts creates answered from an already stored client key.
	Replays int
}

func NewFake(cats []core.Category) *Fake {
	return &Fake{
		transactions: make(map[int64]core.Transaction),
		keys:         make(map[string]int64),
		holds:        make(map[string]*hold),
		categories:   core.IndexCategories(cats),
		catList:      cats,
		Fail:         make(map[string]error),
		Calls:        make(map[string]int),
	}
}

// WithAccount seeds the server account.
func (f *Fake) WithAccount(a core.Account) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.State = core.Confirmed
	f.accounts = []core.Account{a}
	return f
}

// SetDown toggles reachability.
func (f *Fake) SetDown(down bool) {
	f.mu.Lock()
	f.Down = down
	f.mu.Unlock()
}

// FailNext makes the next call to method return err.
func (f *Fake) FailNext(method string, err error) {
	f.mu.Lock()
	f.Fail[method] = err
	f.mu.Unlock()
}

func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[method]
}

// Stored returns the server's copy of a transaction.
func (f *Fake) Stored(id int64) (core.Transaction, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transactions[id]
	return t, ok
}

func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transactions)
}

// Balance returns the server balance of the first account.
func (f *Fake) Balance() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.accounts) == 0 {
		return decimal.Zero
	}
	return f.accounts[0].Balance
}

type hold struct {
	entered chan struct{}
	release chan struct{}
}

// Hold parks the next call to method before it touches any state. entered is closed once
// the call is parked; release lets it continue.
func (f *Fake) Hold(method string) (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.holds[method] = h
	f.mu.Unlock()
	var once sync.Once
	return h.entered, func() { once.Do(func() { close(h.release) }) }
}

// wait blocks on a pending Hold for method. Callers must not hold f.mu.
func (f *Fake) wait(method string) {
	f.mu.Lock()
	h, ok := f.holds[method]
	delete(f.holds, method)
	f.mu.Unlock()
	if ok {
		close(h.entered)
		<-h.release
	}
}

// begin records the call and returns the injected error, if any. Callers hold f.mu.
func (f *Fake) begin(ctx context.Context, method string) error {
	f.Calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Down {
		return ErrUnreachable
	}
	if err, ok := f.Fail[method]; ok {
		delete(f.Fail, method)
		return err
	}
	return nil
}

func (f *Fake) signed(t core.Transaction) decimal.Decimal {
	c, ok := f.categories[t.CategoryID]
	if !ok {
		return decimal.Zero
	}
	d, err := core.SignedAmount(t, c)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (f *Fake) adjust(d decimal.Decimal) {
	if len(f.accounts) > 0 {
		f.accounts[0].Balance = f.accounts[0].Balance.Add(d)
	}
}

func (f *Fake) ListAccounts(ctx context.Context) ([]core.Account, error) {
	f.wait("ListAccounts")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ListAccounts"); err != nil {
		return nil, err
	}
	return append([]core.Account(nil), f.accounts...), nil
}

func (f *Fake) CreateAccount(ctx context.Context, in remote.NewAccount) (core.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "CreateAccount"); err != nil {
		return core.Account{}, err
	}
	balance, err := decimal.NewFromString(in.Balance)
	if err != nil {
		balance = decimal.Zero
	}
	now := time.Now().UTC()
	a := core.Account{
		ID:        int64(len(f.accounts) + 1),
		UserID:    1,
		Name:      in.Name,
		Currency:  in.Currency,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
		State:     core.Confirmed,
	}
	f.accounts = append(f.accounts, a)
	return a, nil
}

func (f *Fake) UpdateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "UpdateAccount"); err != nil {
		return core.Account{}, err
	}
	for i := range f.accounts {
		if f.accounts[i].ID == a.ID {
			a.State = core.Confirmed
			a.UpdatedAt = time.Now().UTC()
			f.accounts[i] = a
			return a, nil
		}
	}
	return core.Account{}, &remote.Error{Kind: remote.NotFound, Status: 404}
}

func (f *Fake) ListTransactions(ctx context.Context, accountID int64, p core.Period) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ListTransactions"); err != nil {
		return nil, err
	}
	var out []core.Transaction
	for _, t := range f.transactions {
		if t.AccountID == accountID && p.Contains(t.TransactionDate) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateTransaction stores t under a server id. A create whose client key was seen before
// replaces that record instead of adding one. Otherwise the requested id is kept only when it
// is positive and free.
func (f *Fake) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	f.wait("CreateTransaction")
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "CreateTransaction"); err != nil {
		return core.Transaction{}, err
	}
	f.Creates = append(f.Creates, t.ID)

	key := t.ClientKey
	t.ClientKey = ""
	now := time.Now().UTC()

	old, replayed := core.Transaction{}, false
	if id, ok := f.keys[key]; ok && key != "" {
		old, replayed = f.transactions[id]
		if replayed {
			t.ID = id
		}
	}
	if !replayed {
		if _, taken := f.transactions[t.ID]; taken || t.ID <= 0 {
			t.ID = f.lastID + 1
		}
	}
	if replayed {
		f.Replays++
		f.adjust(f.signed(old).Neg())
		t.CreatedAt = old.CreatedAt
	}
	if t.CreatedAt == nil {
		t.CreatedAt = &now
	}
	t.IsSynced = true
	t.UpdatedAt = &now
	f.transactions[t.ID] = t.Clone()
	if t.ID > f.lastID {
		f.lastID = t.ID
	}
	if key != "" {
		f.keys[key] = t.ID
	}
	f.adjust(f.signed(t))
	return t, nil
}

func (f *Fake) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "UpdateTransaction"); err != nil {
		return core.Transaction{}, err
	}
	old, ok := f.transactions[t.ID]
	if !ok {
		return core.Transaction{}, &remote.Error{Kind: remote.NotFound, Status: 404}
	}
	now := time.Now().UTC()
	t.IsSynced = true
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = &now
	f.transactions[t.ID] = t.Clone()
	f.adjust(f.signed(t).Sub(f.signed(old)))
	return t, nil
}

func (f *Fake) DeleteTransaction(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "DeleteTransaction"); err != nil {
		return err
	}
	old, ok := f.transactions[id]
	if !ok {
		return &remote.Error{Kind: remote.NotFound, Status: 404}
	}
	delete(f.transactions, id)
	f.adjust(f.signed(old).Neg())
	return nil
}

func (f *Fake) ListCategories(ctx context.Context) ([]core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, "ListCategories"); err != nil {
		return nil, err
	}
	return append([]core.Category(nil), f.catList...), nil
}
