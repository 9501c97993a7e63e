// Package ledger owns the account balance. Local mutations move it by signed deltas and mark
// it Estimated; values read back from the server replace it and mark it Confirmed.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"fintrack/internal/connectivity"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/storage"
)

// Config wires a Ledger to its local account slot and the account API.
type Config struct {
	Store   storage.AccountStore
	API     remote.AccountAPI
	Monitor connectivity.Monitor
	Logger  *log.Logger
	// Name and Currency are used when the server has no account yet.
	DefaultName     string
	DefaultCurrency string
}

// Ledger owns the single account view and its balance state.
type Ledger struct {
	store   storage.AccountStore
	api     remote.AccountAPI
	monitor connectivity.Monitor
	logger  *log.Logger
	defName string
	defCur  string

	group singleflight.Group

	mu      sync.Mutex
	current *core.Account
}

// New returns a Ledger. Empty defaults fall back to "Main" and "USD".
func New(cfg Config) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	name, cur := cfg.DefaultName, cfg.DefaultCurrency
	if name == "" {
		name = "Main"
	}
	if cur == "" {
		cur = "USD"
	}
	return &Ledger{
		store:   cfg.Store,
		api:     cfg.API,
		monitor: cfg.Monitor,
		logger:  logger.WithComponent(log.ComponentLedger),
		defName: name,
		defCur:  cur,
	}
}

// loadLocked fills l.current from the store. Callers hold l.mu.
func (l *Ledger) loadLocked(ctx context.Context) error {
	if l.current != nil {
		return nil
	}
	acct, err := l.store.LoadAccount(ctx)
	if err != nil {
		return err
	}
	l.current = &acct
	return nil
}

// Current returns the in-memory account, loading it locally or, when online, from the server.
// When the server has no account one is created.
func (l *Ledger) Current(ctx context.Context) (core.Account, error) {
	l.mu.Lock()
	err := l.loadLocked(ctx)
	if err == nil {
		acct := *l.current
		l.mu.Unlock()
		return acct, nil
	}
	l.mu.Unlock()

	if !errors.Is(err, storage.ErrNotFound) {
		return core.Account{}, fmt.Errorf("load account: %w", err)
	}
	if !l.monitor.Online() {
		return core.Account{}, core.ErrNoAccount
	}
	return l.Refresh(ctx)
}

// Refresh replaces the account with the server's value. Concurrent calls share one request.
func (l *Ledger) Refresh(ctx context.Context) (core.Account, error) {
	v, err, shared := l.group.Do("refresh", func() (any, error) {
		return l.refresh(ctx)
	})
	if err != nil {
		return core.Account{}, err
	}
	if shared {
		l.logger.DebugContext(ctx, "Shared in-flight account refresh")
	}
	return v.(core.Account), nil
}

func (l *Ledger) refresh(ctx context.Context) (core.Account, error) {
	accounts, err := l.api.ListAccounts(ctx)
	if err != nil {
		return core.Account{}, fmt.Errorf("list accounts: %w", err)
	}

	var acct core.Account
	if len(accounts) == 0 {
		l.logger.InfoContext(ctx, "No account on server, creating one", "name", l.defName, "currency", l.defCur)
		acct, err = l.api.CreateAccount(ctx, remote.NewAccount{Name: l.defName, Currency: l.defCur, Balance: "0"})
		if err != nil {
			return core.Account{}, fmt.Errorf("create account: %w", err)
		}
	} else {
		acct = l.pick(accounts)
	}

	if err := l.Replace(ctx, acct); err != nil {
		return core.Account{}, err
	}
	l.logger.DebugContext(ctx, "Account refreshed",
		log.FieldAccountID, acct.ID,
		log.FieldBalance, acct.Balance.String())
	acct.State = core.Confirmed
	return acct, nil
}

// pick prefers the account we already track, else the first one listed.
func (l *Ledger) pick(accounts []core.Account) core.Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		for _, a := range accounts {
			if a.ID == l.current.ID {
				return a
			}
		}
	}
	return accounts[0]
}

// Replace stores a server-confirmed value, overwriting any estimate.
func (l *Ledger) Replace(ctx context.Context, acct core.Account) error {
	acct.State = core.Confirmed
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.SaveAccount(ctx, acct); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	l.current = &acct
	return nil
}

// ApplyDelta moves the balance by d and marks it Estimated. A zero delta is a no-op.
func (l *Ledger) ApplyDelta(ctx context.Context, d decimal.Decimal) (core.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(ctx); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.Account{}, core.ErrNoAccount
		}
		return core.Account{}, fmt.Errorf("load account: %w", err)
	}
	if d.IsZero() {
		return *l.current, nil
	}

	next := *l.current
	next.Balance = next.Balance.Add(d)
	next.State = core.Estimated
	if err := l.store.SaveAccount(ctx, next); err != nil {
		return core.Account{}, fmt.Errorf("save account: %w", err)
	}
	l.current = &next

	l.logger.DebugContext(ctx, "Applied balance delta",
		log.FieldAccountID, next.ID,
		log.FieldDelta, d.String(),
		log.FieldBalance, next.Balance.String())
	return next, nil
}

// Fold returns baseline plus the signed amount of every transaction. Rows with an unknown
// category or an unparsable amount are skipped and reported.
func Fold(baseline decimal.Decimal, txs []core.Transaction, cats core.CategoryIndex) (sum decimal.Decimal, skipped []int64) {
	sum = baseline
	for _, t := range txs {
		c, ok := cats[t.CategoryID]
		if !ok {
			skipped = append(skipped, t.ID)
			continue
		}
		d, err := core.SignedAmount(t, c)
		if err != nil {
			skipped = append(skipped, t.ID)
			continue
		}
		sum = sum.Add(d)
	}
	return sum, skipped
}

// Recalculate rebuilds the balance from baseline and txs. When the result differs from the
// current balance the account is written through once; otherwise nothing is sent.
func (l *Ledger) Recalculate(ctx context.Context, baseline decimal.Decimal, txs []core.Transaction, cats core.CategoryIndex) (core.Account, bool, error) {
	current, err := l.Current(ctx)
	if err != nil {
		return core.Account{}, false, err
	}

	sum, skipped := Fold(baseline, txs, cats)
	for _, id := range skipped {
		l.logger.WarnContext(ctx, "Skipping transaction during reconciliation", log.FieldTransactionID, id)
	}

	if sum.Equal(current.Balance) {
		return current, false, nil
	}

	l.logger.InfoContext(ctx, "Balance drift corrected",
		log.FieldAccountID, current.ID,
		"from", current.Balance.String(),
		"to", sum.String(),
		log.FieldCount, len(txs))

	current.Balance = sum
	updated, err := l.UpdateBankAccount(ctx, current)
	if err != nil {
		return core.Account{}, false, err
	}
	return updated, true, nil
}

// UpdateBankAccount writes acct through to the server. Offline, or when the server is
// unreachable, it is persisted locally as Estimated.
func (l *Ledger) UpdateBankAccount(ctx context.Context, acct core.Account) (core.Account, error) {
	if l.monitor.Online() {
		confirmed, err := l.api.UpdateAccount(ctx, acct)
		if err == nil {
			if err := l.Replace(ctx, confirmed); err != nil {
				return core.Account{}, err
			}
			confirmed.State = core.Confirmed
			return confirmed, nil
		}
		if !core.IsConnectivity(err) {
			return core.Account{}, fmt.Errorf("update account: %w", err)
		}
		l.logger.WarnContext(ctx, "Ledger unreachable, keeping account change locally", log.FieldError, err)
	}

	acct.State = core.Estimated
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.SaveAccount(ctx, acct); err != nil {
		return core.Account{}, fmt.Errorf("save account: %w", err)
	}
	l.current = &acct
	return acct, nil
}

// ChangeBankAccount renames the account or switches its currency.
func (l *Ledger) ChangeBankAccount(ctx context.Context, name, currency string) (core.Account, error) {
	acct, err := l.Current(ctx)
	if err != nil {
		return core.Account{}, err
	}
	if name != "" {
		acct.Name = name
	}
	if currency != "" {
		acct.Currency = currency
	}
	return l.UpdateBankAccount(ctx, acct)
}
