// Package services holds the sync engine: the single entry point through which transactions
// are read and written. Writes go to the remote ledger when it is reachable and are queued in
// the pending store when it is not; queued work is replayed by Drain.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/connectivity"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/remote"
	"fintrack/internal/storage"
)

// State is where a write ended up.
type State int

const (
	// Confirmed writes were accepted by the remote ledger.
	Confirmed State = iota
	// Queued writes sit in the pending store until the next drain.
	Queued
)

func (s State) String() string {
	switch s {
	case Confirmed:
		return "confirmed"
	case Queued:
		return "queued"
	default:
		return "unknown"
	}
}

type (
	// CategoryIndexer supplies the category reference data.
	CategoryIndexer interface {
		Index(ctx context.Context) (core.CategoryIndex, error)
	}

	// Result is the outcome of a write: the record as stored and where it ended up.
	Result struct {
		Transaction core.Transaction
		State       State
	}

	// DrainReport counts what one drain did. Failed items stay queued.
	DrainReport struct {
		Replayed int
		Deleted  int
		Failed   int
	}

	// EngineConfig wires the engine to its stores and collaborators.
	EngineConfig struct {
		Stores     storage.Stores
		Remote     remote.TransactionAPI
		Ledger     *ledger.Ledger
		Monitor    connectivity.Monitor
		Categories CategoryIndexer
		// Broadcaster receives change events; one is created when nil.
		Broadcaster *notify.Broadcaster
		Logger      *log.Logger
		Now         func() time.Time
	}
)

// Engine serializes every public operation behind one mutex.
type Engine struct {
	cache   storage.TransactionStore
	pending storage.PendingStore
	remote  remote.TransactionAPI
	ledger  *ledger.Ledger
	monitor connectivity.Monitor
	cats    CategoryIndexer
	bus     *notify.Broadcaster
	logger  *log.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewEngine creates an Engine. Logger, Broadcaster and Now are optional.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	bus := cfg.Broadcaster
	if bus == nil {
		bus = notify.NewBroadcaster()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cache:   cfg.Stores.Cache,
		pending: cfg.Stores.Pending,
		remote:  cfg.Remote,
		ledger:  cfg.Ledger,
		monitor: cfg.Monitor,
		cats:    cfg.Categories,
		bus:     bus,
		logger:  logger.WithComponent(log.ComponentSync),
		now:     now,
	}
}

// Broadcaster returns the bus change events are published on.
func (e *Engine) Broadcaster() *notify.Broadcaster { return e.bus }

// Subscribe registers for change events. See notify.Broadcaster.Subscribe.
func (e *Engine) Subscribe(buffer int) (<-chan notify.Event, func()) {
	return e.bus.Subscribe(buffer)
}

// Account returns the current account view.
func (e *Engine) Account(ctx context.Context) (core.Account, error) {
	return e.ledger.Current(ctx)
}

// RefreshAccount rereads the account from the server. It holds the engine lock, so it never
// lands between a write's optimistic delta and that write's outcome.
func (e *Engine) RefreshAccount(ctx context.Context) (core.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct, err := e.ledger.Refresh(ctx)
	if err != nil {
		return core.Account{}, err
	}
	e.bus.Publish(notify.NewEvent(notify.AccountChanged))
	return acct, nil
}

// FetchTransactions returns the transactions dated inside p. Online it drains the queue and
// reads the remote ledger, refreshing the cache; when that fails, or offline, it serves local
// data instead.
func (e *Engine) FetchTransactions(ctx context.Context, p core.Period) ([]core.EnrichedTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txs, err := e.fetchLocked(ctx, p)
	if err != nil {
		return nil, err
	}
	return e.enrich(ctx, txs)
}

func (e *Engine) fetchLocked(ctx context.Context, p core.Period) ([]core.Transaction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if !e.monitor.Online() {
		txs, err := e.cache.FetchByPeriod(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("fetch cached transactions: %w", err)
		}
		sortByDate(txs)
		return txs, nil
	}

	if _, err := e.drainLocked(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.WarnContext(ctx, "Drain before fetch failed", log.FieldError, err)
	}

	// The server balance overwrites any estimate left behind by earlier writes.
	acct, err := e.ledger.Refresh(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.degraded(ctx, p, fmt.Errorf("refresh account: %w", err))
	}

	fetched, err := e.remote.ListTransactions(ctx, acct.ID, p)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return e.degraded(ctx, p, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.cache.Upsert(ctx, fetched...); err != nil {
		e.logger.ErrorContext(ctx, "Failed to refresh transaction cache",
			log.FieldError, err,
			log.FieldCount, len(fetched))
	}

	queued, err := e.pending.FetchByPeriod(ctx, p)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to read pending transactions", log.FieldError, err)
		queued = nil
	}

	e.logger.DebugContext(ctx, "Fetched transactions",
		log.FieldOperation, log.OpFetch,
		log.FieldCount, len(fetched),
		log.FieldPeriodFrom, p.From,
		log.FieldPeriodTo, p.To)
	return mergeByID(fetched, queued), nil
}

// degraded serves cache and pending merged. It fails only when both reads fail.
func (e *Engine) degraded(ctx context.Context, p core.Period, cause error) ([]core.Transaction, error) {
	e.logger.WarnContext(ctx, "Remote fetch failed, serving local data",
		log.FieldError, cause,
		log.FieldErrorClass, core.ClassOf(cause).String())

	cached, cerr := e.cache.FetchByPeriod(ctx, p)
	queued, perr := e.pending.FetchByPeriod(ctx, p)
	if cerr != nil && perr != nil {
		return nil, fmt.Errorf("fetch transactions: %w", errors.Join(cause, cerr, perr))
	}
	if cerr != nil {
		e.logger.ErrorContext(ctx, "Failed to read transaction cache", log.FieldError, cerr)
	}
	if perr != nil {
		e.logger.ErrorContext(ctx, "Failed to read pending transactions", log.FieldError, perr)
	}
	return mergeByID(cached, queued), nil
}

// enrich loads the account and the categories concurrently and attaches them. Neither is
// required: a missing account leaves the zero value and unknown categories stay nil.
func (e *Engine) enrich(ctx context.Context, txs []core.Transaction) ([]core.EnrichedTransaction, error) {
	var (
		acct core.Account
		idx  core.CategoryIndex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a, err := e.ledger.Current(gctx)
		if err != nil {
			e.logger.DebugContext(ctx, "Account unavailable for enrichment", log.FieldError, err)
			return nil
		}
		acct = a
		return nil
	})
	g.Go(func() error {
		i, err := e.cats.Index(gctx)
		if err != nil {
			e.logger.WarnContext(ctx, "Categories unavailable for enrichment", log.FieldError, err)
			return nil
		}
		idx = i
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]core.EnrichedTransaction, len(txs))
	for i, t := range txs {
		out[i] = core.EnrichedTransaction{
			Transaction: t,
			Account:     acct,
			Category:    idx.Lookup(t.CategoryID),
		}
	}
	return out, nil
}

// Transaction reads one record, preferring the queued copy.
func (e *Engine) Transaction(ctx context.Context, id int64) (core.EnrichedTransaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, inCache, inPending, err := e.locate(ctx, id)
	if err != nil {
		return core.EnrichedTransaction{}, err
	}
	if !inCache && !inPending {
		return core.EnrichedTransaction{}, fmt.Errorf("transaction %d: %w", id, storage.ErrNotFound)
	}
	out, err := e.enrich(ctx, []core.Transaction{t})
	if err != nil {
		return core.EnrichedTransaction{}, err
	}
	return out[0], nil
}

// PendingCount is the number of queued writes plus owed deletions.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	queued, err := e.pending.FetchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	marks, err := e.pending.FetchPendingDeletions(ctx)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return len(queued) + len(marks), nil
}

// CreateTransaction records a new transaction. A zero ID gets a negative placeholder that the
// server replaces on confirmation, and a zero AccountID the current account. The record gets a
// client key unless it already has one; the key makes every create attempt for it idempotent.
func (e *Engine) CreateTransaction(ctx context.Context, t core.Transaction) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t.ID == 0 {
		id, err := e.nextLocalID(ctx)
		if err != nil {
			return Result{}, err
		}
		t.ID = id
	}
	if t.ClientKey == "" {
		t.ClientKey = remote.NewClientKey()
	}
	if t.AccountID == 0 {
		if acct, err := e.ledger.Current(ctx); err == nil {
			t.AccountID = acct.ID
		}
	}
	now := e.now().UTC()
	if t.CreatedAt == nil {
		t.CreatedAt = &now
	}
	t.UpdatedAt = &now
	t.IsSynced = false

	queue := func() error { return e.queue(ctx, t, false) }

	if !e.monitor.Online() {
		if err := queue(); err != nil {
			return Result{}, fmt.Errorf("create transaction %d: %w", t.ID, err)
		}
		e.logQueued(ctx, log.OpCreate, t.ID)
		return Result{Transaction: t, State: Queued}, nil
	}

	delta := e.signed(ctx, t)
	e.applyDelta(ctx, delta)

	confirmed, err := e.remote.CreateTransaction(ctx, t)
	if err != nil {
		return e.fallback(ctx, log.OpCreate, t, delta, err, queue)
	}
	confirmed = e.confirm(ctx, t.ID, confirmed)
	e.afterWrite(ctx, confirmed.ID)

	e.logger.InfoContext(ctx, "Transaction created",
		log.FieldOperation, log.OpCreate,
		log.FieldTransactionID, confirmed.ID,
		log.FieldDelta, delta.String())
	return Result{Transaction: confirmed, State: Confirmed}, nil
}

// EditTransaction replaces an existing transaction. Records that never reached the server
// are sent as creates.
func (e *Engine) EditTransaction(ctx context.Context, t core.Transaction) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prior, inCache, inPending, err := e.locate(ctx, t.ID)
	if err != nil {
		return Result{}, err
	}
	if !inCache && !inPending {
		return Result{}, fmt.Errorf("edit transaction %d: %w", t.ID, storage.ErrNotFound)
	}
	if t.AccountID == 0 {
		t.AccountID = prior.AccountID
	}
	if t.CreatedAt == nil {
		t.CreatedAt = prior.CreatedAt
	}
	if t.ClientKey == "" {
		t.ClientKey = prior.ClientKey
	}
	if t.ClientKey == "" {
		t.ClientKey = remote.NewClientKey()
	}
	now := e.now().UTC()
	t.UpdatedAt = &now
	t.IsSynced = false

	queue := func() error { return e.queue(ctx, t, inCache) }

	if !e.monitor.Online() {
		if err := queue(); err != nil {
			return Result{}, fmt.Errorf("edit transaction %d: %w", t.ID, err)
		}
		e.logQueued(ctx, log.OpEdit, t.ID)
		return Result{Transaction: t, State: Queued}, nil
	}

	delta := e.signed(ctx, t).Sub(e.signed(ctx, prior))
	e.applyDelta(ctx, delta)

	var confirmed core.Transaction
	if inCache {
		confirmed, err = e.remote.UpdateTransaction(ctx, t)
		if remote.IsNotFound(err) {
			confirmed, err = e.remote.CreateTransaction(ctx, t)
		}
	} else {
		confirmed, err = e.remote.CreateTransaction(ctx, t)
	}
	if err != nil {
		return e.fallback(ctx, log.OpEdit, t, delta, err, queue)
	}
	confirmed = e.confirm(ctx, t.ID, confirmed)
	e.afterWrite(ctx, confirmed.ID)

	e.logger.InfoContext(ctx, "Transaction edited",
		log.FieldOperation, log.OpEdit,
		log.FieldTransactionID, confirmed.ID,
		log.FieldDelta, delta.String())
	return Result{Transaction: confirmed, State: Confirmed}, nil
}

// DeleteTransaction removes a transaction. A remote not-found counts as success. Offline the
// deletion is owed to the server only when the record may exist there.
func (e *Engine) DeleteTransaction(ctx context.Context, id int64) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prior, inCache, inPending, err := e.locate(ctx, id)
	if err != nil {
		return Result{}, err
	}
	prior.ID = id

	// Placeholder ids never reached the server, so there is nothing to delete remotely.
	if id < 0 {
		if err := e.queueDelete(ctx, id, false); err != nil {
			return Result{}, fmt.Errorf("delete transaction %d: %w", id, err)
		}
		if e.monitor.Online() {
			e.afterWrite(ctx, id)
		} else {
			e.bus.Publish(notify.NewEvent(notify.TransactionsChanged, id))
		}
		return Result{Transaction: prior, State: Confirmed}, nil
	}
	owed := inCache || !inPending

	queue := func() error { return e.queueDelete(ctx, id, owed) }

	if !e.monitor.Online() {
		if err := queue(); err != nil {
			return Result{}, fmt.Errorf("delete transaction %d: %w", id, err)
		}
		e.logQueued(ctx, log.OpDelete, id)
		return Result{Transaction: prior, State: Queued}, nil
	}

	// Only cached records are reflected in the confirmed balance.
	delta := decimal.Zero
	if inCache {
		delta = e.signed(ctx, prior).Neg()
	}
	e.applyDelta(ctx, delta)

	if err := e.remote.DeleteTransaction(ctx, id); err != nil && !remote.IsNotFound(err) {
		return e.fallback(ctx, log.OpDelete, prior, delta, err, queue)
	}

	local := context.WithoutCancel(ctx)
	if err := e.queueDelete(local, id, false); err != nil {
		e.logger.ErrorContext(ctx, "Failed to drop deleted transaction locally",
			log.FieldTransactionID, id, log.FieldError, err)
	}
	if err := e.pending.ClearDeletionMark(local, id); err != nil {
		e.logger.ErrorContext(ctx, "Failed to clear deletion mark",
			log.FieldTransactionID, id, log.FieldError, err)
	}
	e.afterWrite(ctx, id)

	e.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, id,
		log.FieldDelta, delta.String())
	return Result{Transaction: prior, State: Confirmed}, nil
}

// fallback handles a failed remote write. Connectivity failures are queued and keep their
// optimistic delta; anything else reverts the delta and is returned.
func (e *Engine) fallback(ctx context.Context, op string, t core.Transaction, delta decimal.Decimal, err error, queue func() error) (Result, error) {
	class := core.ClassOf(err)
	if class == core.ClassConnectivity && ctx.Err() == nil {
		e.logger.WarnContext(ctx, "Ledger unreachable, queuing write",
			log.FieldOperation, op,
			log.FieldTransactionID, t.ID,
			log.FieldError, err)
		if qerr := queue(); qerr != nil {
			return Result{}, fmt.Errorf("%s transaction %d: %w", op, t.ID, qerr)
		}
		return Result{Transaction: t, State: Queued}, nil
	}

	e.applyDelta(context.WithoutCancel(ctx), delta.Neg())
	e.logger.ErrorContext(ctx, "Remote write rejected",
		log.FieldOperation, op,
		log.FieldTransactionID, t.ID,
		log.FieldErrorClass, class.String(),
		log.FieldError, err)
	return Result{}, fmt.Errorf("%s transaction %d: %w", op, t.ID, err)
}

// Drain replays queued writes and owed deletions. It does nothing while offline.
func (e *Engine) Drain(ctx context.Context) (DrainReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.monitor.Online() {
		return DrainReport{}, nil
	}
	return e.drainLocked(ctx)
}

func (e *Engine) drainLocked(ctx context.Context) (DrainReport, error) {
	var report DrainReport

	queued, err := e.pending.FetchAll(ctx)
	if err != nil {
		return report, fmt.Errorf("read pending transactions: %w", err)
	}
	marks, err := e.pending.FetchPendingDeletions(ctx)
	if err != nil {
		return report, fmt.Errorf("read deletion marks: %w", err)
	}
	if len(queued) == 0 && len(marks) == 0 {
		return report, nil
	}

	start := time.Now()
	var changed []int64

	for _, t := range queued {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		confirmed, err := e.replay(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			e.logger.WarnContext(ctx, "Replay failed, keeping transaction queued",
				log.FieldTransactionID, t.ID,
				log.FieldErrorClass, core.ClassOf(err).String(),
				log.FieldError, err)
			continue
		}
		confirmed = e.confirm(ctx, t.ID, confirmed)
		report.Replayed++
		changed = append(changed, confirmed.ID)
	}

	for _, id := range marks {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := e.remote.DeleteTransaction(ctx, id); err != nil && !remote.IsNotFound(err) {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed++
			e.logger.WarnContext(ctx, "Replay of deletion failed, keeping mark",
				log.FieldTransactionID, id,
				log.FieldErrorClass, core.ClassOf(err).String(),
				log.FieldError, err)
			continue
		}
		local := context.WithoutCancel(ctx)
		if err := e.pending.ClearDeletionMark(local, id); err != nil {
			e.logger.ErrorContext(ctx, "Failed to clear deletion mark",
				log.FieldTransactionID, id, log.FieldError, err)
		}
		if err := e.cache.Delete(local, id); err != nil {
			e.logger.ErrorContext(ctx, "Failed to drop deleted transaction from cache",
				log.FieldTransactionID, id, log.FieldError, err)
		}
		report.Deleted++
		changed = append(changed, id)
	}

	if len(changed) > 0 {
		e.afterWrite(ctx, changed...)
	}

	e.logger.InfoContext(ctx, "Drained pending writes",
		log.FieldOperation, log.OpDrain,
		"replayed", report.Replayed,
		"deleted", report.Deleted,
		"failed", report.Failed,
		log.FieldDuration, time.Since(start).Milliseconds())
	return report, nil
}

// replay sends one queued record: an update when the server already knows it, a create
// otherwise. Creates carry the record's client key, so a create the server already applied
// resolves to the stored record instead of a second one.
func (e *Engine) replay(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	_, err := e.cache.FetchByID(ctx, t.ID)
	switch {
	case err == nil:
		confirmed, err := e.remote.UpdateTransaction(ctx, t)
		if remote.IsNotFound(err) {
			return e.remote.CreateTransaction(ctx, t)
		}
		return confirmed, err
	case errors.Is(err, storage.ErrNotFound):
		return e.remote.CreateTransaction(ctx, t)
	default:
		return core.Transaction{}, err
	}
}

// RecalculateBalance rebuilds the balance from baseline and every transaction in p.
func (e *Engine) RecalculateBalance(ctx context.Context, p core.Period, baseline decimal.Decimal) (core.Account, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	txs, err := e.fetchLocked(ctx, p)
	if err != nil {
		return core.Account{}, false, err
	}
	idx, err := e.cats.Index(ctx)
	if err != nil {
		return core.Account{}, false, fmt.Errorf("load categories: %w", err)
	}
	return e.ledger.Recalculate(ctx, baseline, txs, idx)
}

// locate finds id in the pending store, then the cache. prior is the pending copy when
// both hold it.
func (e *Engine) locate(ctx context.Context, id int64) (prior core.Transaction, inCache, inPending bool, err error) {
	p, err := e.pending.FetchByID(ctx, id)
	switch {
	case err == nil:
		prior, inPending = p, true
	case !errors.Is(err, storage.ErrNotFound):
		return core.Transaction{}, false, false, fmt.Errorf("read pending transaction %d: %w", id, err)
	}

	c, err := e.cache.FetchByID(ctx, id)
	switch {
	case err == nil:
		inCache = true
		if !inPending {
			prior = c
		}
	case !errors.Is(err, storage.ErrNotFound):
		return core.Transaction{}, false, false, fmt.Errorf("read cached transaction %d: %w", id, err)
	}
	return prior, inCache, inPending, nil
}

// nextLocalID is one below the lowest id any local store knows about, and always negative.
// Server ids are positive, so a placeholder can never name a server record.
func (e *Engine) nextLocalID(ctx context.Context) (int64, error) {
	var lowest int64
	for _, s := range []storage.TransactionStore{e.cache, e.pending} {
		txs, err := s.FetchAll(ctx)
		if err != nil {
			return 0, fmt.Errorf("allocate id: %w", err)
		}
		for _, t := range txs {
			if t.ID < lowest {
				lowest = t.ID
			}
		}
	}
	marks, err := e.pending.FetchPendingDeletions(ctx)
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	for _, id := range marks {
		if id < lowest {
			lowest = id
		}
	}
	return lowest - 1, nil
}

// queue stores t for replay. A cached copy is overwritten too so offline reads see the edit.
func (e *Engine) queue(ctx context.Context, t core.Transaction, inCache bool) error {
	t.IsSynced = false
	if t.ClientKey == "" {
		t.ClientKey = remote.NewClientKey()
	}
	if err := e.pending.Upsert(ctx, t); err != nil {
		return err
	}
	if inCache {
		return e.cache.Upsert(ctx, t)
	}
	return nil
}

func (e *Engine) queueDelete(ctx context.Context, id int64, mark bool) error {
	if err := e.cache.Delete(ctx, id); err != nil {
		return err
	}
	if err := e.pending.Delete(ctx, id); err != nil {
		return err
	}
	if mark {
		return e.pending.MarkDeletion(ctx, id)
	}
	return nil
}

// confirm records a server-accepted write locally. The server may have assigned a new id,
// in which case the local one is dropped.
func (e *Engine) confirm(ctx context.Context, localID int64, confirmed core.Transaction) core.Transaction {
	if confirmed.ID == 0 {
		confirmed.ID = localID
	}
	confirmed.IsSynced = true

	local := context.WithoutCancel(ctx)
	if err := e.cache.Upsert(local, confirmed); err != nil {
		e.logger.ErrorContext(ctx, "Failed to cache confirmed transaction",
			log.FieldTransactionID, confirmed.ID, log.FieldError, err)
	}
	if err := e.pending.Delete(local, localID); err != nil {
		e.logger.ErrorContext(ctx, "Failed to drop replayed transaction",
			log.FieldTransactionID, localID, log.FieldError, err)
	}
	if confirmed.ID != localID {
		if err := e.cache.Delete(local, localID); err != nil {
			e.logger.ErrorContext(ctx, "Failed to drop superseded local id",
				log.FieldTransactionID, localID, log.FieldError, err)
		}
	}
	return confirmed
}

// afterWrite refreshes the account from the server and announces the change.
func (e *Engine) afterWrite(ctx context.Context, ids ...int64) {
	if _, err := e.ledger.Refresh(ctx); err != nil {
		e.logger.WarnContext(ctx, "Account refresh after write failed, balance stays estimated",
			log.FieldError, err)
	} else {
		e.bus.Publish(notify.NewEvent(notify.AccountChanged))
	}
	e.bus.Publish(notify.NewEvent(notify.TransactionsChanged, ids...))
}

// signed is the balance effect of t. Unknown categories and malformed amounts count as zero.
func (e *Engine) signed(ctx context.Context, t core.Transaction) decimal.Decimal {
	idx, err := e.cats.Index(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "Categories unavailable, skipping balance delta",
			log.FieldTransactionID, t.ID, log.FieldError, err)
		return decimal.Zero
	}
	c, ok := idx[t.CategoryID]
	if !ok {
		e.logger.WarnContext(ctx, "Unknown category, skipping balance delta",
			log.FieldTransactionID, t.ID, log.FieldCategoryID, t.CategoryID)
		return decimal.Zero
	}
	d, err := core.SignedAmount(t, c)
	if err != nil {
		e.logger.WarnContext(ctx, "Malformed amount, skipping balance delta",
			log.FieldTransactionID, t.ID, log.FieldAmount, t.Amount)
		return decimal.Zero
	}
	return d
}

func (e *Engine) applyDelta(ctx context.Context, d decimal.Decimal) {
	if d.IsZero() {
		return
	}
	if _, err := e.ledger.ApplyDelta(ctx, d); err != nil {
		if errors.Is(err, core.ErrNoAccount) {
			e.logger.DebugContext(ctx, "No account yet, delta not applied", log.FieldDelta, d.String())
			return
		}
		e.logger.WarnContext(ctx, "Failed to apply balance delta",
			log.FieldDelta, d.String(), log.FieldError, err)
	}
}

func (e *Engine) logQueued(ctx context.Context, op string, id int64) {
	e.logger.InfoContext(ctx, "Offline, write queued",
		log.FieldOperation, op,
		log.FieldTransactionID, id)
}
