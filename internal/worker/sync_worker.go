package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/connectivity"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// Config holds configuration for the sync worker
type Config struct {
	// DrainInterval is how often queued writes are replayed (default: 30s)
	DrainInterval time.Duration

	// RefreshInterval is how often the account is re-read from the server (default: 5m)
	RefreshInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		DrainInterval:   30 * time.Second,
		RefreshInterval: 5 * time.Minute,
	}
}

type (
	Drainer interface {
		Drain(ctx context.Context) (services.DrainReport, error)
	}

	// AccountRefresher rereads the account. The engine implements it under its own lock so a
	// refresh never interleaves with a write.
	AccountRefresher interface {
		RefreshAccount(ctx context.Context) (core.Account, error)
	}

	// Transitions reports connectivity changes; connectivity.Status implements it.
	Transitions interface {
		OnTransition(fn connectivity.TransitionFunc) (cancel func())
	}
)

// SyncWorker replays the pending queue in the background: on a ticker, right after start,
// and whenever connectivity comes back. It also keeps the account balance fresh.
type SyncWorker struct {
	drainer     Drainer
	accounts    AccountRefresher
	monitor     connectivity.Monitor
	transitions Transitions
	config      Config
	logger      *log.Logger

	kick chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	unwatch func()
}

func NewSyncWorker(
	drainer Drainer,
	accounts AccountRefresher,
	monitor connectivity.Monitor,
	transitions Transitions,
	config Config,
	logger *log.Logger,
) *SyncWorker {
	def := DefaultConfig()
	if config.DrainInterval <= 0 {
		config.DrainInterval = def.DrainInterval
	}
	if config.RefreshInterval <= 0 {
		config.RefreshInterval = def.RefreshInterval
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		drainer:     drainer,
		accounts:    accounts,
		monitor:     monitor,
		transitions: transitions,
		config:      config,
		logger:      logger.WithComponent(log.ComponentWorker),
		kick:        make(chan struct{}, 1),
	}
}

// Start begins the background loop. Returns an error if already running.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	if w.transitions != nil {
		w.unwatch = w.transitions.OnTransition(func(online bool) {
			if online {
				w.Kick()
			}
		})
	}
	w.mu.Unlock()

	go w.runLoop(ctx)

	w.logger.InfoContext(ctx, "Sync worker started",
		"drain_interval", w.config.DrainInterval,
		"refresh_interval", w.config.RefreshInterval)

	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	if w.unwatch != nil {
		w.unwatch()
		w.unwatch = nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Sync worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Sync worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	return nil
}

// IsRunning returns whether the worker is currently running
func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Kick requests a drain as soon as the loop is free. Repeated kicks collapse into one.
func (w *SyncWorker) Kick() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *SyncWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	drainTicker := time.NewTicker(w.config.DrainInterval)
	defer drainTicker.Stop()

	refreshTicker := time.NewTicker(w.config.RefreshInterval)
	defer refreshTicker.Stop()

	// Replay whatever survived the last run before waiting on the ticker
	w.drain(ctx)

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-w.kick:
			w.drain(ctx)
		case <-drainTicker.C:
			w.drain(ctx)
		case <-refreshTicker.C:
			w.refresh(ctx)
		}
	}
}

func (w *SyncWorker) drain(ctx context.Context) {
	if !w.monitor.Online() {
		w.logger.DebugContext(ctx, "Offline, skipping drain")
		return
	}

	start := time.Now()
	report, err := w.drainer.Drain(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.ErrorContext(ctx, "Drain failed", log.FieldError, err)
		return
	}
	if report == (services.DrainReport{}) {
		return
	}

	w.logger.InfoContext(ctx, "Drain completed",
		"replayed", report.Replayed,
		"deleted", report.Deleted,
		"failed", report.Failed,
		log.FieldDuration, time.Since(start).Milliseconds())
}

func (w *SyncWorker) refresh(ctx context.Context) {
	if w.accounts == nil || !w.monitor.Online() {
		return
	}
	acct, err := w.accounts.RefreshAccount(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.WarnContext(ctx, "Periodic account refresh failed",
			log.FieldErrorClass, core.ClassOf(err).String(),
			log.FieldError, err)
		return
	}
	w.logger.DebugContext(ctx, "Account refreshed",
		log.FieldAccountID, acct.ID,
		log.FieldBalance, acct.Balance.String())
}
