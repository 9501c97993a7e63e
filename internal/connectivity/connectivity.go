// Package connectivity answers "can we reach the ledger right now?". Status is the single
// shared flag; Prober keeps it current by dialing the ledger host.
package connectivity

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/log"
)

// Monitor is sampled by the engine before every operation.
type Monitor interface {
	Online() bool
}

// TransitionFunc is called with the new state whenever it changes.
type TransitionFunc func(online bool)

// Status is an atomically updated online flag with transition subscribers.
type Status struct {
	online atomic.Bool

	mu        sync.Mutex
	listeners map[int]TransitionFunc
	nextID    int
}

func NewStatus(initial bool) *Status {
	s := &Status{listeners: make(map[int]TransitionFunc)}
	s.online.Store(initial)
	return s
}

func (s *Status) Online() bool {
	return s.online.Load()
}

// Set stores the new state and notifies listeners only on an actual transition.
// Listeners run synchronously on the caller's goroutine.
func (s *Status) Set(online bool) {
	if s.online.Swap(online) == online {
		return
	}
	s.mu.Lock()
	fns := make([]TransitionFunc, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// OnTransition registers fn and returns a func that removes it.
func (s *Status) OnTransition(fn TransitionFunc) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Static is a Monitor with a fixed answer.
type Static bool

func (s Static) Online() bool { return bool(s) }

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Prober periodically dials Addr over TCP and records the outcome in Status.
type Prober struct {
	Status   *Status
	Addr     string
	Interval time.Duration
	Timeout  time.Duration
	Dial     DialFunc
	Logger   *log.Logger
}

// Probe performs one dial and updates Status.
func (p *Prober) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dial := p.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(dctx, "tcp", p.Addr)
	online := err == nil
	if conn != nil {
		_ = conn.Close()
	}
	if ctx.Err() != nil {
		// Shutting down; leave the last known state alone.
		return p.Status.Online()
	}

	if was := p.Status.Online(); was != online && p.Logger != nil {
		if online {
			p.Logger.Info("Ledger reachable", "addr", p.Addr)
		} else {
			p.Logger.Warn("Ledger unreachable", "addr", p.Addr, log.FieldError, err)
		}
	}
	p.Status.Set(online)
	return online
}

// Run probes immediately and then on every tick until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	interval := p.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	p.Probe(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
