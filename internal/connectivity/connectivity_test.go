package connectivity

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	s := NewStatus(false)

	var mu sync.Mutex
	var got []bool
	cancel := s.OnTransition(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	s.Set(false) // no change
	s.Set(true)
	s.Set(true) // no change
	s.Set(false)
	cancel()
	s.Set(true)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Errorf("transitions = %v, want [true false]", got)
	}
	if !s.Online() {
		t.Error("Online() = false after final Set(true)")
	}
}

func TestStatic(t *testing.T) {
	var m Monitor = Static(true)
	if !m.Online() {
		t.Error("Static(true).Online() = false")
	}
	if Static(false).Online() {
		t.Error("Static(false).Online() = true")
	}
}

type pipeConn struct{ net.Conn }

func (pipeConn) Close() error { return nil }

func TestProberProbe(t *testing.T) {
	reachable := true
	p := &Prober{
		Status: NewStatus(false),
		Addr:   "ledger:443",
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if network != "tcp" || addr != "ledger:443" {
				t.Errorf("dial %s %s", network, addr)
			}
			if reachable {
				return pipeConn{}, nil
			}
			return nil, errors.New("connection refused")
		},
	}

	var flips int
	p.Status.OnTransition(func(bool) { flips++ })

	if !p.Probe(context.Background()) || !p.Status.Online() {
		t.Fatal("expected online after successful dial")
	}
	reachable = false
	if p.Probe(context.Background()) || p.Status.Online() {
		t.Fatal("expected offline after failed dial")
	}
	p.Probe(context.Background())
	if flips != 2 {
		t.Errorf("transitions = %d, want 2", flips)
	}
}

func TestProberCanceledKeepsState(t *testing.T) {
	p := &Prober{
		Status: NewStatus(true),
		Addr:   "ledger:443",
		Dial: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return nil, ctx.Err()
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Probe(ctx)
	if !p.Status.Online() {
		t.Error("canceled probe must not flip the status")
	}
}

func TestProberRunAgainstListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	p := &Prober{Status: NewStatus(false), Addr: ln.Addr().String(), Interval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !p.Status.Online() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if !p.Status.Online() {
		t.Fatal("prober never reported online")
	}
}
