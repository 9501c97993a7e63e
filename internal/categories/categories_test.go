package categories

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/remote/remotetest"
)

type countingSource struct {
	calls int
	cats  []core.Category
	err   error
}

func (s *countingSource) Categories(context.Context) ([]core.Category, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.cats, nil
}

func TestProvider_CachesWithinTTL(t *testing.T) {
	src := &countingSource{cats: []core.Category{{ID: 1, Name: "Food"}}}
	p := NewProvider(src, time.Hour, nil)

	for i := 0; i < 3; i++ {
		cats, err := p.Categories(context.Background())
		if err != nil || len(cats) != 1 {
			t.Fatalf("Categories() = %v, %v", cats, err)
		}
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}

	p.Invalidate()
	_, _ = p.Categories(context.Background())
	if src.calls != 2 {
		t.Errorf("source calls after Invalidate = %d, want 2", src.calls)
	}
}

func TestProvider_ServesLastKnownOnFailure(t *testing.T) {
	src := &countingSource{cats: []core.Category{{ID: 1, Name: "Food"}, {ID: 2, Name: "Salary", IsIncome: true}}}
	p := NewProvider(src, time.Hour, nil)
	if _, err := p.Categories(context.Background()); err != nil {
		t.Fatal(err)
	}

	p.Invalidate()
	src.err = errors.New("sheet unavailable")
	cats, err := p.Categories(context.Background())
	if err != nil {
		t.Fatalf("Categories() error = %v, want stale list", err)
	}
	if len(cats) != 2 {
		t.Errorf("stale list = %v", cats)
	}
}

func TestProvider_FailsWithoutHistory(t *testing.T) {
	p := NewProvider(&countingSource{err: errors.New("down")}, time.Hour, nil)
	if _, err := p.Categories(context.Background()); err == nil {
		t.Fatal("expected error with no cached list")
	}
}

func TestProvider_Index(t *testing.T) {
	p := NewProvider(SourceFunc(func(context.Context) ([]core.Category, error) {
		return []core.Category{{ID: 7, Name: "Rent"}}, nil
	}), time.Minute, nil)

	idx, err := p.Index(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c := idx.Lookup(7); c == nil || c.Name != "Rent" {
		t.Errorf("Lookup(7) = %v", c)
	}
	if idx.Lookup(8) != nil {
		t.Error("Lookup(8) should be nil")
	}
}

func TestRemoteSource(t *testing.T) {
	api := remotetest.NewFake([]core.Category{{ID: 1, Name: "Food"}})
	cats, err := RemoteSource{API: api}.Categories(context.Background())
	if err != nil || len(cats) != 1 {
		t.Fatalf("Categories() = %v, %v", cats, err)
	}

	api.SetDown(true)
	if _, err := (RemoteSource{API: api}).Categories(context.Background()); !core.IsConnectivity(err) {
		t.Errorf("error = %v, want connectivity", err)
	}
}
