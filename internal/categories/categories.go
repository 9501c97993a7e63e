// Package categories serves category reference data from a configurable source through a
// TTL cache. When the source fails, the last good list is served instead.
package categories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/remote"
)

var ErrNoCategories = errors.New("no categories available")

// Source loads the full category list.
type Source interface {
	Categories(ctx context.Context) ([]core.Category, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]core.Category, error)

func (f SourceFunc) Categories(ctx context.Context) ([]core.Category, error) { return f(ctx) }

// RemoteSource reads categories from the ledger service.
type RemoteSource struct {
	API remote.CategoryAPI
}

func (s RemoteSource) Categories(ctx context.Context) ([]core.Category, error) {
	cats, err := s.API.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote categories: %w", err)
	}
	return cats, nil
}

const cacheKey = "categories"

type Provider struct {
	source Source
	cache  *cache.LRUCache[[]core.Category]
	logger *log.Logger

	mu        sync.Mutex
	lastKnown []core.Category
}

func NewProvider(source Source, ttl time.Duration, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Discard()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Provider{
		source: source,
		cache:  cache.NewLRUCache[[]core.Category](1, ttl),
		logger: logger.WithComponent(log.ComponentCategories),
	}
}

// Cache exposes the underlying cache so it can be registered with a cache.Manager.
func (p *Provider) Cache() *cache.LRUCache[[]core.Category] { return p.cache }

// Categories returns the cached list, reloading from the source once the TTL has passed.
func (p *Provider) Categories(ctx context.Context) ([]core.Category, error) {
	if cats, ok := p.cache.Get(cacheKey); ok {
		return cats, nil
	}

	cats, err := p.source.Categories(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.mu.Lock()
		stale := p.lastKnown
		p.mu.Unlock()
		if stale != nil {
			p.logger.WarnContext(ctx, "Category source failed, serving last known list",
				log.FieldError, err,
				log.FieldCount, len(stale))
			return stale, nil
		}
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if len(cats) == 0 {
		p.logger.WarnContext(ctx, "Category source returned an empty list")
	}

	p.cache.Set(cacheKey, cats)
	p.mu.Lock()
	p.lastKnown = cats
	p.mu.Unlock()
	p.logger.DebugContext(ctx, "Categories loaded", log.FieldCount, len(cats))
	return cats, nil
}

// Index returns the categories keyed by id.
func (p *Provider) Index(ctx context.Context) (core.CategoryIndex, error) {
	cats, err := p.Categories(ctx)
	if err != nil {
		return nil, err
	}
	return core.IndexCategories(cats), nil
}

// Invalidate forces the next read to hit the source.
func (p *Provider) Invalidate() {
	p.cache.Delete(cacheKey)
}
