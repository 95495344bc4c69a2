// Package registry holds loaded model artifacts for serving. Artifacts are
// loaded on first use per product code and kept in a bounded LRU cache.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"prilythic/internal/artifact"
	"prilythic/internal/observability"
)

// DefaultBundle is the directory name of the shared model under the artifacts root.
const DefaultBundle = "default"

// Loader loads the artifact bundle that serves a product.
type Loader func(ctx context.Context, productCode string) (*artifact.Bundle, error)

// DirLoader loads <root>/<product_code> when it exists, else <root>/default.
func DirLoader(root string) Loader {
	return func(_ context.Context, productCode string) (*artifact.Bundle, error) {
		return artifact.Load(ResolveDir(root, productCode))
	}
}

// ResolveDir returns the bundle directory used for a product.
func ResolveDir(root, productCode string) string {
	if productCode != "" && filepath.Base(productCode) == productCode {
		dir := filepath.Join(root, productCode)
		if _, err := os.Stat(filepath.Join(dir, artifact.ManifestFile)); err == nil {
			return dir
		} else if !errors.Is(err, fs.ErrNotExist) {
			return dir
		}
	}
	return filepath.Join(root, DefaultBundle)
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits   uint64
	Misses uint64
	Loads  uint64
	Size   int
}

// Cache is a get-or-load cache of artifact bundles keyed by product code.
// Bundles are read-only once cached. Failed loads are not cached.
type Cache struct {
	cache   *lru.Cache[string, *artifact.Bundle]
	group   singleflight.Group
	load    Loader
	logger  *zap.Logger
	metrics *observability.Metrics

	hits   atomic.Uint64
	misses atomic.Uint64
	loads  atomic.Uint64
}

// New creates a cache holding at most size bundles.
func New(size int, load Loader, logger *zap.Logger, metrics *observability.Metrics) (*Cache, error) {
	if load == nil {
		return nil, errors.New("registry: nil loader")
	}
	c, err := lru.New[string, *artifact.Bundle](size)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{cache: c, load: load, logger: logger, metrics: metrics}, nil
}

// Get returns the bundle for productCode, loading it on first use.
// Concurrent misses for the same code share one load.
func (c *Cache) Get(ctx context.Context, productCode string) (*artifact.Bundle, error) {
	if b, ok := c.cache.Get(productCode); ok {
		c.hits.Add(1)
		c.recordLookup(true)
		return b, nil
	}
	c.misses.Add(1)
	c.recordLookup(false)

	v, err, _ := c.group.Do(productCode, func() (any, error) {
		if b, ok := c.cache.Get(productCode); ok {
			return b, nil
		}
		b, err := c.load(ctx, productCode)
		c.loads.Add(1)
		if c.metrics != nil {
			c.metrics.RecordModelLoad(err)
		}
		if err != nil {
			c.logger.Warn("model load failed", zap.String("product", productCode), zap.Error(err))
			return nil, err
		}
		c.cache.Add(productCode, b)
		c.logger.Info("model loaded",
			zap.String("product", productCode),
			zap.String("run_id", b.Manifest.RunID),
			zap.Int("trees", b.Manifest.Trees))
		return b, nil
	})
	if err != nil {
		return nil, fmt.Errorf("load model for %s: %w", productCode, err)
	}
	return v.(*artifact.Bundle), nil
}

// Invalidate drops a cached bundle so the next Get reloads it.
func (c *Cache) Invalidate(productCode string) {
	c.cache.Remove(productCode)
}

// Purge drops every cached bundle.
func (c *Cache) Purge() {
	c.cache.Purge()
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Loads:  c.loads.Load(),
		Size:   c.cache.Len(),
	}
}

func (c *Cache) recordLookup(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(hit)
	}
}
