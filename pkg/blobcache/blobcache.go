// Package blobcache keeps recently requested files in memory.
//
// Entries are keyed by absolute path and live as long as they keep being
// requested within the survival window. Every Get finishes with a sweep that
// drops entries idle for longer than the window, so memory stays bounded by
// the working set of the last window without a background goroutine.
package blobcache

import (
	"container/list"
	"os"
	"sync"
	"time"

	"github.com/pascaldekloe/metrics"
	"go.uber.org/zap"
)

var (
	metricHit     = metrics.MustCounter("docroot_cache_hit", "Number of files served from memory")
	metricMiss    = metrics.MustCounter("docroot_cache_miss", "Number of files that could not be loaded")
	metricLoad    = metrics.MustCounter("docroot_cache_load", "Number of files read from disk")
	metricLoadB   = metrics.MustCounter("docroot_cache_load_bytes", "Bytes read from disk")
	metricEvict   = metrics.MustCounter("docroot_cache_evict", "Number of entries dropped by sweeps")
	metricEntries = metrics.MustInteger("docroot_cache_entries", "Number of entries held in memory")
	metricBytes   = metrics.MustInteger("docroot_cache_bytes", "Bytes held in memory")
)

// Loader reads a whole file.
type Loader func(path string) ([]byte, error)

type blob struct {
	path       string
	content    []byte
	lastAccess time.Time
}

type Cache struct {
	survival time.Duration
	load     Loader
	now      func() time.Time
	log      *zap.Logger

	mu      sync.Mutex
	entries map[string]*list.Element
	// most recently used at the front
	order *list.List
	bytes int64
}

type Option func(*Cache)

// WithLoader replaces os.ReadFile.
func WithLoader(load Loader) Option {
	return func(c *Cache) { c.load = load }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// New creates a cache whose entries survive for the given duration after
// their last access. A zero or negative survival disables caching.
func New(survival time.Duration, options ...Option) *Cache {
	c := &Cache{
		survival: survival,
		load:     os.ReadFile,
		now:      time.Now,
		log:      zap.NewNop(),
		entries:  map[string]*list.Element{},
		order:    list.New(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Get returns the content of the file at path, reading it from disk if it is
// not held yet. The returned slice is shared and must not be modified.
// ok is false if the file is absent or unreadable; failures are not cached.
func (c *Cache) Get(path string) (content []byte, ok bool) {
	c.mu.Lock()
	if element, found := c.entries[path]; found {
		b := element.Value.(*blob)
		now := c.now()
		b.lastAccess = now
		c.order.MoveToFront(element)
		content = b.content
		c.sweep(now)
		c.mu.Unlock()

		metricHit.Add(1)
		return content, true
	}
	c.mu.Unlock()

	// Concurrent misses for one path may both read the file; the later
	// insert replaces the earlier one.
	content, err := c.load(path)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	if err != nil {
		c.log.Debug("loading file failed", zap.String("path", path), zap.Error(err))
		c.sweep(now)
		metricMiss.Add(1)
		return nil, false
	}

	c.insert(path, content, now)
	c.sweep(now)
	metricLoad.Add(1)
	metricLoadB.Add(uint64(len(content)))
	return content, true
}

// Len returns the number of entries currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Size returns the number of content bytes currently held.
func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

func (c *Cache) insert(path string, content []byte, now time.Time) {
	if element, found := c.entries[path]; found {
		c.remove(element)
	}
	c.entries[path] = c.order.PushFront(&blob{path: path, content: content, lastAccess: now})
	c.bytes += int64(len(content))
	c.publish()
}

func (c *Cache) remove(element *list.Element) {
	b := c.order.Remove(element).(*blob)
	delete(c.entries, b.path)
	c.bytes -= int64(len(b.content))
}

// sweep drops every entry idle for longer than the survival window. It walks
// from the least recently used end and stops at the first live entry.
func (c *Cache) sweep(now time.Time) {
	evicted := 0
	for element := c.order.Back(); element != nil; element = c.order.Back() {
		b := element.Value.(*blob)
		if c.survival > 0 && now.Sub(b.lastAccess) <= c.survival {
			break
		}
		c.remove(element)
		evicted++
	}

	if evicted > 0 {
		metricEvict.Add(uint64(evicted))
		c.publish()
		c.log.Debug("evicted idle files", zap.Int("count", evicted), zap.Int("remaining", c.order.Len()))
	}
}

func (c *Cache) publish() {
	metricEntries.Set(int64(c.order.Len()))
	metricBytes.Set(c.bytes)
}
