package device

import (
	"sync"
)

// Logger defines the logging interface used by the Cache and Syncer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Cache is the ordered device collection plus the latest statistics.
//
// All public methods are thread-safe.
type Cache struct {
	mu      sync.RWMutex
	records []Record
	index   map[string]int // device_id -> position in records
	stats   Stats

	hooksMu sync.RWMutex
	onStats []func(Stats)

	logger Logger
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		index:  make(map[string]int),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the cache.
func (c *Cache) SetLogger(logger Logger) {
	c.logger = logger
}

// OnStatsReplaced registers fn to be called with a copy of the new stats
// after every ReplaceAll that carries stats. Hooks run outside the cache
// lock, in registration order.
func (c *Cache) OnStatsReplaced(fn func(Stats)) {
	if fn == nil {
		return
	}
	c.hooksMu.Lock()
	c.onStats = append(c.onStats, fn)
	c.hooksMu.Unlock()
}

// ReplaceAll replaces the whole collection, and the stats when stats is
// non-nil.
//
// Records without a device_id are dropped. When the same device_id
// appears more than once, the record keeps the position of its first
// occurrence and the value of its last.
func (c *Cache) ReplaceAll(records []Record, stats *Stats) {
	next := make([]Record, 0, len(records))
	index := make(map[string]int, len(records))
	dropped := 0

	for _, r := range records {
		id := r.ID()
		if id == "" {
			dropped++
			continue
		}
		if pos, ok := index[id]; ok {
			next[pos] = r.Clone()
			continue
		}
		index[id] = len(next)
		next = append(next, r.Clone())
	}

	c.mu.Lock()
	c.records = next
	c.index = index
	if stats != nil {
		c.stats = stats.Clone()
	}
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("dropped device records without device_id", "count", dropped)
	}
	c.logger.Debug("device collection replaced", "count", len(next), "stats", stats != nil)

	if stats != nil {
		c.fireStats(stats.Clone())
	}
}

// ReplaceStats replaces the statistics only.
func (c *Cache) ReplaceStats(stats Stats) {
	c.mu.Lock()
	c.stats = stats.Clone()
	c.mu.Unlock()

	c.fireStats(stats.Clone())
}

func (c *Cache) fireStats(stats Stats) {
	c.hooksMu.RLock()
	hooks := make([]func(Stats), len(c.onStats))
	copy(hooks, c.onStats)
	c.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(stats.Clone())
	}
}

// MergeOne shallow-merges patch into the record with deviceID and reports
// whether such a record exists. Unknown ids are ignored. A device_id key in
// the patch is never applied.
func (c *Cache) MergeOne(deviceID string, patch map[string]any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, ok := c.index[deviceID]
	if !ok {
		return false
	}

	rec := c.records[pos].Clone()
	for k, v := range patch {
		if k == FieldID {
			continue
		}
		rec[k] = deepCopyValue(v)
	}
	c.records[pos] = rec
	return true
}

// Devices returns a deep copy of the collection in order.
func (c *Cache) Devices() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Record, len(c.records))
	for i, r := range c.records {
		out[i] = r.Clone()
	}
	return out
}

// Get returns a deep copy of the record with id.
func (c *Cache) Get(id string) (Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pos, ok := c.index[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return c.records[pos].Clone(), nil
}

// Stats returns a copy of the latest statistics.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats.Clone()
}

// Len returns the number of records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// CountByStatus tallies the cached records by status. Unlike Stats, this
// reflects merges applied since the last fetch.
func (c *Cache) CountByStatus() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[string]int)
	for _, r := range c.records {
		counts[r.Status()]++
	}
	return counts
}
