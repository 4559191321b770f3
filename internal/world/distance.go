package world

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Metric measures travel distance between two positions.
type Metric interface {
	Distance(a, b Position) int
}

// MetricFunc adapts a function to Metric.
type MetricFunc func(a, b Position) int

func (f MetricFunc) Distance(a, b Position) int { return f(a, b) }

// Chebyshev is straight-line tile range, ignoring obstacles.
var Chebyshev Metric = MetricFunc(func(a, b Position) int { return a.Range(b) })

type pair struct{ a, b Position }

// Memo caches an expensive Metric (e.g. path length) in a bounded LRU.
// Distances are treated as symmetric.
type Memo struct {
	inner Metric
	cache *lru.Cache[pair, int]

	mu           sync.Mutex
	hits, misses uint64
}

// NewMemo wraps inner. size <= 0 disables caching.
func NewMemo(inner Metric, size int) *Memo {
	if inner == nil {
		inner = Chebyshev
	}
	m := &Memo{inner: inner}
	if size > 0 {
		c, err := lru.New[pair, int](size)
		if err == nil {
			m.cache = c
		}
	}
	return m
}

func (m *Memo) Distance(a, b Position) int {
	if m.cache == nil {
		return m.inner.Distance(a, b)
	}
	k := orderedPair(a, b)
	if d, ok := m.cache.Get(k); ok {
		m.mu.Lock()
		m.hits++
		m.mu.Unlock()
		return d
	}
	d := m.inner.Distance(a, b)
	m.cache.Add(k, d)
	m.mu.Lock()
	m.misses++
	m.mu.Unlock()
	return d
}

// Purge drops every cached distance (terrain changed).
func (m *Memo) Purge() {
	if m.cache != nil {
		m.cache.Purge()
	}
}

// Stats returns cache hits and misses since creation.
func (m *Memo) Stats() (hits, misses uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}

func orderedPair(a, b Position) pair {
	if less(b, a) {
		a, b = b, a
	}
	return pair{a: a, b: b}
}

func less(a, b Position) bool {
	if a.Room != b.Room {
		return a.Room < b.Room
	}
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Y < b.Y
}
