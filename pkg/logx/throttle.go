package logx

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle gates repetitive messages per key. Each key logs its first
// occurrence, then at most once per Interval (or every Every-th call).
//
// Intended for per-tick loops where the same condition repeats every step.
type Throttle struct {
	Every    int
	Interval time.Duration

	mu   sync.Mutex
	keys map[string]*rate.Sometimes
}

// Do runs fn if the key is not currently throttled.
func (t *Throttle) Do(key string, fn func()) {
	if t == nil {
		fn()
		return
	}
	t.mu.Lock()
	if t.keys == nil {
		t.keys = make(map[string]*rate.Sometimes)
	}
	s, ok := t.keys[key]
	if !ok {
		s = &rate.Sometimes{First: 1, Every: t.Every, Interval: t.Interval}
		t.keys[key] = s
	}
	t.mu.Unlock()
	s.Do(fn)
}

// Forget drops state for key so its next occurrence logs again.
func (t *Throttle) Forget(key string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	delete(t.keys, key)
	t.mu.Unlock()
}

// Retain drops state for every key keep rejects.
func (t *Throttle) Retain(keep func(key string) bool) {
	if t == nil {
		return
	}
	t.mu.Lock()
	for k := range t.keys {
		if !keep(k) {
			delete(t.keys, k)
		}
	}
	t.mu.Unlock()
}

// Len is the number of keys currently tracked.
func (t *Throttle) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}
