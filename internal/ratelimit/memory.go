package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = time.Minute

type window struct {
	hits   []time.Time
	length time.Duration
}

// Memory keeps request logs in process memory. Limits are per replica.
// Keys whose window has emptied are swept at most once per sweepInterval.
type Memory struct {
	mu        sync.Mutex
	logs      map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

func NewMemory() *Memory {
	return &Memory{logs: map[string]*window{}, now: time.Now}
}

func (m *Memory) Allow(_ context.Context, key string, policy Policy) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	full := policy.Name + ":" + key
	w, ok := m.logs[full]
	if !ok {
		w = &window{}
		m.logs[full] = w
	}
	w.length = policy.Window
	w.hits = prune(w.hits, now.Add(-policy.Window))

	if len(w.hits) >= policy.Limit {
		retry := time.Duration(0)
		if len(w.hits) > 0 {
			retry = w.hits[0].Add(policy.Window).Sub(now)
		} else {
			delete(m.logs, full)
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	w.hits = append(w.hits, now)
	return Decision{Allowed: true, Remaining: policy.Limit - len(w.hits)}, nil
}

func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for key, w := range m.logs {
		w.hits = prune(w.hits, now.Add(-w.length))
		if len(w.hits) == 0 {
			delete(m.logs, key)
		}
	}
}

func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, at := range hits {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	return kept
}

var _ Limiter = (*Memory)(nil)
