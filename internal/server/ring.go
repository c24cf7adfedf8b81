package server

import (
	"sync"

	"github.com/patze/bridge/internal/telemetry"
)

// RecentEvents is a fixed-size ring of the latest envelopes, kept for the
// status API. It never blocks emission; old entries are overwritten.
type RecentEvents struct {
	mu    sync.RWMutex
	buf   []telemetry.Envelope
	next  int
	count int
}

func NewRecentEvents(size int) *RecentEvents {
	if size <= 0 {
		size = 256
	}
	return &RecentEvents{buf: make([]telemetry.Envelope, size)}
}

// Add records an envelope, evicting the oldest when full.
func (r *RecentEvents) Add(e telemetry.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Latest returns up to n envelopes, newest first.
func (r *RecentEvents) Latest(n int) []telemetry.Envelope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]telemetry.Envelope, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.buf)*2) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Len returns the number of buffered envelopes.
func (r *RecentEvents) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}
