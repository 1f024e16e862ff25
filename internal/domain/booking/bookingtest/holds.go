package bookingtest

import (
	"context"
	"sync"
	"time"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
)

// MemoryHolds is an in-process HoldStore without expiry. It remembers the
// last ttl asked for each token.
type MemoryHolds struct {
	mu    sync.Mutex
	holds map[string]domain.Hold
	ttls  map[string]time.Duration
}

func NewMemoryHolds() *MemoryHolds {
	return &MemoryHolds{holds: map[string]domain.Hold{}, ttls: map[string]time.Duration{}}
}

func (m *MemoryHolds) Acquire(_ context.Context, h domain.Hold, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.holds {
		if other.Token != h.Token && other.Date == h.Date && other.Interval.Overlaps(h.Interval) {
			return httperr.SlotUnavailable("slot_held", "slot %s is held by an open checkout", h.Interval)
		}
	}
	m.holds[h.Token] = h
	m.ttls[h.Token] = ttl
	return nil
}

func (m *MemoryHolds) Release(_ context.Context, h domain.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.holds, h.Token)
	delete(m.ttls, h.Token)
	return nil
}

func (m *MemoryHolds) Active(_ context.Context, date string) ([]domain.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Hold
	for _, h := range m.holds {
		if h.Date == date {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *MemoryHolds) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holds)
}

// Has reports whether token holds a slot.
func (m *MemoryHolds) Has(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.holds[token]
	return ok
}

// TTL returns the ttl of the last Acquire for token.
func (m *MemoryHolds) TTL(token string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[token]
}

var _ domain.HoldStore = (*MemoryHolds)(nil)
