package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-digest/internal/delivery"
)

// MemoryStore is an in-process delivery ledger for single-instance runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	lease   time.Duration
	records map[delivery.Key]delivery.Record
	now     func() time.Time
}

func NewMemoryStore(lease time.Duration) *MemoryStore {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &MemoryStore{
		lease:   lease,
		records: make(map[delivery.Key]delivery.Record),
		now:     time.Now,
	}
}

func (m *MemoryStore) Reserve(_ context.Context, key delivery.Key) (delivery.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if rec, ok := m.records[key]; ok {
		stale := rec.Status == delivery.StatusPending && now.Sub(rec.ReservedAt) > m.lease
		if !stale {
			return delivery.Reservation{Key: key, Status: rec.Status}, nil
		}
	}
	m.records[key] = delivery.Record{Key: key, Status: delivery.StatusPending, ReservedAt: now}
	return delivery.Reservation{Key: key, Acquired: true, Status: delivery.StatusPending}, nil
}

func (m *MemoryStore) Commit(_ context.Context, key delivery.Key, chunks int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		rec = delivery.Record{Key: key, ReservedAt: m.now()}
	}
	at := m.now()
	rec.Status = delivery.StatusDelivered
	rec.Chunks = chunks
	rec.DeliveredAt = &at
	m.records[key] = rec
	return nil
}

func (m *MemoryStore) Release(_ context.Context, key delivery.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[key]; ok && rec.Status == delivery.StatusPending {
		delete(m.records, key)
	}
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]delivery.Record, error) {
	m.mu.Lock()
	out := make([]delivery.Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ReservedAt.After(out[j].ReservedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var (
	_ delivery.Store  = (*MemoryStore)(nil)
	_ delivery.Lister = (*MemoryStore)(nil)
)
