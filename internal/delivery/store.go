package delivery

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable marks an idempotency store failure. A run cannot deliver
// safely without the store, so callers treat it as fatal.
var ErrStoreUnavailable = errors.New("delivery: idempotency store unavailable")

// Status is the persisted state of a delivery record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
)

// Key identifies one rendered report of one window.
type Key struct {
	WindowKey string
	Hash      string
}

// Record is a row of the delivery ledger.
type Record struct {
	Key         Key
	Status      Status
	Chunks      int
	ReservedAt  time.Time
	DeliveredAt *time.Time
}

// Reservation is the outcome of a check-and-set on the ledger.
// When Acquired is false, Status holds the state that blocked it.
type Reservation struct {
	Key      Key
	Acquired bool
	Status   Status
}

// Store is the idempotency ledger shared across runs. Reserve must be atomic:
// of two concurrent callers with the same key at most one acquires.
type Store interface {
	Reserve(ctx context.Context, key Key) (Reservation, error)
	Commit(ctx context.Context, key Key, chunks int) error
	Release(ctx context.Context, key Key) error
}

// Lister exposes recent ledger rows for operators.
type Lister interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
}
