package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunRecord archives the outcome of one pipeline run for operators.
type RunRecord struct {
	ID             uuid.UUID
	WindowKey      string
	ContentHash    string
	Delivered      bool
	Skipped        bool
	ElapsedSeconds float64
	Diagnostics    json.RawMessage
	CreatedAt      time.Time
}

// DefaultLease bounds how long a pending reservation blocks other runs.
// A run that crashed between reserve and commit frees its window after this.
const DefaultLease = 10 * time.Minute
