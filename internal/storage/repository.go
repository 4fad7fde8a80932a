package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"market-digest/internal/delivery"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	schemaSQL = `CREATE TABLE IF NOT EXISTS delivery_records (
        window_key   TEXT        NOT NULL,
        content_hash TEXT        NOT NULL,
        status       TEXT        NOT NULL,
        chunks       INTEGER     NOT NULL DEFAULT 0,
        reserved_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
        delivered_at TIMESTAMPTZ,
        PRIMARY KEY (window_key, content_hash)
    );
    CREATE TABLE IF NOT EXISTS digest_runs (
        id              UUID PRIMARY KEY,
        window_key      TEXT             NOT NULL,
        content_hash    TEXT             NOT NULL DEFAULT '',
        delivered       BOOLEAN          NOT NULL DEFAULT FALSE,
        skipped         BOOLEAN          NOT NULL DEFAULT FALSE,
        elapsed_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
        diagnostics     JSONB,
        created_at      TIMESTAMPTZ      NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS digest_runs_window_idx ON digest_runs (window_key);`

	// A pending row older than the lease is taken over; delivered rows never are.
	reserveSQL = `INSERT INTO delivery_records (
        window_key,
        content_hash,
        status,
        reserved_at
    ) VALUES (
        $1,$2,'pending',now()
    )
    ON CONFLICT (window_key, content_hash) DO UPDATE
    SET reserved_at = EXCLUDED.reserved_at
    WHERE delivery_records.status = 'pending'
      AND delivery_records.reserved_at < now() - make_interval(secs => $3)
    RETURNING status;`

	recordStatusSQL = `SELECT status FROM delivery_records
    WHERE window_key = $1 AND content_hash = $2;`

	commitSQL = `UPDATE delivery_records
    SET status = 'delivered', chunks = $3, delivered_at = now()
    WHERE window_key = $1 AND content_hash = $2;`

	releaseSQL = `DELETE FROM delivery_records
    WHERE window_key = $1 AND content_hash = $2 AND status = 'pending';`

	listRecentRecordsSQL = `SELECT
        window_key,
        content_hash,
        status,
        chunks,
        reserved_at,
        delivered_at
    FROM delivery_records
    ORDER BY reserved_at DESC
    LIMIT $1;`

	insertRunSQL = `INSERT INTO digest_runs (
        id,
        window_key,
        content_hash,
        delivered,
        skipped,
        elapsed_seconds,
        diagnostics
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (id) DO NOTHING;`

	listRecentRunsSQL = `SELECT
        id,
        window_key,
        content_hash,
        delivered,
        skipped,
        elapsed_seconds,
        diagnostics,
        created_at
    FROM digest_runs
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// RunArchive persists run diagnostics.
type RunArchive interface {
	InsertRun(ctx context.Context, run RunRecord) error
	ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL delivery ledger and run archive.
type Store struct {
	pool  *pgxpool.Pool
	lease time.Duration
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool, lease time.Duration) *Store {
	if lease <= 0 {
		lease = DefaultLease
	}
	return &Store{pool: pool, lease: lease}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the ledger and archive tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// an unlock failure is harmless: the lock dies with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Reserve performs the check-and-set in a single statement.
func (s *Store) Reserve(ctx context.Context, key delivery.Key) (delivery.Reservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return delivery.Reservation{Key: key}, err
	}
	return reserve(ctx, pool, key, s.lease)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// reserve retries once when the conflicting row disappears between the insert
// and the status read, which happens when its holder releases concurrently.
func reserve(ctx context.Context, q rowQuerier, key delivery.Key, lease time.Duration) (delivery.Reservation, error) {
	rsv := delivery.Reservation{Key: key}
	for attempt := 0; attempt < 2; attempt++ {
		var status string
		err := q.QueryRow(ctx, reserveSQL, key.WindowKey, key.Hash, lease.Seconds()).Scan(&status)
		switch {
		case err == nil:
			rsv.Acquired = true
			rsv.Status = delivery.StatusPending
			return rsv, nil
		case !errors.Is(err, pgx.ErrNoRows):
			return rsv, fmt.Errorf("reserve delivery: %w", err)
		}

		err = q.QueryRow(ctx, recordStatusSQL, key.WindowKey, key.Hash).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return rsv, fmt.Errorf("read delivery status: %w", err)
		}
		rsv.Status = delivery.Status(status)
		return rsv, nil
	}
	return rsv, fmt.Errorf("reserve delivery %s: record churned", key.WindowKey)
}

// Commit marks a reserved key as delivered.
func (s *Store) Commit(ctx context.Context, key delivery.Key, chunks int) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tag, err := pool.Exec(ctx, commitSQL, key.WindowKey, key.Hash, chunks)
	if err != nil {
		return fmt.Errorf("commit delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Release drops a pending reservation.
func (s *Store) Release(ctx context.Context, key delivery.Key) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, releaseSQL, key.WindowKey, key.Hash); err != nil {
		return fmt.Errorf("release delivery: %w", err)
	}
	return nil
}

// Recent lists the newest ledger rows.
func (s *Store) Recent(ctx context.Context, limit int) ([]delivery.Record, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRecordsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list delivery records: %w", queryErr)
	}
	defer rows.Close()

	records := make([]delivery.Record, 0, limit)
	for rows.Next() {
		var (
			rec    delivery.Record
			status string
		)
		if err := rows.Scan(
			&rec.Key.WindowKey,
			&rec.Key.Hash,
			&status,
			&rec.Chunks,
			&rec.ReservedAt,
			&rec.DeliveredAt,
		); err != nil {
			return nil, err
		}
		rec.Status = delivery.Status(status)
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// InsertRun archives one run.
func (s *Store) InsertRun(ctx context.Context, run RunRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var diagnostics any
	if len(run.Diagnostics) > 0 {
		diagnostics = []byte(run.Diagnostics)
	}

	_, execErr := pool.Exec(ctx, insertRunSQL,
		run.ID,
		run.WindowKey,
		run.ContentHash,
		run.Delivered,
		run.Skipped,
		run.ElapsedSeconds,
		diagnostics,
	)
	if execErr != nil {
		return fmt.Errorf("insert run: %w", execErr)
	}
	return nil
}

// ListRecentRuns lists the newest archived runs.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]RunRecord, 0, limit)
	for rows.Next() {
		var (
			run         RunRecord
			diagnostics []byte
		)
		if err := rows.Scan(
			&run.ID,
			&run.WindowKey,
			&run.ContentHash,
			&run.Delivered,
			&run.Skipped,
			&run.ElapsedSeconds,
			&diagnostics,
			&run.CreatedAt,
		); err != nil {
			return nil, err
		}
		run.Diagnostics = diagnostics
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

var (
	_ delivery.Store  = (*Store)(nil)
	_ delivery.Lister = (*Store)(nil)
	_ RunArchive      = (*Store)(nil)
	_ AdvisoryLocker  = (*Store)(nil)
)
