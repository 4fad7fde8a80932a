package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"market-digest/internal/delivery"
)

const defaultRedisPrefix = "marketdigest:delivery"

// RedisStore keeps the delivery ledger in Redis. SETNX with a lease TTL is the
// check-and-set; a sorted set indexes keys for Recent.
type RedisStore struct {
	client    goredis.UniversalClient
	prefix    string
	lease     time.Duration
	retention time.Duration
	now       func() time.Time
}

// RedisOptions configure a RedisStore. Retention 0 keeps delivered records forever.
type RedisOptions struct {
	Prefix    string
	Lease     time.Duration
	Retention time.Duration
}

func NewRedisStore(client goredis.UniversalClient, opts RedisOptions) *RedisStore {
	if opts.Prefix == "" {
		opts.Prefix = defaultRedisPrefix
	}
	if opts.Lease <= 0 {
		opts.Lease = DefaultLease
	}
	return &RedisStore{
		client:    client,
		prefix:    opts.Prefix,
		lease:     opts.Lease,
		retention: opts.Retention,
		now:       time.Now,
	}
}

type redisRecord struct {
	WindowKey   string     `json:"window_key"`
	Hash        string     `json:"hash"`
	Status      string     `json:"status"`
	Chunks      int        `json:"chunks"`
	ReservedAt  time.Time  `json:"reserved_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

func (r redisRecord) record() delivery.Record {
	return delivery.Record{
		Key:         delivery.Key{WindowKey: r.WindowKey, Hash: r.Hash},
		Status:      delivery.Status(r.Status),
		Chunks:      r.Chunks,
		ReservedAt:  r.ReservedAt,
		DeliveredAt: r.DeliveredAt,
	}
}

func (s *RedisStore) key(k delivery.Key) string {
	return s.prefix + ":" + k.WindowKey + ":" + k.Hash
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":index"
}

func (s *RedisStore) Reserve(ctx context.Context, key delivery.Key) (delivery.Reservation, error) {
	rsv := delivery.Reservation{Key: key}
	now := s.now().UTC()
	payload, err := json.Marshal(redisRecord{
		WindowKey:  key.WindowKey,
		Hash:       key.Hash,
		Status:     string(delivery.StatusPending),
		ReservedAt: now,
	})
	if err != nil {
		return rsv, err
	}

	// the pending record expires with the lease, so a crashed holder frees the key
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.client.SetNX(ctx, s.key(key), payload, s.lease).Result()
		if err != nil {
			return rsv, fmt.Errorf("redis setnx: %w", err)
		}
		if ok {
			if err := s.client.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(now.Unix()), Member: s.key(key)}).Err(); err != nil {
				return rsv, fmt.Errorf("redis index: %w", err)
			}
			rsv.Acquired = true
			rsv.Status = delivery.StatusPending
			return rsv, nil
		}

		existing, err := s.get(ctx, s.key(key))
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return rsv, err
		}
		rsv.Status = delivery.Status(existing.Status)
		return rsv, nil
	}
	return rsv, fmt.Errorf("redis reserve %s: key churned", key.WindowKey)
}

func (s *RedisStore) Commit(ctx context.Context, key delivery.Key, chunks int) error {
	rec, err := s.get(ctx, s.key(key))
	if err != nil && !errors.Is(err, goredis.Nil) {
		return err
	}
	if errors.Is(err, goredis.Nil) {
		rec = redisRecord{WindowKey: key.WindowKey, Hash: key.Hash, ReservedAt: s.now().UTC()}
	}
	at := s.now().UTC()
	rec.Status = string(delivery.StatusDelivered)
	rec.Chunks = chunks
	rec.DeliveredAt = &at

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), payload, s.retention).Err(); err != nil {
		return fmt.Errorf("redis commit: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key delivery.Key) error {
	rec, err := s.get(ctx, s.key(key))
	if errors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if rec.Status != string(delivery.StatusPending) {
		return nil
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return s.client.ZRem(ctx, s.indexKey(), s.key(key)).Err()
}

// Recent reads the newest indexed records; expired ones are skipped.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]delivery.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	keys, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index: %w", err)
	}
	out := make([]delivery.Record, 0, len(keys))
	for _, k := range keys {
		rec, err := s.get(ctx, k)
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec.record())
	}
	return out, nil
}

func (s *RedisStore) get(ctx context.Context, key string) (redisRecord, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return redisRecord{}, err
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return redisRecord{}, fmt.Errorf("decode delivery record: %w", err)
	}
	return rec, nil
}

var (
	_ delivery.Store  = (*RedisStore)(nil)
	_ delivery.Lister = (*RedisStore)(nil)
)
