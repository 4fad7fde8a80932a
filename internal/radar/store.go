package radar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// FileStore keeps the latest output as one JSON file.
type FileStore struct {
	Path string
}

// Save writes through a temp file so readers never see a partial document.
func (s FileStore) Save(_ context.Context, out Output) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal radar output: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), ".radar-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// Load reads the file; a missing file is ErrNoOutput.
func (s FileStore) Load(_ context.Context) (Output, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Output{}, ErrNoOutput
	}
	if err != nil {
		return Output{}, err
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return Output{}, fmt.Errorf("decode radar output: %w", err)
	}
	return out, nil
}

const defaultRedisTTL = 6 * time.Hour

// RedisStore keeps the latest output under one key.
type RedisStore struct {
	client goredis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisStore uses key "marketdigest:radar:latest" when key is empty.
func NewRedisStore(client goredis.UniversalClient, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = "marketdigest:radar:latest"
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, out Output) error {
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal radar output: %w", err)
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context) (Output, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Output{}, ErrNoOutput
	}
	if err != nil {
		return Output{}, err
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return Output{}, fmt.Errorf("decode radar output: %w", err)
	}
	return out, nil
}

var (
	_ Store = FileStore{}
	_ Store = (*RedisStore)(nil)
)
