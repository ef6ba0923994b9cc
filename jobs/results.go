package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrResultNotFound is returned for unknown or expired bulk ids.
var ErrResultNotFound = errors.New("bulk result not found")

// ResultStore keeps bulk action status records in Redis.
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResultStore constructs the store. Records expire after ttl.
func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ResultStore{client: client, ttl: ttl}
}

// Save writes status.
func (s *ResultStore) Save(ctx context.Context, status BulkStatus) error {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, resultKey(status.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("jobs: save bulk result: %w", err)
	}
	return nil
}

// Load returns the status saved for id.
func (s *ResultStore) Load(ctx context.Context, id string) (BulkStatus, error) {
	if s == nil {
		return BulkStatus{}, ErrResultNotFound
	}
	data, err := s.client.Get(ctx, resultKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return BulkStatus{}, ErrResultNotFound
		}
		return BulkStatus{}, fmt.Errorf("jobs: load bulk result: %w", err)
	}
	var status BulkStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return BulkStatus{}, err
	}
	return status, nil
}

func resultKey(id string) string {
	return "console:bulk:" + id
}
