// ABOUTME: JSON document store with TTL on top of the Redis client
// ABOUTME: Backs the shared batch-result cache when replicas share Redis

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoreConfig holds configuration for the document store.
type StoreConfig struct {
	// KeyPrefix is prepended to document IDs to form the full key.
	// Example: "batch:" results in keys like "fleetlens:batch:abc123".
	KeyPrefix string

	// DefaultTTL applies when SetJSON is called with a non-positive TTL.
	DefaultTTL time.Duration
}

// Store reads and writes JSON documents with expiry.
type Store struct {
	client     *Client
	keyPrefix  string
	defaultTTL time.Duration
}

// NewStore creates a new document store.
func NewStore(client *Client, cfg StoreConfig) *Store {
	return &Store{
		client:     client,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}
}

// Key returns the full Redis key for a document ID.
// Combines client prefix + store prefix + document ID.
func (s *Store) Key(id string) string {
	return s.client.PrefixedKey(s.keyPrefix + id)
}

// SetJSON marshals value and stores it under id with the given TTL.
func (s *Store) SetJSON(ctx context.Context, id string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling document %s: %w", id, err)
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	key := s.Key(id)
	if err := s.client.Redis().Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// GetJSON loads the document under id into dest. The boolean reports
// whether the key existed; expiry shows up as a plain miss.
func (s *Store) GetJSON(ctx context.Context, id string, dest any) (bool, error) {
	key := s.Key(id)
	val, err := s.client.Redis().Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, fmt.Errorf("unmarshaling %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the document under id. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	key := s.Key(id)
	if err := s.client.Redis().Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
