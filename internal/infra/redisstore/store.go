// Package redisstore adapts the shared redis key-value store to the
// verifier's record and authorization ports. HSM log records and access-key
// authorizations live in separate logical databases.
package redisstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"hsmtrust/internal/domain"
)

// RecordStore reads the full HSM key log: every key in the database is a
// record id, every value a signed record.
type RecordStore struct {
	client *redis.Client
}

func NewRecordStore(addr, password string, db int) *RecordStore {
	return &RecordStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *RecordStore) FetchAll(ctx context.Context) ([]string, error) {
	return retryOperation(ctx, func() ([]string, error) {
		keys, err := s.client.Keys(ctx, "*").Result()
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, nil
		}

		values, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}

		records := make([]string, 0, len(values))
		for _, value := range values {
			text, ok := value.(string)
			if !ok {
				// Deleted between KEYS and MGET; the parser skips empties.
				continue
			}
			records = append(records, text)
		}
		return records, nil
	})
}

// Publish writes a signed record under its id. Chain authoring uses it; the
// verifier never writes.
func (s *RecordStore) Publish(ctx context.Context, id, record string) error {
	_, err := retryOperation(ctx, func() (struct{}, error) {
		return struct{}{}, s.client.Set(ctx, id, record, 0).Err()
	})
	return err
}

func (s *RecordStore) Close() error {
	return s.client.Close()
}

// AuthorizationStore reads signed access-key authorization envelopes keyed
// by identity.
type AuthorizationStore struct {
	client *redis.Client
}

func NewAuthorizationStore(addr, password string, db int) *AuthorizationStore {
	return &AuthorizationStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

func (s *AuthorizationStore) Get(ctx context.Context, identity string) (string, error) {
	value, err := retryOperation(ctx, func() (string, error) {
		value, err := s.client.Get(ctx, identity).Result()
		if errors.Is(err, redis.Nil) {
			// Not retryable; surface the miss directly.
			return "", nil
		}
		return value, err
	})
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", domain.ErrNotFound
	}
	return value, nil
}

// Publish writes an authorization envelope for an identity.
func (s *AuthorizationStore) Publish(ctx context.Context, identity, envelope string) error {
	_, err := retryOperation(ctx, func() (struct{}, error) {
		return struct{}{}, s.client.Set(ctx, identity, envelope, 0).Err()
	})
	return err
}

func (s *AuthorizationStore) Close() error {
	return s.client.Close()
}
