// Package redis persists script registry metadata in Redis, so usage
// statistics survive host restarts and are shared between engine
// instances pointed at the same document set.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/datum/pkg/script"
)

// RegistryStore implements script.Store on Redis.
type RegistryStore struct {
	client *backend.Client
	prefix string
}

// Option configures a RegistryStore.
type Option func(*RegistryStore)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *RegistryStore) {
		s.prefix = prefix
	}
}

// New creates a store with its own client.
func New(address, password string, db int, opts ...Option) *RegistryStore {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a store over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *RegistryStore {
	s := &RegistryStore{
		client: client,
		prefix: "datum:script:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RegistryStore) key(name string) string {
	return s.prefix + name
}

func (s *RegistryStore) indexKey() string {
	return s.prefix + "index"
}

// SaveMetadata writes one script's metadata and indexes its name.
func (s *RegistryStore) SaveMetadata(ctx context.Context, meta script.Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal script metadata: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(meta.Name), data, 0)
	pipe.SAdd(ctx, s.indexKey(), meta.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save script metadata: %w", err)
	}
	return nil
}

// LoadAll reads every indexed script's metadata. Index entries whose
// value key has gone missing are pruned on the way.
func (s *RegistryStore) LoadAll(ctx context.Context) ([]script.Metadata, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}

	var metas []script.Metadata
	for _, name := range names {
		val, err := s.client.Get(ctx, s.key(name)).Result()
		if err == backend.Nil {
			_ = s.client.SRem(ctx, s.indexKey(), name).Err()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load script %q: %w", name, err)
		}
		var meta script.Metadata
		if err := json.Unmarshal([]byte(val), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal script %q: %w", name, err)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// Delete removes a script's metadata and index entry.
func (s *RegistryStore) Delete(ctx context.Context, name string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(name))
	pipe.SRem(ctx, s.indexKey(), name)
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the underlying client.
func (s *RegistryStore) Close() error {
	return s.client.Close()
}
