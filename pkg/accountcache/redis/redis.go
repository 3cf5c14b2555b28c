// Package redis provides a Redis-backed account store, for sharing the
// account cache across processes or surviving restarts. Snapshots are stored
// as JSON under a configurable key prefix; TTL expiry is delegated to Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledgersync/pkg/ledger"

	"github.com/redis/rueidis"
)

// Config holds Redis store configuration.
type Config struct {
	// Addr is the Redis server address, e.g. "localhost:6379".
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	// DialTimeout bounds the initial connection check.
	DialTimeout time.Duration
}

// DefaultConfig returns the default Redis store configuration.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:        addr,
		KeyPrefix:   "ledgersync:account:",
		DialTimeout: 5 * time.Second,
	}
}

// Store is a Redis-backed account store. Safe for concurrent use.
type Store struct {
	client rueidis.Client
	config Config
}

// New connects to Redis and verifies the connection.
func New(config Config) (*Store, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis: address required")
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{config.Addr},
		Username:    config.Username,
		Password:    config.Password,
		SelectDB:    config.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: creating client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Store{client: client, config: config}, nil
}

func (s *Store) key(id string) string {
	return s.config.KeyPrefix + id
}

// Get returns the account for id if present.
func (s *Store) Get(ctx context.Context, id string) (ledger.Account, bool, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.key(id)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return ledger.Account{}, false, nil
		}
		return ledger.Account{}, false, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return ledger.Account{}, false, fmt.Errorf("redis get: reading response: %w", err)
	}

	var account ledger.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return ledger.Account{}, false, fmt.Errorf("redis get: unmarshaling account: %w", err)
	}
	return account, true, nil
}

// Set stores an account snapshot. A zero ttl stores without expiry.
func (s *Store) Set(ctx context.Context, id string, account ledger.Account, ttl time.Duration) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("redis set: marshaling account: %w", err)
	}

	builder := s.client.B().Set().Key(s.key(id)).Value(string(data))
	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the entry for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.client.Do(ctx, s.client.B().Del().Key(s.key(id)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Clear removes every entry under the key prefix.
func (s *Store) Clear(ctx context.Context) error {
	resp := s.client.Do(ctx, s.client.B().Keys().Pattern(s.config.KeyPrefix+"*").Build())
	keys, err := resp.AsStrSlice()
	if err != nil {
		return fmt.Errorf("redis clear: listing keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	s.client.Close()
	return nil
}
