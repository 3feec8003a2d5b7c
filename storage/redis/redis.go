// Package redis provides a Redis implementation of the reconcile.Store
// interface. Admission uses SET NX so the first-seen check and the record
// are one atomic server-side operation.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

// Store implements reconcile.Store using Redis
type Store struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis store configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "stripeconnect:")
	KeyPrefix string

	// EventTTL bounds growth of the processed-event set (0 = no
	// expiration). The provider redelivers for days, not months, so a
	// finite TTL keeps the dedup guarantee while capping memory.
	EventTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "stripeconnect:",
		EventTTL:  30 * 24 * time.Hour,
	}
}

// New creates a new Redis store adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "stripeconnect:"
	}

	return &Store{
		client: client,
		config: config,
	}, nil
}

// Lookup implements reconcile.IdentityStore
func (s *Store) Lookup(ctx context.Context, customerID string) (string, error) {
	accountID, err := s.client.HGet(ctx, s.linksKey(), customerID).Result()
	if err == redis.Nil {
		return "", reconcile.ErrCustomerNotLinked
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up identity link: %w", err)
	}
	return accountID, nil
}

// Associate implements reconcile.IdentityStore
func (s *Store) Associate(ctx context.Context, customerID, accountID string) error {
	if customerID == "" || accountID == "" {
		return fmt.Errorf("invalid identity link")
	}

	if err := s.client.HSet(ctx, s.linksKey(), customerID, accountID).Err(); err != nil {
		return fmt.Errorf("failed to store identity link: %w", err)
	}
	return nil
}

// Admit implements reconcile.EventLog
func (s *Store) Admit(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("invalid event id")
	}

	ok, err := s.client.SetNX(ctx, s.eventKey(eventID), 1, s.config.EventTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record event id: %w", err)
	}
	return ok, nil
}

func (s *Store) linksKey() string {
	return s.config.KeyPrefix + "links"
}

func (s *Store) eventKey(eventID string) string {
	return s.config.KeyPrefix + "event:" + eventID
}
