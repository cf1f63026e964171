package business

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store provides persistence for tenant profiles. Redis holds a cached copy
// of the configuration record; callers always get a usable profile because
// missing keys resolve to the default.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new profile store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(orgID string) string {
	return fmt.Sprintf("business:profile:%s", orgID)
}

// Get retrieves a tenant profile, returning the default if none is stored or
// no Redis client is configured.
func (s *Store) Get(ctx context.Context, orgID string) (*Profile, error) {
	if s == nil || s.redis == nil {
		return DefaultProfile(orgID), nil
	}
	data, err := s.redis.Get(ctx, s.key(orgID)).Bytes()
	if err == redis.Nil {
		return DefaultProfile(orgID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("business: get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("business: unmarshal profile: %w", err)
	}
	if p.Thresholds == nil {
		p.Thresholds = DefaultProfile(orgID).Thresholds
	}
	return &p, nil
}

// Set stores a tenant profile.
func (s *Store) Set(ctx context.Context, p *Profile) error {
	if s == nil || s.redis == nil {
		return nil
	}
	if p == nil || p.OrgID == "" {
		return fmt.Errorf("business: profile with org id required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("business: marshal profile: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(p.OrgID), data, 0).Err(); err != nil {
		return fmt.Errorf("business: set profile: %w", err)
	}
	return nil
}
