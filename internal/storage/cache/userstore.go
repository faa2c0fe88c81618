// Package cache adds a Redis read-aside layer in front of the user store.
// Only the broadcast recipient list is cached; it is read on every route
// opening and changes rarely.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/schoolbus/go-reservation-service/pkg/shuttle"
	"github.com/schoolbus/go-reservation-service/pkg/store"
)

const recipientsKey = "shuttle:recipients"

// CacheClient is the subset of Redis commands we need.
type CacheClient interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedUserStore is a decorator that adds read-aside caching of the
// recipient list to any UserStore, invalidating on every write that could
// change who receives a broadcast.
type CachedUserStore struct {
	realStore store.UserStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedUserStore(realStore store.UserStore, cache CacheClient, ttl time.Duration) *CachedUserStore {
	return &CachedUserStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- read path (read-aside) ---

func (s *CachedUserStore) SubscribedUsers(ctx context.Context) ([]shuttle.User, error) {
	var cached []shuttle.User
	if err := s.cache.Get(ctx, recipientsKey, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.SubscribedUsers(ctx)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization, not a transaction: if Redis is down we
	// just serve from the real store.
	_ = s.cache.Set(ctx, recipientsKey, fresh, s.ttl)
	return fresh, nil
}

func (s *CachedUserStore) GetUser(ctx context.Context, studentID string) (*shuttle.User, error) {
	return s.realStore.GetUser(ctx, studentID)
}

// --- write paths (invalidate-on-write) ---

func (s *CachedUserStore) InsertUser(ctx context.Context, u shuttle.User) error {
	if err := s.realStore.InsertUser(ctx, u); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *CachedUserStore) UpdateUser(ctx context.Context, studentID string, upd store.UserUpdate) error {
	if err := s.realStore.UpdateUser(ctx, studentID, upd); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *CachedUserStore) SavePushSubscription(ctx context.Context, studentID string, sub shuttle.Subscription) error {
	if err := s.realStore.SavePushSubscription(ctx, studentID, sub); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

// ClearPushSubscription must clear the cache even though the store write
// already succeeded, so an unsubscribe stops notifications immediately.
func (s *CachedUserStore) ClearPushSubscription(ctx context.Context, studentID string) error {
	if err := s.realStore.ClearPushSubscription(ctx, studentID); err != nil {
		return err
	}
	return s.invalidate(ctx)
}

func (s *CachedUserStore) invalidate(ctx context.Context) error {
	if err := s.cache.Del(ctx, recipientsKey); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}
	return nil
}
