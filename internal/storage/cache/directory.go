package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-fanout-notifier/pkg/dispatch"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/notification"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the cached value into dest, returning ErrMiss if absent.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedDirectory is a Decorator that adds read-aside caching of user
// profiles to any Directory. Token lists are registered by other services
// without telling this one, so user records and chats always come from the
// store.
type CachedDirectory struct {
	realStore dispatch.Directory
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

// NewCachedDirectory creates the decorator.
func NewCachedDirectory(realStore dispatch.Directory, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedDirectory {
	return &CachedDirectory{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedDirectory"),
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedDirectory) GetProfile(ctx context.Context, userID string) (*notification.UserProfile, error) {
	key := cacheKey(userID)

	var cached notification.UserProfile
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrMiss) {
		s.logger.Warn("Cache read failed; falling back to store", "user_id", userID, "err", err)
	}

	fresh, err := s.realStore.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		// Absent users are not cached; they may be created at any time.
		return nil, nil
	}

	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Warn("Cache write failed", "user_id", userID, "err", err)
	}
	return fresh, nil
}

func (s *CachedDirectory) GetUser(ctx context.Context, userID string) (*notification.UserRecord, error) {
	return s.realStore.GetUser(ctx, userID)
}

func (s *CachedDirectory) GetChat(ctx context.Context, chatID string) (*notification.ChatRecord, error) {
	return s.realStore.GetChat(ctx, chatID)
}

// --- WRITE PATH ---

// RemoveTokens goes straight to the store; tokens are never cached.
func (s *CachedDirectory) RemoveTokens(ctx context.Context, userID string, tokens []string) error {
	return s.realStore.RemoveTokens(ctx, userID, tokens)
}

func cacheKey(userID string) string {
	return "notify:profile:" + userID
}
