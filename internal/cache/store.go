package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"folio/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Store is the cache-aside layer over a Redis client. A nil Store, or one
// built without a client, reads straight through and invalidates nothing.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Enabled reports whether reads are cached.
func (s *Store) Enabled() bool {
	return s != nil && s.rdb != nil
}

// Aside reads key into dest, falling back to fetch on a miss and storing the
// result for ttl. fetch must populate dest. Redis failures degrade to a
// direct fetch.
func (s *Store) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	if !s.Enabled() {
		return fetch()
	}

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(raw, dest); jsonErr == nil {
			return nil
		}
		s.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		middleware.Logger.WarnContext(ctx, "cache read failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}

	if err := fetch(); err != nil {
		return err
	}

	payload, err := json.Marshal(dest)
	if err != nil {
		return nil
	}
	if err := s.rdb.Set(ctx, key, payload, ttl).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache write failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
	return nil
}

func (s *Store) Invalidate(ctx context.Context, keys ...string) {
	if !s.Enabled() || len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		middleware.Logger.WarnContext(ctx, "cache invalidation failed",
			slog.Int("keys", len(keys)), slog.String("error", err.Error()))
	}
}

func (s *Store) InvalidateUser(ctx context.Context, userID uint) {
	s.Invalidate(ctx, UserKey(userID))
}

// InvalidatePublicPage drops both the slug entry and the default-page entry
// for username, since either may be serving the same page.
func (s *Store) InvalidatePublicPage(ctx context.Context, username, slug string) {
	s.InvalidatePublicPages(ctx, username, slug)
}

// InvalidatePublicPages drops the entries of every listed slug under
// username along with its default-page entry.
func (s *Store) InvalidatePublicPages(ctx context.Context, username string, slugs ...string) {
	if username == "" {
		return
	}
	keys := make([]string, 0, len(slugs)+1)
	keys = append(keys, PublicPageKey(username, ""))
	for _, slug := range slugs {
		if slug != "" {
			keys = append(keys, PublicPageKey(username, slug))
		}
	}
	s.Invalidate(ctx, keys...)
}
