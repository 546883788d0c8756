// Package bootstrap wires the runtime dependencies shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"folio/internal/cache"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/middleware"
	"folio/internal/repository"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SkipSchema leaves the schema untouched instead of applying
	// DB_SCHEMA_MODE on connect.
	SkipSchema bool
	// SkipRedis leaves the Redis client nil. Offline tools set it.
	SkipRedis bool
}

// InitRuntime connects to the database and, unless told otherwise, Redis.
// Accounts listed in ADMIN_EMAILS are flagged as admins on every start.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.ConnectWithOptions(cfg, database.ConnectOptions{SkipSchema: opts.SkipSchema})
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	var rdb *redis.Client
	if !opts.SkipRedis {
		// A nil client means Redis was unreachable; callers degrade.
		rdb = cache.NewClient(cfg.RedisURL)
	}

	if err := EnsureAdmins(ctx, db, cache.NewStore(rdb), cfg.AdminEmailList()); err != nil {
		middleware.Logger.Warn("admin bootstrap skipped", slog.String("error", err.Error()))
	}

	return db, rdb, nil
}

// EnsureAdmins sets is_admin on existing accounts whose email is listed.
// Missing accounts are ignored; they are recognized at sign-in instead.
func EnsureAdmins(ctx context.Context, db *gorm.DB, store *cache.Store, emails []string) error {
	if db == nil || len(emails) == 0 {
		return nil
	}
	users := repository.NewUserRepository(db, store)
	for _, email := range emails {
		user, err := users.GetByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("look up %s: %w", email, err)
		}
		if user == nil || user.IsAdmin {
			continue
		}
		if err := users.SetAdmin(ctx, user.ID, true); err != nil {
			return fmt.Errorf("promote %s: %w", email, err)
		}
		middleware.Logger.Info("promoted admin from ADMIN_EMAILS",
			slog.Uint64("user_id", uint64(user.ID)),
			slog.String("email", email))
	}
	return nil
}
