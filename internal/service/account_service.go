package service

import (
	"context"
	"log/slog"
	"strings"

	"folio/internal/cache"
	"folio/internal/events"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/repository"
	"folio/internal/storage"
)

// AccountService covers the caller's own profile and account deletion.
type AccountService struct {
	users  repository.UserRepository
	pages  repository.PageRepository
	store  storage.ObjectStore
	tokens TokenIssuer
	events *events.Dispatcher
	cache  *cache.Store
}

func NewAccountService(
	users repository.UserRepository,
	pages repository.PageRepository,
	store storage.ObjectStore,
	tokens TokenIssuer,
	dispatcher *events.Dispatcher,
	pageCache *cache.Store,
) *AccountService {
	return &AccountService{users: users, pages: pages, store: store, tokens: tokens, events: dispatcher, cache: pageCache}
}

func (s *AccountService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *AccountService) UpdateProfile(ctx context.Context, userID uint, displayName string) (*models.User, error) {
	displayName = strings.TrimSpace(displayName)
	if len(displayName) > maxDisplayNameLength {
		return nil, models.NewValidationError("display_name must be at most 120 characters")
	}
	if err := s.users.UpdateProfile(ctx, userID, displayName); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// Delete removes the account with its pages, views and stored files, then
// revokes the session that asked for it. Failures after the database
// transaction are logged and do not undo the deletion.
func (s *AccountService) Delete(ctx context.Context, userID uint, jti string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	pages, err := s.pages.ListByOwner(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.users.DeleteAccount(ctx, userID); err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.DeletePrefix(ctx, storage.AvatarPrefix(userID)); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to delete stored files for account",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
		}
	}
	if jti != "" {
		if err := s.tokens.Revoke(ctx, jti); err != nil {
			middleware.Logger.WarnContext(ctx, "failed to revoke token for deleted account",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
		}
	}
	slugs := make([]string, 0, len(pages))
	for _, p := range pages {
		slugs = append(slugs, p.Slug)
	}
	s.cache.InvalidatePublicPages(ctx, user.Username, slugs...)

	s.events.Dispatch(ctx, events.Event{
		Name:       events.AccountDeleted,
		UserID:     userID,
		Properties: map[string]any{"pages": len(pages)},
	})
	return nil
}
