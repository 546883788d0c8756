package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"folio/internal/cache"
	"folio/internal/models"
	"folio/internal/observability"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UsernameTaken(ctx context.Context, username string, exceptID uint) (bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdateProfile(ctx context.Context, id uint, displayName string) error
	UpdateAvatar(ctx context.Context, id uint, avatarURL string) error
	SetPlan(ctx context.Context, id uint, plan string) error
	SetAdmin(ctx context.Context, id uint, isAdmin bool) error
	RecordSignIn(ctx context.Context, id uint, at time.Time) error
	Rename(ctx context.Context, id uint, oldUsername, newUsername string) (int64, error)
	DeleteAccount(ctx context.Context, id uint) error
	List(ctx context.Context) ([]models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
}

type userRepository struct {
	db    *gorm.DB
	cache *cache.Store
	log   *observability.RepoLogger
}

// NewUserRepository returns a new UserRepository implementation. store may be
// nil, in which case reads are never cached.
func NewUserRepository(db *gorm.DB, store *cache.Store) UserRepository {
	return &userRepository{db: db, cache: store, log: observability.NewRepoLogger("users")}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		defer observability.TrackQuery("select", "users")()
		if err := readDB(r.db).WithContext(ctx).First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.NewNotFoundError("User", id)
			}
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail returns nil, nil when no user has the address.
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := readDB(r.db).WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// GetByUsername returns nil, nil when the handle is free.
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := readDB(r.db).WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// UsernameTaken reports whether a user other than exceptID holds username.
// It reads the primary so that allocation never races a lagging replica.
func (r *userRepository) UsernameTaken(ctx context.Context, username string, exceptID uint) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	defer observability.TrackQuery("insert", "users")()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.NewConflictError("User already exists")
		}
		r.log.LogError(ctx, err, "create")
		return models.NewInternalError(err)
	}
	r.log.LogWrite(ctx, "create", slog.Uint64("user_id", uint64(user.ID)))
	return nil
}

func (r *userRepository) updateColumns(ctx context.Context, id uint, op string, values map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, op)
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	r.cache.InvalidateUser(ctx, id)
	r.log.LogWrite(ctx, op, slog.Uint64("user_id", uint64(id)))
	return nil
}

// UpdateProfile and UpdateAvatar change the owner card embedded in every
// public page, so those entries are dropped as well.
func (r *userRepository) UpdateProfile(ctx context.Context, id uint, displayName string) error {
	if err := r.updateColumns(ctx, id, "update_profile", map[string]any{"display_name": displayName}); err != nil {
		return err
	}
	r.invalidateOwnerCard(ctx, id)
	return nil
}

func (r *userRepository) UpdateAvatar(ctx context.Context, id uint, avatarURL string) error {
	if err := r.updateColumns(ctx, id, "update_avatar", map[string]any{"avatar_url": avatarURL}); err != nil {
		return err
	}
	r.invalidateOwnerCard(ctx, id)
	return nil
}

func (r *userRepository) invalidateOwnerCard(ctx context.Context, id uint) {
	if !r.cache.Enabled() {
		return
	}
	var usernames []string
	if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Pluck("username", &usernames).Error; err != nil {
		r.log.LogError(ctx, err, "invalidate_owner_card")
		return
	}
	for _, username := range usernames {
		r.invalidatePublicPages(ctx, id, username)
	}
}

// invalidatePublicPages drops the cached public view of every page id owns
// as it is addressed under username, plus any extra slugs.
func (r *userRepository) invalidatePublicPages(ctx context.Context, id uint, username string, extra ...string) {
	if !r.cache.Enabled() || username == "" {
		return
	}
	var slugs []string
	if err := r.db.WithContext(ctx).Model(&models.Page{}).Where("user_id = ?", id).Pluck("slug", &slugs).Error; err != nil {
		r.log.LogError(ctx, err, "invalidate_public_pages")
	}
	r.cache.InvalidatePublicPages(ctx, username, append(slugs, extra...)...)
}

func (r *userRepository) SetPlan(ctx context.Context, id uint, plan string) error {
	return r.updateColumns(ctx, id, "set_plan", map[string]any{"plan": plan})
}

func (r *userRepository) SetAdmin(ctx context.Context, id uint, isAdmin bool) error {
	return r.updateColumns(ctx, id, "set_admin", map[string]any{"is_admin": isAdmin})
}

// RecordSignIn bumps sign_in_count in the database rather than in Go so that
// concurrent sign-ins are all counted.
func (r *userRepository) RecordSignIn(ctx context.Context, id uint, at time.Time) error {
	return r.updateColumns(ctx, id, "record_sign_in", map[string]any{
		"sign_in_count":   gorm.Expr("sign_in_count + 1"),
		"last_sign_in_at": at,
	})
}

// Rename changes the username and re-slugs every page the user owns whose
// slug equals the previous username, in one transaction. It returns the
// number of pages moved.
func (r *userRepository) Rename(ctx context.Context, id uint, oldUsername, newUsername string) (int64, error) {
	var moved int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", id).Update("username", newUsername)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("User", id)
		}
		if oldUsername == "" || oldUsername == newUsername {
			return nil
		}

		if err := tx.SavePoint("rename_pages").Error; err != nil {
			return err
		}
		pages := tx.Model(&models.Page{}).
			Where("(user_id = ? OR owner_id = ?) AND slug = ?", id, id, oldUsername).
			Update("slug", newUsername)
		if pages.Error != nil && isSchemaError(pages.Error) {
			// Schemas without owner_id only know user_id ownership.
			if err := tx.RollbackTo("rename_pages").Error; err != nil {
				return err
			}
			pages = tx.Model(&models.Page{}).
				Where("user_id = ? AND slug = ?", id, oldUsername).
				Update("slug", newUsername)
		}
		if pages.Error != nil {
			return pages.Error
		}
		moved = pages.RowsAffected
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		switch {
		case errors.As(err, &appErr):
			return 0, err
		case isUniqueConstraintError(err):
			return 0, models.NewConflictError("Username is already taken")
		default:
			r.log.LogError(ctx, err, "rename")
			return 0, models.NewInternalError(err)
		}
	}

	r.cache.InvalidateUser(ctx, id)
	// The moved page now carries newUsername, so its old slug is listed
	// explicitly.
	r.invalidatePublicPages(ctx, id, oldUsername, oldUsername)
	r.log.LogWrite(ctx, "rename",
		slog.Uint64("user_id", uint64(id)),
		slog.String("from", oldUsername),
		slog.String("to", newUsername),
		slog.Int64("pages_moved", moved),
	)
	return moved, nil
}

// DeleteAccount removes the user's page views, pages and the user row in one
// transaction. Stored files are the caller's concern.
func (r *userRepository) DeleteAccount(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&models.Page{}).Select("id").Where("user_id = ? OR owner_id = ?", id, id)
		if err := tx.Where("page_id IN (?)", owned).Delete(&models.PageView{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ? OR owner_id = ?", id, id).Delete(&models.Page{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.User{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("User", id)
		}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return err
		}
		r.log.LogError(ctx, err, "delete_account")
		return models.NewInternalError(err)
	}
	r.cache.InvalidateUser(ctx, id)
	r.log.LogWrite(ctx, "delete_account", slog.Uint64("user_id", uint64(id)))
	return nil
}

// List returns every user, oldest first.
func (r *userRepository) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := readDB(r.db).WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := readDB(r.db).WithContext(ctx).Where("is_admin = ?", true).Order("id ASC").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
