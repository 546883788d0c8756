package repository

import (
	"context"
	"errors"
	"log/slog"

	"folio/internal/models"
	"folio/internal/observability"

	"gorm.io/gorm"
)

// Column sets for the two write tiers. The minimal sets only name columns
// created by the first pages migration.
var (
	fullInsertColumns = []string{
		"id", "user_id", "owner_id", "slug", "title", "status", "visibility", "theme_id",
		"resume_data", "raw_text", "page_config", "view_count", "published_at", "created_at", "updated_at",
	}
	minimalInsertColumns = []string{
		"id", "user_id", "slug", "title", "theme_id", "resume_data", "status", "created_at", "updated_at",
	}
	fullUpdateColumns = []string{
		"title", "status", "visibility", "theme_id", "resume_data", "raw_text", "page_config", "published_at", "updated_at",
	}
	minimalUpdateColumns = []string{
		"title", "theme_id", "resume_data", "status", "updated_at",
	}
)

// PageRepository defines persistence operations for pages.
type PageRepository interface {
	GetByID(ctx context.Context, id string) (*models.Page, error)
	GetOwned(ctx context.Context, id string, userID uint) (*models.Page, error)
	FindOwnedBySlug(ctx context.Context, userID uint, slug string) (*models.Page, error)
	FindPublic(ctx context.Context, userID uint, slug string) (*models.Page, error)
	ListByOwner(ctx context.Context, userID uint) ([]models.Page, error)
	ListAll(ctx context.Context) ([]models.Page, error)
	Insert(ctx context.Context, page *models.Page, tier WriteTier) error
	Update(ctx context.Context, page *models.Page, tier WriteTier) error
	UpdateColumns(ctx context.Context, page *models.Page, cols []string) error
	Delete(ctx context.Context, id string) error
	IncrementViewCount(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type pageRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewPageRepository returns a new PageRepository implementation.
func NewPageRepository(db *gorm.DB) PageRepository {
	return &pageRepository{db: db, log: observability.NewRepoLogger("pages")}
}

func (r *pageRepository) GetByID(ctx context.Context, id string) (*models.Page, error) {
	defer observability.TrackQuery("select", "pages")()
	var page models.Page
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&page).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Page", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &page, nil
}

// GetOwned returns the page only when userID owns it. A page owned by someone
// else yields the same NotFound error as a missing one.
func (r *pageRepository) GetOwned(ctx context.Context, id string, userID uint) (*models.Page, error) {
	page, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !page.OwnedBy(userID) {
		return nil, models.NewNotFoundError("Page", id)
	}
	return page, nil
}

// FindOwnedBySlug returns nil, nil when the user has no page at slug.
func (r *pageRepository) FindOwnedBySlug(ctx context.Context, userID uint, slug string) (*models.Page, error) {
	var page models.Page
	err := r.db.WithContext(ctx).
		Where("(user_id = ? OR owner_id = ?) AND slug = ?", userID, userID, slug).
		First(&page).Error
	if err != nil && isSchemaError(err) {
		err = r.db.WithContext(ctx).Where("user_id = ? AND slug = ?", userID, slug).First(&page).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &page, nil
}

// FindPublic returns a live, non-private page of userID at slug.
func (r *pageRepository) FindPublic(ctx context.Context, userID uint, slug string) (*models.Page, error) {
	var page models.Page
	err := readDB(r.db).WithContext(ctx).
		Where("user_id = ? AND slug = ? AND status = ? AND visibility <> ?",
			userID, slug, models.PageStatusLive, models.VisibilityPrivate).
		First(&page).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Page", slug)
		}
		return nil, models.NewInternalError(err)
	}
	return &page, nil
}

func (r *pageRepository) ListByOwner(ctx context.Context, userID uint) ([]models.Page, error) {
	var pages []models.Page
	err := readDB(r.db).WithContext(ctx).
		Where("user_id = ? OR owner_id = ?", userID, userID).
		Order("updated_at DESC").
		Find(&pages).Error
	if err != nil && isSchemaError(err) {
		err = readDB(r.db).WithContext(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Find(&pages).Error
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return pages, nil
}

func (r *pageRepository) ListAll(ctx context.Context) ([]models.Page, error) {
	var pages []models.Page
	if err := readDB(r.db).WithContext(ctx).Order("created_at ASC").Find(&pages).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return pages, nil
}

// Insert creates page with the tier's column set. A rejection caused by the
// schema is returned wrapped in ErrSchemaRejected.
func (r *pageRepository) Insert(ctx context.Context, page *models.Page, tier WriteTier) error {
	defer observability.TrackQuery("insert", "pages")()
	cols := fullInsertColumns
	if tier == MinimalWrite {
		cols = minimalInsertColumns
	} else if page.OwnerID == nil {
		owner := page.UserID
		page.OwnerID = &owner
	}

	if err := r.db.WithContext(ctx).Select(cols).Create(page).Error; err != nil {
		return r.writeError(ctx, err, "insert", tier)
	}
	r.log.LogWrite(ctx, "insert",
		slog.String("page_id", page.ID),
		slog.String("tier", tier.String()),
	)
	return nil
}

// Update writes the tier's column set for page.ID.
func (r *pageRepository) Update(ctx context.Context, page *models.Page, tier WriteTier) error {
	defer observability.TrackQuery("update", "pages")()
	cols := fullUpdateColumns
	if tier == MinimalWrite {
		cols = minimalUpdateColumns
	}

	res := r.db.WithContext(ctx).Model(&models.Page{ID: page.ID}).Select(cols).Updates(page)
	if res.Error != nil {
		return r.writeError(ctx, res.Error, "update", tier)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Page", page.ID)
	}
	r.log.LogWrite(ctx, "update",
		slog.String("page_id", page.ID),
		slog.String("tier", tier.String()),
	)
	return nil
}

func (r *pageRepository) writeError(ctx context.Context, err error, op string, tier WriteTier) error {
	switch {
	case isSchemaError(err):
		r.log.LogError(ctx, err, op+"_"+tier.String())
		return schemaRejected(err)
	case isUniqueConstraintError(err):
		return models.NewConflictError("A page with that slug already exists")
	default:
		r.log.LogError(ctx, err, op)
		return models.NewInternalError(err)
	}
}

// UpdateColumns writes the named columns of page. Callers filter cols
// against their own allow-list; updated_at is always written.
func (r *pageRepository) UpdateColumns(ctx context.Context, page *models.Page, cols []string) error {
	if len(cols) == 0 {
		return nil
	}
	cols = append(append([]string(nil), cols...), "updated_at")
	res := r.db.WithContext(ctx).Model(page).Select(cols).Updates(page)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return models.NewConflictError("A page with that slug already exists")
		}
		r.log.LogError(ctx, res.Error, "update_columns")
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Page", page.ID)
	}
	r.log.LogWrite(ctx, "update_columns", slog.String("page_id", page.ID))
	return nil
}

// Delete removes the page and its views.
func (r *pageRepository) Delete(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("page_id = ?", id).Delete(&models.PageView{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Page{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Page", id)
		}
		return nil
	})
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return err
		}
		r.log.LogError(ctx, err, "delete")
		return models.NewInternalError(err)
	}
	r.log.LogWrite(ctx, "delete", slog.String("page_id", id))
	return nil
}

// IncrementViewCount adds one to view_count in a single statement.
func (r *pageRepository) IncrementViewCount(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&models.Page{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1"))
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Page", id)
	}
	return nil
}

func (r *pageRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.Page{}).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
