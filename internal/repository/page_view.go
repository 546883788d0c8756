package repository

import (
	"context"
	"time"

	"folio/internal/models"
	"folio/internal/observability"

	"gorm.io/gorm"
)

// PageViewRepository appends and reads page views.
type PageViewRepository interface {
	Create(ctx context.Context, view *models.PageView) error
	ListSince(ctx context.Context, pageID string, since time.Time) ([]models.PageView, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

type pageViewRepository struct {
	db *gorm.DB
}

// NewPageViewRepository returns a new PageViewRepository implementation.
func NewPageViewRepository(db *gorm.DB) PageViewRepository {
	return &pageViewRepository{db: db}
}

func (r *pageViewRepository) Create(ctx context.Context, view *models.PageView) error {
	defer observability.TrackQuery("insert", "page_views")()
	if err := r.db.WithContext(ctx).Create(view).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ListSince returns the page's views created at or after since, oldest first.
func (r *pageViewRepository) ListSince(ctx context.Context, pageID string, since time.Time) ([]models.PageView, error) {
	defer observability.TrackQuery("select", "page_views")()
	var views []models.PageView
	err := readDB(r.db).WithContext(ctx).
		Where("page_id = ? AND created_at >= ?", pageID, since).
		Order("created_at ASC").
		Find(&views).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return views, nil
}

func (r *pageViewRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.PageView{}).Where("created_at >= ?", since).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
