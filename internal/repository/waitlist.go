package repository

import (
	"context"

	"folio/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WaitlistRepository stores pre-launch email signups.
type WaitlistRepository interface {
	// Add inserts the entry and reports whether it was new. An existing
	// address is left untouched.
	Add(ctx context.Context, entry *models.WaitlistEntry) (bool, error)
	List(ctx context.Context) ([]models.WaitlistEntry, error)
	Count(ctx context.Context) (int64, error)
}

type waitlistRepository struct {
	db *gorm.DB
}

// NewWaitlistRepository returns a new WaitlistRepository implementation.
func NewWaitlistRepository(db *gorm.DB) WaitlistRepository {
	return &waitlistRepository{db: db}
}

func (r *waitlistRepository) Add(ctx context.Context, entry *models.WaitlistEntry) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(entry)
	if res.Error != nil {
		if isUniqueConstraintError(res.Error) {
			return false, nil
		}
		return false, models.NewInternalError(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// List returns every entry, newest first.
func (r *waitlistRepository) List(ctx context.Context) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	if err := readDB(r.db).WithContext(ctx).Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}

func (r *waitlistRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := readDB(r.db).WithContext(ctx).Model(&models.WaitlistEntry{}).Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}
