package repository

import (
	"testing"
	"time"

	"folio/internal/database"
	"folio/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// setupSQLite returns an in-memory database with the current schema.
func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db := openSQLite(t)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// setupLegacySQLite returns an in-memory database whose pages table only has
// the columns of the first pages migration.
func setupLegacySQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db := openSQLite(t)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	require.NoError(t, db.Exec(`CREATE TABLE pages (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		slug TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		theme_id TEXT NOT NULL,
		resume_data TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (user_id, slug)
	)`).Error)
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	u := &models.User{Email: username + "@example.com", Username: username, Plan: models.PlanFree}
	require.NoError(t, db.Create(u).Error)
	return u
}

func createPage(t *testing.T, db *gorm.DB, userID uint, slug string) *models.Page {
	t.Helper()
	now := time.Now().UTC()
	p := &models.Page{
		UserID:      userID,
		OwnerID:     &userID,
		Slug:        slug,
		Title:       "Resume",
		Status:      models.PageStatusLive,
		Visibility:  models.VisibilityPublic,
		ThemeID:     "minimal",
		ResumeData:  map[string]any{"name": slug},
		PublishedAt: &now,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}
