package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"folio/internal/models"
	"folio/internal/repository"
	"folio/internal/themes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newPublishService(db *gorm.DB) *PublishService {
	svc := NewPublishService(
		repository.NewPageRepository(db),
		repository.NewUserRepository(db, nil),
		themes.Builtin(),
		nil,
		nil,
	)
	svc.now = fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return svc
}

func publishInput(slug string) PublishInput {
	return PublishInput{
		Slug:       slug,
		Title:      "  Senior Engineer  ",
		ThemeID:    "minimal",
		ResumeData: map[string]any{"name": "Alice"},
		RawText:    "Alice, engineer",
	}
}

func TestPublish_CreatesThenUpdatesSameRow(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	alice := createUser(t, db, "alice")
	svc := newPublishService(db)
	ctx := context.Background()

	first, err := svc.Publish(ctx, alice.ID, publishInput("Alice"))
	require.NoError(t, err)
	assert.False(t, first.Updated)
	assert.Equal(t, "full", first.Tier)
	assert.Equal(t, "alice", first.Page.Slug)
	assert.Equal(t, "Senior Engineer", first.Page.Title)
	assert.Equal(t, models.PageStatusLive, first.Page.Status)
	require.NotNil(t, first.Page.OwnerID)
	assert.Equal(t, alice.ID, *first.Page.OwnerID)

	in := publishInput("alice")
	in.ThemeID = "classic"
	second, err := svc.Publish(ctx, alice.ID, in)
	require.NoError(t, err)
	assert.True(t, second.Updated)
	assert.Equal(t, first.Page.ID, second.Page.ID)

	var pages []models.Page
	require.NoError(t, db.Find(&pages).Error)
	require.Len(t, pages, 1)
	assert.Equal(t, "classic", pages[0].ThemeID)
	assert.Equal(t, "Alice, engineer", pages[0].RawText)
	require.NotNil(t, pages[0].PublishedAt)
}

func TestPublish_FallsBackToMinimalWriteOnLegacySchema(t *testing.T) {
	t.Parallel()
	db := setupLegacySQLite(t)
	alice := createUser(t, db, "alice")
	svc := newPublishService(db)
	ctx := context.Background()

	created, err := svc.Publish(ctx, alice.ID, publishInput("alice"))
	require.NoError(t, err)
	assert.Equal(t, "minimal", created.Tier)
	assert.False(t, created.Updated)

	var stored struct {
		ID      string
		ThemeID string
		Status  string
	}
	require.NoError(t, db.Raw(`SELECT id, theme_id, status FROM pages WHERE slug = ?`, "alice").Scan(&stored).Error)
	assert.Equal(t, created.Page.ID, stored.ID)
	assert.Equal(t, "minimal", stored.ThemeID)
	assert.Equal(t, models.PageStatusLive, stored.Status)

	in := publishInput("alice")
	in.ThemeID = "terminal"
	updated, err := svc.Publish(ctx, alice.ID, in)
	require.NoError(t, err)
	assert.True(t, updated.Updated)
	assert.Equal(t, "minimal", updated.Tier)
	assert.Equal(t, created.Page.ID, updated.Page.ID)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM pages`).Scan(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Raw(`SELECT id, theme_id, status FROM pages WHERE slug = ?`, "alice").Scan(&stored).Error)
	assert.Equal(t, "terminal", stored.ThemeID)
}

func TestPublish_Validation(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	alice := createUser(t, db, "alice")
	svc := newPublishService(db)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*PublishInput)
		code   string
	}{
		{"missing slug", func(in *PublishInput) { in.Slug = "" }, models.CodeValidation},
		{"missing resume data", func(in *PublishInput) { in.ResumeData = nil }, models.CodeValidation},
		{"empty resume data", func(in *PublishInput) { in.ResumeData = map[string]any{} }, models.CodeValidation},
		{"reserved slug", func(in *PublishInput) { in.Slug = "admin" }, models.CodeValidation},
		{"unknown theme", func(in *PublishInput) { in.ThemeID = "neon" }, models.CodeValidation},
		{"pro theme on free plan", func(in *PublishInput) { in.ThemeID = "aurora" }, models.CodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := publishInput("alice")
			tt.mutate(&in)
			_, err := svc.Publish(ctx, alice.ID, in)
			assertAppError(t, err, tt.code)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.Page{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPublish_ProThemeAllowedOnProPlan(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	alice := createUser(t, db, "alice")
	require.NoError(t, db.Model(alice).Update("plan", models.PlanPro).Error)
	svc := newPublishService(db)

	in := publishInput("alice")
	in.ThemeID = "aurora"
	_, err := svc.Publish(context.Background(), alice.ID, in)
	require.NoError(t, err)
}

func TestWriteWithFallback(t *testing.T) {
	t.Parallel()
	svc := &PublishService{}
	ctx := context.Background()

	t.Run("non-schema failure is not retried", func(t *testing.T) {
		calls := 0
		boom := models.NewConflictError("slug taken")
		_, err := svc.writeWithFallback(ctx, "insert", &models.Page{}, func(_ context.Context, _ *models.Page, _ repository.WriteTier) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})

	t.Run("schema rejection retries minimal and clears owner", func(t *testing.T) {
		owner := uint(7)
		page := &models.Page{OwnerID: &owner}
		var tiers []repository.WriteTier
		tier, err := svc.writeWithFallback(ctx, "insert", page, func(_ context.Context, _ *models.Page, tier repository.WriteTier) error {
			tiers = append(tiers, tier)
			if tier == repository.FullWrite {
				return repository.ErrSchemaRejected
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, repository.MinimalWrite, tier)
		assert.Equal(t, []repository.WriteTier{repository.FullWrite, repository.MinimalWrite}, tiers)
		assert.Nil(t, page.OwnerID)
	})

	t.Run("minimal failure is internal", func(t *testing.T) {
		_, err := svc.writeWithFallback(ctx, "update", &models.Page{}, func(_ context.Context, _ *models.Page, tier repository.WriteTier) error {
			if tier == repository.FullWrite {
				return repository.ErrSchemaRejected
			}
			return errors.New("disk full")
		})
		assertAppError(t, err, models.CodeInternal)
	})
}
