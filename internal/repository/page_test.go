package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"folio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPage(userID uint, slug string) *models.Page {
	now := time.Now().UTC()
	return &models.Page{
		UserID:      userID,
		Slug:        slug,
		Title:       "Resume",
		Status:      models.PageStatusLive,
		Visibility:  models.VisibilityPublic,
		ThemeID:     "minimal",
		ResumeData:  map[string]any{"name": "Ada"},
		RawText:     "Ada Lovelace",
		PageConfig:  map[string]any{"accent": "teal"},
		PublishedAt: &now,
	}
}

func TestPageRepository_FullInsertAndFind(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPageRepository(db)
	ctx := context.Background()
	u := createUser(t, db, "ada")

	page := newPage(u.ID, "ada")
	require.NoError(t, repo.Insert(ctx, page, FullWrite))
	assert.NotEmpty(t, page.ID)
	require.NotNil(t, page.OwnerID)
	assert.Equal(t, u.ID, *page.OwnerID)

	found, err := repo.FindOwnedBySlug(ctx, u.ID, "ada")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, page.ID, found.ID)
	assert.Equal(t, "Ada Lovelace", found.RawText)
	assert.Equal(t, "teal", found.PageConfig["accent"])

	missing, err := repo.FindOwnedBySlug(ctx, u.ID, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPageRepository_DuplicateSlugIsConflict(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPageRepository(db)
	u := createUser(t, db, "ada")
	require.NoError(t, repo.Insert(context.Background(), newPage(u.ID, "ada"), FullWrite))

	err := repo.Insert(context.Background(), newPage(u.ID, "ada"), FullWrite)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))
}

func TestPageRepository_LegacySchemaRejectsFullWrite(t *testing.T) {
	db := setupLegacySQLite(t)
	repo := NewPageRepository(db)
	ctx := context.Background()
	u := createUser(t, db, "ada")

	page := newPage(u.ID, "ada")
	err := repo.Insert(ctx, page, FullWrite)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaRejected))

	page.OwnerID = nil
	require.NoError(t, repo.Insert(ctx, page, MinimalWrite))

	found, err := repo.FindOwnedBySlug(ctx, u.ID, "ada")
	require.NoError(t, err, "lookup falls back to user_id")
	require.NotNil(t, found)
	assert.Equal(t, "Ada", found.ResumeData["name"])

	found.Title = "Updated"
	err = repo.Update(ctx, found, FullWrite)
	assert.True(t, errors.Is(err, ErrSchemaRejected))
	require.NoError(t, repo.Update(ctx, found, MinimalWrite))

	again, err := repo.GetByID(ctx, found.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated", again.Title)
}

func TestPageRepository_UpdateFull(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPageRepository(db)
	ctx := context.Background()
	u := createUser(t, db, "ada")
	page := newPage(u.ID, "ada")
	require.NoError(t, repo.Insert(ctx, page, FullWrite))

	later := time.Now().UTC().Add(time.Hour)
	page.Title = "Second"
	page.PublishedAt = &later
	page.Visibility = models.VisibilityUnlisted
	require.NoError(t, repo.Update(ctx, page, FullWrite))

	got, err := repo.GetByID(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Title)
	assert.Equal(t, models.VisibilityUnlisted, got.Visibility)
	require.NotNil(t, got.PublishedAt)
	assert.WithinDuration(t, later, *got.PublishedAt, time.Second)

	err = repo.Update(ctx, &models.Page{ID: "missing", Title: "x"}, FullWrite)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestPageRepository_GetOwnedHidesOtherOwners(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPageRepository(db)
	ctx := context.Background()
	ada := createUser(t, db, "ada")
	bob := createUser(t, db, "bob")
	page := createPage(t, db, ada.ID, "ada")

	got, err := repo.GetOwned(ctx, page.ID, ada.ID)
	require.NoError(t, err)
	assert.Equal(t, page.ID, got.ID)

	_, errOther := repo.GetOwned(ctx, page.ID, bob.ID)
	_, errMissing := repo.GetOwned(ctx, "does-not-exist", bob.ID)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(errOther))
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(errMissing))
}

func TestPageRepository_FindPublic(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPageRepository(db)
	ctx := context.Background()
	ada := createUser(t, db, "ada")
	createPage(t, db, ada.ID, "ada")
	private := createPage(t, db, ada.ID, "secret")
	require.NoError(t, db.Model(private).Update("visibility", models.VisibilityPrivate).Error)
	draft := createPage(t, db, ada.ID, "draft")
	require.NoError(t, db.Model(draft).Update("status", models.PageStatusDraft).Error)

	got, err := repo.FindPublic(ctx, ada.ID, "ada")
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Slug)

	for _, slug := range []string{"secret", "draft", "none"} {
		_, err := repo.FindPublic(ctx, ada.ID, slug)
		assert.Equal(t, models.CodeNotFound, models.ErrorCode(err), slug)
	}
}

func TestPageRepository_IncrementViewCount(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPageRepository(db)
	ctx := context.Background()
	u := createUser(t, db, "ada")
	page := createPage(t, db, u.ID, "ada")

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.IncrementViewCount(ctx, page.ID))
	}
	got, err := repo.GetByID(ctx, page.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.ViewCount)

	assert.Equal(t, models.CodeNotFound, models.ErrorCode(repo.IncrementViewCount(ctx, "missing")))
}

func TestPageRepository_UpdateColumnsAndDelete(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPageRepository(db)
	ctx := context.Background()
	u := createUser(t, db, "ada")
	page := createPage(t, db, u.ID, "ada")
	require.NoError(t, db.Create(&models.PageView{PageID: page.ID, IPHash: "h"}).Error)

	page.Title = "Renamed"
	page.Status = models.PageStatusArchived
	page.ResumeData = map[string]any{"name": "Ada", "role": "Engineer"}
	page.RawText = "ignored"
	require.NoError(t, repo.UpdateColumns(ctx, page, []string{"title", "status", "resume_data"}))
	got, err := repo.GetByID(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, models.PageStatusArchived, got.Status)
	assert.Equal(t, "Engineer", got.ResumeData["role"])
	assert.Empty(t, got.RawText, "unselected column untouched")

	require.NoError(t, repo.Delete(ctx, page.ID))
	var views int64
	db.Model(&models.PageView{}).Count(&views)
	assert.Zero(t, views)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(repo.Delete(ctx, page.ID)))
}

func TestPageRepository_ListByOwner(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPageRepository(db)
	ctx := context.Background()
	ada := createUser(t, db, "ada")
	bob := createUser(t, db, "bob")
	createPage(t, db, ada.ID, "ada")
	createPage(t, db, ada.ID, "cv")
	createPage(t, db, bob.ID, "bob")

	pages, err := repo.ListByOwner(ctx, ada.ID)
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPageViewRepository_ListSince(t *testing.T) {
	db := setupSQLite(t)
	repo := NewPageViewRepository(db)
	ctx := context.Background()
	u := createUser(t, db, "ada")
	page := createPage(t, db, u.ID, "ada")

	now := time.Now().UTC()
	for _, age := range []time.Duration{time.Hour, 10 * 24 * time.Hour, 100 * 24 * time.Hour} {
		require.NoError(t, repo.Create(ctx, &models.PageView{PageID: page.ID, IPHash: "h", CreatedAt: now.Add(-age)}))
	}

	views, err := repo.ListSince(ctx, page.ID, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, views, 2)
	assert.True(t, views[0].CreatedAt.Before(views[1].CreatedAt))

	count, err := repo.CountSince(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestWaitlistRepository_AddIsIdempotent(t *testing.T) {
	db := setupSQLite(t)
	repo := NewWaitlistRepository(db)
	ctx := context.Background()

	created, err := repo.Add(ctx, &models.WaitlistEntry{Email: "a@example.com", ReferralCode: "launch"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Add(ctx, &models.WaitlistEntry{Email: "a@example.com"})
	require.NoError(t, err)
	assert.False(t, created)

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "launch", entries[0].ReferralCode)
}
