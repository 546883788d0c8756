package service

import (
	"context"
	"strings"
	"testing"

	"folio/internal/models"
	"folio/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsernameService_Check(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")
	svc := NewUsernameService(repository.NewUserRepository(db, nil), nil)
	ctx := context.Background()

	t.Run("empty is a validation error", func(t *testing.T) {
		_, err := svc.Check(ctx, "   ", 0)
		assertAppError(t, err, models.CodeValidation)
	})

	t.Run("normalizes before checking", func(t *testing.T) {
		res, err := svc.Check(ctx, "  Carol Smith ", 0)
		require.NoError(t, err)
		assert.Equal(t, "carol-smith", res.Username)
		assert.True(t, res.Available)
		assert.Empty(t, res.Reason)
	})

	t.Run("taken by someone else", func(t *testing.T) {
		res, err := svc.Check(ctx, "BOB", alice.ID)
		require.NoError(t, err)
		assert.False(t, res.Available)
		assert.Equal(t, "Username is already taken", res.Reason)
	})

	t.Run("own username is available to its owner", func(t *testing.T) {
		res, err := svc.Check(ctx, "alice", alice.ID)
		require.NoError(t, err)
		assert.True(t, res.Available)
	})

	t.Run("reserved", func(t *testing.T) {
		res, err := svc.Check(ctx, "api", 0)
		require.NoError(t, err)
		assert.False(t, res.Available)
		assert.Contains(t, res.Reason, "reserved")
	})

	t.Run("too short", func(t *testing.T) {
		res, err := svc.Check(ctx, "ab", 0)
		require.NoError(t, err)
		assert.False(t, res.Available)
		assert.Contains(t, res.Reason, "at least")
	})
}

func TestUsernameService_Rename(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")
	svc := NewUsernameService(repository.NewUserRepository(db, nil), nil)
	ctx := context.Background()

	page := &models.Page{UserID: alice.ID, OwnerID: &alice.ID, Slug: "alice", ThemeID: "minimal", Status: models.PageStatusLive, ResumeData: map[string]any{"a": 1}}
	require.NoError(t, db.Create(page).Error)
	other := &models.Page{UserID: alice.ID, OwnerID: &alice.ID, Slug: "cv", ThemeID: "minimal", Status: models.PageStatusLive, ResumeData: map[string]any{"a": 1}}
	require.NoError(t, db.Create(other).Error)

	_, err := svc.Rename(ctx, alice.ID, "Bob")
	assertAppError(t, err, models.CodeConflict)

	_, err = svc.Rename(ctx, alice.ID, "")
	assertAppError(t, err, models.CodeValidation)

	user, err := svc.Rename(ctx, alice.ID, "Alice.Dev")
	require.NoError(t, err)
	assert.Equal(t, "alice.dev", user.Username)

	var moved models.Page
	require.NoError(t, db.First(&moved, "id = ?", page.ID).Error)
	assert.Equal(t, "alice.dev", moved.Slug)
	var untouched models.Page
	require.NoError(t, db.First(&untouched, "id = ?", other.ID).Error)
	assert.Equal(t, "cv", untouched.Slug)

	same, err := svc.Rename(ctx, alice.ID, "alice.dev")
	require.NoError(t, err)
	assert.Equal(t, "alice.dev", same.Username)
}

func TestUsernameService_Allocate(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	svc := NewUsernameService(repository.NewUserRepository(db, nil), nil)
	ctx := context.Background()

	t.Run("free base is used as is", func(t *testing.T) {
		got, err := svc.Allocate(ctx, "Jane.Doe")
		require.NoError(t, err)
		assert.Equal(t, "jane.doe", got)
	})

	t.Run("taken base gets sequential suffix", func(t *testing.T) {
		createUser(t, db, "sam")
		createUser(t, db, "sam-2")
		got, err := svc.Allocate(ctx, "sam")
		require.NoError(t, err)
		assert.Equal(t, "sam-3", got)
	})

	t.Run("short base is padded", func(t *testing.T) {
		got, err := svc.Allocate(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, "x00", got)
	})

	t.Run("reserved base skips to suffix", func(t *testing.T) {
		got, err := svc.Allocate(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, "admin-2", got)
	})

	t.Run("long base is truncated to fit suffix", func(t *testing.T) {
		long := strings.Repeat("k", 60)
		createUser(t, db, strings.Repeat("k", 40))
		got, err := svc.Allocate(ctx, long)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("k", 38)+"-2", got)
	})
}
