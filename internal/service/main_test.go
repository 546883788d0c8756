package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"folio/internal/auth"
	"folio/internal/database"
	"folio/internal/models"
	"folio/internal/notifications"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db := openSQLite(t)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// setupLegacySQLite mirrors a database that only ran the first pages
// migration.
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

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected *models.AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, "message: %s", appErr.Message)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

// fakeTokens issues predictable tokens and remembers revocations.
type fakeTokens struct {
	mu      sync.Mutex
	issued  int
	revoked []string
	issueFn func(user *models.User) (auth.Issued, error)
}

func (f *fakeTokens) Issue(user *models.User) (auth.Issued, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueFn != nil {
		return f.issueFn(user)
	}
	f.issued++
	return auth.Issued{
		Token:     "token-" + user.Username,
		JTI:       "jti-" + user.Username,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeTokens) Revoke(_ context.Context, jti string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, jti)
	return nil
}

// memoryStore is an in-memory storage.ObjectStore.
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStore) Put(_ context.Context, key, contentType string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) DeletePrefix(_ context.Context, prefix string, keep ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) && !slices.Contains(keep, k) {
			delete(m.objects, k)
		}
	}
	return nil
}

func (m *memoryStore) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}

// recordingPublisher captures live view events.
type recordingPublisher struct {
	mu     sync.Mutex
	owners []uint
	events []notifications.ViewEvent
	err    error
}

func (r *recordingPublisher) PublishView(_ context.Context, ownerID uint, ev notifications.ViewEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners = append(r.owners, ownerID)
	r.events = append(r.events, ev)
	return r.err
}
