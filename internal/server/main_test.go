package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testSecret   = "test-secret-key-12345678901234567890123456789012"
	testPassword = "Correct-Horse-42"
	adminEmail   = "boss@example.com"
)

type testServer struct {
	srv   *Server
	app   *fiber.App
	db    *gorm.DB
	mr    *miniredis.Miniredis
	store *storage.LocalStore
}

type option func(cfg *config.Config)

func withFlags(flags string) option {
	return func(cfg *config.Config) { cfg.FeatureFlags = flags }
}

func withFrontend(url string) option {
	return func(cfg *config.Config) { cfg.FrontendURL = url }
}

func withGitHub() option {
	return func(cfg *config.Config) {
		cfg.OAuthGitHubID = "gh-id"
		cfg.OAuthGitHubSecret = "gh-secret"
		cfg.OAuthCallbackURL = "http://api.example.com"
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// newTestServer wires a real Server over in-memory SQLite, miniredis and a
// temp-dir object store.
func newTestServer(t *testing.T, opts ...option) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := storage.NewLocalStore(t.TempDir(), "http://localhost:8080/uploads")
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:   testSecret,
		JWTTTLHours: 1,
		AdminEmails: adminEmail,
		Env:         "test",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	db := newTestDB(t)
	srv, err := NewServerWithDeps(cfg, db, rdb, store)
	require.NoError(t, err)
	return &testServer{srv: srv, app: srv.NewApp(), db: db, mr: mr, store: store}
}

// do sends a JSON request and decodes a JSON response body into a map when
// there is one.
func (ts *testServer) do(t *testing.T, method, path string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return ts.send(t, req)
}

func (ts *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

// doList sends a GET whose response is a JSON array.
func (ts *testServer) doList(t *testing.T, path, token string) []map[string]any {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// signup creates an account and returns its token and user object.
func (ts *testServer) signup(t *testing.T, email string) (string, map[string]any) {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/auth/signup", map[string]any{
		"email":    email,
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user, _ := body["user"].(map[string]any)
	return token, user
}

func (ts *testServer) publish(t *testing.T, token, slug string) map[string]any {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/pages/publish", map[string]any{
		"slug":        slug,
		"title":       "My resume",
		"theme_id":    "minimal",
		"resume_data": map[string]any{"name": "Test Person", "headline": "Engineer"},
		"raw_text":    "Test Person\nEngineer",
	}, token)
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, resp.StatusCode, body)
	page, _ := body["page"].(map[string]any)
	require.NotNil(t, page)
	return page
}
