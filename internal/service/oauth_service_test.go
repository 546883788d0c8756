package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"folio/internal/config"
	"folio/internal/featureflags"
	"folio/internal/models"
	"folio/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

type oauthFixture struct {
	svc *OAuthService
	mr  *miniredis.Miniredis
	db  *gorm.DB
}

// fakeProvider answers the token exchange and both GitHub profile endpoints.
func fakeProvider(t *testing.T, githubEmail string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-123", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"login":      "octo",
			"name":       "",
			"email":      githubEmail,
			"avatar_url": "https://avatars.example.com/octo",
		})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "unverified@example.com", "primary": false, "verified": false},
			{"email": "octo@work.example.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newOAuthFixture(t *testing.T, flags string, githubEmail string) *oauthFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db := setupSQLite(t)
	users := repository.NewUserRepository(db, nil)
	authSvc := NewAuthService(users, NewUsernameService(users, nil), &fakeTokens{}, nil, nil)
	cfg := &config.Config{
		OAuthCallbackURL:  "https://folio.example.com/",
		OAuthGitHubID:     "gh-id",
		OAuthGitHubSecret: "gh-secret",
	}
	svc := NewOAuthService(cfg, authSvc, rdb, featureflags.NewManager(flags))

	srv := fakeProvider(t, githubEmail)
	gh := svc.providers[models.ProviderGitHub]
	gh.config.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"}
	gh.profileURL = srv.URL + "/user"
	gh.emailsURL = srv.URL + "/user/emails"

	return &oauthFixture{svc: svc, mr: mr, db: db}
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestOAuthService_Providers(t *testing.T) {
	t.Parallel()
	f := newOAuthFixture(t, "", "")
	assert.Equal(t, []string{"github"}, f.svc.Providers())

	_, err := f.svc.AuthURL(context.Background(), "google")
	assertAppError(t, err, models.CodeNotFound)
}

func TestOAuthService_AuthURLStoresState(t *testing.T) {
	t.Parallel()
	f := newOAuthFixture(t, "", "")

	authURL, err := f.svc.AuthURL(context.Background(), "GitHub")
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "gh-id", u.Query().Get("client_id"))
	assert.Equal(t, "https://folio.example.com/api/auth/oauth/github/callback", u.Query().Get("redirect_uri"))

	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	stored, err := f.mr.Get(oauthStatePrefix + state)
	require.NoError(t, err)
	assert.Equal(t, "github", stored)
	assert.Equal(t, oauthStateTTL, f.mr.TTL(oauthStatePrefix+state))
}

func TestOAuthService_CallbackCreatesAccountWhenSignupEnabled(t *testing.T) {
	t.Parallel()
	f := newOAuthFixture(t, "oauth_signup=on", "")
	ctx := context.Background()

	authURL, err := f.svc.AuthURL(ctx, "github")
	require.NoError(t, err)
	state := stateFrom(t, authURL)

	session, err := f.svc.Callback(ctx, "github", state, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "octo@work.example.com", session.User.Email)
	assert.Equal(t, "octo", session.User.DisplayName)
	assert.Equal(t, models.ProviderGitHub, session.User.AuthProvider)
	assert.Equal(t, 1, session.User.SignInCount)
	assert.False(t, f.mr.Exists(oauthStatePrefix+state), "state is single use")

	_, err = f.svc.Callback(ctx, "github", state, "good-code")
	assertAppError(t, err, models.CodeUnauthorized)
}

func TestOAuthService_CallbackWithoutSignupOnlyLinks(t *testing.T) {
	t.Parallel()
	f := newOAuthFixture(t, "", "existing@example.com")
	ctx := context.Background()

	authURL, err := f.svc.AuthURL(ctx, "github")
	require.NoError(t, err)
	_, err = f.svc.Callback(ctx, "github", stateFrom(t, authURL), "good-code")
	assertAppError(t, err, models.CodeForbidden)

	existing := &models.User{Email: "existing@example.com", Username: "existing", Plan: models.PlanFree}
	require.NoError(t, f.db.Create(existing).Error)

	authURL, err = f.svc.AuthURL(ctx, "github")
	require.NoError(t, err)
	session, err := f.svc.Callback(ctx, "github", stateFrom(t, authURL), "good-code")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, session.User.ID)
}

func TestOAuthService_CallbackRejections(t *testing.T) {
	t.Parallel()
	f := newOAuthFixture(t, "oauth_signup=on", "")
	ctx := context.Background()

	_, err := f.svc.Callback(ctx, "github", "", "good-code")
	assertAppError(t, err, models.CodeValidation)

	_, err = f.svc.Callback(ctx, "github", "forged", "good-code")
	assertAppError(t, err, models.CodeUnauthorized)

	authURL, err := f.svc.AuthURL(ctx, "github")
	require.NoError(t, err)
	_, err = f.svc.Callback(ctx, "github", stateFrom(t, authURL), "bad-code")
	assertAppError(t, err, models.CodeUnauthorized)
}

func TestOAuthService_WithoutRedis(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{OAuthGitHubID: "id", OAuthGitHubSecret: "secret"}
	svc := NewOAuthService(cfg, nil, nil, nil)

	_, err := svc.AuthURL(context.Background(), "github")
	assertAppError(t, err, models.CodeInternal)
}
