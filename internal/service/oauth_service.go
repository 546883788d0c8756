package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"folio/internal/config"
	"folio/internal/featureflags"
	"folio/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/github"
)

const (
	oauthStatePrefix = "oauth:state:"
	oauthStateTTL    = 10 * time.Minute

	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
	googleUserURL   = "https://www.googleapis.com/oauth2/v2/userinfo"
)

type oauthProvider struct {
	config *oauth2.Config
	// profileURL returns the identity; emailsURL is only used by GitHub when
	// the profile email is private.
	profileURL string
	emailsURL  string
}

// OAuthService runs the authorization-code flow for GitHub and Google.
type OAuthService struct {
	providers map[string]*oauthProvider
	auth      *AuthService
	rdb       *redis.Client
	flags     *featureflags.Manager
}

// NewOAuthService configures every provider that has credentials. State is
// kept in Redis, so the flow is unavailable when rdb is nil.
func NewOAuthService(cfg *config.Config, authSvc *AuthService, rdb *redis.Client, flags *featureflags.Manager) *OAuthService {
	base := strings.TrimRight(cfg.OAuthCallbackURL, "/")
	providers := make(map[string]*oauthProvider)

	if cfg.OAuthGitHubID != "" && cfg.OAuthGitHubSecret != "" {
		providers[models.ProviderGitHub] = &oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.OAuthGitHubID,
				ClientSecret: cfg.OAuthGitHubSecret,
				Endpoint:     github.Endpoint,
				RedirectURL:  base + "/api/auth/oauth/github/callback",
				Scopes:       []string{"read:user", "user:email"},
			},
			profileURL: githubUserURL,
			emailsURL:  githubEmailsURL,
		}
	}
	if cfg.OAuthGoogleID != "" && cfg.OAuthGoogleSecret != "" {
		providers[models.ProviderGoogle] = &oauthProvider{
			config: &oauth2.Config{
				ClientID:     cfg.OAuthGoogleID,
				ClientSecret: cfg.OAuthGoogleSecret,
				Endpoint:     endpoints.Google,
				RedirectURL:  base + "/api/auth/oauth/google/callback",
				Scopes:       []string{"openid", "email", "profile"},
			},
			profileURL: googleUserURL,
		}
	}

	return &OAuthService{providers: providers, auth: authSvc, rdb: rdb, flags: flags}
}

// Providers lists the configured provider names.
func (s *OAuthService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuthURL stores a one-time state and returns the provider consent URL.
func (s *OAuthService) AuthURL(ctx context.Context, provider string) (string, error) {
	p, err := s.provider(provider)
	if err != nil {
		return "", err
	}
	if s.rdb == nil {
		return "", models.NewInternalError(errors.New("oauth state store unavailable"))
	}
	state := uuid.NewString()
	if err := s.rdb.Set(ctx, oauthStatePrefix+state, provider, oauthStateTTL).Err(); err != nil {
		return "", models.NewInternalError(err)
	}
	return p.config.AuthCodeURL(state), nil
}

// Callback consumes the state, exchanges code and signs the user in.
func (s *OAuthService) Callback(ctx context.Context, provider, state, code string) (*Session, error) {
	p, err := s.provider(provider)
	if err != nil {
		return nil, err
	}
	if state == "" || code == "" {
		return nil, models.NewValidationError("state and code are required")
	}
	if s.rdb == nil {
		return nil, models.NewInternalError(errors.New("oauth state store unavailable"))
	}

	stored, err := s.rdb.GetDel(ctx, oauthStatePrefix+state).Result()
	if errors.Is(err, redis.Nil) || (err == nil && stored != provider) {
		return nil, models.NewUnauthorizedError("OAuth state is invalid or expired")
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, models.NewUnauthorizedError("OAuth code exchange failed")
	}
	client := p.config.Client(ctx, token)

	profile, err := s.fetchProfile(ctx, client, provider, p)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	profile.AllowSignup = s.flags.Enabled(featureflags.OAuthSignup, 0)
	return s.auth.SignInExternal(ctx, *profile)
}

func (s *OAuthService) provider(name string) (*oauthProvider, error) {
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return nil, models.NewNotFoundError("OAuth provider", name)
	}
	return p, nil
}

func (s *OAuthService) fetchProfile(ctx context.Context, client *http.Client, provider string, p *oauthProvider) (*ExternalProfile, error) {
	switch provider {
	case models.ProviderGitHub:
		var data struct {
			Login     string `json:"login"`
			Name      string `json:"name"`
			Email     string `json:"email"`
			AvatarURL string `json:"avatar_url"`
		}
		if err := getJSON(ctx, client, p.profileURL, &data); err != nil {
			return nil, fmt.Errorf("github profile: %w", err)
		}
		email := data.Email
		if email == "" {
			primary, err := githubPrimaryEmail(ctx, client, p.emailsURL)
			if err != nil {
				return nil, fmt.Errorf("github emails: %w", err)
			}
			email = primary
		}
		name := data.Name
		if name == "" {
			name = data.Login
		}
		return &ExternalProfile{Provider: provider, Email: email, DisplayName: name, AvatarURL: data.AvatarURL}, nil

	case models.ProviderGoogle:
		var data struct {
			Email         string `json:"email"`
			VerifiedEmail bool   `json:"verified_email"`
			Name          string `json:"name"`
			Picture       string `json:"picture"`
		}
		if err := getJSON(ctx, client, p.profileURL, &data); err != nil {
			return nil, fmt.Errorf("google profile: %w", err)
		}
		if !data.VerifiedEmail {
			data.Email = ""
		}
		return &ExternalProfile{Provider: provider, Email: data.Email, DisplayName: data.Name, AvatarURL: data.Picture}, nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

// githubPrimaryEmail prefers the primary verified address, then any
// verified one.
func githubPrimaryEmail(ctx context.Context, client *http.Client, url string) (string, error) {
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, url, &emails); err != nil {
		return "", err
	}
	fallback := ""
	for _, e := range emails {
		if !e.Verified {
			continue
		}
		if e.Primary {
			return e.Email, nil
		}
		if fallback == "" {
			fallback = e.Email
		}
	}
	return fallback, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
