package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"folio/internal/auth"
	"folio/internal/events"
	"folio/internal/middleware"
	"folio/internal/models"
	"folio/internal/repository"
	"folio/internal/validation"
)

const maxDisplayNameLength = 120

// TokenIssuer issues and revokes session tokens.
type TokenIssuer interface {
	Issue(user *models.User) (auth.Issued, error)
	Revoke(ctx context.Context, jti string) error
}

// Session is returned by every successful sign-in.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// SignupInput is the body of POST /api/auth/signup.
type SignupInput struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name" validate:"max=120"`
}

// ExternalProfile is what an OAuth provider tells us about a user.
type ExternalProfile struct {
	Provider    string
	Email       string
	DisplayName string
	AvatarURL   string
	// AllowSignup permits creating an account when none matches Email.
	AllowSignup bool
}

// AuthService handles email/password and external sign-in.
type AuthService struct {
	users       repository.UserRepository
	usernames   *UsernameService
	tokens      TokenIssuer
	events      *events.Dispatcher
	adminEmails map[string]struct{}
	now         func() time.Time
}

func NewAuthService(
	users repository.UserRepository,
	usernames *UsernameService,
	tokens TokenIssuer,
	dispatcher *events.Dispatcher,
	adminEmails []string,
) *AuthService {
	admins := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		admins[validation.NormalizeEmail(e)] = struct{}{}
	}
	return &AuthService{
		users:       users,
		usernames:   usernames,
		tokens:      tokens,
		events:      dispatcher,
		adminEmails: admins,
		now:         time.Now,
	}
}

// IsAdmin reports whether user has admin rights, either by flag or by
// ADMIN_EMAILS.
func (s *AuthService) IsAdmin(user *models.User) bool {
	if user == nil {
		return false
	}
	if user.IsAdmin {
		return true
	}
	_, ok := s.adminEmails[validation.NormalizeEmail(user.Email)]
	return ok
}

func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*Session, error) {
	in.Email = validation.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	email := in.Email
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	displayName := strings.TrimSpace(in.DisplayName)

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("An account with that email already exists")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user, err := s.createUser(ctx, &models.User{
		Email:        email,
		DisplayName:  displayName,
		Password:     hash,
		AuthProvider: models.ProviderEmail,
	})
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, user)
}

// Login checks the password of an email account. Unknown addresses and wrong
// passwords get the same answer.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := models.NewUnauthorizedError("Invalid email or password")

	user, err := s.users.GetByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.CheckPassword(user.Password, password) {
		return nil, invalid
	}
	return s.startSession(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, jti string) error {
	if jti == "" {
		return nil
	}
	if err := s.tokens.Revoke(ctx, jti); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// SignInExternal finds or creates the account for an OAuth profile. Existing
// email accounts are linked by address.
func (s *AuthService) SignInExternal(ctx context.Context, profile ExternalProfile) (*Session, error) {
	email := validation.NormalizeEmail(profile.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewUnauthorizedError("Provider did not return a usable email address")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if !profile.AllowSignup {
			return nil, models.NewForbiddenError("Sign up with this provider is not available yet")
		}
		displayName := strings.TrimSpace(profile.DisplayName)
		if len(displayName) > maxDisplayNameLength {
			displayName = displayName[:maxDisplayNameLength]
		}
		user, err = s.createUser(ctx, &models.User{
			Email:        email,
			DisplayName:  displayName,
			AvatarURL:    profile.AvatarURL,
			AuthProvider: profile.Provider,
		})
		if err != nil {
			return nil, err
		}
	}
	return s.startSession(ctx, user)
}

func (s *AuthService) createUser(ctx context.Context, user *models.User) (*models.User, error) {
	username, err := s.usernames.Allocate(ctx, validation.HandleFromEmail(user.Email))
	if err != nil {
		return nil, err
	}
	user.Username = username
	if user.Plan == "" {
		user.Plan = models.PlanFree
	}
	if _, ok := s.adminEmails[user.Email]; ok {
		user.IsAdmin = true
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "account created",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("provider", user.AuthProvider),
	)
	s.events.Dispatch(ctx, events.Event{
		Name:       events.SignedUp,
		UserID:     user.ID,
		Properties: map[string]any{"provider": user.AuthProvider},
	})
	return user, nil
}

func (s *AuthService) startSession(ctx context.Context, user *models.User) (*Session, error) {
	now := s.now().UTC()
	if err := s.users.RecordSignIn(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.SignInCount++
	user.LastSignInAt = &now

	issued, err := s.tokens.Issue(user)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &Session{Token: issued.Token, ExpiresAt: issued.ExpiresAt, User: user}, nil
}
