package service

import (
	"context"
	"testing"

	"folio/internal/auth"
	"folio/internal/models"
	"folio/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newAuthService(db *gorm.DB, tokens TokenIssuer, admins ...string) *AuthService {
	users := repository.NewUserRepository(db, nil)
	return NewAuthService(users, NewUsernameService(users, nil), tokens, nil, admins)
}

func TestAuthService_SignupAndLogin(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	tokens := &fakeTokens{}
	svc := newAuthService(db, tokens, "Boss@Example.com")
	ctx := context.Background()

	session, err := svc.Signup(ctx, SignupInput{
		Email:       " Jane.Doe@Example.com ",
		Password:    "Sup3rSecret!",
		DisplayName: "Jane",
	})
	require.NoError(t, err)
	assert.Equal(t, "token-jane.doe", session.Token)
	assert.Equal(t, "jane.doe@example.com", session.User.Email)
	assert.Equal(t, "jane.doe", session.User.Username)
	assert.Equal(t, models.PlanFree, session.User.Plan)
	assert.Equal(t, 1, session.User.SignInCount)
	assert.False(t, session.User.IsAdmin)

	var stored models.User
	require.NoError(t, db.First(&stored, session.User.ID).Error)
	assert.NotEqual(t, "Sup3rSecret!", stored.Password)
	assert.True(t, auth.CheckPassword(stored.Password, "Sup3rSecret!"))

	_, err = svc.Signup(ctx, SignupInput{Email: "jane.doe@example.com", Password: "Sup3rSecret!"})
	assertAppError(t, err, models.CodeConflict)

	again, err := svc.Login(ctx, "JANE.DOE@example.com", "Sup3rSecret!")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, again.User.ID)
	require.NoError(t, db.First(&stored, session.User.ID).Error)
	assert.Equal(t, 2, stored.SignInCount)
	assert.NotNil(t, stored.LastSignInAt)

	admin, err := svc.Signup(ctx, SignupInput{Email: "boss@example.com", Password: "Sup3rSecret!"})
	require.NoError(t, err)
	assert.True(t, admin.User.IsAdmin)
	assert.True(t, svc.IsAdmin(admin.User))
}

func TestAuthService_LoginFailuresLookAlike(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	svc := newAuthService(db, &fakeTokens{})
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{Email: "jane@example.com", Password: "Sup3rSecret!"})
	require.NoError(t, err)

	_, wrongPassword := svc.Login(ctx, "jane@example.com", "nope-nope-1A")
	_, unknownEmail := svc.Login(ctx, "ghost@example.com", "Sup3rSecret!")
	assertAppError(t, wrongPassword, models.CodeUnauthorized)
	assertAppError(t, unknownEmail, models.CodeUnauthorized)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestAuthService_SignupValidation(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	svc := newAuthService(db, &fakeTokens{})
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{Email: "not-an-email", Password: "Sup3rSecret!"})
	assertAppError(t, err, models.CodeValidation)

	_, err = svc.Signup(ctx, SignupInput{Email: "jane@example.com", Password: "short"})
	assertAppError(t, err, models.CodeValidation)
}

func TestAuthService_Logout(t *testing.T) {
	t.Parallel()
	tokens := &fakeTokens{}
	svc := newAuthService(setupSQLite(t), tokens)

	require.NoError(t, svc.Logout(context.Background(), "jti-1"))
	assert.Equal(t, []string{"jti-1"}, tokens.revoked)
}

func TestAuthService_SignInExternal(t *testing.T) {
	t.Parallel()
	db := setupSQLite(t)
	svc := newAuthService(db, &fakeTokens{})
	ctx := context.Background()

	_, err := svc.SignInExternal(ctx, ExternalProfile{Provider: models.ProviderGitHub, Email: "new@example.com"})
	assertAppError(t, err, models.CodeForbidden)

	created, err := svc.SignInExternal(ctx, ExternalProfile{
		Provider:    models.ProviderGitHub,
		Email:       "New@Example.com",
		DisplayName: "New Person",
		AvatarURL:   "https://avatars.example.com/1",
		AllowSignup: true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGitHub, created.User.AuthProvider)
	assert.Equal(t, "new", created.User.Username)
	assert.Equal(t, "New Person", created.User.DisplayName)

	linked, err := svc.SignInExternal(ctx, ExternalProfile{Provider: models.ProviderGoogle, Email: "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, created.User.ID, linked.User.ID)
	assert.Equal(t, 2, linked.User.SignInCount)

	_, err = svc.SignInExternal(ctx, ExternalProfile{Provider: models.ProviderGoogle, Email: "", AllowSignup: true})
	assertAppError(t, err, models.CodeUnauthorized)
}
