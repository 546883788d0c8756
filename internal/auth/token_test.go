package auth

import (
	"context"
	"testing"
	"time"

	"folio/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-at-least-thirty-two-chars"

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewManager(testSecret, time.Hour, rdb), mr
}

func TestIssueAndResolve(t *testing.T) {
	m, _ := newTestManager(t)
	user := &models.User{ID: 42, Email: "jane@example.com", AuthProvider: models.ProviderGitHub}

	issued, err := m.Issue(user)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.JTI)
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, 5*time.Second)

	identity, jti, err := m.ResolveToken(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, issued.JTI, jti)
	assert.Equal(t, &models.Identity{ID: 42, Email: "jane@example.com", Provider: models.ProviderGitHub}, identity)
}

func TestResolve_DefaultsProviderToEmail(t *testing.T) {
	m, _ := newTestManager(t)
	issued, err := m.Issue(&models.User{ID: 1, Email: "a@b.co"})
	require.NoError(t, err)

	identity, _, err := m.ResolveToken(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderEmail, identity.Provider)
}

func TestResolve_RejectsBadTokens(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, _, err := m.ResolveToken(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewManager("a-different-secret-that-is-long-enough", time.Hour, nil)
	issued, err := other.Issue(&models.User{ID: 1})
	require.NoError(t, err)
	_, _, err = m.ResolveToken(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// wrong audience
	claims := jwt.RegisteredClaims{
		Subject:   "1",
		Issuer:    Issuer,
		Audience:  jwt.ClaimStrings{"someone-else"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, _, err = m.ResolveToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// non-numeric subject
	claims.Audience = jwt.ClaimStrings{Audience}
	claims.Subject = "abc"
	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, _, err = m.ResolveToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// HS512 is not accepted
	claims.Subject = "1"
	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, _, err = m.ResolveToken(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolve_Expired(t *testing.T) {
	m, _ := newTestManager(t)
	issued, err := m.Issue(&models.User{ID: 3})
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _, err = m.ResolveToken(context.Background(), issued.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()
	issued, err := m.Issue(&models.User{ID: 5})
	require.NoError(t, err)

	require.NoError(t, m.Revoke(ctx, issued.JTI))
	assert.True(t, mr.Exists("blacklist:"+issued.JTI))
	assert.Equal(t, time.Hour, mr.TTL("blacklist:"+issued.JTI))

	_, _, err = m.ResolveToken(ctx, issued.Token)
	assert.ErrorIs(t, err, ErrRevokedToken)
}

func TestRevoke_NoRedis(t *testing.T) {
	m := NewManager(testSecret, 0, nil)
	assert.NoError(t, m.Revoke(context.Background(), "jti"))
	assert.False(t, m.IsRevoked(context.Background(), "jti"))
	assert.Equal(t, 7*24*time.Hour, m.ttl)
}

func TestIssue_RequiresSecret(t *testing.T) {
	_, err := NewManager("", time.Hour, nil).Issue(&models.User{ID: 1})
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("SecurePass12!@")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "SecurePass12!@"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("", "anything"))
}
