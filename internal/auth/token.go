// Package auth issues and resolves session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"folio/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	Issuer   = "folio-api"
	Audience = "folio-client"

	revokedKeyPrefix = "blacklist:"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRevokedToken = errors.New("token has been revoked")
)

// Claims are the JWT claims carried by a session token.
type Claims struct {
	Email    string `json:"email"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// Manager signs HS256 session tokens and tracks revoked token ids in Redis.
type Manager struct {
	secret []byte
	ttl    time.Duration
	rdb    *redis.Client
	now    func() time.Time
}

// NewManager returns a Manager. A nil Redis client disables revocation.
func NewManager(secret string, ttl time.Duration, rdb *redis.Client) *Manager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, rdb: rdb, now: time.Now}
}

// Issued is a freshly signed token.
type Issued struct {
	Token     string    `json:"token"`
	JTI       string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issue signs a token for user.
func (m *Manager) Issue(user *models.User) (Issued, error) {
	if len(m.secret) == 0 {
		return Issued{}, fmt.Errorf("JWT secret not configured")
	}
	now := m.now()
	expires := now.Add(m.ttl)
	jti := uuid.NewString()

	claims := Claims{
		Email:    user.Email,
		Provider: user.AuthProvider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Issued{}, fmt.Errorf("sign token: %w", err)
	}
	return Issued{Token: signed, JTI: jti, ExpiresAt: expires}, nil
}

// Parse validates signature, issuer, audience and time claims.
func (m *Manager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := strconv.ParseUint(claims.Subject, 10, 32); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ResolveToken implements middleware.TokenResolver.
func (m *Manager) ResolveToken(ctx context.Context, token string) (*models.Identity, string, error) {
	claims, err := m.Parse(token)
	if err != nil {
		return nil, "", err
	}
	if m.IsRevoked(ctx, claims.ID) {
		return nil, "", ErrRevokedToken
	}

	id, _ := strconv.ParseUint(claims.Subject, 10, 32)
	provider := claims.Provider
	if provider == "" {
		provider = models.ProviderEmail
	}
	return &models.Identity{ID: uint(id), Email: claims.Email, Provider: provider}, claims.ID, nil
}

// Revoke blacklists jti until the token would have expired anyway.
func (m *Manager) Revoke(ctx context.Context, jti string) error {
	if m.rdb == nil || jti == "" {
		return nil
	}
	return m.rdb.Set(ctx, revokedKeyPrefix+jti, "1", m.ttl).Err()
}

// IsRevoked reports whether jti was revoked. Redis errors fail open.
func (m *Manager) IsRevoked(ctx context.Context, jti string) bool {
	if m.rdb == nil || jti == "" {
		return false
	}
	n, err := m.rdb.Exists(ctx, revokedKeyPrefix+jti).Result()
	return err == nil && n > 0
}
