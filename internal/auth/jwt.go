package auth

import (
	"errors"
	"time"

	"github.com/geocoder89/signalhub/internal/domain/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is the absolute lifetime of an issued identity token.
const TokenTTL = 24 * time.Hour

var (
	ErrMissingSecret = errors.New("jwt secret is not configured")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpired       = errors.New("token expired")
)

type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	now    func() time.Time
}

// NewManager refuses an empty secret; there is no fallback signing key.
func NewManager(secret string) (*Manager, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	return &Manager{
		secret: []byte(secret),
		now:    time.Now,
	}, nil
}

// WithClock returns a copy of the manager that reads time from now.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	cp := *m
	cp.now = now
	return &cp
}

func (m *Manager) Issue(u user.User) (token string, expiresAt time.Time, err error) {
	now := m.now().UTC()
	expiresAt = now.Add(TokenTTL)

	claims := Claims{
		UserID:   u.ID,
		Username: u.Username,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   u.ID,
			ID:        uuid.NewString(),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	// the signed expiry is truncated to whole seconds
	return token, claims.ExpiresAt.Time, nil
}

// Verify checks signature and expiry. It never touches the network or the store.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
