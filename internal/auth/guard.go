package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/signalhub/internal/actor"
	"github.com/geocoder89/signalhub/internal/apperr"
	"github.com/geocoder89/signalhub/internal/domain/user"
	"github.com/geocoder89/signalhub/internal/observability"
)

var ErrMalformedHeader = errors.New("missing or malformed Authorization header")

// Keep these small so tests can fake them easily.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

type UserFinder interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// Guard turns a raw Authorization header into a verified identity.
// It has no side effects beyond the user lookup and an auth outcome event.
type Guard struct {
	tokens TokenVerifier
	users  UserFinder
	events observability.Recorder
}

func NewGuard(tokens TokenVerifier, users UserFinder, events observability.Recorder) *Guard {
	if events == nil {
		events = observability.NopRecorder{}
	}
	return &Guard{tokens: tokens, users: users, events: events}
}

func (g *Guard) Authenticate(ctx context.Context, authHeader string) (actor.Identity, error) {
	id, err := g.authenticate(ctx, authHeader)

	result := observability.ResultSuccess
	if err != nil {
		result = observability.ResultFailure
	}
	g.events.AuthAttempt(observability.AuthMethodToken, result)

	return id, err
}

func (g *Guard) authenticate(ctx context.Context, authHeader string) (actor.Identity, error) {
	raw, err := bearerToken(authHeader)
	if err != nil {
		return actor.Identity{}, fmt.Errorf("%w: %w", apperr.ErrUnauthenticated, err)
	}

	claims, err := g.tokens.Verify(raw)
	if err != nil {
		return actor.Identity{}, fmt.Errorf("%w: %w", apperr.ErrUnauthenticated, err)
	}

	// the stored role wins over the one embedded at issue time
	u, err := g.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return actor.Identity{}, err
	}

	return actor.FromUser(u), nil
}

func bearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMalformedHeader
	}

	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return "", ErrMalformedHeader
	}

	return raw, nil
}
