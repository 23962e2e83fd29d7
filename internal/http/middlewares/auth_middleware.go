package middlewares

import (
	"context"

	"github.com/geocoder89/signalhub/internal/actor"
	"github.com/geocoder89/signalhub/internal/http/handlers"
	"github.com/geocoder89/signalhub/internal/policy"
	"github.com/gin-gonic/gin"
)

// Keep these small so tests can fake them easily.
type Authenticator interface {
	Authenticate(ctx context.Context, authHeader string) (actor.Identity, error)
}

type Authorizer interface {
	Authorize(id actor.Identity, op policy.Operation) error
}

// IdentityHandler is a route handler that runs with a verified identity.
type IdentityHandler func(c *gin.Context, id actor.Identity)

type AuthMiddleware struct {
	guard  Authenticator
	policy Authorizer
}

func NewAuthMiddleware(guard Authenticator, policy Authorizer) *AuthMiddleware {
	return &AuthMiddleware{guard: guard, policy: policy}
}

// Protect authenticates the request, checks that the caller's role may
// invoke op and only then hands the identity to next. The identity is passed
// as an argument, never stashed on the request.
func (m *AuthMiddleware) Protect(op policy.Operation, next IdentityHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := m.guard.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			handlers.RespondServiceError(c, err)
			c.Abort()
			return
		}

		if err := m.policy.Authorize(id, op); err != nil {
			handlers.RespondServiceError(c, err)
			c.Abort()
			return
		}

		next(c, id)
	}
}

func abortWith(c *gin.Context, status int, code, message string) {
	handlers.RespondError(c, status, code, message, nil)
	c.Abort()
}
