package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/signalhub/internal/actor"
	"github.com/geocoder89/signalhub/internal/domain/user"
	"github.com/geocoder89/signalhub/internal/observability"
	"github.com/geocoder89/signalhub/internal/security"
	"github.com/gin-gonic/gin"
)

type UserReader interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, username, passwordHash, fullname string, role user.Role) (user.User, error)
}

type TokenIssuer interface {
	Issue(u user.User) (token string, expiresAt time.Time, err error)
}

type AuthHandler struct {
	users      UserReader
	userWriter UserWriter
	tokens     TokenIssuer
	events     observability.Recorder
}

func NewAuthHandler(users UserReader, userWriter UserWriter, tokens TokenIssuer, events observability.Recorder) *AuthHandler {
	if events == nil {
		events = observability.NopRecorder{}
	}
	return &AuthHandler{
		users:      users,
		userWriter: userWriter,
		tokens:     tokens,
		events:     events,
	}
}

// publicUser is the account shape clients see; it never carries the hash.
type publicUser struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Name      string     `json:"name"`
	Role      user.Role  `json:"role"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

func toPublic(u user.User, withCreatedAt bool) publicUser {
	p := publicUser{ID: u.ID, Username: u.Username, Name: u.Fullname, Role: u.Role}
	if withCreatedAt {
		createdAt := u.CreatedAt
		p.CreatedAt = &createdAt
	}
	return p
}

// Register creates a plain user account. Elevated roles are only ever
// provisioned out of band.
func (h *AuthHandler) Register(ctx *gin.Context) {
	var req user.RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	username := strings.TrimSpace(req.Username)
	fullname := strings.TrimSpace(req.Fullname)
	if username == "" || fullname == "" {
		RespondBadRequest(ctx, "Username, password and fullname are required.", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			RespondServiceError(ctx, err)
			return
		}
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.userWriter.Create(cctx, username, hash, fullname, user.RoleUser)

	if err != nil {
		if errors.Is(err, user.ErrUsernameTaken) {
			RespondError(ctx, http.StatusBadRequest, "username_taken", "Username already exists.", nil)
			return
		}

		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "Register success",
		"user":    toPublic(u, false),
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	result := observability.ResultFailure
	defer func() { h.events.AuthAttempt(observability.AuthMethodLogin, result) }()

	// short timeout for DB lookup
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	// usernames are stored trimmed
	foundUser, err := h.users.GetByUsername(cctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found.")
			return
		}
		RespondServiceError(ctx, err)
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		RespondUnauthorized(ctx, "invalid_credentials", "Invalid credentials.")
		return
	}

	token, expiresAt, err := h.tokens.Issue(foundUser)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	result = observability.ResultSuccess

	ctx.JSON(http.StatusOK, gin.H{
		"message":   "Login success",
		"token":     token,
		"expiresAt": expiresAt,
		"user":      toPublic(foundUser, false),
	})
}

// Me returns the profile of the authenticated caller.
func (h *AuthHandler) Me(ctx *gin.Context, id actor.Identity) {
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id.ID)
	if err != nil {
		RespondServiceError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, toPublic(u, true))
}
