package user

import (
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/signalhub/internal/apperr"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleCallmaker Role = "callmaker"
	RoleUser      Role = "user"
)

// Roles lists every role the system knows about.
func Roles() []Role {
	return []Role{RoleAdmin, RoleCallmaker, RoleUser}
}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCallmaker, RoleUser:
		return true
	default:
		return false
	}
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, s)
	}
	return r, nil
}

var (
	ErrNotFound      = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrUsernameTaken = fmt.Errorf("%w: username already exists", apperr.ErrConflict)
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Fullname     string    `json:"name"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=100"`
	Password string `json:"password" binding:"required,max=72"`
	Fullname string `json:"fullname" binding:"required,max=100"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}
