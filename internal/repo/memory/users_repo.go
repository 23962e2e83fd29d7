package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/signalhub/internal/domain/user"
	"github.com/google/uuid"
)

type UsersRepo struct {
	mu         sync.RWMutex
	items      map[string]user.User
	byUsername map[string]string
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:      make(map[string]user.User),
		byUsername: make(map[string]string),
	}
}

func (r *UsersRepo) Create(ctx context.Context, username, passwordHash, fullname string, role user.Role) (user.User, error) {
	now := time.Now().UTC()
	u := user.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Fullname:     fullname,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// usernames are case-sensitive
	if _, taken := r.byUsername[username]; taken {
		return user.User{}, user.ErrUsernameTaken
	}
	r.items[u.ID] = u
	r.byUsername[username] = u.ID

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.items[id], nil
}

// Delete removes the account; signals keep their created_by.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}
	delete(r.byUsername, u.Username)
	delete(r.items, id)
	return nil
}
