package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/signalhub/internal/domain/user"
	"github.com/geocoder89/signalhub/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, username, password_hash, fullname, role, created_at, updated_at`

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
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

	err := r.prom.ObserveDB("users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			u.ID, u.Username, u.PasswordHash, u.Fullname, string(u.Role), u.CreatedAt, u.UpdatedAt,
		)
		return err
	})
	if err != nil {
		// the unique index on username is the authority for duplicates
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return user.User{}, user.ErrUsernameTaken
		}
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_username", `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UsersRepo) getOne(ctx context.Context, op, query string, arg any) (user.User, error) {
	var u user.User
	var role string

	err := r.prom.ObserveDB(op, func() error {
		return r.pool.QueryRow(ctx, query, arg).Scan(
			&u.ID,
			&u.Username,
			&u.PasswordHash,
			&u.Fullname,
			&role,
			&u.CreatedAt,
			&u.UpdatedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}

	u.Role = user.Role(role)
	if !u.Role.IsValid() {
		return user.User{}, fmt.Errorf("user %s has unknown stored role %q", u.ID, role)
	}

	return u, nil
}
