package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geocoder89/signalhub/internal/domain/signal"
	"github.com/geocoder89/signalhub/internal/domain/user"
	"github.com/geocoder89/signalhub/internal/security"
	"github.com/shopspring/decimal"
)

// UserStore and SignalStore are the slices of the repositories seeding needs;
// both the postgres and the memory repos satisfy them.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash, fullname string, role user.Role) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

type SignalStore interface {
	Create(ctx context.Context, s signal.Signal) (signal.Signal, error)
	Count(ctx context.Context, f signal.ListFilter) (int, error)
}

// EnsureAdminUser creates the configured admin account if it does not exist
// yet. An existing account with that username is left untouched.
func EnsureAdminUser(ctx context.Context, users UserStore, username, password, fullname string) error {
	if username == "" || password == "" {
		return nil
	}

	_, err := users.GetByUsername(ctx, username)

	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := security.HashPassword(password)

	if err != nil {
		return err
	}

	_, err = users.Create(ctx, username, hash, fullname, user.RoleAdmin)

	// lost a race with another instance
	if errors.Is(err, user.ErrUsernameTaken) {
		return nil
	}

	return err
}

const demoPassword = "123456"

type demoUser struct {
	username string
	fullname string
	role     user.Role
}

var demoUsers = []demoUser{
	{"trader_user", "Trader User", user.RoleUser},
	{"pro_callmaker", "Professional Callmaker", user.RoleCallmaker},
	{"system_admin", "System Administrator", user.RoleAdmin},
}

type demoSignal struct {
	coin                string
	entry, target, stop string
	note                string
	status              signal.Status
	author              string
}

var demoSignals = []demoSignal{
	{"BTC/USDT", "42500.50", "43800.00", "41800.00", "Bullish breakout expected after consolidation", signal.StatusApproved, "pro_callmaker"},
	{"ETH/USDT", "2250.75", "2350.00", "2180.00", "Strong support at 2200, targeting resistance", signal.StatusApproved, "pro_callmaker"},
	{"ADA/USDT", "0.4850", "0.5200", "0.4650", "Potential 8% gain from current levels", signal.StatusPending, "pro_callmaker"},
	{"SOL/USDT", "98.50", "105.00", "92.00", "Breaking key resistance level", signal.StatusRejected, "pro_callmaker"},
	{"XRP/USDT", "0.6250", "0.6800", "0.5900", "Legal clarity driving momentum", signal.StatusApproved, "system_admin"},
}

// SeedDemoData creates one account per role (password "123456") and a handful
// of signals across every status. Signals are only added to an empty table,
// so restarts do not duplicate them.
func SeedDemoData(ctx context.Context, users UserStore, signals SignalStore, log *slog.Logger) error {
	hash, err := security.HashPassword(demoPassword)
	if err != nil {
		return err
	}

	ids := make(map[string]string, len(demoUsers))

	for _, du := range demoUsers {
		u, err := users.GetByUsername(ctx, du.username)
		if errors.Is(err, user.ErrNotFound) {
			u, err = users.Create(ctx, du.username, hash, du.fullname, du.role)
		}
		if err != nil {
			return fmt.Errorf("seed user %s: %w", du.username, err)
		}
		ids[du.username] = u.ID
	}

	n, err := signals.Count(ctx, signal.ListFilter{})
	if err != nil {
		return err
	}
	if n > 0 {
		log.InfoContext(ctx, "demo signals already present, skipping", "count", n)
		return nil
	}

	for _, ds := range demoSignals {
		note := ds.note
		f := signal.Fields{
			CoinName:    ds.coin,
			EntryPrice:  decimal.RequireFromString(ds.entry),
			TargetPrice: decimal.RequireFromString(ds.target),
			StopLoss:    decimal.RequireFromString(ds.stop),
			Note:        &note,
		}

		if _, err := signals.Create(ctx, signal.New(f, nil, ids[ds.author], ds.status)); err != nil {
			return fmt.Errorf("seed signal %s: %w", ds.coin, err)
		}
	}

	log.InfoContext(ctx, "demo data seeded", "users", len(demoUsers), "signals", len(demoSignals))
	return nil
}
