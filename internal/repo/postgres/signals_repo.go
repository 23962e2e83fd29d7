package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/signalhub/internal/domain/signal"
	"github.com/geocoder89/signalhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const signalColumns = `id, coin_name, entry_price, target_price, stop_loss, note, chart_image, status, created_by, created_at, version`

type SignalsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewSignalsRepo(pool *pgxpool.Pool, prom *observability.Prom) *SignalsRepo {
	return &SignalsRepo{pool: pool, prom: prom}
}

func (r *SignalsRepo) Create(ctx context.Context, s signal.Signal) (signal.Signal, error) {
	if s.Version == 0 {
		s.Version = 1
	}

	err := r.prom.ObserveDB("signals.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO signals (`+signalColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			s.ID, s.CoinName, s.EntryPrice, s.TargetPrice, s.StopLoss, s.Note, s.ChartImage,
			string(s.Status), s.CreatedBy, s.CreatedAt, s.Version,
		)
		return err
	})
	if err != nil {
		return signal.Signal{}, err
	}

	return s, nil
}

func (r *SignalsRepo) GetByID(ctx context.Context, id string) (signal.Signal, error) {
	var s signal.Signal

	err := r.prom.ObserveDB("signals.get_by_id", func() error {
		row := r.pool.QueryRow(ctx, `SELECT `+signalColumns+` FROM signals WHERE id = $1`, id)
		var err error
		s, err = scanSignal(row)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return signal.Signal{}, signal.ErrNotFound
		}
		return signal.Signal{}, err
	}

	return s, nil
}

func (r *SignalsRepo) List(ctx context.Context, f signal.ListFilter) ([]signal.Signal, error) {
	where, args := filterClause(f)

	order := " ORDER BY created_at DESC, id ASC"
	if f.OldestFirst {
		order = " ORDER BY created_at ASC, id ASC"
	}

	out := make([]signal.Signal, 0)

	err := r.prom.ObserveDB("signals.list", func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+signalColumns+` FROM signals`+where+order, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanSignal(rows)
			if err != nil {
				return err
			}
			out = append(out, s)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *SignalsRepo) Count(ctx context.Context, f signal.ListFilter) (int, error) {
	where, args := filterClause(f)

	var n int
	err := r.prom.ObserveDB("signals.count", func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signals`+where, args...).Scan(&n)
	})

	return n, err
}

// UpdateStatus and UpdateFields only write when the row still carries
// expectedVersion; a lost race surfaces as signal.ErrStale.
func (r *SignalsRepo) UpdateStatus(ctx context.Context, id string, status signal.Status, expectedVersion int) (signal.Signal, error) {
	return r.updateReturning(ctx, "signals.update_status",
		`UPDATE signals
			SET status = $3,
				version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+signalColumns,
		id, expectedVersion, string(status),
	)
}

func (r *SignalsRepo) UpdateFields(ctx context.Context, id string, f signal.Fields, expectedVersion int) (signal.Signal, error) {
	return r.updateReturning(ctx, "signals.update_fields",
		`UPDATE signals
			SET coin_name = $3,
				entry_price = $4,
				target_price = $5,
				stop_loss = $6,
				note = $7,
				version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING `+signalColumns,
		id, expectedVersion, f.CoinName, f.EntryPrice, f.TargetPrice, f.StopLoss, f.Note,
	)
}

func (r *SignalsRepo) Delete(ctx context.Context, id string, expectedVersion int) error {
	var affected int64

	err := r.prom.ObserveDB("signals.delete", func() error {
		tag, err := r.pool.Exec(ctx, `DELETE FROM signals WHERE id = $1 AND version = $2`, id, expectedVersion)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}

	if affected == 0 {
		return r.missOrStale(ctx, id)
	}

	return nil
}

func (r *SignalsRepo) updateReturning(ctx context.Context, op, query string, args ...any) (signal.Signal, error) {
	var s signal.Signal

	err := r.prom.ObserveDB(op, func() error {
		var err error
		s, err = scanSignal(r.pool.QueryRow(ctx, query, args...))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return signal.Signal{}, r.missOrStale(ctx, args[0].(string))
		}
		return signal.Signal{}, err
	}

	return s, nil
}

// missOrStale explains a write that matched no row.
func (r *SignalsRepo) missOrStale(ctx context.Context, id string) error {
	var exists bool

	err := r.prom.ObserveDB("signals.exists", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM signals WHERE id = $1)`, id).Scan(&exists)
	})
	if err != nil {
		return err
	}

	if !exists {
		return signal.ErrNotFound
	}
	return signal.ErrStale
}

func filterClause(f signal.ListFilter) (string, []any) {
	var conds []string
	var args []any

	argsPosition := 1

	if f.Status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", argsPosition))
		args = append(args, string(*f.Status))
		argsPosition++
	}

	if f.CreatedBy != nil {
		conds = append(conds, fmt.Sprintf("created_by = $%d", argsPosition))
		args = append(args, *f.CreatedBy)
	}

	if len(conds) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanSignal(row pgx.Row) (signal.Signal, error) {
	var s signal.Signal
	var status string

	err := row.Scan(
		&s.ID,
		&s.CoinName,
		&s.EntryPrice,
		&s.TargetPrice,
		&s.StopLoss,
		&s.Note,
		&s.ChartImage,
		&status,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.Version,
	)
	if err != nil {
		return signal.Signal{}, err
	}

	s.Status = signal.Status(status)
	if !s.Status.IsValid() {
		return signal.Signal{}, fmt.Errorf("signal %s has unknown stored status %q", s.ID, status)
	}

	return s, nil
}
