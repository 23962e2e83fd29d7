// Package signals owns the signal state machine: who may create, see,
// review, edit and delete a signal, and in which status it ends up.
package signals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geocoder89/signalhub/internal/actor"
	"github.com/geocoder89/signalhub/internal/apperr"
	"github.com/geocoder89/signalhub/internal/domain/signal"
	"github.com/geocoder89/signalhub/internal/domain/user"
	"github.com/geocoder89/signalhub/internal/observability"
	"github.com/geocoder89/signalhub/internal/policy"
)

// maxAttempts bounds the read-validate-write loop under write contention.
const maxAttempts = 3

var ErrNotOwner = fmt.Errorf("%w: only the signal owner may do this", apperr.ErrForbidden)

// Store is the persistence collaborator. Writes carry the version that was
// read; implementations must apply them only if it still matches.
type Store interface {
	Create(ctx context.Context, s signal.Signal) (signal.Signal, error)
	GetByID(ctx context.Context, id string) (signal.Signal, error)
	List(ctx context.Context, f signal.ListFilter) ([]signal.Signal, error)
	Count(ctx context.Context, f signal.ListFilter) (int, error)
	UpdateStatus(ctx context.Context, id string, status signal.Status, expectedVersion int) (signal.Signal, error)
	UpdateFields(ctx context.Context, id string, f signal.Fields, expectedVersion int) (signal.Signal, error)
	Delete(ctx context.Context, id string, expectedVersion int) error
}

type Options struct {
	// LockReviewed forbids owner edits once a signal left pending.
	LockReviewed bool
}

type Service struct {
	store  Store
	policy *policy.Engine
	events observability.Recorder
	log    *slog.Logger
	opts   Options
}

func NewService(store Store, engine *policy.Engine, events observability.Recorder, log *slog.Logger, opts Options) *Service {
	if events == nil {
		events = observability.NopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, policy: engine, events: events, log: log, opts: opts}
}

// Create stores a new signal. Admin signals are published immediately,
// callmaker signals wait for review.
func (s *Service) Create(ctx context.Context, id actor.Identity, f signal.Fields, chartImage *string) (out signal.Signal, err error) {
	defer func() { s.events.SignalOperation(observability.OpCreate, observability.Result(err)) }()

	if err = s.policy.Authorize(id, policy.SignalCreate); err != nil {
		return signal.Signal{}, err
	}
	if err = f.Validate(); err != nil {
		return signal.Signal{}, err
	}

	status := signal.StatusPending
	if id.IsAdmin() {
		status = signal.StatusApproved
	}

	out, err = s.store.Create(ctx, signal.New(f, chartImage, id.ID, status))
	if err != nil {
		s.log.ErrorContext(ctx, "signal create failed", "user_id", id.ID, "err", err)
		return signal.Signal{}, err
	}

	s.log.InfoContext(ctx, "signal created", "signal_id", out.ID, "user_id", id.ID, "status", out.Status)
	return out, nil
}

// List returns the signals visible to the caller: users see approved ones,
// callmakers their own, admins everything. status only narrows that scope.
func (s *Service) List(ctx context.Context, id actor.Identity, status *signal.Status) ([]signal.Signal, error) {
	if err := s.policy.Authorize(id, policy.SignalList); err != nil {
		return nil, err
	}

	f, err := scopeFor(id)
	if err != nil {
		return nil, err
	}

	if status != nil {
		if f.Status != nil && *f.Status != *status {
			return []signal.Signal{}, nil
		}
		f.Status = status
	}

	return s.store.List(ctx, f)
}

// Get returns one signal if it is inside the caller's list scope. Signals
// outside the scope are reported as missing.
func (s *Service) Get(ctx context.Context, id actor.Identity, signalID string) (signal.Signal, error) {
	if err := s.policy.Authorize(id, policy.SignalGet); err != nil {
		return signal.Signal{}, err
	}

	f, err := scopeFor(id)
	if err != nil {
		return signal.Signal{}, err
	}

	sig, err := s.store.GetByID(ctx, signalID)
	if err != nil {
		return signal.Signal{}, err
	}

	if f.Status != nil && sig.Status != *f.Status {
		return signal.Signal{}, signal.ErrNotFound
	}
	if f.CreatedBy != nil && !id.Owns(sig.CreatedBy) {
		return signal.Signal{}, signal.ErrNotFound
	}

	return sig, nil
}

func (s *Service) ListOwn(ctx context.Context, id actor.Identity) ([]signal.Signal, error) {
	if err := s.policy.Authorize(id, policy.SignalListOwn); err != nil {
		return nil, err
	}

	return s.store.List(ctx, signal.ListFilter{CreatedBy: &id.ID})
}

// ListPending is the moderation queue, oldest first.
func (s *Service) ListPending(ctx context.Context, id actor.Identity) ([]signal.Signal, error) {
	if err := s.policy.Authorize(id, policy.SignalListPending); err != nil {
		return nil, err
	}

	pending := signal.StatusPending
	return s.store.List(ctx, signal.ListFilter{Status: &pending, OldestFirst: true})
}

// CountPending counts the caller's own signals still waiting for review.
func (s *Service) CountPending(ctx context.Context, id actor.Identity) (int, error) {
	if err := s.policy.Authorize(id, policy.SignalCountPending); err != nil {
		return 0, err
	}

	pending := signal.StatusPending
	return s.store.Count(ctx, signal.ListFilter{Status: &pending, CreatedBy: &id.ID})
}

// Transition moves a signal to next. Only the status changes. Requesting the
// current status is a no-op; leaving a reviewed status is refused.
func (s *Service) Transition(ctx context.Context, id actor.Identity, signalID string, next signal.Status) (out signal.Signal, err error) {
	op := observability.OpTransition
	switch next {
	case signal.StatusApproved:
		op = observability.OpApprove
	case signal.StatusRejected:
		op = observability.OpReject
	}
	defer func() { s.events.SignalOperation(op, observability.Result(err)) }()

	if err = s.policy.Authorize(id, policy.SignalTransition); err != nil {
		return signal.Signal{}, err
	}
	if !next.IsValid() {
		return signal.Signal{}, fmt.Errorf("%w: status must be one of pending, approved, rejected", apperr.ErrValidation)
	}

	err = s.retry(ctx, func() error {
		cur, err := s.store.GetByID(ctx, signalID)
		if err != nil {
			return err
		}

		if cur.Status == next {
			out = cur
			return nil
		}
		if !cur.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", signal.ErrInvalidTransition, cur.Status, next)
		}

		out, err = s.store.UpdateStatus(ctx, signalID, next, cur.Version)
		return err
	})
	if err != nil {
		return signal.Signal{}, err
	}

	s.log.InfoContext(ctx, "signal status changed", "signal_id", signalID, "status", out.Status, "by", id.ID)
	return out, nil
}

// Update overwrites the author-controlled fields. Owner only, admins included.
func (s *Service) Update(ctx context.Context, id actor.Identity, signalID string, f signal.Fields) (out signal.Signal, err error) {
	defer func() { s.events.SignalOperation(observability.OpEdit, observability.Result(err)) }()

	if err = s.policy.Authorize(id, policy.SignalEdit); err != nil {
		return signal.Signal{}, err
	}
	if err = f.Validate(); err != nil {
		return signal.Signal{}, err
	}

	err = s.retry(ctx, func() error {
		cur, err := s.store.GetByID(ctx, signalID)
		if err != nil {
			return err
		}

		if !id.Owns(cur.CreatedBy) {
			return ErrNotOwner
		}
		if s.opts.LockReviewed && cur.Status.Reviewed() {
			return signal.ErrReviewLocked
		}

		out, err = s.store.UpdateFields(ctx, signalID, f, cur.Version)
		return err
	})
	if err != nil {
		return signal.Signal{}, err
	}

	s.log.InfoContext(ctx, "signal updated", "signal_id", signalID, "by", id.ID)
	return out, nil
}

// Delete removes a signal permanently. Allowed for its owner or an admin.
func (s *Service) Delete(ctx context.Context, id actor.Identity, signalID string) (err error) {
	defer func() { s.events.SignalOperation(observability.OpDelete, observability.Result(err)) }()

	if err = s.policy.Authorize(id, policy.SignalDelete); err != nil {
		return err
	}

	err = s.retry(ctx, func() error {
		cur, err := s.store.GetByID(ctx, signalID)
		if err != nil {
			return err
		}

		if !id.Owns(cur.CreatedBy) && !id.IsAdmin() {
			return ErrNotOwner
		}

		return s.store.Delete(ctx, signalID, cur.Version)
	})
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "signal deleted", "signal_id", signalID, "by", id.ID)
	return nil
}

// retry reruns a read-validate-write step while it loses version races.
func (s *Service) retry(ctx context.Context, step func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = step()
		if !errors.Is(err, signal.ErrStale) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.DebugContext(ctx, "signal write lost a version race", "attempt", attempt)
	}
	return err
}

func scopeFor(id actor.Identity) (signal.ListFilter, error) {
	switch id.Role {
	case user.RoleAdmin:
		return signal.ListFilter{}, nil
	case user.RoleCallmaker:
		owner := id.ID
		return signal.ListFilter{CreatedBy: &owner}, nil
	case user.RoleUser:
		approved := signal.StatusApproved
		return signal.ListFilter{Status: &approved}, nil
	default:
		return signal.ListFilter{}, policy.ErrForbidden
	}
}
