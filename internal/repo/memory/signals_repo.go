package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/geocoder89/signalhub/internal/domain/signal"
)

// SignalsRepo mirrors the postgres repo's contract, including the version
// compare on writes, so lifecycle tests exercise the same races.
type SignalsRepo struct {
	mu    sync.RWMutex
	items map[string]signal.Signal
}

func NewSignalsRepo() *SignalsRepo {
	return &SignalsRepo{items: make(map[string]signal.Signal)}
}

func (r *SignalsRepo) Create(ctx context.Context, s signal.Signal) (signal.Signal, error) {
	if s.Version == 0 {
		s.Version = 1
	}

	r.mu.Lock()
	r.items[s.ID] = s
	r.mu.Unlock()

	return s, nil
}

func (r *SignalsRepo) GetByID(ctx context.Context, id string) (signal.Signal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[id]
	if !ok {
		return signal.Signal{}, signal.ErrNotFound
	}
	return s, nil
}

func (r *SignalsRepo) List(ctx context.Context, f signal.ListFilter) ([]signal.Signal, error) {
	r.mu.RLock()
	out := make([]signal.Signal, 0, len(r.items))
	for _, s := range r.items {
		if matches(s, f) {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if f.OldestFirst {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	return out, nil
}

func (r *SignalsRepo) Count(ctx context.Context, f signal.ListFilter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, s := range r.items {
		if matches(s, f) {
			n++
		}
	}
	return n, nil
}

func (r *SignalsRepo) UpdateStatus(ctx context.Context, id string, status signal.Status, expectedVersion int) (signal.Signal, error) {
	return r.compareAndSwap(id, expectedVersion, func(s signal.Signal) signal.Signal {
		s.Status = status
		return s
	})
}

func (r *SignalsRepo) UpdateFields(ctx context.Context, id string, f signal.Fields, expectedVersion int) (signal.Signal, error) {
	return r.compareAndSwap(id, expectedVersion, func(s signal.Signal) signal.Signal {
		return s.Apply(f)
	})
}

func (r *SignalsRepo) Delete(ctx context.Context, id string, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.items[id]
	if !ok {
		return signal.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return signal.ErrStale
	}
	delete(r.items, id)
	return nil
}

func (r *SignalsRepo) compareAndSwap(id string, expectedVersion int, mutate func(signal.Signal) signal.Signal) (signal.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.items[id]
	if !ok {
		return signal.Signal{}, signal.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return signal.Signal{}, signal.ErrStale
	}

	next := mutate(cur)
	next.Version = cur.Version + 1
	r.items[id] = next

	return next, nil
}

func matches(s signal.Signal, f signal.ListFilter) bool {
	if f.Status != nil && s.Status != *f.Status {
		return false
	}
	if f.CreatedBy != nil && (s.CreatedBy == nil || *s.CreatedBy != *f.CreatedBy) {
		return false
	}
	return true
}
