// Package policy decides which roles may invoke which operation. The table
// is plain data: granting an operation to another role means editing
// DefaultTable, never the code paths that consult it.
package policy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/geocoder89/signalhub/internal/actor"
	"github.com/geocoder89/signalhub/internal/apperr"
	"github.com/geocoder89/signalhub/internal/domain/user"
)

type Operation string

const (
	AuthProfile        Operation = "auth.profile"
	SignalList         Operation = "signal.list"
	SignalGet          Operation = "signal.get"
	SignalListOwn      Operation = "signal.listOwn"
	SignalCountPending Operation = "signal.countPending"
	SignalListPending  Operation = "signal.listPending"
	SignalCreate       Operation = "signal.create"
	SignalTransition   Operation = "signal.transition"
	SignalEdit         Operation = "signal.edit"
	SignalDelete       Operation = "signal.delete"
)

// Operations lists every operation the system exposes behind authentication.
func Operations() []Operation {
	return []Operation{
		AuthProfile,
		SignalList, SignalGet, SignalListOwn, SignalCountPending, SignalListPending,
		SignalCreate, SignalTransition, SignalEdit, SignalDelete,
	}
}

var ErrForbidden = fmt.Errorf("%w: role not permitted for this operation", apperr.ErrForbidden)

// Ownership on edit/delete is enforced by the lifecycle manager on top of these entries.
var DefaultTable = map[Operation][]user.Role{
	AuthProfile:        {user.RoleAdmin, user.RoleCallmaker, user.RoleUser},
	SignalList:         {user.RoleAdmin, user.RoleCallmaker, user.RoleUser},
	SignalGet:          {user.RoleAdmin, user.RoleCallmaker, user.RoleUser},
	SignalListOwn:      {user.RoleAdmin, user.RoleCallmaker},
	SignalCountPending: {user.RoleAdmin, user.RoleCallmaker},
	SignalListPending:  {user.RoleAdmin},
	SignalCreate:       {user.RoleAdmin, user.RoleCallmaker},
	SignalTransition:   {user.RoleAdmin},
	SignalEdit:         {user.RoleAdmin, user.RoleCallmaker},
	SignalDelete:       {user.RoleAdmin, user.RoleCallmaker},
}

type Engine struct {
	allowed map[Operation]map[user.Role]struct{}
}

// NewEngine validates the table: every known operation needs an entry, and
// entries may only name known operations and roles.
func NewEngine(table map[Operation][]user.Role) (*Engine, error) {
	known := make(map[Operation]struct{}, len(Operations()))
	for _, op := range Operations() {
		known[op] = struct{}{}
	}

	var problems []error
	allowed := make(map[Operation]map[user.Role]struct{}, len(table))

	for op, roles := range table {
		if _, ok := known[op]; !ok {
			problems = append(problems, fmt.Errorf("unknown operation %q", op))
			continue
		}
		set := make(map[user.Role]struct{}, len(roles))
		for _, r := range roles {
			if !r.IsValid() {
				problems = append(problems, fmt.Errorf("operation %q: unknown role %q", op, r))
				continue
			}
			set[r] = struct{}{}
		}
		allowed[op] = set
	}

	for _, op := range Operations() {
		if _, ok := table[op]; !ok {
			problems = append(problems, fmt.Errorf("operation %q has no policy entry", op))
		}
	}

	if len(problems) > 0 {
		sort.Slice(problems, func(i, j int) bool { return problems[i].Error() < problems[j].Error() })
		return nil, fmt.Errorf("invalid policy table: %w", errors.Join(problems...))
	}

	return &Engine{allowed: allowed}, nil
}

// MustDefault builds the engine from DefaultTable and panics if it is inconsistent.
func MustDefault() *Engine {
	e, err := NewEngine(DefaultTable)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine) Authorize(id actor.Identity, op Operation) error {
	roles, ok := e.allowed[op]
	if !ok {
		return fmt.Errorf("%w: %s", ErrForbidden, op)
	}
	if _, ok := roles[id.Role]; !ok {
		return fmt.Errorf("%w: %s", ErrForbidden, op)
	}
	return nil
}

// Roles returns the roles allowed to invoke op, sorted for stable output.
func (e *Engine) Roles(op Operation) []user.Role {
	out := make([]user.Role, 0, len(e.allowed[op]))
	for r := range e.allowed[op] {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
