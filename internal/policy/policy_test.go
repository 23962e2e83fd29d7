package policy_test

import (
	"testing"

	"github.com/geocoder89/signalhub/internal/actor"
	"github.com/geocoder89/signalhub/internal/apperr"
	"github.com/geocoder89/signalhub/internal/domain/user"
	"github.com/geocoder89/signalhub/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTableCoversEveryOperation(t *testing.T) {
	e, err := policy.NewEngine(policy.DefaultTable)
	require.NoError(t, err)

	for _, op := range policy.Operations() {
		assert.NotEmpty(t, e.Roles(op), "operation %s grants nobody", op)
	}
}

func TestAuthorizeMatrix(t *testing.T) {
	e := policy.MustDefault()

	want := map[policy.Operation][]user.Role{
		policy.SignalCreate:      {user.RoleAdmin, user.RoleCallmaker},
		policy.SignalTransition:  {user.RoleAdmin},
		policy.SignalListPending: {user.RoleAdmin},
		policy.SignalList:        {user.RoleAdmin, user.RoleCallmaker, user.RoleUser},
	}

	for op, allowed := range want {
		for _, role := range user.Roles() {
			err := e.Authorize(actor.Identity{ID: "u", Role: role}, op)
			if contains(allowed, role) {
				assert.NoError(t, err, "%s should be allowed %s", role, op)
			} else {
				assert.ErrorIs(t, err, policy.ErrForbidden, "%s should be denied %s", role, op)
				assert.ErrorIs(t, err, apperr.ErrForbidden)
			}
		}
	}
}

func TestAuthorizeDeniesUnknownRoleAndOperation(t *testing.T) {
	e := policy.MustDefault()

	assert.ErrorIs(t, e.Authorize(actor.Identity{ID: "u", Role: "superuser"}, policy.SignalList), policy.ErrForbidden)
	assert.ErrorIs(t, e.Authorize(actor.Identity{ID: "u", Role: user.RoleAdmin}, "signal.archive"), policy.ErrForbidden)
}

func TestNewEngineRejectsIncompleteTable(t *testing.T) {
	table := map[policy.Operation][]user.Role{}
	for op, roles := range policy.DefaultTable {
		table[op] = roles
	}
	delete(table, policy.SignalDelete)

	_, err := policy.NewEngine(table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"signal.delete" has no policy entry`)
}

func TestNewEngineRejectsUnknownRole(t *testing.T) {
	table := map[policy.Operation][]user.Role{}
	for op, roles := range policy.DefaultTable {
		table[op] = roles
	}
	table[policy.SignalCreate] = []user.Role{"moderator"}

	_, err := policy.NewEngine(table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown role "moderator"`)
}

func TestNewEngineRejectsUnknownOperation(t *testing.T) {
	table := map[policy.Operation][]user.Role{"signal.archive": {user.RoleAdmin}}
	for op, roles := range policy.DefaultTable {
		table[op] = roles
	}

	_, err := policy.NewEngine(table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown operation "signal.archive"`)
}

func contains(roles []user.Role, r user.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}
