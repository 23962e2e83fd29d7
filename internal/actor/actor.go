// Package actor carries the verified identity of the caller. The value is
// produced once by the authorization guard and then handed explicitly to the
// policy engine and the signal lifecycle manager.
package actor

import "github.com/geocoder89/signalhub/internal/domain/user"

type Identity struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Role     user.Role `json:"role"`
}

func FromUser(u user.User) Identity {
	return Identity{ID: u.ID, Username: u.Username, Role: u.Role}
}

func (i Identity) IsAdmin() bool {
	return i.Role == user.RoleAdmin
}

// Owns reports whether the identity authored a record whose created_by is createdBy.
// Legacy rows without an author are owned by nobody.
func (i Identity) Owns(createdBy *string) bool {
	return createdBy != nil && i.ID != "" && *createdBy == i.ID
}
