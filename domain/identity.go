// Package domain contains core concepts of the realtime coordinator.
// This file defines Identity, the (role, id) pair used as a key everywhere.
// The coordinator never creates or deletes identities, only observes
// their connections.
package domain

import (
	"fmt"
	"strings"

	"telecare/errors"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleAdmin:
		return true
	}
	return false
}

// Identity identifies a participant. It is immutable and supplied by the
// external auth provider at connection time.
type Identity struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

func NewIdentity(role Role, id string) (Identity, error) {
	if !role.Valid() || id == "" || strings.ContainsRune(id, '|') {
		return Identity{}, fmt.Errorf("%w: role=%q id=%q", errors.ErrInvalidIdentity, role, id)
	}
	return Identity{Role: role, ID: id}, nil
}

// Key returns the stable map key for this identity.
func (i Identity) Key() string {
	return string(i.Role) + ":" + i.ID
}

func (i Identity) String() string {
	return i.Key()
}

func (i Identity) IsZero() bool {
	return i.Role == "" && i.ID == ""
}

// ParseIdentityKey is the inverse of Key.
func ParseIdentityKey(key string) (Identity, error) {
	role, id, ok := strings.Cut(key, ":")
	if !ok {
		return Identity{}, fmt.Errorf("%w: key=%q", errors.ErrInvalidIdentity, key)
	}
	return NewIdentity(Role(role), id)
}
