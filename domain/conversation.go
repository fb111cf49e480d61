package domain

import (
	"fmt"
	"strings"

	"telecare/errors"
)

// ConversationID identifies the message channel between exactly two
// identities. It is derived deterministically from the unordered pair,
// so both sides always compute the same id.
type ConversationID string

// ConversationBetween derives the id from the two participant keys,
// smallest first. Exactly one conversation id exists per unordered pair.
func ConversationBetween(a, b Identity) ConversationID {
	ka, kb := a.Key(), b.Key()
	if ka > kb {
		ka, kb = kb, ka
	}
	return ConversationID(ka + "|" + kb)
}

// Participants recovers the two identities encoded in the id.
func (c ConversationID) Participants() (Identity, Identity, error) {
	left, right, ok := strings.Cut(string(c), "|")
	if !ok {
		return Identity{}, Identity{}, fmt.Errorf("%w: conversation=%q", errors.ErrUnknownTarget, c)
	}
	a, err := ParseIdentityKey(left)
	if err != nil {
		return Identity{}, Identity{}, err
	}
	b, err := ParseIdentityKey(right)
	if err != nil {
		return Identity{}, Identity{}, err
	}
	return a, b, nil
}

// HasParticipant reports whether the identity is one of the two parties.
func (c ConversationID) HasParticipant(id Identity) bool {
	a, b, err := c.Participants()
	if err != nil {
		return false
	}
	return a == id || b == id
}

// Other returns the counterpart of the given participant.
func (c ConversationID) Other(me Identity) (Identity, error) {
	a, b, err := c.Participants()
	if err != nil {
		return Identity{}, err
	}
	switch me {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return Identity{}, fmt.Errorf("%w: %s in conversation %s", errors.ErrNotAParticipant, me, c)
}
