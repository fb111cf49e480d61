// This file defines CallRoom, the ephemeral two-party signaling session
// keyed by appointment id. The coordinator is a signaling plane only:
// it relays opaque offer/answer/ICE payloads and never performs media
// relay.
package domain

import (
	"fmt"
	"time"

	"telecare/errors"
)

type CallState string

const (
	CallWaiting CallState = "waiting"
	CallActive  CallState = "active"
	CallEnded   CallState = "ended"
)

// CallRoom holds at most two distinct identities. ENDED is terminal; a
// later join with the same appointment id creates a brand-new room.
type CallRoom struct {
	AppointmentID string
	ParticipantA  Identity
	ParticipantB  Identity
	State         CallState
	LastActivity  time.Time
}

func NewCallRoom(appointmentID string, first Identity, at time.Time) *CallRoom {
	return &CallRoom{
		AppointmentID: appointmentID,
		ParticipantA:  first,
		State:         CallWaiting,
		LastActivity:  at,
	}
}

// Join admits an identity into the room. Re-joining from another tab is
// a no-op. A third distinct identity is rejected with a capacity error
// and no state change. It returns true when the room just became active,
// which is the moment the first participant must be told a peer joined.
func (r *CallRoom) Join(id Identity, at time.Time) (becameActive bool, err error) {
	if r.State == CallEnded {
		return false, fmt.Errorf("%w: appointment=%s", errors.ErrUnknownRoom, r.AppointmentID)
	}
	r.LastActivity = at
	if id == r.ParticipantA || id == r.ParticipantB {
		return false, nil
	}
	if r.State == CallWaiting && r.ParticipantB.IsZero() {
		r.ParticipantB = id
		r.State = CallActive
		return true, nil
	}
	return false, fmt.Errorf("%w: appointment=%s", errors.ErrCapacityExceeded, r.AppointmentID)
}

// HasParticipant reports whether the identity is currently joined.
func (r *CallRoom) HasParticipant(id Identity) bool {
	return id == r.ParticipantA || (!r.ParticipantB.IsZero() && id == r.ParticipantB)
}

// Other returns the counterpart of a current participant, if any.
func (r *CallRoom) Other(me Identity) (Identity, bool) {
	switch {
	case me == r.ParticipantA && !r.ParticipantB.IsZero():
		return r.ParticipantB, true
	case me == r.ParticipantB:
		return r.ParticipantA, true
	}
	return Identity{}, false
}

// Participants returns the currently joined identities.
func (r *CallRoom) Participants() []Identity {
	if r.ParticipantB.IsZero() {
		return []Identity{r.ParticipantA}
	}
	return []Identity{r.ParticipantA, r.ParticipantB}
}

// IdleSince reports whether the room saw no activity for the duration.
func (r *CallRoom) IdleSince(now time.Time, timeout time.Duration) bool {
	return now.Sub(r.LastActivity) >= timeout
}
