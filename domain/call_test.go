package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"telecare/errors"
)

func TestCallRoom_SecondJoinActivates(t *testing.T) {
	req := require.New(t)
	patient := Identity{Role: RolePatient, ID: "alice"}
	provider := Identity{Role: RoleProvider, ID: "bob"}
	now := time.Now().UTC()

	// Given a room created by the first participant
	room := NewCallRoom("apt-42", patient, now)
	req.Equal(CallWaiting, room.State)

	// When the second distinct identity joins
	becameActive, err := room.Join(provider, now)

	// Then the room becomes active exactly once
	req.NoError(err)
	req.True(becameActive)
	req.Equal(CallActive, room.State)
}

func TestCallRoom_RejoinIsNoOp(t *testing.T) {
	req := require.New(t)
	patient := Identity{Role: RolePatient, ID: "alice"}
	now := time.Now().UTC()
	room := NewCallRoom("apt-42", patient, now)

	// When the same identity joins again from another tab
	becameActive, err := room.Join(patient, now.Add(time.Second))

	req.NoError(err)
	req.False(becameActive)
	req.Equal(CallWaiting, room.State)
}

func TestCallRoom_ThirdJoinRejected(t *testing.T) {
	req := require.New(t)
	patient := Identity{Role: RolePatient, ID: "alice"}
	provider := Identity{Role: RoleProvider, ID: "bob"}
	admin := Identity{Role: RoleAdmin, ID: "eve"}
	now := time.Now().UTC()
	room := NewCallRoom("apt-42", patient, now)
	_, err := room.Join(provider, now)
	req.NoError(err)

	// When a third distinct identity tries to join
	_, err = room.Join(admin, now)

	// Then it is rejected and the room is unchanged
	req.ErrorIs(err, errors.ErrCapacityExceeded)
	req.Equal(CallActive, room.State)
	req.Equal([]Identity{patient, provider}, room.Participants())
}

func TestCallRoom_Other(t *testing.T) {
	req := require.New(t)
	patient := Identity{Role: RolePatient, ID: "alice"}
	provider := Identity{Role: RoleProvider, ID: "bob"}
	room := NewCallRoom("apt-42", patient, time.Now())

	// Given a waiting room, there is no counterpart yet
	_, ok := room.Other(patient)
	req.False(ok)

	_, err := room.Join(provider, time.Now())
	req.NoError(err)

	other, ok := room.Other(patient)
	req.True(ok)
	req.Equal(provider, other)
}

func TestCallRoom_IdleSince(t *testing.T) {
	req := require.New(t)
	start := time.Now().UTC()
	room := NewCallRoom("apt-42", Identity{Role: RolePatient, ID: "alice"}, start)

	req.False(room.IdleSince(start.Add(time.Minute), 5*time.Minute))
	req.True(room.IdleSince(start.Add(6*time.Minute), 5*time.Minute))
}
