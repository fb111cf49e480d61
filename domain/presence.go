package domain

import "time"

// PresenceRecord is derived state: online iff the registry holds at
// least one live connection for the identity.
type PresenceRecord struct {
	Identity   Identity  `json:"identity"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}
