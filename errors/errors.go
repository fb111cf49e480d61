package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrInvalidPayload   = fmt.Errorf("invalid event payload")
	ErrInvalidIdentity  = fmt.Errorf("invalid identity")
	ErrInvalidKind      = fmt.Errorf("invalid message kind")
	ErrCapacityExceeded = fmt.Errorf("call room already has two participants")
	ErrNotAParticipant  = fmt.Errorf("identity is not a participant")
	ErrNotSender        = fmt.Errorf("only the original sender may delete a message")
	ErrUnknownRoom      = fmt.Errorf("no call room for this appointment")
	ErrUnknownMessage   = fmt.Errorf("no message with this id")
	ErrUnknownTarget    = fmt.Errorf("no record matching this id")
	ErrStoreUnavailable = fmt.Errorf("conversation store unavailable")
)

// Wire error codes pushed back to the initiating connection as an
// `error` event. Rejections never fan out to other participants.
const (
	CodeCapacityExceeded   = "capacity-exceeded"
	CodeNotAParticipant    = "not-a-participant"
	CodeUnknownTarget      = "unknown-target"
	CodeAdapterUnavailable = "adapter-unavailable"
	CodeBadRequest         = "bad-request"
	CodeInternal           = "internal"
)

// WireCode maps an internal error to the code carried by the outbound
// error event. Unrecognized errors are reported as internal so that no
// storage or runtime detail leaks to clients.
func WireCode(err error) string {
	switch {
	case stderrors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case stderrors.Is(err, ErrNotAParticipant), stderrors.Is(err, ErrNotSender):
		return CodeNotAParticipant
	case stderrors.Is(err, ErrUnknownRoom), stderrors.Is(err, ErrUnknownMessage), stderrors.Is(err, ErrUnknownTarget):
		return CodeUnknownTarget
	case stderrors.Is(err, ErrStoreUnavailable):
		return CodeAdapterUnavailable
	case stderrors.Is(err, ErrInvalidPayload), stderrors.Is(err, ErrInvalidIdentity), stderrors.Is(err, ErrInvalidKind):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
