package match

import (
	"errors"

	"chainreaction/domain/board"
)

// ValidationError rejects an intent without touching the match. Reason is a
// stable code that transports hand back to the offending client.
type ValidationError struct {
	Reason string
	msg    string
	cause  error
}

func (e *ValidationError) Error() string { return e.msg }
func (e *ValidationError) Unwrap() error { return e.cause }

var (
	ErrOutOfBounds    = &ValidationError{Reason: "out_of_bounds", msg: "cell out of bounds", cause: board.ErrOutOfBounds}
	ErrNotYourTurn    = &ValidationError{Reason: "not_your_turn", msg: "not your turn"}
	ErrMatchNotActive = &ValidationError{Reason: "match_not_active", msg: "match is not in progress"}
	ErrRoomFull       = &ValidationError{Reason: "room_full", msg: "room is full"}
	ErrAlreadyJoined  = &ValidationError{Reason: "already_joined", msg: "player already joined"}
	ErrCellOwned      = &ValidationError{Reason: "cell_owned", msg: "cell belongs to another player"}
)

// IsValidation reports whether err is a rule violation rather than a fault.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Reason extracts the rejection code from err, or "" when err is not a
// validation error.
func Reason(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}
