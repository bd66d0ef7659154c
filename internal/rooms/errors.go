package rooms

import "errors"

// Failure taxonomy for coordinator operations. NotFound and Unauthorized must
// surface to end users with the same generic message so callers cannot tell
// which one failed.
var (
	ErrValidation        = errors.New("invalid input")
	ErrRoomNotFound      = errors.New("room not found or expired")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrRoomFull          = errors.New("room is full")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrNicknameConflict  = errors.New("nickname already in use")
	ErrSessionNotFound   = errors.New("session not found")
)

// GenericAuthMessage is the single client-facing text for both ErrRoomNotFound
// and ErrIncorrectPassword.
const GenericAuthMessage = "room not found or incorrect password"
