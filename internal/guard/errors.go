package guard

import "errors"

// Authentication failures close the session with the auth close code;
// authorization failures with the resource close code.
var (
	ErrInvalidCredential = errors.New("invalid or expired credential")
	ErrMissingSubject    = errors.New("credential missing subject claim")
	ErrInvalidRole       = errors.New("role must be 'teacher' or 'student'")
	ErrNotAuthorized     = errors.New("user does not hold the required role for this classroom")
	ErrClassroomInactive = errors.New("classroom is not active")
	ErrBoardDisabled     = errors.New("board is not enabled for this classroom")
)
