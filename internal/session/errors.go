package session

import "errors"

var (
	ErrNotAuthenticated = errors.New("authentication required before any other message")
	ErrAlreadyActive    = errors.New("session is already authenticated")
	ErrUnknownType      = errors.New("unknown message type")
	ErrMalformedPayload = errors.New("malformed message payload")
	ErrEditNotPermitted = errors.New("board editing is not permitted for this user")
	ErrPageCreateDenied = errors.New("page creation is not permitted for this user")
	ErrNoCurrentPage    = errors.New("board has no current page")
)
