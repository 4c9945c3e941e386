package room

import "errors"

var (
	ErrNilMember     = errors.New("member cannot be nil")
	ErrAlreadyJoined = errors.New("session already joined this group")
)
