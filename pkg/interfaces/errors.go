package interfaces

import "errors"

// Store-level sentinel errors shared across implementations.
var (
	ErrClassroomNotFound = errors.New("classroom not found")
	ErrClassroomExists   = errors.New("classroom already exists")
	ErrBoardNotFound     = errors.New("board not found")
	ErrPageNotFound      = errors.New("page not found")
)
