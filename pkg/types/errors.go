package types

import "errors"

var (
	ErrInvalidUserID      = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidClassroomID = errors.New("classroom ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidPageName    = errors.New("page name must be 1-200 characters")
	ErrInvalidRole        = errors.New("role must be 'teacher' or 'student'")
	ErrInvalidState       = errors.New("state must be valid JSON")
	ErrStateTooLarge      = errors.New("state snapshot exceeds 1MB limit")
)
