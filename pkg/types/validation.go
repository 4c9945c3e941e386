package types

import (
	"encoding/json"
	"regexp"
)

// Compiled once at package initialization; validation runs on every
// inbound frame.
var (
	userIDRegex      = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	classroomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// MaxStateBytes bounds a single page snapshot.
const MaxStateBytes = 1 << 20

// IsValidUserID checks identifier format shared by user and roster records.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidClassroomID checks the classroom key embedded in the connection
// address.
func IsValidClassroomID(classroomID string) bool {
	if len(classroomID) < 1 || len(classroomID) > 64 {
		return false
	}
	return classroomIDRegex.MatchString(classroomID)
}

// IsValidRole reports whether the role is one the guard can enforce.
func IsValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent
}

// ValidatePageName bounds names the same way the provisioning API does.
func ValidatePageName(name string) error {
	if len(name) < 1 || len(name) > 200 {
		return ErrInvalidPageName
	}
	return nil
}

// ValidateState ensures a snapshot blob is well-formed JSON within the
// size bound. The content itself stays opaque to this service.
func ValidateState(state json.RawMessage) error {
	if len(state) > MaxStateBytes {
		return ErrStateTooLarge
	}
	if len(state) > 0 && !json.Valid(state) {
		return ErrInvalidState
	}
	return nil
}

// ComputePermissions applies the edit-permission truth table. Teachers
// always edit; students edit only when the board allows it and is not in
// view-only mode. Page creation mirrors the same shape.
func ComputePermissions(role string, board *Board) BoardPermissions {
	if role == RoleTeacher {
		return BoardPermissions{
			CanEdit:        true,
			CanCreatePages: true,
			ViewOnlyMode:   board.ViewOnlyMode,
		}
	}
	return BoardPermissions{
		CanEdit:        board.AllowStudentEdit && !board.ViewOnlyMode,
		CanCreatePages: board.AllowStudentCreatePages && !board.ViewOnlyMode,
		ViewOnlyMode:   board.ViewOnlyMode,
	}
}
