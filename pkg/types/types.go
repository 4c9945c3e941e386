package types

import (
	"encoding/json"
	"time"
)

// Roles recognized by the access guard. Any other role is rejected.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Classroom is the scoped context a board lives in. Membership is resolved
// through the roster tables and is immutable for the lifetime of a session.
type Classroom struct {
	ID           string `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	TeacherID    string `json:"teacher_id" db:"teacher_id"`
	BoardEnabled bool   `json:"board_enabled" db:"board_enabled"`
	IsActive     bool   `json:"is_active" db:"is_active"`
}

// Board is the collaborative canvas for one classroom, created lazily on
// first connection. CurrentPageID has a single writer: the page-switch
// path repoints it, everyone else re-reads it at authentication time and
// never caches it afterwards.
type Board struct {
	ID                      string `json:"id" db:"id"`
	ClassroomID             string `json:"classroom_id" db:"classroom_id"`
	AllowStudentEdit        bool   `json:"allow_student_edit" db:"allow_student_edit"`
	AllowStudentCreatePages bool   `json:"allow_student_create_pages" db:"allow_student_create_pages"`
	ViewOnlyMode            bool   `json:"view_only_mode" db:"view_only_mode"`
	CurrentPageID           string `json:"current_page_id" db:"current_page_id"`
}

// Page is one snapshot unit within a board. State is an opaque serialized
// blob; Version increments by exactly 1 per accepted write and never
// decreases.
type Page struct {
	ID            string          `json:"id" db:"id"`
	BoardID       string          `json:"board_id" db:"board_id"`
	Name          string          `json:"name" db:"name"`
	State         json.RawMessage `json:"state" db:"state"`
	Version       int64           `json:"version" db:"version"`
	LastUpdatedBy string          `json:"last_updated_by" db:"last_updated_by"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Identity is the result of credential verification.
type Identity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// BoardPermissions is the effective permission set computed at
// authentication time and reported to the client in auth_success.
type BoardPermissions struct {
	CanEdit        bool `json:"can_edit"`
	CanCreatePages bool `json:"can_create_pages"`
	ViewOnlyMode   bool `json:"view_only_mode"`
}
