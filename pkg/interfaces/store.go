package interfaces

import (
	"context"
	"encoding/json"

	"boardsync/pkg/types"
)

// BoardStore is the durable classroom/board/page store. It exposes read,
// create-if-absent, and versioned-update operations; every write is a
// self-contained read-modify-write of one row, atomic only at that
// granularity.
type BoardStore interface {
	// CreateClassroom inserts a classroom with its student roster.
	CreateClassroom(ctx context.Context, classroom *types.Classroom, studentIDs []string) error

	// GetClassroom returns ErrClassroomNotFound when absent.
	GetClassroom(ctx context.Context, classroomID string) (*types.Classroom, error)

	// IsTeacherOf answers the ownership half of the roster lookup.
	IsTeacherOf(ctx context.Context, classroomID, userID string) (bool, error)

	// IsEnrolled answers the enrollment half of the roster lookup.
	IsEnrolled(ctx context.Context, classroomID, userID string) (bool, error)

	// EnsureBoard returns the classroom's board, creating it together
	// with an initial page on first connection.
	EnsureBoard(ctx context.Context, classroomID string) (*types.Board, error)

	// GetPage returns ErrPageNotFound when absent.
	GetPage(ctx context.Context, pageID string) (*types.Page, error)

	// CreatePage adds a page to a board.
	CreatePage(ctx context.Context, boardID, name, createdBy string) (*types.Page, error)

	// SetCurrentPage repoints the board's current-page pointer. Single
	// writer: only the page-switch path calls this.
	SetCurrentPage(ctx context.Context, boardID, pageID string) error

	// UpdatePageState replaces the page snapshot, records the writer and
	// increments the version by exactly 1, returning the new version.
	UpdatePageState(ctx context.Context, pageID string, state json.RawMessage, updatedBy string) (int64, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
