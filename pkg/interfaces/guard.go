package interfaces

import (
	"context"

	"boardsync/pkg/types"
)

// AccessGuard verifies credentials and enforces classroom access. All
// checks complete before any board data is exposed.
type AccessGuard interface {
	// Verify resolves a credential to an identity and role.
	Verify(token string) (*types.Identity, error)

	// Authorize resolves the classroom's board for an identity, enforcing
	// ownership (teacher) or enrollment (student) and the board_enabled
	// flag, and computes the effective permissions.
	Authorize(ctx context.Context, identity *types.Identity, classroomID string) (*types.Board, types.BoardPermissions, error)
}
