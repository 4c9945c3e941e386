// Package guard verifies credentials and enforces classroom access
// before a session is allowed anywhere near board data.
package guard

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"boardsync/internal/logging"
	"boardsync/pkg/interfaces"
	"boardsync/pkg/types"
)

// boardClaims is the credential payload: subject is the user ID, role
// and name are issued by the identity provider.
type boardClaims struct {
	Role        string `json:"role"`
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AccessGuard implements interfaces.AccessGuard against a BoardStore
// and an HMAC-signed token scheme.
type AccessGuard struct {
	store     interfaces.BoardStore
	jwtSecret []byte
	logger    *logrus.Entry
}

func NewAccessGuard(store interfaces.BoardStore, jwtSecret string) *AccessGuard {
	return &AccessGuard{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		logger:    logging.Component("guard"),
	}
}

// Verify parses and validates the credential, resolving identity and role.
func (g *AccessGuard) Verify(tokenString string) (*types.Identity, error) {
	if tokenString == "" {
		return nil, ErrInvalidCredential
	}

	token, err := jwt.ParseWithClaims(tokenString, &boardClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return g.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		g.logger.WithError(err).Warn("credential verification failed")
		return nil, ErrInvalidCredential
	}

	claims, ok := token.Claims.(*boardClaims)
	if !ok {
		return nil, ErrInvalidCredential
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return &types.Identity{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
	}, nil
}

// Authorize resolves the classroom and its board for an identity. Every
// check completes before any board data is returned: classroom exists
// and is active, the role matches the roster, and the board is enabled.
func (g *AccessGuard) Authorize(ctx context.Context, identity *types.Identity, classroomID string) (*types.Board, types.BoardPermissions, error) {
	var none types.BoardPermissions

	classroom, err := g.store.GetClassroom(ctx, classroomID)
	if err != nil {
		return nil, none, err
	}
	if !classroom.IsActive {
		return nil, none, ErrClassroomInactive
	}

	switch identity.Role {
	case types.RoleTeacher:
		owns, err := g.store.IsTeacherOf(ctx, classroomID, identity.UserID)
		if err != nil {
			return nil, none, errors.Wrap(err, "ownership lookup")
		}
		if !owns {
			return nil, none, ErrNotAuthorized
		}
	case types.RoleStudent:
		enrolled, err := g.store.IsEnrolled(ctx, classroomID, identity.UserID)
		if err != nil {
			return nil, none, errors.Wrap(err, "enrollment lookup")
		}
		if !enrolled {
			return nil, none, ErrNotAuthorized
		}
	default:
		return nil, none, ErrInvalidRole
	}

	if !classroom.BoardEnabled {
		return nil, none, ErrBoardDisabled
	}

	board, err := g.store.EnsureBoard(ctx, classroomID)
	if err != nil {
		return nil, none, errors.Wrap(err, "resolve board")
	}

	perms := types.ComputePermissions(identity.Role, board)

	g.logger.WithFields(logrus.Fields{
		"classroom_id": classroomID,
		"user_id":      identity.UserID,
		"role":         identity.Role,
		"can_edit":     perms.CanEdit,
	}).Debug("access granted")

	return board, perms, nil
}
