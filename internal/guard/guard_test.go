package guard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"boardsync/internal/store"
	"boardsync/pkg/database"
	"boardsync/pkg/interfaces"
	"boardsync/pkg/types"
)

const testSecret = "guard-test-secret"

func signToken(t *testing.T, secret, userID, role, name string) string {
	t.Helper()

	claims := boardClaims{
		Role:        role,
		DisplayName: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newTestGuard(t *testing.T) (*AccessGuard, *store.Manager) {
	t.Helper()

	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "guard_test.db"))
	m, err := store.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return NewAccessGuard(m, testSecret), m
}

func seedClassroom(t *testing.T, m *store.Manager, classroom *types.Classroom, students []string) {
	t.Helper()
	require.NoError(t, m.CreateClassroom(context.Background(), classroom, students))
}

func TestVerify(t *testing.T) {
	g, _ := newTestGuard(t)

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, testSecret, "teacher1", types.RoleTeacher, "Ms. Reed")
		identity, err := g.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "teacher1", identity.UserID)
		require.Equal(t, types.RoleTeacher, identity.Role)
		require.Equal(t, "Ms. Reed", identity.DisplayName)
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := g.Verify("")
		require.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", "teacher1", types.RoleTeacher, "")
		_, err := g.Verify(token)
		require.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := boardClaims{
			Role: types.RoleTeacher,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "teacher1",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = g.Verify(token)
		require.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("missing subject", func(t *testing.T) {
		token := signToken(t, testSecret, "", types.RoleTeacher, "")
		_, err := g.Verify(token)
		require.ErrorIs(t, err, ErrMissingSubject)
	})
}

func TestAuthorizeRoles(t *testing.T) {
	g, m := newTestGuard(t)
	seedClassroom(t, m, &types.Classroom{
		ID: "c1", Name: "Algebra", TeacherID: "teacher1",
		BoardEnabled: true, IsActive: true,
	}, []string{"s1"})

	ctx := context.Background()

	t.Run("owning teacher", func(t *testing.T) {
		board, perms, err := g.Authorize(ctx, &types.Identity{UserID: "teacher1", Role: types.RoleTeacher}, "c1")
		require.NoError(t, err)
		require.NotNil(t, board)
		require.True(t, perms.CanEdit)
		require.True(t, perms.CanCreatePages)
	})

	t.Run("non-owning teacher", func(t *testing.T) {
		_, _, err := g.Authorize(ctx, &types.Identity{UserID: "teacher2", Role: types.RoleTeacher}, "c1")
		require.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("enrolled student", func(t *testing.T) {
		board, perms, err := g.Authorize(ctx, &types.Identity{UserID: "s1", Role: types.RoleStudent}, "c1")
		require.NoError(t, err)
		require.NotNil(t, board)
		// Lazily created boards allow student edits by default.
		require.True(t, perms.CanEdit)
		require.False(t, perms.CanCreatePages)
	})

	t.Run("unenrolled student", func(t *testing.T) {
		_, _, err := g.Authorize(ctx, &types.Identity{UserID: "s9", Role: types.RoleStudent}, "c1")
		require.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("unknown role", func(t *testing.T) {
		_, _, err := g.Authorize(ctx, &types.Identity{UserID: "admin1", Role: "admin"}, "c1")
		require.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("classroom not found", func(t *testing.T) {
		_, _, err := g.Authorize(ctx, &types.Identity{UserID: "teacher1", Role: types.RoleTeacher}, "missing")
		require.ErrorIs(t, err, interfaces.ErrClassroomNotFound)
	})
}

func TestAuthorizeBoardDisabled(t *testing.T) {
	g, m := newTestGuard(t)
	seedClassroom(t, m, &types.Classroom{
		ID: "c2", Name: "History", TeacherID: "teacher1",
		BoardEnabled: false, IsActive: true,
	}, nil)

	_, _, err := g.Authorize(context.Background(), &types.Identity{UserID: "teacher1", Role: types.RoleTeacher}, "c2")
	require.ErrorIs(t, err, ErrBoardDisabled)
}

func TestAuthorizeInactiveClassroom(t *testing.T) {
	g, m := newTestGuard(t)
	seedClassroom(t, m, &types.Classroom{
		ID: "c3", Name: "Chemistry", TeacherID: "teacher1",
		BoardEnabled: true, IsActive: false,
	}, nil)

	_, _, err := g.Authorize(context.Background(), &types.Identity{UserID: "teacher1", Role: types.RoleTeacher}, "c3")
	require.ErrorIs(t, err, ErrClassroomInactive)
}
