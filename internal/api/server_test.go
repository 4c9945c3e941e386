package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardsync/internal/room"
	"boardsync/internal/store"
	"boardsync/pkg/database"
)

func newTestServer(t *testing.T) (*Server, *room.Registry) {
	t.Helper()

	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "api_test.db"))
	m, err := store.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	rooms := room.NewRegistry()
	return NewServer(m, rooms), rooms
}

func postClassroom(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/classrooms", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestCreateClassroom(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postClassroom(t, s, `{
		"id": "math-101",
		"name": "Algebra",
		"teacher_id": "teacher-1",
		"student_ids": ["s1", "s2", "s1"]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ClassroomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "math-101", resp.Classroom.ID)
	assert.True(t, resp.Classroom.BoardEnabled)
	assert.True(t, resp.Classroom.IsActive)
}

func TestCreateClassroomDuplicate(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"id": "math-101", "name": "Algebra", "teacher_id": "teacher-1", "student_ids": ["s1"]}`
	require.Equal(t, http.StatusCreated, postClassroom(t, s, body).Code)
	assert.Equal(t, http.StatusConflict, postClassroom(t, s, body).Code)
}

func TestCreateClassroomValidation(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{nope`},
		{"missing id", `{"name": "Algebra", "teacher_id": "t1"}`},
		{"invalid id", `{"id": "has space", "name": "Algebra", "teacher_id": "t1"}`},
		{"missing name", `{"id": "math-101", "teacher_id": "t1"}`},
		{"missing teacher", `{"id": "math-101", "name": "Algebra"}`},
		{"invalid student", `{"id": "math-101", "name": "Algebra", "teacher_id": "t1", "student_ids": ["bad id"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, postClassroom(t, s, tt.body).Code)
		})
	}
}

func TestCreateClassroomBoardDisabled(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postClassroom(t, s, `{
		"id": "math-101", "name": "Algebra", "teacher_id": "t1",
		"board_enabled": false
	}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp ClassroomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Classroom.BoardEnabled)
}

type countMember struct{ key, user string }

func (m countMember) SessionKey() string    { return m.key }
func (m countMember) UserID() string        { return m.user }
func (m countMember) Deliver(v interface{}) {}

func TestGetClassroom(t *testing.T) {
	s, rooms := newTestServer(t)

	require.Equal(t, http.StatusCreated, postClassroom(t, s,
		`{"id": "math-101", "name": "Algebra", "teacher_id": "t1", "student_ids": ["s1"]}`).Code)

	require.NoError(t, rooms.Join("math-101", countMember{key: "k1", user: "t1"}))
	require.NoError(t, rooms.Join("math-101", countMember{key: "k2", user: "s1"}))

	req := httptest.NewRequest(http.MethodGet, "/api/classrooms/math-101", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClassroomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Algebra", resp.Classroom.Name)
	assert.Equal(t, 2, resp.MemberCount)
}

func TestGetClassroomNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/classrooms/missing", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Database)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/classrooms", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/classrooms", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
