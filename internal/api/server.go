// Package api is the HTTP surface: classroom provisioning, classroom
// inspection and health. No synchronization logic lives here.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"boardsync/internal/logging"
	"boardsync/internal/room"
	"boardsync/pkg/interfaces"
	"boardsync/pkg/types"
)

type Server struct {
	store  interfaces.BoardStore
	rooms  *room.Registry
	router *http.ServeMux
	logger *logrus.Entry
}

func NewServer(store interfaces.BoardStore, rooms *room.Registry) *Server {
	s := &Server{
		store:  store,
		rooms:  rooms,
		router: http.NewServeMux(),
		logger: logging.Component("api"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/api/classrooms", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleClassrooms))))
	s.router.Handle("/api/classrooms/", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleClassroomByID))))
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleClassrooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createClassroom(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleClassroomByID(w http.ResponseWriter, r *http.Request) {
	classroomID := strings.TrimPrefix(r.URL.Path, "/api/classrooms/")
	if classroomID == "" || strings.Contains(classroomID, "/") {
		s.sendError(w, "Classroom ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getClassroom(w, r, classroomID)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type CreateClassroomRequest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	TeacherID    string   `json:"teacher_id"`
	StudentIDs   []string `json:"student_ids"`
	BoardEnabled *bool    `json:"board_enabled,omitempty"`
}

type ClassroomResponse struct {
	Classroom   *types.Classroom `json:"classroom"`
	MemberCount int              `json:"member_count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) createClassroom(w http.ResponseWriter, r *http.Request) {
	var req CreateClassroomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if !types.IsValidClassroomID(req.ID) {
		s.sendError(w, "Invalid classroom ID", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		s.sendError(w, "Classroom name is required", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(req.TeacherID) {
		s.sendError(w, "Invalid teacher ID", http.StatusBadRequest)
		return
	}
	students := dedupe(req.StudentIDs)
	for _, id := range students {
		if !types.IsValidUserID(id) {
			s.sendError(w, fmt.Sprintf("Invalid student ID %q", id), http.StatusBadRequest)
			return
		}
	}

	boardEnabled := true
	if req.BoardEnabled != nil {
		boardEnabled = *req.BoardEnabled
	}

	classroom := &types.Classroom{
		ID:           req.ID,
		Name:         req.Name,
		TeacherID:    req.TeacherID,
		BoardEnabled: boardEnabled,
		IsActive:     true,
	}

	if err := s.store.CreateClassroom(r.Context(), classroom, students); err != nil {
		if errors.Is(err, interfaces.ErrClassroomExists) {
			s.sendError(w, "Classroom already exists", http.StatusConflict)
			return
		}
		s.logger.WithError(err).Error("classroom creation failed")
		s.sendError(w, "Failed to create classroom", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ClassroomResponse{Classroom: classroom})
}

func (s *Server) getClassroom(w http.ResponseWriter, r *http.Request, classroomID string) {
	classroom, err := s.store.GetClassroom(r.Context(), classroomID)
	if err != nil {
		if errors.Is(err, interfaces.ErrClassroomNotFound) {
			s.sendError(w, "Classroom not found", http.StatusNotFound)
			return
		}
		s.logger.WithError(err).Error("classroom lookup failed")
		s.sendError(w, "Failed to get classroom", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(ClassroomResponse{
		Classroom:   classroom,
		MemberCount: s.rooms.MemberCount(classroomID),
	})
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.rooms.Stats(),
	})
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
