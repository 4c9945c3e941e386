package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"boardsync/internal/logging"
	"boardsync/internal/room"
	"boardsync/internal/session"
	"boardsync/pkg/interfaces"
	"boardsync/pkg/types"
)

// HandlerConfig carries the transport and session knobs the HTTP
// handler hands to each accepted connection.
type HandlerConfig struct {
	SendBuffer        int
	WriteTimeout      time.Duration
	HandshakeTimeout  time.Duration
	DebounceDelay     time.Duration
	HeartbeatInterval time.Duration
	IdleCheckInterval time.Duration
	IdleTimeout       time.Duration
}

// Handler upgrades HTTP requests at /ws/classrooms/{classroom_id} and
// hands each connection its own session.
type Handler struct {
	guard    interfaces.AccessGuard
	rooms    *room.Registry
	store    interfaces.BoardStore
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	logger   *logrus.Entry
}

func NewHandler(guard interfaces.AccessGuard, rooms *room.Registry, store interfaces.BoardStore, cfg HandlerConfig) *Handler {
	return &Handler{
		guard: guard,
		rooms: rooms,
		store: store,
		cfg:   cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			// Tokens authenticate connections, not origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logging.Component("ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	classroomID := classroomIDFromPath(r.URL.Path)
	if !types.IsValidClassroomID(classroomID) {
		http.Error(w, "invalid classroom id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}

	transport := NewConnection(conn, h.cfg.SendBuffer, h.cfg.WriteTimeout)
	sess := session.New(classroomID, transport, h.guard, h.rooms, h.store, session.Config{
		DebounceDelay:     h.cfg.DebounceDelay,
		HeartbeatInterval: h.cfg.HeartbeatInterval,
		IdleCheckInterval: h.cfg.IdleCheckInterval,
		IdleTimeout:       h.cfg.IdleTimeout,
	})

	h.logger.WithFields(logrus.Fields{
		"classroom_id": classroomID,
		"remote_addr":  r.RemoteAddr,
	}).Debug("connection accepted")

	go sess.Run()
}

func classroomIDFromPath(path string) string {
	const prefix = "/ws/classrooms/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	id := strings.TrimPrefix(path, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}
