// Package session drives one connection's lifecycle: authentication,
// message dispatch, liveness monitoring and teardown.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"boardsync/internal/debounce"
	"boardsync/internal/logging"
	"boardsync/internal/room"
	"boardsync/pkg/interfaces"
	"boardsync/pkg/types"
)

// State is the session lifecycle position. Transitions only move
// forward: Opened → Authenticating → Active → Closed.
type State int32

const (
	StateOpened State = iota
	StateAuthenticating
	StateActive
	StateClosed
)

// Config carries the timing knobs for one session.
type Config struct {
	DebounceDelay     time.Duration
	HeartbeatInterval time.Duration
	IdleCheckInterval time.Duration
	IdleTimeout       time.Duration
}

// Session is the per-connection state machine. All inbound messages are
// processed in arrival order on the single Run goroutine; the liveness
// loops and debounce timer only produce outbound frames or writes, never
// touch dispatch state.
type Session struct {
	key         string
	classroomID string
	transport   interfaces.Transport
	guard       interfaces.AccessGuard
	rooms       *room.Registry
	store       interfaces.BoardStore
	saver       *debounce.Debouncer
	cfg         Config
	logger      *logrus.Entry

	mu           sync.Mutex
	state        State
	identity     *types.Identity
	board        *types.Board
	perms        types.BoardPermissions
	lastActivity time.Time
	joined       bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func New(classroomID string, transport interfaces.Transport, accessGuard interfaces.AccessGuard,
	rooms *room.Registry, store interfaces.BoardStore, cfg Config) *Session {

	key := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	logger := logging.Component("session").WithFields(logrus.Fields{
		"session_key":  key,
		"classroom_id": classroomID,
	})

	return &Session{
		key:          key,
		classroomID:  classroomID,
		transport:    transport,
		guard:        accessGuard,
		rooms:        rooms,
		store:        store,
		saver:        debounce.NewDebouncer(store, cfg.DebounceDelay, logger),
		cfg:          cfg,
		logger:       logger,
		state:        StateOpened,
		lastActivity: time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Run accepts the transport and processes inbound messages until the
// connection drops or the session is closed. It owns the read loop;
// callers run it on its own goroutine.
func (s *Session) Run() {
	defer s.teardown()

	// Acknowledge the transport. No board data is exposed yet.
	if err := s.transport.WriteJSON(types.ConnectedMessage{
		Type:        types.ServerTypeConnected,
		ClassroomID: s.classroomID,
	}); err != nil {
		s.logger.WithError(err).Debug("failed to send connected acknowledgement")
		return
	}

	for {
		data, err := s.transport.ReadMessage()
		if err != nil {
			s.logger.WithError(err).Debug("read loop ended")
			return
		}

		s.touch()
		s.dispatch(data)

		if s.currentState() == StateClosed {
			return
		}
	}
}

// SessionKey implements room.Member.
func (s *Session) SessionKey() string { return s.key }

// UserID implements room.Member. Empty until authenticated.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.UserID
}

// Deliver implements room.Member. A transport failure here means the
// connection is dead; force the full teardown off the registry's
// broadcast path.
func (s *Session) Deliver(v interface{}) {
	if err := s.transport.WriteJSON(v); err != nil {
		s.logger.WithError(err).Debug("delivery failed, closing session")
		go s.Close()
	}
}

// Close tears the session down from outside the read loop (server
// shutdown, delivery failure).
func (s *Session) Close() {
	s.teardown()
}

func (s *Session) dispatch(data []byte) {
	if !gjson.ValidBytes(data) {
		// Non-fatal: notify and keep the session open.
		s.reply(types.NewError(ErrMalformedPayload.Error()))
		return
	}
	msgType := gjson.GetBytes(data, "type").String()

	if s.currentState() != StateActive {
		if msgType != types.ClientTypeAuth {
			// Out-of-order messages are fatal, unlike parse errors.
			s.fatal(ErrNotAuthenticated.Error(), types.CloseResourceFailure)
			return
		}
		s.handleAuth(data)
		return
	}

	switch msgType {
	case types.ClientTypeBoardUpdate:
		s.handleBoardUpdate(data)
	case types.ClientTypePresenceUpdate:
		s.handlePresenceUpdate(data)
	case types.ClientTypeCreatePage:
		s.handleCreatePage(data)
	case types.ClientTypePong:
		// Activity refresh already happened in Run.
	case types.ClientTypeAuth:
		s.reply(types.NewError(ErrAlreadyActive.Error()))
	default:
		s.reply(types.NewError(ErrUnknownType.Error()))
	}
}

// handleAuth delegates credential verification and board resolution to
// the access guard, then wires the session into the classroom group.
func (s *Session) handleAuth(data []byte) {
	s.setState(StateAuthenticating)

	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.fatal(ErrMalformedPayload.Error(), types.CloseAuthFailure)
		return
	}

	identity, err := s.guard.Verify(msg.Token)
	if err != nil {
		s.logger.WithError(err).Info("authentication failed")
		s.fatal("authentication failed: "+err.Error(), types.CloseAuthFailure)
		return
	}

	board, perms, err := s.guard.Authorize(s.ctx, identity, s.classroomID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", identity.UserID).Info("authorization failed")
		s.fatal("authorization failed: "+err.Error(), types.CloseResourceFailure)
		return
	}

	s.mu.Lock()
	s.identity = identity
	s.board = board
	s.perms = perms
	s.state = StateActive
	s.mu.Unlock()

	s.logger = s.logger.WithFields(logrus.Fields{
		"user_id": identity.UserID,
		"role":    identity.Role,
	})

	s.reply(types.AuthSuccessMessage{
		Type:        types.ServerTypeAuthSuccess,
		UserRole:    identity.Role,
		DisplayName: identity.DisplayName,
		Board:       perms,
	})

	if err := s.pushCurrentPage(); err != nil {
		s.logger.WithError(err).Warn("failed to push current page snapshot")
	}

	if err := s.rooms.Join(s.classroomID, s); err != nil {
		s.logger.WithError(err).Error("failed to join classroom group")
		s.fatal("failed to join classroom", types.CloseResourceFailure)
		return
	}
	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()

	s.rooms.BroadcastExcept(s.classroomID, s.key, types.MembershipMessage{
		Type:        types.ServerTypeUserJoined,
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		Role:        identity.Role,
	})

	go s.heartbeatLoop()
	go s.idleLoop()

	s.logger.Info("session active")
}

// pushCurrentPage re-reads the board's current-page pointer and sends
// the full snapshot. The pointer is never cached past this point.
func (s *Session) pushCurrentPage() error {
	s.mu.Lock()
	pageID := s.board.CurrentPageID
	s.mu.Unlock()

	if pageID == "" {
		return ErrNoCurrentPage
	}

	page, err := s.store.GetPage(s.ctx, pageID)
	if err != nil {
		return errors.Wrap(err, "load current page")
	}

	return s.transport.WriteJSON(types.BoardStateSyncMessage{
		Type:    types.ServerTypeBoardStateSync,
		PageID:  page.ID,
		Name:    page.Name,
		State:   page.State,
		Version: page.Version,
	})
}

// handleBoardUpdate relays the edit to every group member including the
// sender, and feeds the snapshot to the persistence debouncer.
func (s *Session) handleBoardUpdate(data []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(types.NewError(ErrMalformedPayload.Error()))
		return
	}

	s.mu.Lock()
	canEdit := s.perms.CanEdit
	userID := s.identity.UserID
	currentPageID := s.board.CurrentPageID
	s.mu.Unlock()

	if !canEdit {
		s.reply(types.NewError(ErrEditNotPermitted.Error()))
		return
	}

	if err := types.ValidateState(msg.FullState); err != nil {
		s.reply(types.NewError(err.Error()))
		return
	}

	pageID := msg.PageID
	if pageID == "" {
		pageID = currentPageID
	}

	s.rooms.BroadcastAll(s.classroomID, types.BoardUpdateMessage{
		Type:      types.ServerTypeBoardUpdate,
		PageID:    pageID,
		Changes:   msg.Changes,
		Presence:  msg.Presence,
		FromUser:  userID,
		Timestamp: time.Now().UnixMilli(),
	})

	if len(msg.FullState) > 0 && pageID != "" {
		s.saver.Queue(pageID, msg.FullState, userID)
	}
}

func (s *Session) handlePresenceUpdate(data []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(types.NewError(ErrMalformedPayload.Error()))
		return
	}

	s.rooms.BroadcastExcept(s.classroomID, s.key, types.PresenceUpdateMessage{
		Type:     types.ServerTypePresenceUpdate,
		Presence: msg.Presence,
		FromUser: s.UserID(),
	})
}

// handleCreatePage creates a page, repoints the board's current-page
// pointer, and syncs the whole group onto the new page.
func (s *Session) handleCreatePage(data []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.reply(types.NewError(ErrMalformedPayload.Error()))
		return
	}

	s.mu.Lock()
	canCreate := s.perms.CanCreatePages
	boardID := s.board.ID
	userID := s.identity.UserID
	s.mu.Unlock()

	if !canCreate {
		s.reply(types.NewError(ErrPageCreateDenied.Error()))
		return
	}

	name := msg.PageName
	if name == "" {
		name = "Untitled"
	}
	if err := types.ValidatePageName(name); err != nil {
		s.reply(types.NewError(err.Error()))
		return
	}

	page, err := s.store.CreatePage(s.ctx, boardID, name, userID)
	if err != nil {
		s.logger.WithError(err).Error("page creation failed")
		s.reply(types.NewError("page creation failed"))
		return
	}

	if err := s.store.SetCurrentPage(s.ctx, boardID, page.ID); err != nil {
		s.logger.WithError(err).Error("failed to switch current page")
		s.reply(types.NewError("page creation failed"))
		return
	}

	s.mu.Lock()
	s.board.CurrentPageID = page.ID
	s.mu.Unlock()

	s.rooms.BroadcastAll(s.classroomID, types.PageChangedMessage{
		Type:      types.ServerTypePageChanged,
		PageID:    page.ID,
		Name:      page.Name,
		State:     page.State,
		Version:   page.Version,
		CreatedBy: userID,
	})
}

// heartbeatLoop sends an application-level ping every interval so
// intermediary infrastructure does not recycle an idle transport. A
// failed send means the connection is dead.
func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := s.transport.WriteJSON(types.PingMessage{
				Type:      types.ServerTypePing,
				Timestamp: time.Now().UnixMilli(),
			})
			if err != nil {
				s.logger.WithError(err).Debug("heartbeat failed, closing session")
				s.teardown()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// idleLoop closes sessions whose last activity is past the ceiling. Any
// inbound message, including pong, refreshes the clock.
func (s *Session) idleLoop() {
	ticker := time.NewTicker(s.cfg.IdleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()

			if idle > s.cfg.IdleTimeout {
				s.logger.WithField("idle", idle.String()).Info("closing idle session")
				_ = s.transport.WriteJSON(types.IdleTimeoutMessage{
					Type:    types.ServerTypeIdleTimeout,
					Message: "session closed after inactivity",
				})
				s.closeWith(types.CloseIdleTimeout, "idle timeout")
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// reply sends a frame to this session only.
func (s *Session) reply(v interface{}) {
	if err := s.transport.WriteJSON(v); err != nil {
		s.logger.WithError(err).Debug("reply failed, closing session")
		s.teardown()
	}
}

// fatal sends one typed error frame, then closes with the given code.
func (s *Session) fatal(message string, closeCode int) {
	_ = s.transport.WriteJSON(types.NewError(message))
	s.closeWith(closeCode, message)
}

func (s *Session) closeWith(code int, reason string) {
	s.closeOnce.Do(func() {
		_ = s.transport.CloseWithCode(code, reason)
		s.release()
	})
}

// teardown is the normal-close path: cancel timers, leave the group,
// announce user_left, release the transport.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		_ = s.transport.Close()
		s.release()
	})
}

// release cancels every outstanding timer before group membership is
// dropped, so no stale debounce write can land after teardown.
func (s *Session) release() {
	s.setState(StateClosed)
	s.cancel()
	s.saver.Stop()

	s.mu.Lock()
	joined := s.joined
	s.joined = false
	identity := s.identity
	s.mu.Unlock()

	if joined {
		s.rooms.Leave(s.classroomID, s.key)
		if identity != nil {
			s.rooms.BroadcastExcept(s.classroomID, s.key, types.MembershipMessage{
				Type:        types.ServerTypeUserLeft,
				UserID:      identity.UserID,
				DisplayName: identity.DisplayName,
				Role:        identity.Role,
			})
		}
	}

	s.logger.Debug("session released")
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}
