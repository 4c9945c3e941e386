package types

import "encoding/json"

// Client-to-server message types.
const (
	ClientTypeAuth           = "auth"
	ClientTypeBoardUpdate    = "board_update"
	ClientTypePresenceUpdate = "presence_update"
	ClientTypeCreatePage     = "create_page"
	ClientTypePong           = "pong"
)

// Server-to-client message types.
const (
	ServerTypeConnected      = "connected"
	ServerTypeAuthSuccess    = "auth_success"
	ServerTypeBoardStateSync = "board_state_sync"
	ServerTypeBoardUpdate    = "board_update"
	ServerTypePresenceUpdate = "presence_update"
	ServerTypeUserJoined     = "user_joined"
	ServerTypeUserLeft       = "user_left"
	ServerTypePageChanged    = "page_changed"
	ServerTypePing           = "ping"
	ServerTypeIdleTimeout    = "idle_timeout"
	ServerTypeError          = "error"
)

// WebSocket close codes in the application range. Clients distinguish
// "retry login" from "not enrolled / board unavailable" from "idle".
const (
	CloseAuthFailure     = 4001
	CloseResourceFailure = 4003
	CloseIdleTimeout     = 4008
)

// ClientMessage is the single inbound frame shape. Fields are populated
// depending on Type; unused fields stay empty.
type ClientMessage struct {
	Type      string          `json:"type"`
	Token     string          `json:"token,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	Presence  json.RawMessage `json:"presence,omitempty"`
	PageID    string          `json:"page_id,omitempty"`
	PageName  string          `json:"page_name,omitempty"`
	FullState json.RawMessage `json:"full_state,omitempty"`
}

// ConnectedMessage acknowledges the transport before authentication.
// No board data is exposed at this point.
type ConnectedMessage struct {
	Type        string `json:"type"`
	ClassroomID string `json:"classroom_id"`
}

type AuthSuccessMessage struct {
	Type        string           `json:"type"`
	UserRole    string           `json:"user_role"`
	DisplayName string           `json:"display_name"`
	Board       BoardPermissions `json:"board"`
}

// BoardStateSyncMessage carries the full current page snapshot, pushed
// after authentication and whenever the current page changes.
type BoardStateSyncMessage struct {
	Type    string          `json:"type"`
	PageID  string          `json:"page_id"`
	Name    string          `json:"name"`
	State   json.RawMessage `json:"state"`
	Version int64           `json:"version"`
}

// BoardUpdateMessage is relayed to every group member including the
// sender; clients de-duplicate their own updates by FromUser.
type BoardUpdateMessage struct {
	Type      string          `json:"type"`
	PageID    string          `json:"page_id,omitempty"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	Presence  json.RawMessage `json:"presence,omitempty"`
	FromUser  string          `json:"from_user"`
	Timestamp int64           `json:"timestamp"`
}

type PresenceUpdateMessage struct {
	Type     string          `json:"type"`
	Presence json.RawMessage `json:"presence,omitempty"`
	FromUser string          `json:"from_user"`
}

// MembershipMessage announces user_joined / user_left to the rest of
// the group.
type MembershipMessage struct {
	Type        string `json:"type"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type PageChangedMessage struct {
	Type      string          `json:"type"`
	PageID    string          `json:"page_id"`
	Name      string          `json:"name"`
	State     json.RawMessage `json:"state"`
	Version   int64           `json:"version"`
	CreatedBy string          `json:"created_by"`
}

type PingMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type IdleTimeoutMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewError builds the typed error frame sent before a fatal close or as
// a non-fatal reply to a malformed payload.
func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: ServerTypeError, Message: message}
}
