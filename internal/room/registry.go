// Package room maintains the classroom-keyed membership of active
// sessions and relays events among them.
package room

import (
	"sync"

	"github.com/sirupsen/logrus"

	"boardsync/internal/logging"
)

// Member is one active session's handle in a group. Deliver must not
// block: implementations enqueue onto a buffered per-connection writer
// and surface transport failures on their own side. The registry holds
// references only and never drives I/O itself.
type Member interface {
	SessionKey() string
	UserID() string
	Deliver(v interface{})
}

// Registry groups active sessions by classroom key. Membership is keyed
// by session, not user: the same identity connected from two devices is
// two independent members.
type Registry struct {
	mu     sync.RWMutex
	groups map[string]map[string]Member
	logger *logrus.Entry
}

func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]map[string]Member),
		logger: logging.Component("room"),
	}
}

// Join adds a member to a classroom group. Sessions join only after
// authentication and permission checks succeed.
func (r *Registry) Join(classroomID string, member Member) error {
	if member == nil {
		return ErrNilMember
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[classroomID]
	if !ok {
		group = make(map[string]Member)
		r.groups[classroomID] = group
	}
	if _, exists := group[member.SessionKey()]; exists {
		return ErrAlreadyJoined
	}
	group[member.SessionKey()] = member

	r.logger.WithFields(logrus.Fields{
		"classroom_id": classroomID,
		"session_key":  member.SessionKey(),
		"user_id":      member.UserID(),
		"members":      len(group),
	}).Debug("member joined")

	return nil
}

// Leave removes a member. Idempotent: leaving twice or leaving a group
// that never existed is a no-op. Empty groups are dropped.
func (r *Registry) Leave(classroomID, sessionKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[classroomID]
	if !ok {
		return
	}
	if _, exists := group[sessionKey]; !exists {
		return
	}
	delete(group, sessionKey)
	if len(group) == 0 {
		delete(r.groups, classroomID)
	}
}

// BroadcastAll relays an event to every member of the group, including
// the originator. Used for board_update: the same identity on two
// devices must stay in sync, and clients de-duplicate by the embedded
// sender identifier.
func (r *Registry) BroadcastAll(classroomID string, v interface{}) {
	for _, member := range r.snapshot(classroomID) {
		member.Deliver(v)
	}
}

// BroadcastExcept relays an event to every member except the named
// session. Used for presence_update, user_joined and user_left, which a
// sender never needs echoed back.
func (r *Registry) BroadcastExcept(classroomID, senderKey string, v interface{}) {
	for _, member := range r.snapshot(classroomID) {
		if member.SessionKey() == senderKey {
			continue
		}
		member.Deliver(v)
	}
}

// MemberCount reports the current size of one group.
func (r *Registry) MemberCount(classroomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[classroomID])
}

// Stats reports totals for health reporting.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, group := range r.groups {
		total += len(group)
	}
	return map[string]int{
		"active_classrooms": len(r.groups),
		"total_members":     total,
	}
}

// snapshot copies the member list under the read lock so delivery runs
// without holding it; a member closing mid-broadcast can then re-enter
// Leave without deadlocking.
func (r *Registry) snapshot(classroomID string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group, ok := r.groups[classroomID]
	if !ok {
		return nil
	}
	members := make([]Member, 0, len(group))
	for _, member := range group {
		members = append(members, member)
	}
	return members
}
