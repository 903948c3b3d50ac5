package forum

import (
	"sort"
	"strings"

	"github.com/npezzotti/cryptoforum/internal/types"
)

// Membership tracks the rooms one user has joined and the room they are
// currently viewing. Pinned rooms are always joined.
type Membership struct {
	joined  map[string]struct{}
	pinned  map[string]struct{}
	current string
}

func NewMembership(pinned ...string) *Membership {
	m := &Membership{
		joined: make(map[string]struct{}),
		pinned: make(map[string]struct{}),
	}
	for _, id := range pinned {
		m.pinned[id] = struct{}{}
		m.joined[id] = struct{}{}
	}
	return m
}

func (m *Membership) IsPinned(roomId string) bool {
	_, ok := m.pinned[roomId]
	return ok
}

func (m *Membership) IsJoined(roomId string) bool {
	_, ok := m.joined[roomId]
	return ok
}

func (m *Membership) Current() string {
	return m.current
}

// Join adds the room and makes it current. It reports whether the room
// was newly joined.
func (m *Membership) Join(roomId string) bool {
	_, already := m.joined[roomId]
	m.joined[roomId] = struct{}{}
	m.current = roomId
	return !already
}

// Leave removes a non-pinned room. Leaving a pinned or unknown room is a
// no-op and reports false.
func (m *Membership) Leave(roomId string) bool {
	if m.IsPinned(roomId) || !m.IsJoined(roomId) {
		return false
	}

	delete(m.joined, roomId)
	if m.current == roomId {
		m.current = ""
	}
	return true
}

// Exit returns to the room list without leaving the current room.
func (m *Membership) Exit() {
	m.current = ""
}

// Joined returns the joined room ids in lexical order.
func (m *Membership) Joined() []string {
	ids := make([]string, 0, len(m.joined))
	for id := range m.joined {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// restore replaces the joined set, re-adding pinned rooms.
func (m *Membership) restore(ids []string) {
	m.joined = make(map[string]struct{}, len(ids)+len(m.pinned))
	for _, id := range ids {
		m.joined[id] = struct{}{}
	}
	for id := range m.pinned {
		m.joined[id] = struct{}{}
	}
}

// UnreadTracker keeps per-room unread counts for one user.
type UnreadTracker struct {
	rooms map[string]types.UnreadState
}

func NewUnreadTracker() *UnreadTracker {
	return &UnreadTracker{rooms: make(map[string]types.UnreadState)}
}

func (u *UnreadTracker) Get(roomId string) types.UnreadState {
	return u.rooms[roomId]
}

// Reset zeroes the count and keeps the last update time.
func (u *UnreadTracker) Reset(roomId string) {
	state, ok := u.rooms[roomId]
	if !ok {
		return
	}
	state.Count = 0
	u.rooms[roomId] = state
}

func (u *UnreadTracker) Increment(roomId string, now int64) types.UnreadState {
	state := u.rooms[roomId]
	state.Count++
	state.LastUpdate = now
	u.rooms[roomId] = state
	return state
}

func (u *UnreadTracker) Snapshot() map[string]types.UnreadState {
	out := make(map[string]types.UnreadState, len(u.rooms))
	for id, state := range u.rooms {
		out[id] = state
	}
	return out
}

func (u *UnreadTracker) restore(rooms map[string]types.UnreadState) {
	u.rooms = make(map[string]types.UnreadState, len(rooms))
	for id, state := range rooms {
		if state.Count < 0 {
			state.Count = 0
		}
		u.rooms[id] = state
	}
}

// session is the per-user view state.
type session struct {
	username   string
	membership *Membership
	unread     *UnreadTracker
}

// incrementUnread counts an event in roomId for this user unless they
// have not joined it or are looking at it.
func (s *session) incrementUnread(roomId string, now int64) (types.UnreadState, bool) {
	if !s.membership.IsJoined(roomId) || s.membership.Current() == roomId {
		return types.UnreadState{}, false
	}
	return s.unread.Increment(roomId, now), true
}

// SortRooms orders a room list: joined rooms first by most recent
// activity, then pinned rooms, then by name; rooms not joined follow by
// name.
func SortRooms(views []types.RoomView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.Joined != b.Joined {
			return a.Joined
		}
		if a.Joined {
			if a.Unread.LastUpdate != b.Unread.LastUpdate {
				return a.Unread.LastUpdate > b.Unread.LastUpdate
			}
			if a.Pinned != b.Pinned {
				return a.Pinned
			}
		}
		return strings.Compare(a.Name, b.Name) < 0
	})
}
