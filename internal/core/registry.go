package core

import (
	"sync"

	"github.com/astrotv/astrotv-server/internal/metrics"
)

// Room groups the connections watching one live stream. Its ID is the stream ID.
type Room struct {
	ID int64

	mu           sync.Mutex
	members      map[*Client]struct{}
	participants map[int64]*Client
	closed       bool
}

func newRoom(id int64) *Room {
	return &Room{
		ID:           id,
		members:      make(map[*Client]struct{}),
		participants: make(map[int64]*Client),
	}
}

// JoinResult is the membership snapshot after a join.
type JoinResult struct {
	Count int
	// Evicted is the previous connection of the same user, already removed
	// from the room. The caller notifies and closes it.
	Evicted *Client
	// Rejected is set when c was itself evicted or closed; nothing changed.
	Rejected bool
}

// Registry tracks rooms and each user's live connections. Rooms are
// locked individually.
type Registry struct {
	mu    sync.Mutex
	rooms map[int64]*Room

	usersMu sync.Mutex
	users   map[int64][]*Client

	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		rooms:   make(map[int64]*Room),
		users:   make(map[int64][]*Client),
		metrics: m,
	}
}

func (r *Registry) room(id int64, create bool) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok && create {
		room = newRoom(id)
		r.rooms[id] = room
		r.metrics.RoomOpened()
	}
	return room
}

// Join registers c as userID's connection in room roomID. A previous
// connection of the same user in that room is removed, marked evicted and
// returned. Evicted or closed clients are rejected.
func (r *Registry) Join(roomID, userID int64, c *Client) JoinResult {
	var res JoinResult
	for {
		room := r.room(roomID, true)
		room.mu.Lock()
		if room.closed {
			// Lost a race with the last leave; the next lookup creates a fresh room.
			room.mu.Unlock()
			continue
		}
		if c.Evicted() || c.Closed() {
			room.mu.Unlock()
			res.Rejected = true
			return res
		}

		if prev, ok := room.participants[userID]; ok && prev != c {
			delete(room.members, prev)
			prev.roomID.CompareAndSwap(roomID, 0)
			prev.evicted.Store(true)
			res.Evicted = prev
		}
		room.members[c] = struct{}{}
		room.participants[userID] = c
		c.userID.Store(userID)
		c.roomID.Store(roomID)
		res.Count = len(room.members)
		room.mu.Unlock()
		break
	}

	r.metrics.RoomJoined()
	if res.Evicted != nil {
		r.metrics.SessionEvicted()
	}
	return res
}

// Leave removes c from its room. removed is false when c was not a member,
// in which case nothing changes.
func (r *Registry) Leave(c *Client) (roomID int64, count int, removed bool) {
	roomID = c.roomID.Swap(0)
	if roomID == 0 {
		return 0, 0, false
	}
	room := r.room(roomID, false)
	if room == nil {
		return roomID, 0, false
	}

	room.mu.Lock()
	if _, ok := room.members[c]; !ok {
		count = len(room.members)
		room.mu.Unlock()
		return roomID, count, false
	}
	delete(room.members, c)
	if uid := c.UserID(); room.participants[uid] == c {
		delete(room.participants, uid)
	}
	count = len(room.members)
	empty := count == 0
	if empty {
		room.closed = true
	}
	room.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.rooms[roomID] == room {
			delete(r.rooms, roomID)
		}
		r.mu.Unlock()
		r.metrics.RoomClosed()
	}
	return roomID, count, true
}

// MemberCount returns the number of connections in a room.
func (r *Registry) MemberCount(roomID int64) int {
	room := r.room(roomID, false)
	if room == nil {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.members)
}

// IsMember reports whether userID has a connection in the room.
func (r *Registry) IsMember(roomID, userID int64) bool {
	room := r.room(roomID, false)
	if room == nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	_, ok := room.participants[userID]
	return ok
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// withRoom runs fn under the room lock. fn must not block.
func (r *Registry) withRoom(roomID int64, fn func(room *Room)) bool {
	room := r.room(roomID, false)
	if room == nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.closed {
		return false
	}
	fn(room)
	return true
}

// Register makes c the user's most recent connection for direct delivery.
func (r *Registry) Register(userID int64, c *Client) {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	conns := removeClient(r.users[userID], c)
	r.users[userID] = append(conns, c)
}

// Unregister drops c from direct delivery.
func (r *Registry) Unregister(userID int64, c *Client) {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	conns := removeClient(r.users[userID], c)
	if len(conns) == 0 {
		delete(r.users, userID)
		return
	}
	r.users[userID] = conns
}

// UserConn returns the user's most recently registered open connection.
func (r *Registry) UserConn(userID int64) *Client {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	conns := r.users[userID]
	for i := len(conns) - 1; i >= 0; i-- {
		if !conns[i].Closed() {
			return conns[i]
		}
	}
	return nil
}

// Connections returns a snapshot of every registered connection.
func (r *Registry) Connections() []*Client {
	r.usersMu.Lock()
	defer r.usersMu.Unlock()

	var conns []*Client
	for _, list := range r.users {
		conns = append(conns, list...)
	}
	return conns
}

func removeClient(conns []*Client, c *Client) []*Client {
	for i, existing := range conns {
		if existing == c {
			return append(conns[:i:i], conns[i+1:]...)
		}
	}
	return conns
}
