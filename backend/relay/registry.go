// Package relay implements the core of the server: per-room connection
// groups, the presence registry and the per-connection session state
// machine that turns protocol events into broadcasts.
package relay

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/whiteboard-labs/whiteboard-relay/backend/model"
)

type (
	// Member is one live connection in a room group as seen by the fan-out
	// path.
	Member interface {
		// ID uniquely identifies the connection within the process.
		ID() string
		// Identity returns the display identity set by the member's join.
		// The second value is false until the member has joined.
		Identity() (string, bool)
		// Enqueue submits an outbound event to the member's send queue.
		// It must never block; false means the event was dropped.
		Enqueue(ev model.Event) bool
	}

	// Predicate selects which members of a group receive a broadcast.
	// A nil Predicate delivers to everyone, sender included.
	Predicate func(Member) bool

	// Registry tracks live room groups and each room's presence set.
	// Locking is striped: the registry mutex guards only the room map,
	// each room carries its own lock, so traffic in one room never stalls
	// another.
	Registry struct {
		logger zerolog.Logger
		mx     sync.RWMutex
		rooms  map[string]*room
	}

	room struct {
		mx      sync.RWMutex
		members map[string]Member
		// users holds joined identities with a count of the connections
		// carrying each, so two members joined under the same name keep
		// the name listed until the last of them leaves.
		users map[string]int
	}
)

// TargetedAt returns a predicate matching members whose joined identity
// equals target. Members that have not joined never match.
func TargetedAt(target string) Predicate {
	return func(m Member) bool {
		identity, joined := m.Identity()
		return joined && identity == target
	}
}

func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		logger: logger.With().Str("component", "relay").Logger(),
		rooms:  make(map[string]*room),
	}
}

// Subscribe adds a connection to a room group, creating the group if this
// is the room's first connection. Unknown room identifiers are valid and
// start an empty group.
func (rg *Registry) Subscribe(roomID string, m Member) {
	rg.mx.Lock()
	rm, ok := rg.rooms[roomID]
	if !ok {
		rm = &room{
			members: make(map[string]Member),
			users:   make(map[string]int),
		}
		rg.rooms[roomID] = rm
	}
	rm.mx.Lock()
	rg.mx.Unlock()

	rm.members[m.ID()] = m
	count := len(rm.members)
	rm.mx.Unlock()

	rg.logger.Debug().
		Str("roomID", roomID).
		Str("connID", m.ID()).
		Int("members", count).
		Msg("connection subscribed")
}

// Unsubscribe removes a connection from its room group. If the member had
// joined, its identity leaves the presence set and the remaining members
// receive the updated user list; identity removal and the broadcast happen
// in one critical section so concurrent membership changes in the room
// cannot interleave. The room entry is dropped once its group empties.
func (rg *Registry) Unsubscribe(roomID string, m Member) {
	rg.mx.Lock()
	rm, ok := rg.rooms[roomID]
	if !ok {
		rg.mx.Unlock()
		return
	}
	rm.mx.Lock()
	delete(rm.members, m.ID())
	if len(rm.members) == 0 {
		delete(rg.rooms, roomID)
	}
	rg.mx.Unlock()

	if identity, joined := m.Identity(); joined {
		if n := rm.users[identity]; n <= 1 {
			delete(rm.users, identity)
		} else {
			rm.users[identity] = n - 1
		}
		rm.push(model.UserList{Type: model.KindUserList, Users: rm.userList()}, nil, &rg.logger)
	}
	count := len(rm.members)
	rm.mx.Unlock()

	rg.logger.Debug().
		Str("roomID", roomID).
		Str("connID", m.ID()).
		Int("members", count).
		Msg("connection unsubscribed")
}

// Join records a member's display identity in the room's presence set and
// pushes the full user list to every member of the group, the joiner
// included. Snapshot and fan-out share the room's critical section, so
// user_list broadcasts observe the exact order in which joins and leaves
// were serialized.
func (rg *Registry) Join(roomID string, m Member) []string {
	rm := rg.lookup(roomID)
	if rm == nil {
		return nil
	}

	identity, joined := m.Identity()
	if !joined {
		return nil
	}

	rm.mx.Lock()
	rm.users[identity]++
	users := rm.userList()
	rm.push(model.UserList{Type: model.KindUserList, Users: users}, nil, &rg.logger)
	rm.mx.Unlock()

	rg.logger.Debug().
		Str("roomID", roomID).
		Str("identity", identity).
		Int("present", len(users)).
		Msg("identity joined")
	return users
}

// Broadcast delivers an event to every member of a room group matching the
// predicate. Delivery is best effort: a member whose send queue is full
// loses the event.
func (rg *Registry) Broadcast(roomID string, ev model.Event, pred Predicate) {
	rm := rg.lookup(roomID)
	if rm == nil {
		return
	}
	rm.mx.RLock()
	rm.push(ev, pred, &rg.logger)
	rm.mx.RUnlock()
}

// Users returns the current presence set of a room, empty for unknown
// rooms.
func (rg *Registry) Users(roomID string) []string {
	rm := rg.lookup(roomID)
	if rm == nil {
		return nil
	}
	rm.mx.RLock()
	defer rm.mx.RUnlock()
	return rm.userList()
}

// Stats reports the number of live rooms and connections.
func (rg *Registry) Stats() (rooms, conns int) {
	rg.mx.RLock()
	defer rg.mx.RUnlock()
	rooms = len(rg.rooms)
	for _, rm := range rg.rooms {
		rm.mx.RLock()
		conns += len(rm.members)
		rm.mx.RUnlock()
	}
	return rooms, conns
}

func (rg *Registry) lookup(roomID string) *room {
	rg.mx.RLock()
	defer rg.mx.RUnlock()
	return rg.rooms[roomID]
}

// push must be called with the room lock held (read lock is enough: it
// only iterates membership, and member queues are safe for concurrent
// submission).
func (rm *room) push(ev model.Event, pred Predicate, logger *zerolog.Logger) {
	for _, m := range rm.members {
		if pred != nil && !pred(m) {
			continue
		}
		if !m.Enqueue(ev) {
			logger.Debug().
				Str("connID", m.ID()).
				Str("type", ev.EventType()).
				Msg("send queue full, event dropped")
		}
	}
}

func (rm *room) userList() []string {
	users := make([]string, 0, len(rm.users))
	for identity := range rm.users {
		users = append(users, identity)
	}
	sort.Strings(users)
	return users
}
