package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Text/internal/core"
	"github.com/dkeye/Text/internal/domain"
)

// Registry is the only global mutable state: the id -> Room index. Its one
// mutex serializes every create/destroy decision, so at most one live Room
// object exists per id at any instant. The mutex is held only around map
// mutation, never during a broadcast.
//
// A room deleted here is first closed under its own lock, which makes a
// concurrent Join observe ErrRoomClosed and retry through GetOrCreate;
// the retry then recreates a fresh room instead of attaching to the dying
// one.
type Registry struct {
	mu      sync.Mutex
	rooms   map[domain.RoomID]*core.Room
	roomCfg core.RoomConfig
}

func NewRegistry(roomCfg core.RoomConfig) *Registry {
	return &Registry{
		rooms:   make(map[domain.RoomID]*core.Room),
		roomCfg: roomCfg,
	}
}

func (r *Registry) GetOrCreate(id domain.RoomID) *core.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[id]; ok {
		return room
	}
	room := core.NewRoom(id, r.roomCfg)
	r.rooms[id] = room
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room created")
	return room
}

func (r *Registry) Lookup(id domain.RoomID) (*core.Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	return room, ok
}

// RemoveIfEmpty destroys the room iff it has no sessions left. The
// emptiness check and the close are one atomic step under the room lock,
// taken inside the registry lock (lock order: registry, then room).
func (r *Registry) RemoveIfEmpty(id domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return false
	}
	if !room.CloseIfEmpty() {
		return false
	}
	delete(r.rooms, id)
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room destroyed")
	return true
}

func (r *Registry) List() []core.RoomInfo {
	r.mu.Lock()
	rooms := make([]*core.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	r.mu.Unlock()

	out := make([]core.RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, core.RoomInfo{ID: room.ID(), MemberCount: room.MemberCount()})
	}
	return out
}
