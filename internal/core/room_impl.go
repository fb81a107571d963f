package core

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Text/internal/domain"
	"github.com/dkeye/Text/internal/protocol"
)

var (
	ErrRoomClosed      = errors.New("room closed")
	ErrNotMember       = errors.New("sender is not a room member")
	ErrPayloadTooLarge = errors.New("message payload too large")
)

// RoomConfig bounds a room's memory footprint.
type RoomConfig struct {
	// HistoryLimit caps the message ring; the oldest entry is evicted past it.
	HistoryLimit int
	// MaxMessageBytes caps the content of a single message.
	MaxMessageBytes int
}

// Room is a threadsafe in-memory broadcast domain. One mutex guards the
// session set and the history together, so every join snapshot and every
// broadcast happens at a single sequence point: messages are fanned out in
// exactly the order they were appended, and a joiner's history snapshot is
// prefix-consistent with the live stream it attaches to.
// A Room never closes adapter-owned transports.
type Room struct {
	id  domain.RoomID
	cfg RoomConfig

	mu      sync.RWMutex
	closed  bool
	bySID   map[SessionID]MemberSession
	order   []SessionID
	history []domain.Message

	router Router
}

func NewRoom(id domain.RoomID, cfg RoomConfig) *Room {
	return &Room{
		id:    id,
		cfg:   cfg,
		bySID: make(map[SessionID]MemberSession),
	}
}

func (r *Room) ID() domain.RoomID { return r.id }

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

// MembersSnapshot projects the session set to identity data only, in join
// order. Recomputed on demand, never stored, so it cannot drift.
func (r *Room) MembersSnapshot() []domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked()
}

// HistorySnapshot copies the current message backlog in append order.
func (r *Room) HistorySnapshot() []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Message, len(r.history))
	copy(out, r.history)
	return out
}

// Join adds the session and, still under the room lock, delivers the
// roster and history snapshots to the newcomer and announces it to the
// rest. Holding the lock across the sends is safe because TrySend never
// blocks. Fails with ErrRoomClosed when racing the room's destruction;
// the caller re-resolves the room through the registry and retries.
func (r *Room) Join(ms MemberSession) (PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return PublishResult{}, ErrRoomClosed
	}
	sid := ms.ID()
	r.bySID[sid] = ms
	r.order = append(r.order, sid)

	res := PublishResult{}
	roster := r.rosterLocked()
	histCopy := make([]domain.Message, len(r.history))
	copy(histCopy, r.history)

	if frame, err := protocol.EncodeUsers(roster); err == nil {
		res.merge(fanOut([]MemberSession{ms}, "", frame))
	} else {
		log.Error().Err(err).Str("module", "core.room").Msg("encode users")
	}
	if frame, err := protocol.EncodeMessages(histCopy); err == nil {
		res.merge(fanOut([]MemberSession{ms}, "", frame))
	} else {
		log.Error().Err(err).Str("module", "core.room").Msg("encode messages")
	}

	others := r.membersLocked()
	if frame, err := protocol.EncodeUserJoined(*ms.User()); err == nil {
		res.merge(r.router.SendToExcept(others, sid, frame))
	} else {
		log.Error().Err(err).Str("module", "core.room").Msg("encode user-joined")
	}
	if frame, err := protocol.EncodeUsers(roster); err == nil {
		res.merge(r.router.SendToExcept(others, sid, frame))
	}

	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Str("user", ms.User().Username).Int("members", len(r.bySID)).Msg("member joined")
	return res, nil
}

// Leave removes the session and announces the departure to whoever is
// left. Idempotent: a session already gone reports removed=false and
// nothing is broadcast twice. An empty room broadcasts to nobody.
func (r *Room) Leave(sid SessionID) (removed bool, res PublishResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return false, PublishResult{}
	}
	delete(r.bySID, sid)
	for i, id := range r.order {
		if id == sid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	remaining := r.membersLocked()
	if frame, err := protocol.EncodeUserLeft(*ms.User()); err == nil {
		res.merge(r.router.SendTo(remaining, frame))
	} else {
		log.Error().Err(err).Str("module", "core.room").Msg("encode user-left")
	}
	if frame, err := protocol.EncodeUsers(r.rosterLocked()); err == nil {
		res.merge(r.router.SendTo(remaining, frame))
	}

	log.Info().Str("module", "core.room").Str("room", string(r.id)).Str("sid", string(sid)).Int("members", len(r.bySID)).Msg("member left")
	return true, res
}

// AppendMessage validates, stamps, appends and fans out one message to all
// members, sender included, at a single sequence point. Validation errors
// go back to the caller; nothing is appended or broadcast for them.
func (r *Room) AppendMessage(sid SessionID, kind domain.MessageKind, content string) (domain.Message, PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ms, ok := r.bySID[sid]
	if !ok {
		// A frame may trail a just-removed session. Drop, don't process.
		return domain.Message{}, PublishResult{}, ErrNotMember
	}
	if r.cfg.MaxMessageBytes > 0 && len(content) > r.cfg.MaxMessageBytes {
		return domain.Message{}, PublishResult{}, ErrPayloadTooLarge
	}
	msg, err := domain.NewMessage(ms.User().Username, kind, content)
	if err != nil {
		return domain.Message{}, PublishResult{}, err
	}

	if r.cfg.HistoryLimit > 0 && len(r.history) >= r.cfg.HistoryLimit {
		n := copy(r.history, r.history[1:])
		r.history = r.history[:n]
	}
	r.history = append(r.history, msg)

	res := PublishResult{}
	if frame, err := protocol.EncodeMessage(msg); err == nil {
		res = r.router.SendTo(r.membersLocked(), frame)
	} else {
		log.Error().Err(err).Str("module", "core.room").Msg("encode message")
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("sender", msg.Sender).Str("kind", string(kind)).Int("sent_to", res.SentTo).Msg("message appended")
	return msg, res, nil
}

// BroadcastTyping emits the sender's username to everyone except the
// sender. Typing from a non-member is silently dropped.
func (r *Room) BroadcastTyping(sid SessionID) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.bySID[sid]
	if !ok {
		return PublishResult{}
	}
	frame, err := protocol.EncodeTyping(ms.User().Username)
	if err != nil {
		log.Error().Err(err).Str("module", "core.room").Msg("encode typing")
		return PublishResult{}
	}
	return r.router.SendToExcept(r.membersLocked(), sid, frame)
}

// CloseIfEmpty marks the room dead when no sessions remain, so a join
// racing the destruction fails instead of attaching to a dying room.
// Called by the registry with the registry lock held; lock order is
// always registry then room.
func (r *Room) CloseIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.bySID) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *Room) membersLocked() []MemberSession {
	out := make([]MemberSession, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, r.bySID[sid])
	}
	return out
}

func (r *Room) rosterLocked() []domain.User {
	out := make([]domain.User, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, *r.bySID[sid].User())
	}
	return out
}
