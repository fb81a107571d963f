package app

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Text/internal/core"
	"github.com/dkeye/Text/internal/domain"
)

// Orchestrator composes Registry and Room for the join/message/leave
// flows and owns the one policy decision the rooms delegate: a recipient
// whose transport refused a frame is dead and gets kicked through the
// ordinary leave path.
type Orchestrator struct {
	Registry *Registry
	// Policy decides the fate of backpressured recipients; nil kicks.
	Policy Policy
}

// Join attaches the session to the room, retrying when it loses the race
// against the room's last-leave destruction.
func (o *Orchestrator) Join(ms core.MemberSession, roomID domain.RoomID) *core.Room {
	for {
		room := o.Registry.GetOrCreate(roomID)
		res, err := room.Join(ms)
		if errors.Is(err, core.ErrRoomClosed) {
			log.Debug().Str("module", "app.orch").Str("room", string(roomID)).Msg("join raced room destruction, retrying")
			continue
		}
		o.reap(room, res)
		return room
	}
}

// Leave removes the session, destroys the room if it emptied, and closes
// the session's transport. Safe to call more than once per session.
func (o *Orchestrator) Leave(room *core.Room, ms core.MemberSession) {
	removed, res := room.Leave(ms.ID())
	ms.Signal().Close()
	if !removed {
		return
	}
	o.reap(room, res)
	o.Registry.RemoveIfEmpty(room.ID())
}

// OnMessage appends and fans out one chat message. Validation errors are
// returned for delivery to the sender only.
func (o *Orchestrator) OnMessage(room *core.Room, sid core.SessionID, kind domain.MessageKind, content string) (domain.Message, error) {
	msg, res, err := room.AppendMessage(sid, kind, content)
	if err != nil {
		return domain.Message{}, err
	}
	o.reap(room, res)
	return msg, nil
}

func (o *Orchestrator) OnTyping(room *core.Room, sid core.SessionID) {
	o.reap(room, room.BroadcastTyping(sid))
}

// reap settles every recipient a fan-out found dead, per policy. Each
// kick is itself a leave and may surface more dead recipients; membership
// strictly shrinks, so this terminates.
func (o *Orchestrator) reap(room *core.Room, res core.PublishResult) {
	for _, ms := range res.Dropped {
		action := KickMember
		if o.Policy != nil {
			action = o.Policy.OnBackPressure(room, ms)
		}
		switch action {
		case KickMember:
			log.Warn().Str("module", "app.orch").Str("room", string(room.ID())).Str("sid", string(ms.ID())).Msg("kicking dead recipient")
			o.Leave(room, ms)
		case DropFrame, NoAction:
			// Best-effort delivery: the frame is lost, the member stays.
		}
	}
}
