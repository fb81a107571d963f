package signal

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Text/internal/core"
	"github.com/dkeye/Text/internal/domain"
	"github.com/dkeye/Text/internal/protocol"
)

func (ctl *ChatWSController) handleSendMessage(
	room *core.Room,
	sess core.MemberSession,
	conn *WsSignalConn,
	env protocol.Envelope,
) {
	sid := sess.ID()
	p, err := env.SendMessage()
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad send-message payload")
		ctl.sendError(conn, "bad_payload", "malformed send-message payload")
		return
	}

	_, err = ctl.Orch.OnMessage(room, sid, p.Kind, p.Content)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrPayloadTooLarge):
		// Rejected, not disconnected. Only the sender hears about it.
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Int("bytes", len(p.Content)).Msg("oversized message rejected")
		ctl.sendError(conn, "payload_too_large", "message exceeds the size limit")
	case errors.Is(err, domain.ErrUnknownKind):
		ctl.sendError(conn, "bad_kind", "message kind must be text or image")
	case errors.Is(err, core.ErrNotMember):
		// Late frame from a session already removed. Drop it.
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("frame from removed session dropped")
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("send-message failed")
	}
}
