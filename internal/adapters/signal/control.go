package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Text/internal/protocol"
)

// handlePing answers in place; pings are liveness only and never reach
// the room.
func (ctl *ChatWSController) handlePing(conn *WsSignalConn) {
	frame, err := protocol.EncodePong()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode pong")
		return
	}
	_ = conn.TrySend(frame)
}
