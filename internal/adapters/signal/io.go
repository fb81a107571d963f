package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Text/internal/core"
	"github.com/dkeye/Text/internal/protocol"
)

const writeWait = 5 * time.Second

func (ctl *ChatWSController) writePump(ctx context.Context, c *WsSignalConn) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump blocks until the connection dies or ctx is canceled. The read
// deadline is re-armed on every frame; clients ping on a fixed cadence, so
// a half-open peer that goes silent for two periods is reaped.
func (ctl *ChatWSController) readPump(ctx context.Context, room *core.Room, sess core.MemberSession, c *WsSignalConn) {
	sid := sess.ID()
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			if ctl.Cfg.PingPeriod > 0 {
				_ = c.conn.SetReadDeadline(time.Now().Add(2 * ctl.Cfg.PingPeriod))
			}
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleFrame(room, sess, c, data)
		}
	}
}

// handleFrame dispatches one inbound envelope. Malformed or unknown frames
// are logged and dropped; the connection stays open so protocol evolution
// never kills a session.
func (ctl *ChatWSController) handleFrame(room *core.Room, sess core.MemberSession, c *WsSignalConn, data []byte) {
	sid := sess.ID()
	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad frame")
		return
	}

	switch env.Type {
	case protocol.TypeSendMessage:
		ctl.handleSendMessage(room, sess, c, env)
	case protocol.TypeTyping:
		if ctl.limiter.Allow(sid) {
			ctl.Orch.OnTyping(room, sid)
		}
	case protocol.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown frame type")
	}
}

func (ctl *ChatWSController) sendError(c *WsSignalConn, code, message string) {
	frame, err := protocol.EncodeError(code, message)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode error event")
		return
	}
	_ = c.TrySend(frame)
}
