// Package signal is the websocket transport adapter. It owns connection
// lifecycle (upgrade, pumps, close) and frame dispatch; all room state
// lives behind the orchestrator. New transports add an adapter like this
// one, not another copy of the join/broadcast/leave logic.
package signal

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Text/internal/app"
	"github.com/dkeye/Text/internal/config"
	"github.com/dkeye/Text/internal/core"
	"github.com/dkeye/Text/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type ChatWSController struct {
	Orch    *app.Orchestrator
	Cfg     *config.Config
	limiter *TypingRateLimiter
}

func NewChatWSController(orch *app.Orchestrator, cfg *config.Config) *ChatWSController {
	return &ChatWSController{
		Orch:    orch,
		Cfg:     cfg,
		limiter: NewTypingRateLimiter(cfg.TypingLimit, cfg.TypingWindow),
	}
}

// WsSignalConn adapts a websocket to core.SignalConnection. TrySend never
// blocks: a full send buffer means the peer is too slow and the frame is
// refused, which the core treats as a dead transport.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleChat serves one participant connection end to end: handshake
// validation, upgrade, join, pumps, and the leave on the way out.
// Join parameters ride on the query string; a connection missing roomId
// or username is rejected before any session exists.
func (ctl *ChatWSController) HandleChat(ctx context.Context, c *gin.Context) {
	roomID := domain.RoomID(c.Query("roomId"))
	username := c.Query("username")
	isHost, _ := strconv.ParseBool(c.Query("isHost"))

	if roomID == "" {
		c.String(http.StatusBadRequest, "roomId required")
		return
	}
	user, err := domain.NewUser(username, isHost)
	if err != nil {
		c.String(http.StatusBadRequest, "invalid username: %v", err)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.Cfg.ReadLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Cfg.SendBuffer),
	}
	sess := core.NewMemberSession(user, conn)
	sid := sess.ID()

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Str("user", user.Username).Str("ct", c.GetString("client_token")).Msg("new WS connection")

	room := ctl.Orch.Join(sess, roomID)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	ctl.readPump(ctx, room, sess, conn)

	cancel()
	ctl.Orch.Leave(room, sess)
	ctl.limiter.Forget(sid)
}
