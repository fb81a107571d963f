// Package client owns one logical participant's connection lifecycle:
// dialing, keepalive pings, and the reconnect state machine. UI layers
// consume decoded frames from Events and push outbound frames through
// Send; they never touch timers or sockets.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Text/internal/domain"
	"github.com/dkeye/Text/internal/protocol"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateGivingUp
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateGivingUp:
		return "giving-up"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	// ErrGaveUp is terminal: the retry budget is spent and the failure is
	// the user's problem now (reload, check network).
	ErrGaveUp  = errors.New("reconnect attempts exhausted")
	ErrNotOpen = errors.New("connection not open")
)

// Transport is one live connection. The supervisor owns it and closes it.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame([]byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

type Config struct {
	// Backoff before retry n is min(BaseDelay * 2^(n-1), CapDelay),
	// n counted from 1.
	BaseDelay   time.Duration
	CapDelay    time.Duration
	MaxAttempts int

	PingInterval time.Duration
	PongTimeout  time.Duration

	// OnState observes every transition (state, reconnect attempt).
	OnState func(State, int)
}

func (c Config) withDefaults() Config {
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.CapDelay == 0 {
		c.CapDelay = 10 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 10 * time.Second
	}
	return c
}

// BackoffDelay is the delay before retry attempt n (from 1): exponential
// with a ceiling, not jittered.
func BackoffDelay(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.CapDelay {
			return cfg.CapDelay
		}
	}
	if d > cfg.CapDelay {
		return cfg.CapDelay
	}
	return d
}

type Supervisor struct {
	dialer Dialer
	cfg    Config

	events   chan protocol.Envelope
	outbound chan []byte

	stopOnce sync.Once
	stopCh   chan struct{}

	mu      sync.Mutex
	state   State
	attempt int
}

func NewSupervisor(dialer Dialer, cfg Config) *Supervisor {
	return &Supervisor{
		dialer:   dialer,
		cfg:      cfg.withDefaults(),
		events:   make(chan protocol.Envelope, 64),
		outbound: make(chan []byte, 16),
		stopCh:   make(chan struct{}),
		state:    StateIdle,
	}
}

// Events carries every decoded non-pong frame. Closed when Run returns.
func (s *Supervisor) Events() <-chan protocol.Envelope { return s.events }

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop requests an immediate move to the terminal Stopped state. Pending
// retries are canceled, nothing is rescheduled. Safe to call repeatedly.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Send queues one encoded frame for the live connection.
func (s *Supervisor) Send(frame []byte) error {
	s.mu.Lock()
	open := s.state == StateOpen
	s.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	select {
	case s.outbound <- frame:
		return nil
	default:
		return ErrNotOpen
	}
}

func (s *Supervisor) SendMessage(kind domain.MessageKind, content string) error {
	frame, err := protocol.Encode(protocol.TypeSendMessage, protocol.SendMessagePayload{Kind: kind, Content: content})
	if err != nil {
		return err
	}
	return s.Send(frame)
}

func (s *Supervisor) SendTyping() error {
	frame, err := protocol.Encode(protocol.TypeTyping, nil)
	if err != nil {
		return err
	}
	return s.Send(frame)
}

// Run drives the state machine until Stop, ctx cancellation, or retry
// exhaustion. Returns ErrGaveUp when the budget is spent, nil on Stop.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.events)

	attempt := 0
	for {
		select {
		case <-s.stopCh:
			s.setState(StateStopped, 0)
			return nil
		case <-ctx.Done():
			s.setState(StateStopped, 0)
			return ctx.Err()
		default:
		}

		s.setState(StateConnecting, attempt)
		t, err := s.dialer.Dial(ctx)
		if err == nil {
			attempt = 0
			s.setState(StateOpen, 0)
			reason := s.serve(ctx, t)
			_ = t.Close()
			switch reason {
			case reasonStopped:
				s.setState(StateStopped, 0)
				return nil
			case reasonCtx:
				s.setState(StateStopped, 0)
				return ctx.Err()
			}
			log.Warn().Str("module", "client").Str("reason", reason.String()).Msg("connection lost")
		} else {
			log.Warn().Err(err).Str("module", "client").Int("attempt", attempt).Msg("dial failed")
		}

		attempt++
		if attempt > s.cfg.MaxAttempts {
			s.setState(StateGivingUp, s.cfg.MaxAttempts)
			return ErrGaveUp
		}
		s.setState(StateReconnecting, attempt)
		if !s.sleep(ctx, BackoffDelay(s.cfg, attempt)) {
			s.setState(StateStopped, 0)
			return nil
		}
	}
}

type closeReason int

const (
	reasonClosed closeReason = iota
	reasonPongTimeout
	reasonStopped
	reasonCtx
)

func (r closeReason) String() string {
	switch r {
	case reasonClosed:
		return "transport closed"
	case reasonPongTimeout:
		return "pong timeout"
	case reasonStopped:
		return "stop requested"
	default:
		return "context canceled"
	}
}

type readResult struct {
	data []byte
	err  error
}

// serve pumps one live connection: outbound writes, inbound decode,
// keepalive pings with a pong deadline. A missed pong is handled exactly
// like a transport close.
func (s *Supervisor) serve(ctx context.Context, t Transport) closeReason {
	readCh := make(chan readResult)
	readerStop := make(chan struct{})
	defer close(readerStop)
	go func() {
		for {
			data, err := t.ReadFrame()
			select {
			case readCh <- readResult{data: data, err: err}:
			case <-readerStop:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(s.cfg.PingInterval)
	defer pings.Stop()

	pongDeadline := time.NewTimer(s.cfg.PongTimeout)
	if !pongDeadline.Stop() {
		<-pongDeadline.C
	}
	defer pongDeadline.Stop()
	awaitingPong := false

	for {
		select {
		case <-ctx.Done():
			return reasonCtx
		case <-s.stopCh:
			return reasonStopped

		case frame := <-s.outbound:
			if err := t.WriteFrame(frame); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("write failed")
				return reasonClosed
			}

		case r := <-readCh:
			if r.err != nil {
				return reasonClosed
			}
			env, err := protocol.Decode(r.data)
			if err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("bad inbound frame")
				continue
			}
			if env.Type == protocol.TypePong {
				if awaitingPong {
					awaitingPong = false
					if !pongDeadline.Stop() {
						select {
						case <-pongDeadline.C:
						default:
						}
					}
				}
				continue
			}
			select {
			case s.events <- env:
			case <-ctx.Done():
				return reasonCtx
			case <-s.stopCh:
				return reasonStopped
			}

		case <-pings.C:
			frame, err := protocol.EncodePing()
			if err != nil {
				log.Error().Err(err).Str("module", "client").Msg("encode ping")
				continue
			}
			if err := t.WriteFrame(frame); err != nil {
				log.Warn().Err(err).Str("module", "client").Msg("ping write failed")
				return reasonClosed
			}
			if !awaitingPong {
				awaitingPong = true
				pongDeadline.Reset(s.cfg.PongTimeout)
			}

		case <-pongDeadline.C:
			return reasonPongTimeout
		}
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	}
}

func (s *Supervisor) setState(st State, attempt int) {
	s.mu.Lock()
	s.state = st
	s.attempt = attempt
	cb := s.cfg.OnState
	s.mu.Unlock()

	log.Debug().Str("module", "client").Str("state", st.String()).Int("attempt", attempt).Msg("state change")
	if cb != nil {
		cb(st, attempt)
	}
}
