package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Text/internal/protocol"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, len(r.states))
	copy(out, r.states)
	return out
}

func (r *stateRecorder) count(want State) int {
	n := 0
	for _, s := range r.snapshot() {
		if s == want {
			n++
		}
	}
	return n
}

func (r *stateRecorder) waitFor(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, s := range r.snapshot() {
			if s == want {
				return true
			}
		}
		return false
	}, 2*time.Second, time.Millisecond)
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	failures int // dials that fail before a transport is handed out
	make     func() Transport
}

func (d *fakeDialer) Dial(ctx context.Context) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures || d.make == nil {
		return nil, errors.New("connection refused")
	}
	return d.make(), nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeTransport struct {
	in     chan []byte
	writes chan []byte
	done   chan struct{}
	once   sync.Once

	autoPong bool
}

func newFakeTransport(autoPong bool) *fakeTransport {
	return &fakeTransport{
		in:       make(chan []byte, 16),
		writes:   make(chan []byte, 64),
		done:     make(chan struct{}),
		autoPong: autoPong,
	}
}

func (t *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case b := <-t.in:
		return b, nil
	case <-t.done:
		return nil, errors.New("transport closed")
	}
}

func (t *fakeTransport) WriteFrame(b []byte) error {
	select {
	case <-t.done:
		return errors.New("transport closed")
	default:
	}
	select {
	case t.writes <- b:
	default:
	}
	if t.autoPong {
		if env, err := protocol.Decode(b); err == nil && env.Type == protocol.TypePing {
			pong, _ := protocol.EncodePong()
			select {
			case t.in <- pong:
			case <-t.done:
			}
		}
	}
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

func fastConfig(rec *stateRecorder) Config {
	return Config{
		BaseDelay:    time.Millisecond,
		CapDelay:     4 * time.Millisecond,
		MaxAttempts:  5,
		PingInterval: 10 * time.Millisecond,
		PongTimeout:  30 * time.Millisecond,
		OnState:      rec.record,
	}
}

func TestBackoffDelaySequence(t *testing.T) {
	cfg := Config{}.withDefaults()

	want := []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
		10000 * time.Millisecond, // capped
	}
	for i, d := range want {
		assert.Equal(t, d, BackoffDelay(cfg, i+1), "attempt %d", i+1)
	}

	// Past the cap it stays flat.
	assert.Equal(t, 10*time.Second, BackoffDelay(cfg, 6))
	assert.Equal(t, 10*time.Second, BackoffDelay(cfg, 20))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, time.Second, cfg.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.CapDelay)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.PingInterval)
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	rec := &stateRecorder{}
	dialer := &fakeDialer{} // every dial fails
	s := NewSupervisor(dialer, fastConfig(rec))

	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrGaveUp)

	// Initial connect plus exactly maxAttempts retries, then terminal.
	assert.Equal(t, 6, dialer.dialCount())
	assert.Equal(t, StateGivingUp, s.State())
	assert.Equal(t, 5, rec.count(StateReconnecting))

	states := rec.snapshot()
	assert.Equal(t, StateGivingUp, states[len(states)-1])

	// Terminal means terminal: nothing is rescheduled afterwards.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 6, dialer.dialCount())
}

func TestReconnectSucceedsAndResetsAttempts(t *testing.T) {
	rec := &stateRecorder{}
	var transports []*fakeTransport
	var mu sync.Mutex
	dialer := &fakeDialer{
		failures: 2,
		make: func() Transport {
			tr := newFakeTransport(true)
			mu.Lock()
			transports = append(transports, tr)
			mu.Unlock()
			return tr
		},
	}
	s := NewSupervisor(dialer, fastConfig(rec))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	rec.waitFor(t, StateOpen)
	assert.Equal(t, 3, dialer.dialCount())
	assert.Equal(t, 2, rec.count(StateReconnecting))

	// Kill the live transport: Open -> Reconnecting(1), then the next
	// dial succeeds straight away because the counter was reset.
	mu.Lock()
	first := transports[0]
	mu.Unlock()
	first.Close()

	require.Eventually(t, func() bool { return rec.count(StateOpen) == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 3, rec.count(StateReconnecting))

	s.Stop()
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, s.State())
}

func TestMissingPongTreatedAsDisconnect(t *testing.T) {
	rec := &stateRecorder{}
	tr := newFakeTransport(false) // swallows pings, never pongs
	dialer := &fakeDialer{make: func() Transport { return tr }}

	cfg := fastConfig(rec)
	s := NewSupervisor(dialer, cfg)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	rec.waitFor(t, StateOpen)
	// The transport never errors, yet the supervisor must leave Open
	// once the pong deadline lapses.
	rec.waitFor(t, StateReconnecting)

	// A ping did go out before the deadline fired.
	require.Eventually(t, func() bool {
		select {
		case b := <-tr.writes:
			env, err := protocol.Decode(b)
			return err == nil && env.Type == protocol.TypePing
		default:
			return false
		}
	}, 2*time.Second, time.Millisecond)

	s.Stop()
	<-done
}

func TestPingPongKeepsConnectionOpen(t *testing.T) {
	rec := &stateRecorder{}
	tr := newFakeTransport(true)
	dialer := &fakeDialer{make: func() Transport { return tr }}
	s := NewSupervisor(dialer, fastConfig(rec))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	rec.waitFor(t, StateOpen)
	// Several ping cycles worth of time passes without a reconnect.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, rec.count(StateReconnecting))
	assert.Equal(t, StateOpen, s.State())

	s.Stop()
	require.NoError(t, <-done)
}

func TestStopCancelsPendingRetry(t *testing.T) {
	rec := &stateRecorder{}
	dialer := &fakeDialer{}
	cfg := fastConfig(rec)
	cfg.BaseDelay = time.Hour // park the run loop in backoff
	cfg.CapDelay = time.Hour
	s := NewSupervisor(dialer, cfg)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	rec.waitFor(t, StateReconnecting)
	dialsBeforeStop := dialer.dialCount()
	s.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, dialsBeforeStop, dialer.dialCount())
}

func TestEventsDeliveredAndPongsFiltered(t *testing.T) {
	rec := &stateRecorder{}
	tr := newFakeTransport(true)
	dialer := &fakeDialer{make: func() Transport { return tr }}
	s := NewSupervisor(dialer, fastConfig(rec))

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	rec.waitFor(t, StateOpen)

	frame, err := protocol.EncodeTyping("alice")
	require.NoError(t, err)
	tr.in <- frame

	select {
	case env := <-s.Events():
		assert.Equal(t, protocol.TypeTyping, env.Type)
		name, err := env.TypingUsername()
		require.NoError(t, err)
		assert.Equal(t, "alice", name)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	// Pongs are keepalive plumbing, they never surface.
	time.Sleep(50 * time.Millisecond)
	select {
	case env := <-s.Events():
		t.Fatalf("unexpected event %q", env.Type)
	default:
	}

	s.Stop()
	require.NoError(t, <-done)

	// Events closes once the supervisor is done.
	_, open := <-s.Events()
	assert.False(t, open)
}

func TestSendRequiresOpen(t *testing.T) {
	s := NewSupervisor(&fakeDialer{}, Config{})
	err := s.SendTyping()
	require.ErrorIs(t, err, ErrNotOpen)
}
