package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Text/internal/core"
	"github.com/dkeye/Text/internal/domain"
)

func TestDeadRecipientIsKickedDuringBroadcast(t *testing.T) {
	reg := newRegistry()
	orch := &Orchestrator{Registry: reg}
	id := domain.RoomID("ABC123")

	a, _ := newSession(t, "alice")
	b, bConn := newSession(t, "bob")
	room := orch.Join(a, id)
	orch.Join(b, id)
	require.Equal(t, 2, room.MemberCount())

	bConn.fail = true
	_, err := orch.OnMessage(room, a.ID(), domain.KindText, "hi")
	require.NoError(t, err)

	// Bob's broken transport triggers the same cleanup as an explicit
	// disconnect: removed from the room, socket closed, exactly once.
	assert.Equal(t, 1, room.MemberCount())
	assert.True(t, bConn.isClosed())
	assert.Equal(t, []domain.User{*a.User()}, room.MembersSnapshot())
}

func TestKickOfLastDeadMemberDestroysRoom(t *testing.T) {
	reg := newRegistry()
	orch := &Orchestrator{Registry: reg}
	id := domain.RoomID("ABC123")

	a, _ := newSession(t, "alice")
	b, bConn := newSession(t, "bob")
	room := orch.Join(a, id)
	orch.Join(b, id)

	bConn.fail = true
	orch.OnTyping(room, a.ID())
	assert.Equal(t, 1, room.MemberCount())

	orch.Leave(room, a)
	_, ok := reg.Lookup(id)
	assert.False(t, ok)
}

func TestLeaveIsIdempotent(t *testing.T) {
	reg := newRegistry()
	orch := &Orchestrator{Registry: reg}
	id := domain.RoomID("ABC123")

	a, aConn := newSession(t, "alice")
	room := orch.Join(a, id)

	orch.Leave(room, a)
	orch.Leave(room, a)

	assert.True(t, aConn.isClosed())
	_, ok := reg.Lookup(id)
	assert.False(t, ok)
}

type lenientPolicy struct{}

func (lenientPolicy) OnBackPressure(*core.Room, core.MemberSession) BackpressureAction {
	return DropFrame
}

func TestDropFramePolicyKeepsSlowMember(t *testing.T) {
	reg := newRegistry()
	orch := &Orchestrator{Registry: reg, Policy: lenientPolicy{}}
	id := domain.RoomID("ABC123")

	a, _ := newSession(t, "alice")
	b, bConn := newSession(t, "bob")
	room := orch.Join(a, id)
	orch.Join(b, id)

	bConn.fail = true
	_, err := orch.OnMessage(room, a.ID(), domain.KindText, "hi")
	require.NoError(t, err)

	// The frame is lost, the member is not.
	assert.Equal(t, 2, room.MemberCount())
	assert.False(t, bConn.isClosed())
}

func TestMessageAfterLeaveIsDropped(t *testing.T) {
	reg := newRegistry()
	orch := &Orchestrator{Registry: reg}
	id := domain.RoomID("ABC123")

	a, _ := newSession(t, "alice")
	b, _ := newSession(t, "bob")
	room := orch.Join(a, id)
	orch.Join(b, id)
	orch.Leave(room, b)

	_, err := orch.OnMessage(room, b.ID(), domain.KindText, "late frame")
	require.Error(t, err)
	assert.Empty(t, room.HistorySnapshot())
}
