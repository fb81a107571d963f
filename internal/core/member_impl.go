package core

import "github.com/dkeye/Text/internal/domain"

// memberSession implements MemberSession by pairing identity + transport.
type memberSession struct {
	sid  SessionID
	user *domain.User
	conn SignalConnection
}

func NewMemberSession(user *domain.User, conn SignalConnection) MemberSession {
	return &memberSession{sid: SessionID(user.ID), user: user, conn: conn}
}

func (m *memberSession) ID() SessionID            { return m.sid }
func (m *memberSession) User() *domain.User       { return m.user }
func (m *memberSession) Signal() SignalConnection { return m.conn }
