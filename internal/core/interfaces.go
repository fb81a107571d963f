package core

import "github.com/dkeye/Text/internal/domain"

// Frame is one encoded wire envelope ready to be written to a transport.
type Frame []byte

type SessionID string

// SignalConnection abstracts a session's messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds a participant's identity and its transport endpoint.
// This is what a room stores and fans out to. Identity is serializable,
// the transport handle never is; the two stay separated on purpose.
type MemberSession interface {
	ID() SessionID
	User() *domain.User
	Signal() SignalConnection
}

// PublishResult reports a fan-out's delivery stats plus the recipients
// whose transport refused the frame. Dropped sessions are presumed dead
// and must go through the ordinary leave path.
type PublishResult struct {
	SentTo  int
	Dropped []MemberSession
}

func (r *PublishResult) merge(other PublishResult) {
	r.SentTo += other.SentTo
	r.Dropped = append(r.Dropped, other.Dropped...)
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}
