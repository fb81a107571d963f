package app

import "github.com/dkeye/Text/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a recipient whose transport refused a
// frame. Delivery is best-effort, so DropFrame simply loses the frame and
// keeps the member; KickMember routes it through the ordinary leave path.
type Policy interface {
	OnBackPressure(room *core.Room, member core.MemberSession) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room *core.Room, member core.MemberSession) BackpressureAction {
	return KickMember
}
