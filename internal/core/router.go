package core

import "github.com/rs/zerolog/log"

// Router fans one frame out to a set of sessions. A recipient whose
// transport refuses the frame (closed or backpressured) is recorded in
// the result and delivery continues to the rest; a broadcast never fails
// as a whole.
type Router struct{}

func (Router) SendTo(sessions []MemberSession, frame Frame) PublishResult {
	return fanOut(sessions, "", frame)
}

func (Router) SendToExcept(sessions []MemberSession, exclude SessionID, frame Frame) PublishResult {
	return fanOut(sessions, exclude, frame)
}

func fanOut(sessions []MemberSession, exclude SessionID, frame Frame) PublishResult {
	res := PublishResult{}
	for _, ms := range sessions {
		if exclude != "" && ms.ID() == exclude {
			continue
		}
		if err := ms.Signal().TrySend(frame); err != nil {
			log.Warn().Str("module", "core.router").Str("sid", string(ms.ID())).Err(err).Msg("recipient dropped")
			res.Dropped = append(res.Dropped, ms)
			continue
		}
		res.SentTo++
	}
	return res
}
