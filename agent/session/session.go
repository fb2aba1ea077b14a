package session

import (
	"time"

	openaisdk "github.com/openai/openai-go"
)

// Message is one transcript entry in model wire form.
type Message = openaisdk.ChatCompletionMessageParamUnion

// Session is the conversation transcript for one sender. The transcript is
// kept as exchange groups: one group spans a user message through the final
// assistant reply, including any tool-call and tool-result traffic in
// between. Trimming removes whole groups so a tool call is never separated
// from its result.
//
// A Session handed out by Store.Acquire is exclusively held until released;
// its methods assume the holder owns it and take no locks themselves.
type Session struct {
	groups     [][]Message
	lastActive time.Time
}

// Messages returns the flattened transcript, oldest first.
func (s *Session) Messages() []Message {
	out := make([]Message, 0, s.Len())
	for _, group := range s.groups {
		out = append(out, group...)
	}
	return out
}

// Len is the flattened transcript length in messages.
func (s *Session) Len() int {
	n := 0
	for _, group := range s.groups {
		n += len(group)
	}
	return n
}

// LastActive reports when the session last committed an exchange.
func (s *Session) LastActive() time.Time {
	return s.lastActive
}

func (s *Session) append(group []Message) {
	if len(group) == 0 {
		return
	}
	copied := make([]Message, len(group))
	copy(copied, group)
	s.groups = append(s.groups, copied)
}

// trim drops oldest groups while the flattened length exceeds maxHistory.
// The newest group always survives, even when it alone exceeds the cap.
func (s *Session) trim(maxHistory int) {
	for s.Len() > maxHistory && len(s.groups) > 1 {
		s.groups = s.groups[1:]
	}
}

func (s *Session) reset(now time.Time) {
	s.groups = nil
	s.lastActive = now
}
