// Package prompt turns composed instructions and a history snapshot into the
// ordered message list sent to a generation backend.
package prompt

import (
	"github.com/kayz/xenobot/internal/history"
)

const RoleSystem = "system"

// Message is a model-agnostic role/content pair.
type Message struct {
	Role    string
	Content string
}

// Payload is the ordered request: one system entry, then history oldest first.
type Payload []Message

// System returns the instruction entry, or "" for a malformed payload.
func (p Payload) System() string {
	if len(p) == 0 || p[0].Role != RoleSystem {
		return ""
	}
	return p[0].Content
}

// Conversation returns every entry after the instruction entry.
func (p Payload) Conversation() []Message {
	if len(p) == 0 {
		return nil
	}
	if p[0].Role == RoleSystem {
		return p[1:]
	}
	return p
}

// Assemble builds the payload. The snapshot already ends with the new user
// turn, so the result has exactly 1+len(snapshot) entries.
func Assemble(effective string, snapshot []history.Turn) Payload {
	payload := make(Payload, 0, 1+len(snapshot))
	payload = append(payload, Message{Role: RoleSystem, Content: effective})
	for _, turn := range snapshot {
		payload = append(payload, Message{Role: string(turn.Role), Content: turn.Content})
	}
	return payload
}
