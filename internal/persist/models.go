package persist

import "time"

// EventRecord is one processed inbound event as stored in the journal.
type EventRecord struct {
	ID        string
	Platform  string
	ChannelID string
	UserID    string
	Identity  string
	State     string
	Reply     string
	Error     string
	CreatedAt time.Time
}

// InstructionChange is one accepted style override.
type InstructionChange struct {
	ID            int64
	ScopeKey      string
	ActorPlatform string
	ActorID       string
	Style         string
	CreatedAt     time.Time
}
