package persist

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordEventFillsIDAndTime(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.RecordEvent(EventRecord{
		Platform:  "discord",
		ChannelID: "c1",
		UserID:    "u1",
		Identity:  "discord:u1",
		State:     "handled",
		Reply:     "hi",
	}))

	events, err := s.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, "discord:u1", events[0].Identity)
	assert.Equal(t, "hi", events[0].Reply)
	assert.Empty(t, events[0].Error)
	assert.True(t, fixed.Equal(events[0].CreatedAt))
}

func TestRecentEventsNewestFirstWithLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, reply := range []string{"one", "two", "three"} {
		require.NoError(t, s.RecordEvent(EventRecord{
			Platform:  "telegram",
			ChannelID: "c",
			UserID:    "u",
			Identity:  "telegram:u",
			State:     "handled",
			Reply:     reply,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := s.RecentEvents(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "three", events[0].Reply)
	assert.Equal(t, "two", events[1].Reply)
}

func TestRecordInstructionChange(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.RecordInstructionChange("community:discord:g1", "discord", "owner", "a pirate"))
	require.NoError(t, s.RecordInstructionChange("direct", "discord", "owner", "a robot"))

	changes, err := s.InstructionChanges(0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "direct", changes[0].ScopeKey)
	assert.Equal(t, "a robot", changes[0].Style)
	assert.Equal(t, "community:discord:g1", changes[1].ScopeKey)
	assert.Equal(t, "owner", changes[1].ActorID)
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordEvent(EventRecord{Platform: "web", ChannelID: "c", UserID: "u", Identity: "web:u", State: "ignored"}))
	require.NoError(t, s.Close())

	s, err = NewStore(path)
	require.NoError(t, err)
	defer s.Close()
	events, err := s.RecentEvents(5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ignored", events[0].State)
}
