package prompt

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kayz/xenobot/internal/history"
)

func TestAssemble(t *testing.T) {
	snapshot := []history.Turn{
		{Role: history.RoleUser, Content: "hi"},
		{Role: history.RoleAssistant, Content: "hello"},
		{Role: history.RoleUser, Content: "how are you"},
	}

	got := Assemble("be nice", snapshot)
	want := Payload{
		{Role: "system", Content: "be nice"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "how are you"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Assemble() mismatch (-want +got):\n%s", diff)
	}
	if got.System() != "be nice" {
		t.Fatalf("System() = %q", got.System())
	}
	if diff := cmp.Diff([]Message(want[1:]), got.Conversation()); diff != "" {
		t.Fatalf("Conversation() mismatch (-want +got):\n%s", diff)
	}
}

func TestAssembleEmptySnapshot(t *testing.T) {
	got := Assemble("sys", nil)
	if len(got) != 1 || got.System() != "sys" {
		t.Fatalf("expected only the system entry, got %#v", got)
	}
	if len(got.Conversation()) != 0 {
		t.Fatalf("expected empty conversation, got %#v", got.Conversation())
	}
}

func TestAssembleDoesNotAliasSnapshot(t *testing.T) {
	snapshot := []history.Turn{{Role: history.RoleUser, Content: "a"}}
	got := Assemble("sys", snapshot)
	snapshot[0].Content = "changed"
	if got[1].Content != "a" {
		t.Fatalf("payload must not change with the snapshot, got %q", got[1].Content)
	}
}

func TestPayloadAccessorsOnMalformedPayload(t *testing.T) {
	p := Payload{{Role: "user", Content: "x"}}
	if p.System() != "" {
		t.Fatalf("expected no system entry")
	}
	if len(p.Conversation()) != 1 {
		t.Fatalf("expected the whole payload as conversation")
	}
	var empty Payload
	if empty.System() != "" || empty.Conversation() != nil {
		t.Fatalf("empty payload accessors should be zero")
	}
}
