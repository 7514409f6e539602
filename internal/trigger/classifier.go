// Package trigger decides whether an inbound chat event addresses the bot and
// extracts the text the user meant for it.
package trigger

import (
	"strings"

	"github.com/kayz/xenobot/internal/router"
)

// Decision is the classifier's verdict for one event.
type Decision struct {
	// Addressed is true when the event mentions the bot or replies to it.
	Addressed bool
	// ShouldRespond is Addressed with non-empty extracted text.
	ShouldRespond bool
	// Text is the event text with bot mentions removed, trimmed.
	Text string
	// ReplyAnchor holds the bot's earlier line when the event replies to it.
	ReplyAnchor string
}

// NeedsContent reports the "mentioned me but said nothing" branch, which
// callers answer with a prompt for content instead of dropping.
func (d Decision) NeedsContent() bool {
	return d.Addressed && !d.ShouldRespond
}

// Classify applies the trigger rules to msg using the platform's identity.
func Classify(msg router.Message, id router.Identity) Decision {
	if id == nil {
		return Decision{}
	}
	if msg.FromSelf || id.IsSelf(msg.UserID) {
		return Decision{}
	}

	replyToBot := RepliesToBot(msg, id)
	if !id.MentionsBot(msg) && !replyToBot {
		return Decision{}
	}

	d := Decision{
		Addressed: true,
		Text:      strings.TrimSpace(id.StripMentions(msg.Text)),
	}
	d.ShouldRespond = d.Text != ""
	if replyToBot {
		d.ReplyAnchor = strings.TrimSpace(msg.ReplyTo.Content)
	}
	return d
}

// RepliesToBot is true only for a resolved reference authored by the bot. An
// unresolved reference counts as no reply at all.
func RepliesToBot(msg router.Message, id router.Identity) bool {
	ref := msg.ReplyTo
	if ref == nil || ref.Missing || ref.AuthorID == "" {
		return false
	}
	return id.IsSelf(ref.AuthorID)
}
