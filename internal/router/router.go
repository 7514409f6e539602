package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kayz/xenobot/internal/logger"
)

// Message is an inbound chat event normalised by a platform adapter.
type Message struct {
	ID        string
	Platform  string
	ChannelID string
	// ScopeID is the community (guild, group chat) the message was posted in.
	// Empty for direct conversations.
	ScopeID  string
	UserID   string
	Username string
	Text     string
	// FromSelf is set by adapters that can tell the author is the running bot.
	FromSelf bool
	ReplyTo  *ReplyRef
	Metadata map[string]string
}

// IsDirect reports whether the message came from a one-to-one conversation.
func (m Message) IsDirect() bool {
	return m.ScopeID == ""
}

// ReplyRef describes the message an event replies to. Missing is set when the
// platform knows a reference exists but could not resolve it (deleted message).
type ReplyRef struct {
	MessageID string
	AuthorID  string
	Content   string
	Missing   bool
}

// Response is outbound text for a channel.
type Response struct {
	Text     string
	ThreadID string // message to reply to, if the platform supports it
}

// Command is a configuration command issued on a platform, with the
// authorization facts the adapter could establish about the actor.
type Command struct {
	Platform string
	Name     string
	Args     string
	UserID   string
	Username string
	// ChannelID and ScopeID locate the command; ScopeID is empty for direct scope.
	ChannelID string
	ScopeID   string
	// ScopeOwnerID is the owner of the community, when known.
	ScopeOwnerID string
	// Admin is true when the actor holds administrative capability over the scope.
	Admin bool
}

// Identity resolves the running bot's own identity on one platform.
type Identity interface {
	IsSelf(userID string) bool
	MentionsBot(msg Message) bool
	StripMentions(text string) string
}

// Platform is a chat transport.
type Platform interface {
	Identity
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, channelID string, resp Response) error
	SetMessageHandler(handler func(msg Message))
	SetCommandHandler(handler func(ctx context.Context, cmd Command) Response)
}

// Handler consumes inbound messages and commands.
type Handler interface {
	Dispatch(ctx context.Context, msg Message)
	HandleCommand(ctx context.Context, cmd Command) Response
}

// Router owns the registered platforms, fans inbound events into the handler
// and routes outbound text back to the originating platform.
type Router struct {
	platforms map[string]Platform
	handler   Handler
	mu        sync.RWMutex
}

func New() *Router {
	return &Router{
		platforms: make(map[string]Platform),
	}
}

// Register adds a platform. Registering a second platform with the same name
// replaces the first.
func (r *Router) Register(p Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[p.Name()] = p
}

// SetHandler sets the consumer of inbound events.
func (r *Router) SetHandler(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Platforms returns the registered platform names in sorted order.
func (r *Router) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Identity returns the bot identity for a platform.
func (r *Router) Identity(platform string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.platforms[platform]
	if !ok {
		return nil, false
	}
	return p, true
}

// Start wires handlers and starts every platform concurrently.
func (r *Router) Start(ctx context.Context) error {
	r.mu.RLock()
	handler := r.handler
	platforms := make([]Platform, 0, len(r.platforms))
	for _, p := range r.platforms {
		platforms = append(platforms, p)
	}
	r.mu.RUnlock()

	if handler == nil {
		return fmt.Errorf("router has no handler")
	}
	if len(platforms) == 0 {
		return fmt.Errorf("no platforms registered")
	}

	for _, p := range platforms {
		p.SetMessageHandler(func(msg Message) {
			handler.Dispatch(ctx, msg)
		})
		p.SetCommandHandler(handler.HandleCommand)
	}

	// Platforms keep the context they are started with for their lifetime, so
	// they get ctx itself rather than a group context that ends with Wait.
	var g errgroup.Group
	for _, p := range platforms {
		p := p
		g.Go(func() error {
			if err := p.Start(ctx); err != nil {
				return fmt.Errorf("start %s: %w", p.Name(), err)
			}
			logger.Info("[Router] Platform started: %s", p.Name())
			return nil
		})
	}
	return g.Wait()
}

// Stop stops every platform, returning the first error.
func (r *Router) Stop() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var firstErr error
	for name, p := range r.platforms {
		if err := p.Stop(); err != nil {
			logger.Warn("[Router] Failed to stop %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Send delivers a response to a channel on a platform.
func (r *Router) Send(ctx context.Context, platform, channelID string, resp Response) error {
	r.mu.RLock()
	p, ok := r.platforms[platform]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown platform: %s", platform)
	}
	if err := p.Send(ctx, channelID, resp); err != nil {
		return fmt.Errorf("send to %s/%s: %w", platform, channelID, err)
	}
	return nil
}

// Emit replies to msg on its originating channel, threaded to msg.
func (r *Router) Emit(ctx context.Context, msg Message, text string) error {
	return r.Send(ctx, msg.Platform, msg.ChannelID, Response{
		Text:     text,
		ThreadID: msg.ID,
	})
}
