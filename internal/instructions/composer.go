// Package instructions holds the persona text sent with every generation
// request and the single authorized path for changing it.
package instructions

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kayz/xenobot/internal/logger"
)

var (
	// ErrNotPermitted rejects an override from an actor without authority over the scope.
	ErrNotPermitted = errors.New("not permitted to change instructions")
	// ErrEmptyStyle rejects a blank acting style.
	ErrEmptyStyle = errors.New("style must not be empty")
)

type ScopeKind int

const (
	// Community is a shared multi-user space with an owner and administrators.
	Community ScopeKind = iota
	// Direct is a one-to-one conversation governed by the configured owner.
	Direct
)

func (k ScopeKind) String() string {
	if k == Direct {
		return "direct"
	}
	return "community"
}

// Scope is the authorization boundary a command was issued in.
type Scope struct {
	Kind     ScopeKind
	Platform string
	ID       string
	OwnerID  string
}

// Key identifies the InstructionState a scope reads and writes.
func (s Scope) Key() string {
	if s.Kind == Direct {
		return DirectKey
	}
	return CommunityKey(s.Platform, s.ID)
}

// DirectKey is the state shared by every direct conversation.
const DirectKey = "direct"

const globalKey = "global"

// CommunityKey builds the state key for a community on a platform.
func CommunityKey(platform, id string) string {
	return "community:" + platform + ":" + id
}

// Actor is the authenticated issuer of a configuration command.
type Actor struct {
	Platform string
	ID       string
	// Admin is set when the platform reports administrative capability over the scope.
	Admin bool
}

// State is an immutable snapshot of one scope's instructions.
type State struct {
	Default   string
	Override  string
	HasStyle  bool
	Effective string
}

// Compose frames style as a behavioural instruction ahead of the default text.
func Compose(style, defaultInstructions string) string {
	return fmt.Sprintf("Act in the following style: %s\n%s", style, defaultInstructions)
}

// Recorder receives successful changes, typically the journal.
type Recorder interface {
	RecordInstructionChange(scopeKey, actorPlatform, actorID, style string) error
}

// Composer owns every InstructionState in the process.
type Composer struct {
	defaultText string
	owners      map[string]string
	global      bool
	recorder    Recorder

	mu     sync.RWMutex
	states map[string]State
}

type Options struct {
	// Default is the immutable base persona.
	Default string
	// Owners maps a platform name to the owner's user id on it.
	Owners map[string]string
	// Global shares one state across all scopes.
	Global   bool
	Recorder Recorder
}

func NewComposer(opts Options) *Composer {
	owners := make(map[string]string, len(opts.Owners))
	for platform, id := range opts.Owners {
		if id = strings.TrimSpace(id); id != "" {
			owners[platform] = id
		}
	}
	return &Composer{
		defaultText: opts.Default,
		owners:      owners,
		global:      opts.Global,
		recorder:    opts.Recorder,
		states:      make(map[string]State),
	}
}

func (c *Composer) key(scopeKey string) string {
	if c.global {
		return globalKey
	}
	return scopeKey
}

// State returns the current state for a scope key.
func (c *Composer) State(scopeKey string) State {
	c.mu.RLock()
	st, ok := c.states[c.key(scopeKey)]
	c.mu.RUnlock()
	if ok {
		return st
	}
	return State{Default: c.defaultText, Effective: c.defaultText}
}

// Effective returns the composed instructions for a scope key.
func (c *Composer) Effective(scopeKey string) string {
	return c.State(scopeKey).Effective
}

// IsOwner reports whether actor is the configured bot owner on its platform.
func (c *Composer) IsOwner(actor Actor) bool {
	owner, ok := c.owners[actor.Platform]
	return ok && actor.ID != "" && actor.ID == owner
}

// Authorize applies the scope's authorization rule to actor.
func (c *Composer) Authorize(actor Actor, scope Scope) error {
	switch scope.Kind {
	case Community:
		if actor.ID != "" && actor.ID == scope.OwnerID {
			return nil
		}
		if actor.Admin || c.IsOwner(actor) {
			return nil
		}
	case Direct:
		if c.IsOwner(actor) {
			return nil
		}
	}
	return ErrNotPermitted
}

// SetOverride replaces the acting style for scope. Unauthorized or blank
// requests leave the state untouched.
func (c *Composer) SetOverride(actor Actor, scope Scope, style string) error {
	if err := c.Authorize(actor, scope); err != nil {
		logger.Warn("[Instructions] Rejected override by %s:%s in %s", actor.Platform, actor.ID, scope.Key())
		return err
	}
	style = strings.TrimSpace(style)
	if style == "" {
		return ErrEmptyStyle
	}

	key := c.key(scope.Key())
	next := State{
		Default:   c.defaultText,
		Override:  style,
		HasStyle:  true,
		Effective: Compose(style, c.defaultText),
	}

	c.mu.Lock()
	c.states[key] = next
	c.mu.Unlock()

	logger.Info("[Instructions] Style for %s set by %s:%s", key, actor.Platform, actor.ID)
	if c.recorder != nil {
		if err := c.recorder.RecordInstructionChange(key, actor.Platform, actor.ID, style); err != nil {
			logger.Warn("[Instructions] Failed to record change: %v", err)
		}
	}
	return nil
}
