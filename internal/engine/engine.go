// Package engine runs the per-event reply state machine: classify, record,
// assemble, generate, record, emit.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kayz/xenobot/internal/ai"
	"github.com/kayz/xenobot/internal/history"
	"github.com/kayz/xenobot/internal/instructions"
	"github.com/kayz/xenobot/internal/logger"
	"github.com/kayz/xenobot/internal/persist"
	"github.com/kayz/xenobot/internal/prompt"
	"github.com/kayz/xenobot/internal/router"
	"github.com/kayz/xenobot/internal/trigger"
)

const (
	DefaultPromptReply = "Hello! Please say something after mentioning me."
	DefaultEmptyReply  = "Sorry, I have no response at this time."
	DefaultErrorReply  = "Sorry, something went wrong while generating a response."
)

// State is the terminal state of one inbound event.
type State int

const (
	Ignored State = iota
	Handled
	Failed
)

func (s State) String() string {
	switch s {
	case Handled:
		return "handled"
	case Failed:
		return "failed"
	default:
		return "ignored"
	}
}

// Outcome reports how an event was processed.
type Outcome struct {
	State State
	// Reply is the text emitted (or attempted) for the event.
	Reply string
	// Err is the generation failure for Failed outcomes.
	Err error
	// EmitErr is set when delivering Reply failed. It does not change State.
	EmitErr error
	// Abandoned marks a generation cut short by cancellation; nothing was emitted.
	Abandoned bool
}

// Emitter sends text back to the conversation an event came from.
type Emitter interface {
	Emit(ctx context.Context, msg router.Message, text string) error
}

// IdentityResolver looks up the bot's own identity per platform.
type IdentityResolver interface {
	Identity(platform string) (router.Identity, bool)
}

// Journal receives one row per handled or failed event.
type Journal interface {
	RecordEvent(rec persist.EventRecord) error
}

type Config struct {
	History    *history.Store
	Composer   *instructions.Composer
	Provider   ai.Provider
	Model      ai.ModelConfig
	Emitter    Emitter
	Identities IdentityResolver
	Journal    Journal // optional

	PromptReply string
	EmptyReply  string
	ErrorReply  string
}

// Engine owns conversation history and instruction state at runtime and
// processes events for one identity strictly in arrival order.
type Engine struct {
	history    *history.Store
	composer   *instructions.Composer
	provider   ai.Provider
	model      ai.ModelConfig
	emitter    Emitter
	identities IdentityResolver
	journal    Journal

	promptReply string
	emptyReply  string
	errorReply  string

	mu    sync.Mutex
	idle  *sync.Cond
	lanes map[string]*lane
}

// lane is the FIFO of pending events for one identity. A lane exists only
// while its goroutine is running.
type lane struct {
	queue []job
}

type job struct {
	ctx      context.Context
	msg      router.Message
	decision trigger.Decision
	done     chan Outcome
}

func New(cfg Config) (*Engine, error) {
	if cfg.History == nil || cfg.Composer == nil || cfg.Provider == nil || cfg.Emitter == nil || cfg.Identities == nil {
		return nil, fmt.Errorf("engine: history, composer, provider, emitter and identities are required")
	}
	e := &Engine{
		history:     cfg.History,
		composer:    cfg.Composer,
		provider:    cfg.Provider,
		model:       cfg.Model,
		emitter:     cfg.Emitter,
		identities:  cfg.Identities,
		journal:     cfg.Journal,
		promptReply: orDefault(cfg.PromptReply, DefaultPromptReply),
		emptyReply:  orDefault(cfg.EmptyReply, DefaultEmptyReply),
		errorReply:  orDefault(cfg.ErrorReply, DefaultErrorReply),
		lanes:       make(map[string]*lane),
	}
	e.idle = sync.NewCond(&e.mu)
	return e, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// IdentityKey is the history partition key for a platform user.
func IdentityKey(platform, userID string) string {
	return platform + ":" + userID
}

func scopeKey(msg router.Message) string {
	if msg.IsDirect() {
		return instructions.DirectKey
	}
	return instructions.CommunityKey(msg.Platform, msg.ScopeID)
}

// History exposes the store for housekeeping (idle sweeps).
func (e *Engine) History() *history.Store {
	return e.history
}

// appendTurn stores a validated turn. Blank content never reaches the log.
func (e *Engine) appendTurn(log *zap.Logger, identity string, role history.Role, content string) {
	t, err := history.NewTurn(role, content)
	if err != nil {
		log.Warn("turn dropped", zap.String("role", string(role)), zap.Error(err))
		return
	}
	e.history.Append(identity, t)
}

func (e *Engine) classify(msg router.Message) trigger.Decision {
	id, ok := e.identities.Identity(msg.Platform)
	if !ok {
		logger.Warn("[Engine] No identity for platform %s, ignoring message %s", msg.Platform, msg.ID)
		return trigger.Decision{}
	}
	return trigger.Classify(msg, id)
}

// Dispatch classifies msg and queues it on its identity's lane without
// waiting for the reply.
func (e *Engine) Dispatch(ctx context.Context, msg router.Message) {
	d := e.classify(msg)
	if !d.Addressed {
		logger.Trace("[Engine] Ignoring %s message %s from %s", msg.Platform, msg.ID, msg.UserID)
		return
	}
	e.enqueue(job{ctx: ctx, msg: msg, decision: d})
}

// Handle processes msg and waits for its outcome.
func (e *Engine) Handle(ctx context.Context, msg router.Message) Outcome {
	d := e.classify(msg)
	if !d.Addressed {
		return Outcome{State: Ignored}
	}
	done := make(chan Outcome, 1)
	e.enqueue(job{ctx: ctx, msg: msg, decision: d, done: done})
	return <-done
}

// Wait blocks until every queued event has been processed.
func (e *Engine) Wait() {
	e.mu.Lock()
	for len(e.lanes) > 0 {
		e.idle.Wait()
	}
	e.mu.Unlock()
}

func (e *Engine) enqueue(j job) {
	key := IdentityKey(j.msg.Platform, j.msg.UserID)

	e.mu.Lock()
	defer e.mu.Unlock()
	l, running := e.lanes[key]
	if !running {
		l = &lane{}
		e.lanes[key] = l
	}
	l.queue = append(l.queue, j)
	if !running {
		go e.drain(key, l)
	}
}

func (e *Engine) drain(key string, l *lane) {
	for {
		e.mu.Lock()
		if len(l.queue) == 0 {
			delete(e.lanes, key)
			e.idle.Broadcast()
			e.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue[0] = job{}
		l.queue = l.queue[1:]
		e.mu.Unlock()

		out := e.process(j.ctx, j.msg, j.decision)
		if j.done != nil {
			j.done <- out
		}
	}
}

func (e *Engine) process(ctx context.Context, msg router.Message, d trigger.Decision) Outcome {
	identity := IdentityKey(msg.Platform, msg.UserID)
	log := logger.L().With(
		zap.String("identity", identity),
		zap.String("channel", msg.ChannelID),
		zap.String("message", msg.ID),
	)

	if d.NeedsContent() {
		out := Outcome{State: Handled, Reply: e.promptReply}
		out.EmitErr = e.emit(ctx, log, msg, out.Reply)
		e.record(msg, identity, out)
		return out
	}

	if d.ReplyAnchor != "" {
		e.appendAnchor(log, identity, d.ReplyAnchor)
	}
	e.appendTurn(log, identity, history.RoleUser, d.Text)

	payload := prompt.Assemble(e.composer.Effective(scopeKey(msg)), e.history.Snapshot(identity))
	log.Debug("generating reply", zap.Int("payload", len(payload)))

	text, err := e.provider.Generate(ctx, payload, e.model)
	if err != nil {
		if ctx.Err() != nil {
			log.Info("generation abandoned", zap.Error(err))
			out := Outcome{State: Failed, Err: err, Abandoned: true}
			e.record(msg, identity, out)
			return out
		}
		log.Error("generation failed", zap.String("provider", e.provider.Name()), zap.Error(err))
		out := Outcome{State: Failed, Err: err, Reply: e.errorReply}
		out.EmitErr = e.emit(ctx, log, msg, out.Reply)
		e.record(msg, identity, out)
		return out
	}

	text = strings.TrimSpace(text)
	if text == "" {
		text = e.emptyReply
	}
	e.appendTurn(log, identity, history.RoleAssistant, text)

	out := Outcome{State: Handled, Reply: text}
	out.EmitErr = e.emit(ctx, log, msg, text)
	e.record(msg, identity, out)
	return out
}

// appendAnchor re-inserts the bot line being replied to, unless the log
// already ends with it.
func (e *Engine) appendAnchor(log *zap.Logger, identity, anchor string) {
	if last, ok := e.history.Last(identity); ok && last.Role == history.RoleAssistant && last.Content == anchor {
		return
	}
	e.appendTurn(log, identity, history.RoleAssistant, anchor)
}

func (e *Engine) emit(ctx context.Context, log *zap.Logger, msg router.Message, text string) error {
	if err := e.emitter.Emit(ctx, msg, text); err != nil {
		log.Warn("emit failed", zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) record(msg router.Message, identity string, out Outcome) {
	if e.journal == nil {
		return
	}
	rec := persist.EventRecord{
		Platform:  msg.Platform,
		ChannelID: msg.ChannelID,
		UserID:    msg.UserID,
		Identity:  identity,
		State:     out.State.String(),
		Reply:     out.Reply,
	}
	switch {
	case out.Abandoned:
		rec.State = "abandoned"
		rec.Error = out.Err.Error()
	case out.Err != nil:
		rec.Error = out.Err.Error()
	case out.EmitErr != nil:
		rec.Error = "emit: " + out.EmitErr.Error()
	}
	if err := e.journal.RecordEvent(rec); err != nil {
		logger.Warn("[Engine] Failed to journal event for %s: %v", identity, err)
	}
}
