package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/kayz/xenobot/internal/instructions"
	"github.com/kayz/xenobot/internal/logger"
	"github.com/kayz/xenobot/internal/router"
)

const (
	replyNotPermitted = "You don't have permission to use this command."
	replyEmptyStyle   = "Please provide a style, for example: /actlike a pirate"
	replyStyleChanged = "AI acting style changed to: "
	replyForgotten    = "I've forgotten our recent conversation."
)

// HandleCommand executes a configuration command and returns the text shown
// to the issuer.
func (e *Engine) HandleCommand(ctx context.Context, cmd router.Command) router.Response {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cmd.Name), "/"))
	logger.Debug("[Engine] Command /%s from %s:%s", name, cmd.Platform, cmd.UserID)

	switch name {
	case "actlike":
		return e.actLike(cmd)
	case "forget":
		e.history.Clear(IdentityKey(cmd.Platform, cmd.UserID))
		return router.Response{Text: replyForgotten}
	default:
		return router.Response{Text: "Unknown command: /" + name}
	}
}

func (e *Engine) actLike(cmd router.Command) router.Response {
	scope := instructions.Scope{
		Kind:     instructions.Community,
		Platform: cmd.Platform,
		ID:       cmd.ScopeID,
		OwnerID:  cmd.ScopeOwnerID,
	}
	if cmd.ScopeID == "" {
		scope.Kind = instructions.Direct
	}
	actor := instructions.Actor{Platform: cmd.Platform, ID: cmd.UserID, Admin: cmd.Admin}

	style := strings.TrimSpace(cmd.Args)
	err := e.composer.SetOverride(actor, scope, style)
	switch {
	case errors.Is(err, instructions.ErrNotPermitted):
		return router.Response{Text: replyNotPermitted}
	case errors.Is(err, instructions.ErrEmptyStyle):
		return router.Response{Text: replyEmptyStyle}
	case err != nil:
		logger.Error("[Engine] actlike failed: %v", err)
		return router.Response{Text: e.errorReply}
	}
	return router.Response{Text: replyStyleChanged + style}
}
