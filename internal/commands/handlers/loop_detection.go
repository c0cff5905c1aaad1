// In file: internal/commands/handlers/loop_detection.go
package handlers

import (
	"fmt"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// LoopDetectionHandler implements `loop-detection(enabled=bool)` and, via
// the Kind field, `tool-loop-detection(enabled=bool)`. Grounded on
// loop_detection_command_handler.py's shared _parse_bool_argument helper
// (commands.ParseBoolArgument), recognizing either an explicit `enabled=`
// key or the first positional boolean-like value.
type LoopDetectionHandler struct {
	ToolVariant bool
}

func (h *LoopDetectionHandler) Name() string {
	if h.ToolVariant {
		return "tool-loop-detection"
	}
	return "loop-detection"
}

func (h *LoopDetectionHandler) Description() string {
	if h.ToolVariant {
		return "Enable or disable repeated tool-call loop detection."
	}
	return "Enable or disable degenerate conversational loop detection."
}

func (h *LoopDetectionHandler) Format() string {
	return fmt.Sprintf("!/%s(enabled=true|false)", h.Name())
}

func (h *LoopDetectionHandler) Examples() []string {
	return []string{fmt.Sprintf("!/%s(enabled=false)", h.Name()), fmt.Sprintf("!/%s(true)", h.Name())}
}

func (h *LoopDetectionHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	enabled, ok := cmd.BoolArg("enabled")
	if !ok {
		return commands.Result{Success: false, Message: fmt.Sprintf("%s requires enabled=true|false", h.Name())}
	}

	var newState session.State
	if h.ToolVariant {
		newState = sess.State.WithToolLoopDetectionEnabled(enabled)
	} else {
		newState = sess.State.WithLoopDetectionEnabled(enabled)
	}
	return commands.Result{Success: true, Message: fmt.Sprintf("%s set to %v", h.Name(), enabled), NewState: &newState}
}

// ToolLoopModeHandler implements `tool-loop-mode(mode)`.
type ToolLoopModeHandler struct{}

func (h *ToolLoopModeHandler) Name() string        { return "tool-loop-mode" }
func (h *ToolLoopModeHandler) Description() string { return "Select the tool-call loop guard strategy." }
func (h *ToolLoopModeHandler) Format() string      { return "!/tool-loop-mode(mode=none|simple)" }
func (h *ToolLoopModeHandler) Examples() []string  { return []string{"!/tool-loop-mode(mode=simple)"} }

func (h *ToolLoopModeHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	mode := cmd.StringArg("mode")
	switch session.ToolLoopMode(mode) {
	case session.ToolLoopNone, session.ToolLoopSimple:
	default:
		return commands.Result{Success: false, Message: "mode must be one of: none, simple"}
	}
	newState := sess.State.WithToolLoopMode(session.ToolLoopMode(mode))
	return commands.Result{Success: true, Message: fmt.Sprintf("tool-loop-mode set to %s", mode), NewState: &newState}
}

// ToolLoopMaxRepeatsHandler implements `tool-loop-max-repeats(n)`.
type ToolLoopMaxRepeatsHandler struct{}

func (h *ToolLoopMaxRepeatsHandler) Name() string        { return "tool-loop-max-repeats" }
func (h *ToolLoopMaxRepeatsHandler) Description() string { return "Set the repeat count that trips the tool-call loop guard." }
func (h *ToolLoopMaxRepeatsHandler) Format() string      { return "!/tool-loop-max-repeats(n)" }
func (h *ToolLoopMaxRepeatsHandler) Examples() []string  { return []string{"!/tool-loop-max-repeats(5)"} }

func (h *ToolLoopMaxRepeatsHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	raw := cmd.StringArg("n", "value")
	n, ok := commands.ParseInt(raw)
	if !ok || n < 1 {
		return commands.Result{Success: false, Message: "tool-loop-max-repeats requires an integer >= 1"}
	}
	newState := sess.State.WithToolLoopMaxRepeats(n)
	return commands.Result{Success: true, Message: fmt.Sprintf("tool-loop-max-repeats set to %d", n), NewState: &newState}
}

// ToolLoopTTLHandler implements `tool-loop-ttl(seconds)`.
type ToolLoopTTLHandler struct{}

func (h *ToolLoopTTLHandler) Name() string        { return "tool-loop-ttl" }
func (h *ToolLoopTTLHandler) Description() string { return "Set the window (seconds) over which repeats are counted." }
func (h *ToolLoopTTLHandler) Format() string      { return "!/tool-loop-ttl(seconds)" }
func (h *ToolLoopTTLHandler) Examples() []string  { return []string{"!/tool-loop-ttl(60)"} }

func (h *ToolLoopTTLHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	raw := cmd.StringArg("seconds", "value")
	n, ok := commands.ParseInt(raw)
	if !ok || n < 1 {
		return commands.Result{Success: false, Message: "tool-loop-ttl requires an integer >= 1"}
	}
	newState := sess.State.WithToolLoopTTLSeconds(n)
	return commands.Result{Success: true, Message: fmt.Sprintf("tool-loop-ttl set to %d", n), NewState: &newState}
}
