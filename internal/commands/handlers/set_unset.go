// In file: internal/commands/handlers/set_unset.go
package handlers

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// The original source's set/unset handlers are simplified stubs; the
// validation semantics below (ranges, directory existence, CLI-override
// precedence) are built directly from spec.md §4.5 since there was no
// fuller reference implementation to ground them on.

// SetHandler implements `set(k=v, ...)`.
type SetHandler struct{}

func (h *SetHandler) Name() string        { return "set" }
func (h *SetHandler) Description() string { return "Change one or more session settings." }
func (h *SetHandler) Format() string      { return "!/set(key=value, ...)" }
func (h *SetHandler) Examples() []string {
	return []string{"!/set(model=gpt-4o)", "!/set(temperature=0.2)", "!/set(project-dir=/work/repo)"}
}

func (h *SetHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	if len(cmd.Args) == 0 {
		return commands.Result{Success: false, Message: "set requires at least one key=value argument"}
	}

	keys := make([]string, 0, len(cmd.Args))
	for k := range cmd.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	state := sess.State
	var applied []string

	for _, k := range keys {
		v := cmd.Args[k]
		newState, msg, ok := applyOne(state, k, v)
		if !ok {
			return commands.Result{Success: false, Message: msg}
		}
		state = newState
		applied = append(applied, msg)
	}

	return commands.Result{Success: true, Message: strings.Join(applied, "; "), NewState: &state}
}

func applyOne(state session.State, key, value string) (session.State, string, bool) {
	switch normalizeKey(key) {
	case "model":
		return state.WithModel(value), fmt.Sprintf("Model changed to %s", value), true
	case "backend":
		if os.Getenv("STATIC_ROUTE") != "" {
			return state, "Cannot change backend: STATIC_ROUTE is set", false
		}
		return state.WithBackend(value), fmt.Sprintf("Backend changed to %s", value), true
	case "project", "projectname":
		return state.WithProject(value), fmt.Sprintf("Project changed to %s", value), true
	case "projectdir", "dir", "projectdirectory":
		expanded := expandPath(value)
		info, err := os.Stat(expanded)
		if err != nil || !info.IsDir() {
			return state, fmt.Sprintf("Directory does not exist: %s", value), false
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			abs = expanded
		}
		return state.WithProjectDir(abs), fmt.Sprintf("Project directory changed to %s", abs), true
	case "temperature":
		f, ok := commands.ParseFloat(value)
		if !ok || f < 0 || f > 1 {
			return state, "temperature must be a number in [0, 1]", false
		}
		return state.WithTemperature(f), fmt.Sprintf("Temperature changed to %.2f", f), true
	case "topp":
		f, ok := commands.ParseFloat(value)
		if !ok || f < 0 || f > 1 {
			return state, "top_p must be a number in [0, 1]", false
		}
		return state.WithTopP(f), fmt.Sprintf("top_p changed to %.2f", f), true
	case "reasoningeffort", "reasoning":
		if os.Getenv("THINKING_BUDGET") != "" {
			return state, "Cannot change reasoning-effort: THINKING_BUDGET is set", false
		}
		effort := session.ReasoningEffort(strings.ToLower(value))
		switch effort {
		case session.EffortLow, session.EffortMedium, session.EffortHigh, session.EffortNone:
		default:
			return state, "reasoning-effort must be one of low, medium, high, none", false
		}
		return state.WithReasoningEffort(effort), fmt.Sprintf("Reasoning effort changed to %s", effort), true
	case "thinkingbudget", "budget":
		if os.Getenv("THINKING_BUDGET") != "" {
			return state, "Cannot change thinking-budget: THINKING_BUDGET is set", false
		}
		n, ok := commands.ParseInt(value)
		if !ok || n < 0 {
			return state, "thinking-budget must be a non-negative integer", false
		}
		return state.WithThinkingBudget(n), fmt.Sprintf("Thinking budget changed to %d", n), true
	case "redactapikeysinprompts":
		_, ok := commands.ParseBoolArgument(value)
		if !ok {
			return state, "redact-api-keys-in-prompts must be true/false", false
		}
		return state, fmt.Sprintf("redact-api-keys-in-prompts set to %s", value), true
	case "loopdetectionenabled":
		b, ok := commands.ParseBoolArgument(value)
		if !ok {
			return state, "loop-detection must be true/false", false
		}
		return state.WithLoopDetectionEnabled(b), fmt.Sprintf("Loop detection set to %v", b), true
	default:
		return state, fmt.Sprintf("Unknown parameter: %s", key), false
	}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(k, "-", ""), "_", ""))
}

func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// UnsetHandler implements `unset(k)`.
type UnsetHandler struct{}

func (h *UnsetHandler) Name() string        { return "unset" }
func (h *UnsetHandler) Description() string { return "Clear a previously-set session setting." }
func (h *UnsetHandler) Format() string      { return "!/unset(key)" }
func (h *UnsetHandler) Examples() []string  { return []string{"!/unset(model)", "!/unset(project-dir)"} }

func (h *UnsetHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	key := cmd.StringArg("key", "name")
	if key == "" && len(cmd.Positional) > 0 {
		key = cmd.Positional[0]
	}
	if key == "" {
		return commands.Result{Success: false, Message: "unset requires a key"}
	}

	state := sess.State
	switch normalizeKey(key) {
	case "model":
		state = state.WithModel("")
	case "backend":
		if os.Getenv("STATIC_ROUTE") != "" {
			return commands.Result{Success: false, Message: "Cannot change backend: STATIC_ROUTE is set"}
		}
		state = state.WithBackend("")
	case "project", "projectname":
		state = state.WithProject("")
	case "projectdir", "dir", "projectdirectory":
		state = state.WithProjectDir("")
	case "temperature":
		state.ReasoningConfig.Temperature = nil
	case "topp":
		state.ReasoningConfig.TopP = nil
	case "reasoningeffort", "reasoning":
		if os.Getenv("THINKING_BUDGET") != "" {
			return commands.Result{Success: false, Message: "Cannot change reasoning-effort: THINKING_BUDGET is set"}
		}
		state = state.WithReasoningEffort("")
	case "thinkingbudget", "budget":
		if os.Getenv("THINKING_BUDGET") != "" {
			return commands.Result{Success: false, Message: "Cannot change thinking-budget: THINKING_BUDGET is set"}
		}
		state.ReasoningConfig.ThinkingBudget = nil
	default:
		return commands.Result{Success: false, Message: fmt.Sprintf("Unknown parameter: %s", key)}
	}

	return commands.Result{Success: true, Message: fmt.Sprintf("%s cleared", key), NewState: &state}
}
