// In file: internal/commands/handlers/reasoning_aliases.go
package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// ReasoningAliasEntry pairs a wildcard model pattern with its named modes,
// loaded from config.yaml's reasoning_aliases block. Grounded on
// reasoning_aliases.py's ReasoningAliasesConfig.reasoning_alias_settings.
type ReasoningAliasEntry struct {
	Model string            `yaml:"model"`
	Modes map[string]string `yaml:"modes"` // mode name -> effort/alias value
}

// ReasoningAliasesConfig is the full alias table, shared by every
// reasoning-alias handler below.
type ReasoningAliasesConfig struct {
	Entries []ReasoningAliasEntry
}

func (c *ReasoningAliasesConfig) lookup(modelID, mode string) (string, bool) {
	for _, e := range c.Entries {
		if ok, _ := filepath.Match(e.Model, modelID); ok {
			if v, ok := e.Modes[mode]; ok {
				return v, true
			}
		}
	}
	return "", false
}

func newReasoningAliasHandler(name string, mode string, aliases []string, cfg *ReasoningAliasesConfig) *reasoningAliasHandler {
	return &reasoningAliasHandler{name: name, mode: mode, aliases: aliases, cfg: cfg}
}

// reasoningAliasHandler backs the `max`/`medium`/`low`/`no-think` commands:
// each selects a preconfigured reasoning mode by wildcard-matching the
// current model id against the alias table.
type reasoningAliasHandler struct {
	name    string
	mode    string
	aliases []string
	cfg     *ReasoningAliasesConfig
}

func (h *reasoningAliasHandler) Name() string        { return h.name }
func (h *reasoningAliasHandler) Description() string { return fmt.Sprintf("Select the %q reasoning mode for the current model.", h.mode) }
func (h *reasoningAliasHandler) Format() string      { return fmt.Sprintf("!/%s", h.name) }
func (h *reasoningAliasHandler) Examples() []string   { return []string{fmt.Sprintf("!/%s", h.name)} }

func (h *reasoningAliasHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	modelID := sess.State.BackendConfig.Model
	if modelID == "" {
		return commands.Result{Success: false, Message: fmt.Sprintf("No active model to apply %q reasoning to.", h.mode)}
	}
	val, ok := h.cfg.lookup(modelID, h.mode)
	if !ok {
		return commands.Result{Success: false, Message: fmt.Sprintf("No %q reasoning alias configured for model %s.", h.mode, modelID)}
	}
	newState := sess.State.WithReasoningEffort(session.ReasoningEffort(val))
	return commands.Result{Success: true, Message: fmt.Sprintf("Reasoning mode set to %s (%s) for %s", h.mode, val, modelID), NewState: &newState}
}

// aliasHandler wraps another Handler under a different registered name, so
// NoThinkAliases can all dispatch to one underlying implementation the way
// the original registers several decorator names for one handler class.
type aliasHandler struct {
	commands.Handler
	name string
}

func (a *aliasHandler) Name() string   { return a.name }
func (a *aliasHandler) Format() string { return fmt.Sprintf("!/%s", a.name) }

// NewAlias returns h registered under an additional name.
func NewAlias(h commands.Handler, name string) commands.Handler {
	return &aliasHandler{Handler: h, name: name}
}

// NewMaxHandler, NewMediumHandler, NewLowHandler, NewNoThinkHandler build
// the four reasoning-alias commands over a shared config.
func NewMaxHandler(cfg *ReasoningAliasesConfig) commands.Handler {
	return newReasoningAliasHandler("max", "high", nil, cfg)
}

func NewMediumHandler(cfg *ReasoningAliasesConfig) commands.Handler {
	return newReasoningAliasHandler("medium", "medium", nil, cfg)
}

func NewLowHandler(cfg *ReasoningAliasesConfig) commands.Handler {
	return newReasoningAliasHandler("low", "low", nil, cfg)
}

// NoThinkHandler carries the alias list no-thinking/no-reasoning/
// disable-thinking/disable-reasoning verbatim from reasoning_aliases.py;
// NoThinkAliases lets the registry register this one handler under every
// alias name.
var NoThinkAliases = []string{"no-think", "no-thinking", "no-reasoning", "disable-thinking", "disable-reasoning"}

func NewNoThinkHandler(cfg *ReasoningAliasesConfig) commands.Handler {
	return newReasoningAliasHandler("no-think", "none", NoThinkAliases, cfg)
}

// ProviderHandler implements `provider(provider_name)`.
type ProviderHandler struct{}

func (h *ProviderHandler) Name() string        { return "provider" }
func (h *ProviderHandler) Description() string { return "Override the session's provider preference." }
func (h *ProviderHandler) Format() string      { return "!/provider(provider_name)" }
func (h *ProviderHandler) Examples() []string  { return []string{"!/provider(openai)"} }

func (h *ProviderHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	name := strings.TrimSpace(cmd.StringArg("provider_name", "name"))
	if name == "" {
		return commands.Result{Success: false, Message: "provider requires a provider_name"}
	}
	newState := sess.State.WithProvider(name)
	return commands.Result{Success: true, Message: fmt.Sprintf("Provider set to %s", name), NewState: &newState}
}

// ModeHandler implements `mode(mode_name)`: looks up a named mode directly
// in the alias settings (unlike max/medium/low, the mode name itself is
// user-supplied rather than fixed).
type ModeHandler struct {
	Cfg *ReasoningAliasesConfig
}

func (h *ModeHandler) Name() string        { return "mode" }
func (h *ModeHandler) Description() string { return "Select a named reasoning mode for the current model." }
func (h *ModeHandler) Format() string      { return "!/mode(mode_name)" }
func (h *ModeHandler) Examples() []string  { return []string{"!/mode(balanced)"} }

func (h *ModeHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	name := strings.TrimSpace(cmd.StringArg("mode_name", "name"))
	if name == "" && len(cmd.Positional) > 0 {
		name = cmd.Positional[0]
	}
	if name == "" {
		return commands.Result{Success: false, Message: "mode requires a mode_name"}
	}
	modelID := sess.State.BackendConfig.Model
	val, ok := h.Cfg.lookup(modelID, name)
	if !ok {
		return commands.Result{Success: false, Message: fmt.Sprintf("No mode %q configured for model %s.", name, modelID)}
	}
	newState := sess.State.WithMode(name).WithReasoningEffort(session.ReasoningEffort(val))
	return commands.Result{Success: true, Message: fmt.Sprintf("Mode set to %s (%s)", name, val), NewState: &newState}
}
