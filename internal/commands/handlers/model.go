// In file: internal/commands/handlers/model.go
package handlers

import (
	"fmt"
	"os"
	"strings"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// ModelHandler implements `model(name=...)`. Grounded on
// model_command_handler.py / model_command.py: an empty/absent name
// unsets the model; a "backend:model" form splits on the first colon.
type ModelHandler struct{}

func (h *ModelHandler) Name() string        { return "model" }
func (h *ModelHandler) Description() string { return "Set or unset the active model, optionally pinning its backend." }
func (h *ModelHandler) Format() string      { return "!/model(name=[backend:]model)" }
func (h *ModelHandler) Examples() []string  { return []string{"!/model(name=gpt-4o)", "!/model(name=openai:gpt-4o)", "!/model"} }

func (h *ModelHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	if os.Getenv("STATIC_ROUTE") != "" {
		name := strings.TrimSpace(cmd.StringArg("name"))
		if name != "" {
			return commands.Result{Success: false, Message: "Cannot change model: STATIC_ROUTE is set"}
		}
	}

	name := strings.TrimSpace(cmd.StringArg("name"))
	if name == "" {
		newState := sess.State.WithModel("")
		return commands.Result{Success: true, Message: "Model unset", NewState: &newState}
	}

	var backend, model string
	if idx := strings.Index(name, ":"); idx >= 0 {
		backend, model = name[:idx], name[idx+1:]
	} else {
		model = name
	}

	newState := sess.State.WithModel(model)
	msgParts := []string{}
	if backend != "" {
		newState = newState.WithBackend(backend)
		msgParts = append(msgParts, fmt.Sprintf("Backend changed to %s", backend))
	}
	msgParts = append(msgParts, fmt.Sprintf("Model changed to %s", model))

	return commands.Result{Success: true, Message: strings.Join(msgParts, "; "), NewState: &newState}
}
