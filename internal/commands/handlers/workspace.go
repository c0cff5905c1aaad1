// In file: internal/commands/handlers/workspace.go
package handlers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/commands"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/session"
)

// WorkspaceHandler implements `workspace(path?)`. Grounded on
// workspace_command_handler.py: with no path, report the current
// project_dir; otherwise expand ~/env-vars, validate it's a directory,
// resolve to an absolute path, and install it via WithProjectDir.
type WorkspaceHandler struct{}

func (h *WorkspaceHandler) Name() string        { return "workspace" }
func (h *WorkspaceHandler) Description() string { return "Show or change the project working directory." }
func (h *WorkspaceHandler) Format() string      { return "!/workspace(path?)" }
func (h *WorkspaceHandler) Examples() []string  { return []string{"!/workspace", "!/workspace(path=~/code/myrepo)"} }

func (h *WorkspaceHandler) Handle(cmd commands.Command, sess *session.Session, intro commands.Introspection) commands.Result {
	path := cmd.StringArg("path")
	if path == "" && len(cmd.Positional) > 0 {
		path = cmd.Positional[0]
	}

	if path == "" {
		if sess.State.ProjectDir == "" {
			return commands.Result{Success: true, Message: "No project directory is currently set."}
		}
		return commands.Result{Success: true, Message: fmt.Sprintf("Current project directory: %s", sess.State.ProjectDir)}
	}

	expanded := expandPath(path)
	info, err := os.Stat(expanded)
	if err != nil || !info.IsDir() {
		return commands.Result{Success: false, Message: fmt.Sprintf("Not a valid directory: %s", path)}
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		abs = expanded
	}

	newState := sess.State.WithProjectDir(abs)
	return commands.Result{Success: true, Message: fmt.Sprintf("Project directory set to %s", abs), NewState: &newState}
}
