// In file: internal/backend/subprocess_batch.go
package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// SubprocessBatchConnector runs one CLI invocation per request, writing the
// full prompt to a CURRENT_PROMPT.md file in the caller's project directory
// and referencing it with a short `-p` argument rather than passing the
// whole prompt on the command line. Grounded on
// original_source/src/connectors/gemini_cli_batch.py's GeminiCliBatchConnector
// and the _build_gemini_env sanitization in gemini_cli_direct.py.
type SubprocessBatchConnector struct {
	name       string
	executable string
	models     []string
	timeout    time.Duration
}

var _ Connector = (*SubprocessBatchConnector)(nil)

func NewSubprocessBatchConnector(name, executable string, knownModels []string) *SubprocessBatchConnector {
	timeout := 600 * time.Second
	if v := os.Getenv("GEMINI_CLI_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	return &SubprocessBatchConnector{name: name, executable: executable, models: knownModels, timeout: timeout}
}

func (c *SubprocessBatchConnector) Kind() Kind                { return KindSubprocessBatch }
func (c *SubprocessBatchConnector) AvailableModels() []string { return c.models }
func (c *SubprocessBatchConnector) Initialize(ctx context.Context, apiKey string) error { return nil }
func (c *SubprocessBatchConnector) Shutdown(ctx context.Context) error                  { return nil }

// ChatCompletions requires req.ExtraParams["project_dir"] to be set; the
// caller (Request Pipeline) is responsible for rejecting the call before it
// reaches the connector when no project directory has been configured via
// `!/set(project-dir=...)`, matching the batch connector's hard dependency
// on a working directory.
func (c *SubprocessBatchConnector) ChatCompletions(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (proxytypes.ChatResponse, error) {
	projectDir, _ := req.ExtraParams["project_dir"].(string)
	if projectDir == "" {
		return proxytypes.ChatResponse{}, &Error{StatusCode: 400, Body: "project-dir must be set before using " + c.name}
	}

	prompt := renderPrompt(req.Messages)
	promptFile := filepath.Join(projectDir, "CURRENT_PROMPT.md")
	if err := os.WriteFile(promptFile, []byte(prompt), 0o644); err != nil {
		return proxytypes.ChatResponse{}, fmt.Errorf("write prompt file: %w", err)
	}
	defer os.Remove(promptFile)

	args := []string{}
	if req.Model != "" {
		args = append(args, "-m", req.Model)
	}
	shortPrompt := fmt.Sprintf("Execute task described in ./%s file", filepath.Base(promptFile))
	args = append(args, "-p", shortPrompt)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.executable, args...)
	cmd.Dir = projectDir
	cmd.Env = sanitizedEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return proxytypes.ChatResponse{}, &Error{StatusCode: 504, Body: fmt.Sprintf("%s timed out after %s", c.name, c.timeout), Retryable: true}
		}
		return proxytypes.ChatResponse{}, &Error{StatusCode: 502, Body: stderr.String(), Err: err}
	}

	content := stdout.String()
	return proxytypes.ChatResponse{
		ID:      "chatcmpl-" + c.name,
		Object:  "chat.completion",
		Model:   req.Model,
		Choices: []proxytypes.Choice{{Message: proxytypes.Message{Role: proxytypes.RoleAssistant, Content: content}, FinishReason: "stop"}},
	}, nil
}

// ChatCompletionsStream fakes a single-chunk stream over the one-shot
// result: the subprocess must finish before anything can be emitted, so
// there is no genuine incremental delivery, matching the batch connector's
// synthesized stream chunks in the original.
func (c *SubprocessBatchConnector) ChatCompletionsStream(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (<-chan StreamEvent, error) {
	resp, err := c.ChatCompletions(ctx, req, apiKey)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamEvent, 2)
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	out <- StreamEvent{Chunk: proxytypes.StreamChunk{ID: resp.ID, Model: resp.Model, ContentDelta: content}}
	out <- StreamEvent{Chunk: proxytypes.StreamChunk{ID: resp.ID, Model: resp.Model, FinishReason: "stop"}, Done: true}
	close(out)
	return out, nil
}

// sanitizedEnv builds a minimal environment for the child process carrying
// only PATH and HOME-equivalent variables, not the full parent environment
// (which may hold upstream secrets the CLI has no business seeing).
func sanitizedEnv() []string {
	keep := []string{"PATH", "HOME", "USERPROFILE", "APPDATA", "TEMP", "TMP"}
	env := make([]string, 0, len(keep))
	for _, k := range keep {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	return env
}

func renderPrompt(msgs []proxytypes.Message) string {
	var b bytes.Buffer
	for _, m := range msgs {
		fmt.Fprintf(&b, "### %s\n%s\n\n", m.Role, m.Content)
	}
	return b.String()
}
