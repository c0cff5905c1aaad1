// In file: internal/backend/gemini_native.go
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// GeminiNativeConnector dispatches to Google's Gemini API through the
// official genai SDK rather than hand-rolled REST JSON, so the client
// library does the request signing, retry-on-transient-error, and
// model-discovery work instead of this proxy re-implementing it. Grounded
// on the teacher's gemini_client.go (GeminiClient.Generate/GenerateStream,
// toGeminiContentHistory, parseGeminiResponse), retargeted from the
// teacher's llm.Message/tools.Tool types onto proxytypes and from a
// single-model client onto one client per requested model, since a
// connector in this proxy serves every model a backend exposes rather than
// one model fixed at construction.
type GeminiNativeConnector struct {
	name   string
	client *genai.Client
	models []string
}

var _ Connector = (*GeminiNativeConnector)(nil)

func NewGeminiNativeConnector(name string, knownModels []string) *GeminiNativeConnector {
	return &GeminiNativeConnector{name: name, models: knownModels}
}

func (c *GeminiNativeConnector) Kind() Kind { return KindGeminiNative }

func (c *GeminiNativeConnector) AvailableModels() []string { return c.models }

// Initialize opens the genai client and, when the caller configured no
// static model list, discovers one by listing every model the key can see
// that supports generateContent.
func (c *GeminiNativeConnector) Initialize(ctx context.Context, apiKey string) error {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return fmt.Errorf("create gemini client: %w", err)
	}
	c.client = client

	if len(c.models) > 0 {
		return nil
	}

	iter := client.ListModels(ctx)
	for {
		m, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("list gemini models: %w", err)
		}
		if supportsGenerateContent(m) {
			c.models = append(c.models, strings.TrimPrefix(m.Name, "models/"))
		}
	}
	return nil
}

func supportsGenerateContent(m *genai.ModelInfo) bool {
	for _, method := range m.SupportedGenerationMethods {
		if method == "generateContent" {
			return true
		}
	}
	return false
}

func (c *GeminiNativeConnector) Shutdown(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *GeminiNativeConnector) newChat(req proxytypes.ChatRequest) (*genai.ChatSession, genai.Text, error) {
	if len(req.Messages) == 0 {
		return nil, "", errors.New("no messages to send to gemini")
	}

	model := c.client.GenerativeModel(req.Model)
	if req.Temperature != nil {
		model.SetTemperature(float32(*req.Temperature))
	}
	if req.TopP != nil {
		model.SetTopP(float32(*req.TopP))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	for _, m := range req.Messages {
		if m.Role == proxytypes.RoleSystem {
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.Content)}}
		}
	}
	if len(req.Tools) > 0 {
		model.Tools = toGenaiTools(req.Tools)
	}

	chat := model.StartChat()
	chat.History = toGenaiHistory(req.Messages)

	last := req.Messages[len(req.Messages)-1]
	return chat, genai.Text(last.Content), nil
}

func (c *GeminiNativeConnector) ChatCompletions(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (proxytypes.ChatResponse, error) {
	chat, prompt, err := c.newChat(req)
	if err != nil {
		return proxytypes.ChatResponse{}, &Error{StatusCode: 400, Body: err.Error()}
	}

	resp, err := chat.SendMessage(ctx, prompt)
	if err != nil {
		return proxytypes.ChatResponse{}, classifyGenaiErr(err)
	}
	return genaiResponseToChat(resp, req.Model)
}

func (c *GeminiNativeConnector) ChatCompletionsStream(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (<-chan StreamEvent, error) {
	chat, prompt, err := c.newChat(req)
	if err != nil {
		return nil, &Error{StatusCode: 400, Body: err.Error()}
	}

	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		iter := chat.SendMessageStream(ctx, prompt)
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				out <- StreamEvent{Chunk: proxytypes.StreamChunk{Model: req.Model, FinishReason: "stop"}, Done: true}
				return
			}
			if err != nil {
				out <- StreamEvent{Chunk: proxytypes.StreamChunk{Err: classifyGenaiErr(err)}}
				return
			}
			out <- StreamEvent{Chunk: proxytypes.StreamChunk{Model: req.Model, ContentDelta: textOf(resp)}}
		}
	}()
	return out, nil
}

func textOf(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

func genaiResponseToChat(resp *genai.GenerateContentResponse, model string) (proxytypes.ChatResponse, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return proxytypes.ChatResponse{}, errors.New("no content returned from gemini")
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	var toolCalls []proxytypes.ToolCall
	for _, part := range candidate.Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text.WriteString(string(v))
		case genai.FunctionCall:
			args, _ := json.Marshal(v.Args)
			toolCalls = append(toolCalls, proxytypes.ToolCall{
				ID:       "gemini-toolcall-" + v.Name,
				Type:     "function",
				Function: proxytypes.ToolCallFunction{Name: v.Name, Arguments: string(args)},
			})
		}
	}

	out := proxytypes.ChatResponse{
		Object: "chat.completion",
		Model:  model,
		Choices: []proxytypes.Choice{{
			Message:      proxytypes.Message{Role: proxytypes.RoleAssistant, Content: strings.TrimSpace(text.String()), ToolCalls: toolCalls},
			FinishReason: strings.ToLower(string(candidate.FinishReason)),
		}},
	}
	if resp.UsageMetadata != nil {
		out.Usage = proxytypes.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func toGenaiHistory(messages []proxytypes.Message) []*genai.Content {
	var history []*genai.Content
	for _, m := range messages[:len(messages)-1] {
		if m.Role == proxytypes.RoleSystem {
			continue
		}
		role := "user"
		if m.Role == proxytypes.RoleAssistant || m.Role == proxytypes.RoleModel {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return history
}

func toGenaiTools(specs []proxytypes.ToolSpec) []*genai.Tool {
	var out []*genai.Tool
	for _, t := range specs {
		out = append(out, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  convertJSONSchema(t.Function.Parameters),
			}},
		})
	}
	return out
}

// convertJSONSchema adapts a tool's JSON Schema (decoded generically via
// encoding/json into map[string]any) into the genai SDK's typed Schema,
// since the SDK has no facility to accept a raw schema document directly.
func convertJSONSchema(raw map[string]any) *genai.Schema {
	if raw == nil {
		return nil
	}
	schema := &genai.Schema{}
	if desc, ok := raw["description"].(string); ok {
		schema.Description = desc
	}
	switch raw["type"] {
	case "object":
		schema.Type = genai.TypeObject
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
	}
	if req, ok := raw["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for k, v := range props {
			if sub, ok := v.(map[string]any); ok {
				schema.Properties[k] = convertJSONSchema(sub)
			}
		}
	}
	return schema
}

// classifyGenaiErr wraps a genai SDK error as a backend.Error; the SDK
// surfaces upstream gRPC status rather than an HTTP status, so every
// failure is treated as retryable except cancellation, matching the
// Failover Engine's stdlib context.Canceled/DeadlineExceeded check.
func classifyGenaiErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Err: err, Retryable: false}
	}
	return &Error{Err: err, Retryable: true}
}
