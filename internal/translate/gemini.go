// In file: internal/translate/gemini.go
package translate

import (
	"encoding/json"
	"strings"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

// Gemini translates between the canonical ChatRequest/ChatResponse and the
// Gemini REST wire format (generateContent request/response JSON), adapted
// from the role-mapping and content-building idiom in the teacher's
// gemini_client.go (toGeminiContentHistory, parseGeminiResponse) but
// working directly against the wire JSON shape rather than the genai SDK's
// in-memory objects, since the Translation Service's job is bytes-in/
// bytes-out conversion, not calling the API.
type Gemini struct{}

type geminiPart struct {
	Text             string                `json:"text,omitempty"`
	InlineData       *geminiInlineData     `json:"inlineData,omitempty"`
	FileData         *geminiFileData       `json:"fileData,omitempty"`
	FunctionCall     *geminiFunctionCall   `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResult `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResult struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate    `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata,omitempty"`
}

// ToWire converts a canonical ChatRequest into a Gemini generateContent
// request body. The canonical `system` role is lifted into
// systemInstruction per Gemini's documented convention rather than
// prepended as a user turn.
func (Gemini) ToWire(req proxytypes.ChatRequest) []byte {
	wire := geminiRequest{}

	for _, m := range req.Messages {
		if m.Role == proxytypes.RoleSystem {
			wire.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		wire.Contents = append(wire.Contents, messageToGeminiContent(m))
	}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens > 0 || len(req.Stop) > 0 {
		wire.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		}
	}

	b, _ := json.Marshal(wire)
	return b
}

func messageToGeminiContent(m proxytypes.Message) geminiContent {
	role := "user"
	if m.Role == proxytypes.RoleAssistant || m.Role == proxytypes.RoleModel {
		role = "model"
	}

	content := geminiContent{Role: role}
	if m.HasParts() {
		for _, p := range m.Parts {
			content.Parts = append(content.Parts, partToGemini(p))
		}
		return content
	}

	if m.Role == proxytypes.RoleTool || m.Role == proxytypes.RoleFunction {
		content.Role = "function"
		content.Parts = []geminiPart{{FunctionResponse: &geminiFunctionResult{Name: m.ToolCallID, Response: map[string]any{"content": m.Content}}}}
		return content
	}

	content.Parts = []geminiPart{{Text: m.Content}}
	for _, tc := range m.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		content.Parts = append(content.Parts, geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Function.Name, Args: args}})
	}
	return content
}

func partToGemini(p proxytypes.Part) geminiPart {
	switch p.Type {
	case proxytypes.PartImage:
		if p.Data != "" {
			return geminiPart{InlineData: &geminiInlineData{MimeType: p.MimeType, Data: p.Data}}
		}
		return geminiPart{FileData: &geminiFileData{MimeType: p.MimeType, FileURI: p.URL}}
	case proxytypes.PartToolResponse:
		return geminiPart{FunctionResponse: &geminiFunctionResult{Name: p.ToolName, Response: map[string]any{"content": p.ToolResult}}}
	default:
		return geminiPart{Text: p.Text}
	}
}

// FromWireRequest parses a Gemini generateContent request body (model comes
// from the URL path, not the body, so callers pass it through separately)
// into the canonical ChatRequest.
func (Gemini) FromWireRequest(raw []byte, model string) (proxytypes.ChatRequest, error) {
	var wire geminiRequest
	if err := json.Unmarshal(raw, &wire); err != nil {
		return proxytypes.ChatRequest{}, err
	}

	out := proxytypes.ChatRequest{Model: model}
	if wire.SystemInstruction != nil {
		var sys strings.Builder
		for _, p := range wire.SystemInstruction.Parts {
			sys.WriteString(p.Text)
		}
		out.Messages = append(out.Messages, proxytypes.Message{Role: proxytypes.RoleSystem, Content: sys.String()})
	}

	for _, c := range wire.Contents {
		role := proxytypes.RoleUser
		switch c.Role {
		case "model":
			role = proxytypes.RoleAssistant
		case "function":
			role = proxytypes.RoleTool
		}

		msg := proxytypes.Message{Role: role}
		var text strings.Builder
		for _, p := range c.Parts {
			switch {
			case p.Text != "":
				text.WriteString(p.Text)
			case p.FunctionCall != nil:
				args, _ := json.Marshal(p.FunctionCall.Args)
				msg.ToolCalls = append(msg.ToolCalls, proxytypes.ToolCall{
					ID:       "gemini-toolcall-" + p.FunctionCall.Name,
					Type:     "function",
					Function: proxytypes.ToolCallFunction{Name: p.FunctionCall.Name, Arguments: string(args)},
				})
			case p.FunctionResponse != nil:
				msg.ToolCallID = p.FunctionResponse.Name
				if content, ok := p.FunctionResponse.Response["content"].(string); ok {
					text.WriteString(content)
				}
			case p.InlineData != nil:
				msg.Parts = append(msg.Parts, proxytypes.Part{Type: proxytypes.PartImage, MimeType: p.InlineData.MimeType, Data: p.InlineData.Data})
			case p.FileData != nil:
				msg.Parts = append(msg.Parts, proxytypes.Part{Type: proxytypes.PartImage, MimeType: p.FileData.MimeType, URL: p.FileData.FileURI})
			}
		}
		if len(msg.Parts) == 0 {
			msg.Content = text.String()
		} else if text.Len() > 0 {
			msg.Parts = append([]proxytypes.Part{{Type: proxytypes.PartText, Text: text.String()}}, msg.Parts...)
		}
		out.Messages = append(out.Messages, msg)
	}

	if wire.GenerationConfig != nil {
		out.Temperature = wire.GenerationConfig.Temperature
		out.TopP = wire.GenerationConfig.TopP
		out.MaxTokens = wire.GenerationConfig.MaxOutputTokens
		out.Stop = wire.GenerationConfig.StopSequences
	}
	return out, nil
}

// FromWireResponse parses a Gemini generateContent response body into the
// canonical ChatResponse.
func (Gemini) FromWireResponse(raw []byte, model string) (proxytypes.ChatResponse, error) {
	var wire geminiResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return proxytypes.ChatResponse{}, err
	}

	out := proxytypes.ChatResponse{Object: "chat.completion", Model: model}
	if wire.UsageMetadata != nil {
		out.Usage = proxytypes.Usage{
			PromptTokens:     wire.UsageMetadata.PromptTokenCount,
			CompletionTokens: wire.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wire.UsageMetadata.TotalTokenCount,
		}
	}

	for _, cand := range wire.Candidates {
		var text strings.Builder
		var toolCalls []proxytypes.ToolCall
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				text.WriteString(p.Text)
			}
			if p.FunctionCall != nil {
				args, _ := json.Marshal(p.FunctionCall.Args)
				toolCalls = append(toolCalls, proxytypes.ToolCall{
					ID:       "gemini-toolcall-" + p.FunctionCall.Name,
					Type:     "function",
					Function: proxytypes.ToolCallFunction{Name: p.FunctionCall.Name, Arguments: string(args)},
				})
			}
		}
		msg := proxytypes.Message{Role: proxytypes.RoleAssistant, Content: strings.TrimSpace(text.String()), ToolCalls: toolCalls}
		out.Choices = append(out.Choices, proxytypes.Choice{Index: cand.Index, Message: msg, FinishReason: strings.ToLower(cand.FinishReason)})
	}
	return out, nil
}

// ToWireResponse serializes a canonical ChatResponse back into a Gemini
// generateContent response body, the mirror of FromWireResponse, used when
// replying to a Gemini-compatible client.
func (Gemini) ToWireResponse(resp proxytypes.ChatResponse) []byte {
	wire := geminiResponse{
		UsageMetadata: &geminiUsageMetadata{
			PromptTokenCount:     resp.Usage.PromptTokens,
			CandidatesTokenCount: resp.Usage.CompletionTokens,
			TotalTokenCount:      resp.Usage.TotalTokens,
		},
	}
	for _, ch := range resp.Choices {
		wire.Candidates = append(wire.Candidates, geminiCandidate{
			Content:      messageToGeminiContent(ch.Message),
			FinishReason: strings.ToUpper(ch.FinishReason),
			Index:        ch.Index,
		})
	}
	b, _ := json.Marshal(wire)
	return b
}
