// In file: internal/backend/httpsjson.go
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/translate"
)

const (
	defaultTimeout    = 120 * time.Second
	maxRetries        = 3
	initialRetryDelay = 2 * time.Second
)

// Dialect selects which upstream wire shape an HTTPSJSONConnector speaks.
// Grounded on the shared request/retry/SSE-scan shape across the teacher's
// openai_client.go, mistral_client.go, anthropic_client.go, and
// gemini_client.go — those four near-identical clients collapse into one
// dialect-parameterized connector rather than four near-duplicate files.
type Dialect string

const (
	DialectOpenAICompatible Dialect = "openai_compatible" // OpenAI, Mistral, most OpenAI-shaped providers
	DialectAnthropic        Dialect = "anthropic"
	DialectGeminiREST       Dialect = "gemini_rest"
)

// HTTPSJSONConnector is the HTTPS JSON connector implementation shared by
// every provider whose wire protocol is request/response (or SSE) JSON
// over HTTPS.
type HTTPSJSONConnector struct {
	name       string
	dialect    Dialect
	baseURL    string
	httpClient *http.Client
	models     []string
}

var _ Connector = (*HTTPSJSONConnector)(nil)

// NewHTTPSJSONConnector builds a connector for one upstream. baseURL is the
// chat-completions-equivalent endpoint; apiKey is supplied per-call by the
// Backend Registry & Service, never cached on the connector (spec §4.7's
// "API keys are passed per call, never cached in the connector instance").
func NewHTTPSJSONConnector(name string, dialect Dialect, baseURL string, knownModels []string) *HTTPSJSONConnector {
	return &HTTPSJSONConnector{
		name:       name,
		dialect:    dialect,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		models:     knownModels,
	}
}

func (c *HTTPSJSONConnector) Kind() Kind { return KindHTTPSJSON }

func (c *HTTPSJSONConnector) AvailableModels() []string { return c.models }

// Initialize is a no-op beyond recording the model list supplied at
// construction: most OpenAI-compatible providers don't offer a cheap
// discovery call, so the registry seeds known models from config instead.
func (c *HTTPSJSONConnector) Initialize(ctx context.Context, apiKey string) error {
	return nil
}

func (c *HTTPSJSONConnector) Shutdown(ctx context.Context) error { return nil }

func (c *HTTPSJSONConnector) ChatCompletions(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (proxytypes.ChatResponse, error) {
	payload, err := c.buildPayload(req, false)
	if err != nil {
		return proxytypes.ChatResponse{}, fmt.Errorf("build request payload: %w", err)
	}

	body, err := c.doRequest(ctx, payload, apiKey, req.Model)
	if err != nil {
		return proxytypes.ChatResponse{}, err
	}

	return c.parseResponse(body, req.Model)
}

func (c *HTTPSJSONConnector) ChatCompletionsStream(ctx context.Context, req proxytypes.ChatRequest, apiKey string) (<-chan StreamEvent, error) {
	payload, err := c.buildPayload(req, true)
	if err != nil {
		return nil, fmt.Errorf("build stream payload: %w", err)
	}

	respBody, err := c.doRequestStream(ctx, payload, apiKey, req.Model)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent)
	go c.processStream(ctx, respBody, req.Model, out)
	return out, nil
}

// buildPayload renders the request into this connector's wire dialect.
// OpenAI-compatible providers (OpenAI itself, Mistral, and most other
// OpenAI-shaped APIs) share one shape; Anthropic and Gemini get their own
// via the Translation Service's wire structs, so the three near-identical
// marshaling paths the teacher kept separate per-client collapse into one
// dialect switch here.
func (c *HTTPSJSONConnector) buildPayload(req proxytypes.ChatRequest, stream bool) (*bytes.Buffer, error) {
	req.Stream = stream

	switch c.dialect {
	case DialectAnthropic:
		return bytes.NewBuffer(translate.Anthropic{}.ToWire(req)), nil
	case DialectGeminiREST:
		return bytes.NewBuffer(translate.Gemini{}.ToWire(req)), nil
	default:
		oaReq := openai.ChatCompletionRequest{
			Model:    req.Model,
			Messages: toOpenAIMessages(req.Messages),
			Stream:   stream,
		}
		if req.MaxTokens > 0 {
			oaReq.MaxTokens = req.MaxTokens
		}
		if req.Temperature != nil {
			oaReq.Temperature = float32(*req.Temperature)
		}
		if req.TopP != nil {
			oaReq.TopP = float32(*req.TopP)
		}
		for _, t := range req.Tools {
			oaReq.Tools = append(oaReq.Tools, openai.Tool{
				Type: openai.ToolType(t.Type),
				Function: &openai.FunctionDefinition{
					Name:        t.Function.Name,
					Description: t.Function.Description,
					Parameters:  t.Function.Parameters,
				},
			})
		}

		b, err := json.Marshal(oaReq)
		if err != nil {
			return nil, err
		}
		return bytes.NewBuffer(b), nil
	}
}

func toOpenAIMessages(msgs []proxytypes.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolType(tc.Type),
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

// doRequest performs the HTTP call with exponential-backoff retries,
// grounded on mistral_client.go's doRequest: no retry on 4xx, retry on
// 5xx/network failure.
func (c *HTTPSJSONConnector) doRequest(ctx context.Context, payload *bytes.Buffer, apiKey, model string) ([]byte, error) {
	var lastErr error
	delay := initialRetryDelay

	for i := 0; i < maxRetries; i++ {
		req, err := c.newRequest(ctx, bytes.NewReader(payload.Bytes()), apiKey, model)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &Error{Retryable: true, Err: fmt.Errorf("request failed (attempt %d/%d): %w", i+1, maxRetries, err)}
			time.Sleep(delay)
			delay *= 2
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("read response body: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		retryable := resp.StatusCode >= 500 || resp.StatusCode == 408 || resp.StatusCode == 429
		lastErr = &Error{StatusCode: resp.StatusCode, Body: string(body), Retryable: retryable}
		if !retryable {
			return nil, lastErr
		}

		time.Sleep(delay)
		delay *= 2
	}
	return nil, lastErr
}

func (c *HTTPSJSONConnector) doRequestStream(ctx context.Context, payload *bytes.Buffer, apiKey, model string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, payload, apiKey, model)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Retryable: true, Err: fmt.Errorf("start stream: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		retryable := resp.StatusCode >= 500 || resp.StatusCode == 408 || resp.StatusCode == 429
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(body), Retryable: retryable}
	}
	return resp.Body, nil
}

// newRequest builds the outbound HTTP request, resolving a "%s" placeholder
// in baseURL to the model name (Gemini's REST endpoints carry the model in
// the URL path rather than the body, e.g.
// ".../v1beta/models/%s:generateContent") and setting the per-dialect auth
// header.
func (c *HTTPSJSONConnector) newRequest(ctx context.Context, body io.Reader, apiKey, model string) (*http.Request, error) {
	url := c.baseURL
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, model)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	switch c.dialect {
	case DialectAnthropic:
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	case DialectGeminiREST:
		req.Header.Set("x-goog-api-key", apiKey)
	default:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req, nil
}

// processStream scans the upstream's SSE body, converting each event to a
// StreamEvent in the dialect this connector speaks. Grounded on
// openai_client.go's processStream for the OpenAI-compatible branch; the
// Anthropic and Gemini branches decode the same "data: {...}" framing but
// unmarshal into each provider's own incremental event shape.
func (c *HTTPSJSONConnector) processStream(ctx context.Context, body io.ReadCloser, model string, out chan<- StreamEvent) {
	defer body.Close()
	defer close(out)

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			out <- StreamEvent{Done: true}
			return
		}

		switch c.dialect {
		case DialectAnthropic:
			if done, ok := c.decodeAnthropicEvent(data, model, out); done {
				return
			} else if !ok {
				return
			}
		case DialectGeminiREST:
			if !c.decodeGeminiChunk(data, model, out) {
				return
			}
		default:
			if !c.decodeOpenAIChunk(data, out) {
				return
			}
		}
	}
	if err := scanner.Err(); err != nil {
		out <- StreamEvent{Chunk: proxytypes.StreamChunk{Err: fmt.Errorf("read stream: %w", err)}}
	}
}

func (c *HTTPSJSONConnector) decodeOpenAIChunk(data string, out chan<- StreamEvent) bool {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		out <- StreamEvent{Chunk: proxytypes.StreamChunk{Err: fmt.Errorf("decode stream chunk: %w", err)}}
		return false
	}
	if len(chunk.Choices) == 0 {
		return true
	}
	delta := chunk.Choices[0].Delta
	sc := proxytypes.StreamChunk{ID: chunk.ID, Model: chunk.Model, ContentDelta: delta.Content}
	if len(delta.ToolCalls) > 0 {
		tc := delta.ToolCalls[0]
		sc.ToolCallDelta = &proxytypes.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: proxytypes.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	}
	if chunk.Choices[0].FinishReason != "" {
		sc.FinishReason = string(chunk.Choices[0].FinishReason)
	}
	out <- StreamEvent{Chunk: sc}
	return true
}

// anthropicStreamEvent covers the two event shapes this connector needs:
// content_block_delta (incremental text) and message_delta (final
// stop_reason). Other event types (message_start, ping, content_block_stop)
// carry nothing this proxy forwards and are skipped.
type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
}

func (c *HTTPSJSONConnector) decodeAnthropicEvent(data, model string, out chan<- StreamEvent) (done bool, ok bool) {
	var ev anthropicStreamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		out <- StreamEvent{Chunk: proxytypes.StreamChunk{Err: fmt.Errorf("decode stream event: %w", err)}}
		return false, false
	}
	switch ev.Type {
	case "content_block_delta":
		out <- StreamEvent{Chunk: proxytypes.StreamChunk{Model: model, ContentDelta: ev.Delta.Text}}
	case "message_delta":
		if ev.Delta.StopReason != "" {
			out <- StreamEvent{Chunk: proxytypes.StreamChunk{Model: model, FinishReason: ev.Delta.StopReason}}
		}
	case "message_stop":
		out <- StreamEvent{Done: true}
		return true, true
	}
	return false, true
}

// decodeGeminiChunk handles one streamGenerateContent SSE data line: each
// chunk is a full geminiResponse carrying the candidate's incremental text
// so far, which this proxy forwards as a content delta.
func (c *HTTPSJSONConnector) decodeGeminiChunk(data, model string, out chan<- StreamEvent) bool {
	resp, err := translate.Gemini{}.FromWireResponse([]byte(data), model)
	if err != nil {
		out <- StreamEvent{Chunk: proxytypes.StreamChunk{Err: fmt.Errorf("decode stream chunk: %w", err)}}
		return false
	}
	if len(resp.Choices) == 0 {
		return true
	}
	sc := proxytypes.StreamChunk{Model: model, ContentDelta: resp.Choices[0].Message.Content, FinishReason: strings.ToLower(resp.Choices[0].FinishReason)}
	out <- StreamEvent{Chunk: sc}
	return true
}

func (c *HTTPSJSONConnector) parseResponse(body []byte, model string) (proxytypes.ChatResponse, error) {
	switch c.dialect {
	case DialectAnthropic:
		return translate.Anthropic{}.FromWireResponse(body)
	case DialectGeminiREST:
		return translate.Gemini{}.FromWireResponse(body, model)
	default:
		var oaResp openai.ChatCompletionResponse
		if err := json.Unmarshal(body, &oaResp); err != nil {
			return proxytypes.ChatResponse{}, fmt.Errorf("decode response: %w", err)
		}
		if len(oaResp.Choices) == 0 {
			return proxytypes.ChatResponse{}, &Error{Err: fmt.Errorf("no choices returned by %s", c.name)}
		}

		choice := oaResp.Choices[0]
		msg := proxytypes.Message{Role: proxytypes.Role(choice.Message.Role), Content: choice.Message.Content}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, proxytypes.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: proxytypes.ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}

		return proxytypes.ChatResponse{
			ID:      oaResp.ID,
			Object:  "chat.completion",
			Created: oaResp.Created,
			Model:   oaResp.Model,
			Choices: []proxytypes.Choice{{Index: 0, Message: msg, FinishReason: string(choice.FinishReason)}},
			Usage: proxytypes.Usage{
				PromptTokens:     oaResp.Usage.PromptTokens,
				CompletionTokens: oaResp.Usage.CompletionTokens,
				TotalTokens:      oaResp.Usage.TotalTokens,
			},
		}, nil
	}
}
