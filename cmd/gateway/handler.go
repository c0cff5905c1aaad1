// In file: cmd/gateway/handler.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/apperr"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/backend"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/obs"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/pipeline"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
	"github.com/dileep-u-k/llm-interactive-proxy/internal/translate"
)

// transport is the HTTP adapter over the Request Pipeline: it exposes
// spec §6's external surfaces (the OpenAI-compatible /v1/chat/completions
// route and the Gemini-compatible /v1beta/models routes), translating each
// wire format to and from the canonical proxytypes shape before and after
// calling Pipeline.Handle. Grounded on the teacher's GatewayHandler, which
// played the same "one struct wraps the pipeline, one method per route"
// role for /api/v1/generate.
type transport struct {
	pipe     *pipeline.Pipeline
	registry *backend.Registry
	metrics  *obs.Metrics
	log      *zap.SugaredLogger
}

func registerRoutes(engine *gin.Engine, pipe *pipeline.Pipeline, registry *backend.Registry, metrics *obs.Metrics, log *zap.SugaredLogger) {
	t := &transport{pipe: pipe, registry: registry, metrics: metrics, log: log}
	engine.Use(t.metricsMiddleware())

	engine.GET("/health", t.handleHealth)
	engine.GET("/v1/models", t.authenticated(t.handleListModelsOpenAI))
	engine.POST("/v1/chat/completions", t.authenticated(t.handleChatCompletions))
	engine.GET("/v1beta/models", t.authenticated(t.handleListModelsGemini))
	engine.POST("/v1beta/models/:model", t.authenticated(t.handleGeminiAction))
}

func (t *transport) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if t.metrics != nil {
			t.metrics.RecordHTTPRequest(c.FullPath(), fmt.Sprintf("%d", c.Writer.Status()), 0)
		}
	}
}

func (t *transport) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authenticated wraps a route handler with the Pipeline's credential check
// (Bearer token or x-goog-api-key), per spec §4.12 step 1.
func (t *transport) authenticated(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader("Authorization")
		if presented == "" {
			presented = c.GetHeader("x-goog-api-key")
		}
		if err := t.pipe.Authenticate(presented); err != nil {
			apperr.WriteHTTP(c, err)
			return
		}
		next(c)
	}
}

func sessionID(c *gin.Context) string {
	if id := c.GetHeader("X-Session-ID"); id != "" {
		return id
	}
	return "default"
}

// handleChatCompletions implements POST /v1/chat/completions: decode the
// OpenAI-shaped request body, run it through the pipeline, and render the
// Outcome back as either a single JSON response or an SSE stream of
// OpenAI-shaped chunks.
func (t *transport) handleChatCompletions(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apperr.WriteHTTP(c, apperr.InvalidRequest("failed to read request body"))
		return
	}

	req, err := translate.OpenAI{}.FromWireRequest(raw)
	if err != nil {
		apperr.WriteHTTP(c, apperr.InvalidRequest("malformed chat completion request: "+err.Error()))
		return
	}

	outcome, err := t.pipe.Handle(c.Request.Context(), sessionID(c), req, c.ClientIP(), c.Request.UserAgent(), requestIDOf(c), req.Stream)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}

	if outcome.StreamChannel != nil {
		t.streamOpenAI(c, outcome)
		return
	}

	c.JSON(http.StatusOK, translate.OpenAI{}.ToWireResponse(outcome.Response))
}

func requestIDOf(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return c.GetString("request_id")
}

// openAIStreamChunk is the minimal chat.completion.chunk shape this proxy
// emits on /v1/chat/completions; grounded on the wire shape
// decodeOpenAIChunk (internal/backend/httpsjson.go) reads on the way in.
type openAIStreamChunk struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Model   string               `json:"model"`
	Choices []openAIStreamChoice `json:"choices"`
}

type openAIStreamChoice struct {
	Index        int               `json:"index"`
	Delta        openAIStreamDelta `json:"delta"`
	FinishReason string            `json:"finish_reason,omitempty"`
}

type openAIStreamDelta struct {
	Content string `json:"content,omitempty"`
}

func (t *transport) streamOpenAI(c *gin.Context, outcome pipeline.Outcome) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	c.Status(http.StatusOK)

	for ev := range outcome.StreamChannel {
		if ev.Chunk.Err != nil {
			t.log.Warnw("stream chunk error", "error", ev.Chunk.Err)
			break
		}
		chunk := openAIStreamChunk{
			Object: "chat.completion.chunk",
			Model:  ev.Chunk.Model,
			Choices: []openAIStreamChoice{{
				Delta:        openAIStreamDelta{Content: ev.Chunk.ContentDelta},
				FinishReason: ev.Chunk.FinishReason,
			}},
		}
		body, _ := json.Marshal(chunk)
		fmt.Fprintf(c.Writer, "data: %s\n\n", body)
		if ok {
			flusher.Flush()
		}
		if ev.Done {
			break
		}
	}
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	if ok {
		flusher.Flush()
	}
}

func (t *transport) handleListModelsOpenAI(c *gin.Context) {
	models := t.functionalModels()
	data := make([]gin.H, 0, len(models))
	for _, m := range models {
		data = append(data, gin.H{"id": m, "object": "model"})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

func (t *transport) handleListModelsGemini(c *gin.Context) {
	models := t.functionalModels()
	data := make([]gin.H, 0, len(models))
	for _, m := range models {
		data = append(data, gin.H{"name": "models/" + m})
	}
	c.JSON(http.StatusOK, gin.H{"models": data})
}

func (t *transport) functionalModels() []string {
	if t.registry == nil {
		return nil
	}
	var out []string
	for _, name := range t.registry.FunctionalBackends() {
		out = append(out, name)
	}
	return out
}

// handleGeminiAction implements POST /v1beta/models/<model>:generateContent
// and POST /v1beta/models/<model>:streamGenerateContent, both carried on
// the same route because Gemini encodes the action in the URL's colon
// suffix rather than in a separate path segment.
func (t *transport) handleGeminiAction(c *gin.Context) {
	param := c.Param("model")
	model, action, ok := strings.Cut(param, ":")
	if !ok {
		apperr.WriteHTTP(c, apperr.InvalidRequest("model path must be of the form <model>:<action>"))
		return
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apperr.WriteHTTP(c, apperr.InvalidRequest("failed to read request body"))
		return
	}

	req, err := translate.Gemini{}.FromWireRequest(raw, model)
	if err != nil {
		apperr.WriteHTTP(c, apperr.InvalidRequest("malformed generateContent request: "+err.Error()))
		return
	}
	req.Model = model

	wantStream := action == "streamGenerateContent"
	outcome, err := t.pipe.Handle(c.Request.Context(), sessionID(c), req, c.ClientIP(), c.Request.UserAgent(), requestIDOf(c), wantStream)
	if err != nil {
		apperr.WriteHTTP(c, err)
		return
	}

	if outcome.StreamChannel != nil {
		t.streamGemini(c, outcome)
		return
	}

	c.Data(http.StatusOK, "application/json", translate.Gemini{}.ToWireResponse(outcome.Response))
}

func (t *transport) streamGemini(c *gin.Context, outcome pipeline.Outcome) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	c.Status(http.StatusOK)

	for ev := range outcome.StreamChannel {
		if ev.Chunk.Err != nil {
			t.log.Warnw("stream chunk error", "error", ev.Chunk.Err)
			break
		}
		partial := proxytypes.ChatResponse{
			Model: ev.Chunk.Model,
			Choices: []proxytypes.Choice{{
				Message:      proxytypes.Message{Role: proxytypes.RoleModel, Content: ev.Chunk.ContentDelta},
				FinishReason: ev.Chunk.FinishReason,
			}},
		}
		body := translate.Gemini{}.ToWireResponse(partial)
		fmt.Fprintf(c.Writer, "data: %s\n\n", body)
		if ok {
			flusher.Flush()
		}
		if ev.Done {
			break
		}
	}
	if ok {
		flusher.Flush()
	}
}
