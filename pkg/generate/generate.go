// Package generate answers chat requests with an OpenAI-compatible
// generation API, falling back across the providers the router returns.
package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/prepai/prepai/pkg/config"
	"github.com/prepai/prepai/pkg/models"
	"github.com/prepai/prepai/pkg/router"
	"github.com/prepai/prepai/pkg/tracker"
)

// ErrAllProvidersFailed is returned when every route failed with a
// transport error, a 5xx status or an empty completion.
var ErrAllProvidersFailed = errors.New("all upstream providers failed")

// Client is the subset of *openai.Client the generator calls.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator produces tutor answers. Its Handle method is the chat handler
// that the response cache wraps.
type Generator struct {
	router  *router.Router
	clients map[string]Client
	tracker tracker.Tracker
	chat    config.ChatConfig
}

// Option configures a Generator.
type Option func(*Generator)

// WithClient overrides the client used for the named provider.
func WithClient(provider string, c Client) Option {
	return func(g *Generator) { g.clients[provider] = c }
}

// New creates a Generator with one OpenAI-compatible client per provider.
// The tracker may be nil.
func New(cfg *config.Config, t tracker.Tracker, opts ...Option) *Generator {
	g := &Generator{
		router:  router.New(cfg),
		clients: make(map[string]Client, len(cfg.Providers)),
		tracker: t,
		chat:    cfg.Chat,
	}
	for _, p := range cfg.Providers {
		g.clients[p.Name] = newOpenAIClient(p)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func newOpenAIClient(p config.ProviderConfig) *openai.Client {
	transportCfg := openai.DefaultConfig(p.APIKey)
	if p.URL != "" {
		transportCfg.BaseURL = strings.TrimSuffix(p.URL, "/")
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transportCfg.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(transportCfg)
}

// Handle answers req. Upstream 4xx errors become a reply without a
// "response" field so they are never cached.
func (g *Generator) Handle(ctx context.Context, req models.ChatRequest) (models.Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return errorReply(http.StatusBadRequest, "message is required"), nil
	}

	routes, err := g.router.Resolve(req.Model)
	if err != nil {
		return models.Reply{}, fmt.Errorf("resolve %q: %w", req.Model, err)
	}

	start := time.Now()
	var lastErr error
	for _, route := range routes {
		client, ok := g.clients[route.Provider.Name]
		if !ok {
			continue
		}

		resp, err := client.CreateChatCompletion(ctx, g.buildRequest(route.Model, req))
		if err != nil {
			if ctx.Err() != nil {
				return models.Reply{}, ctx.Err()
			}
			if status := statusCode(err); status >= 400 && status < 500 {
				log.Warn().Err(err).Str("provider", route.Provider.Name).Int("status", status).Msg("upstream rejected request")
				return errorReply(status, upstreamMessage(err)), nil
			}
			log.Warn().Err(err).Str("provider", route.Provider.Name).Msg("upstream failed, trying next")
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			log.Warn().Str("provider", route.Provider.Name).Msg("upstream returned no content, trying next")
			lastErr = errors.New("empty completion")
			continue
		}

		usage := models.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		g.record(ctx, req, usage, time.Since(start))

		return models.Reply{
			Status: http.StatusOK,
			Body: map[string]any{
				"response": resp.Choices[0].Message.Content,
				"model":    route.Model,
				"provider": route.Provider.Name,
				"language": req.Language,
				"usage":    usage,
			},
		}, nil
	}

	if lastErr != nil {
		return models.Reply{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
	}
	return models.Reply{}, ErrAllProvidersFailed
}

func (g *Generator) buildRequest(model string, req models.ChatRequest) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   g.chat.MaxTokens,
		Temperature: g.chat.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(g.chat.SystemPrompt, req.Language)},
			{Role: openai.ChatMessageRoleUser, Content: req.Message},
		},
	}
}

func (g *Generator) record(ctx context.Context, req models.ChatRequest, usage models.Usage, latency time.Duration) {
	if g.tracker == nil {
		return
	}
	err := g.tracker.Record(ctx, models.UsageRecord{
		UserID:           req.UserID,
		Model:            req.Model,
		Language:         req.Language,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		LatencyMs:        latency.Milliseconds(),
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Msg("record usage")
	}
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func upstreamMessage(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "upstream rejected the request"
}

func errorReply(status int, message string) models.Reply {
	return models.Reply{Status: status, Body: map[string]any{"error": message}}
}
