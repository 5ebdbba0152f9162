package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	errx "github.com/recomind-agent-poc/server/internal/core/error"
	logx "github.com/recomind-agent-poc/server/pkg/logger"
)

// Config holds everything needed to construct the Gemini-backed adapters.
type Config struct {
	APIKey     string
	BaseURL    string
	Perception model.PerceptionModelConfig
	Planner    model.PlannerModelConfig
	EmbedModel string
}

// Models bundles the two chat clients and the embedder built from one
// underlying Gemini client.
type Models struct {
	Perception *Client
	Planner    *Client
	Embedder   *Embedder
}

// NewModels creates the Gemini client and both chat models.
func NewModels(ctx context.Context, cfg Config) (*Models, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	perception, err := newClient(ctx, client, cfg.Perception.Model, cfg.Perception.Temperature, cfg.Perception.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("error creating perception model: %w", err)
	}
	planner, err := newClient(ctx, client, cfg.Planner.Model, cfg.Planner.Temperature, cfg.Planner.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("error creating planner model: %w", err)
	}

	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}

	return &Models{
		Perception: perception,
		Planner:    planner,
		Embedder:   &Embedder{client: client, model: embedModel},
	}, nil
}

// Client adapts an Eino Gemini chat model to the narrow completion port and
// accounts token cost per call.
type Client struct {
	cm        *gemini.ChatModel
	modelName string

	mu           sync.Mutex
	totalCostUSD float64
}

func newClient(ctx context.Context, client *genai.Client, modelName string, temperature float32, maxTokens int) (*Client, error) {
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       modelName,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Str("model", modelName).Msg("Error creating chat model")
		return nil, err
	}
	return &Client{cm: cm, modelName: modelName}, nil
}

// Complete sends one prompt and returns the raw text reply. Provider errors
// come back wrapped in errx.ErrLLMUnavailable.
func (c *Client) Complete(ctx context.Context, req model.CompletionRequest) (*model.Completion, error) {
	msgs := make([]*schema.Message, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))

	out, err := c.cm.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errx.ErrLLMUnavailable, c.modelName, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s: empty response", errx.ErrLLMUnavailable, c.modelName)
	}

	completion := &model.Completion{
		Content: out.Content,
		Model:   c.modelName,
	}
	if out.ResponseMeta != nil {
		completion.Usage = out.ResponseMeta.Usage
	}
	c.accountCost(completion.Usage)
	return completion, nil
}

// accountCost converts usage into USD, logs it and keeps a running total for
// the client's lifetime.
func (c *Client) accountCost(usage *schema.TokenUsage) {
	if usage == nil {
		return
	}
	pricing := model.ResolvePricing(c.modelName)
	inC, outC, totalC := model.ComputeCost(usage, pricing)

	c.mu.Lock()
	c.totalCostUSD += totalC
	running := c.totalCostUSD
	c.mu.Unlock()

	logx.Debug().
		Str("model", c.modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Float64("running_total_usd", running).
		Msg("LLM usage")
}

// TotalCostUSD reports the accumulated cost across all completions.
func (c *Client) TotalCostUSD() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCostUSD
}

// Embedder adapts the Gemini embedding endpoint to the embedding port.
type Embedder struct {
	client *genai.Client
	model  string
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: embed with %s: %v", errx.ErrLLMUnavailable, e.model, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: embed with %s: no embeddings returned", errx.ErrLLMUnavailable, e.model)
	}
	return resp.Embeddings[0].Values, nil
}

var (
	_ model.LLMClient = (*Client)(nil)
	_ model.Embedder  = (*Embedder)(nil)
)
