package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/recomind-agent-poc/server/internal/agent/cart"
	"github.com/recomind-agent-poc/server/internal/agent/cycle"
	"github.com/recomind-agent-poc/server/internal/agent/dispatch"
	"github.com/recomind-agent-poc/server/internal/agent/llm"
	"github.com/recomind-agent-poc/server/internal/agent/memory"
	"github.com/recomind-agent-poc/server/internal/agent/model"
	"github.com/recomind-agent-poc/server/internal/agent/perceive"
	"github.com/recomind-agent-poc/server/internal/agent/plan"
	"github.com/recomind-agent-poc/server/internal/agent/repo"
	"github.com/recomind-agent-poc/server/internal/agent/tools"
	"github.com/recomind-agent-poc/server/internal/core"
	logx "github.com/recomind-agent-poc/server/pkg/logger"
	pkgredis "github.com/recomind-agent-poc/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the agent example,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Perception model.PerceptionModelConfig
	Planner    model.PlannerModelConfig
	Prompt     plan.PromptConfig
	Cycle      model.CycleConfig
	Memory     model.MemoryConfig
	Dispatch   model.DispatchConfig
}

func main() {
	fmt.Println("Testing the recommendation agent cycle...")
	ctx := context.Background()

	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	fmt.Println("Connected to Redis successfully")

	// ====================================================
	// Build the cycle entirely from env
	models, err := llm.NewModels(ctx, llm.Config{
		APIKey:     envCfg.APIKey,
		BaseURL:    envCfg.BaseURL,
		Perception: envCfg.Perception,
		Planner:    envCfg.Planner,
		EmbedModel: envCfg.Memory.EmbedModel,
	})
	if err != nil {
		log.Fatalf("Failed to build Gemini models: %v", err)
	}

	ttl, err := time.ParseDuration(envCfg.Memory.TTL)
	if err != nil {
		log.Fatalf("Invalid MEMORY_TTL '%s': %v", envCfg.Memory.TTL, err)
	}

	store, err := memory.NewRedisStore(rdb, models.Embedder, ttl)
	if err != nil {
		log.Fatalf("Failed to build memory store: %v", err)
	}

	turns, err := repo.NewRedisTurnRepository(rdb, ttl)
	if err != nil {
		log.Fatalf("Failed to build turn repository: %v", err)
	}

	registry := tools.Registry()

	extractor, err := perceive.NewExtractor(models.Perception, envCfg.Perception, registry)
	if err != nil {
		log.Fatalf("Failed to build intent extractor: %v", err)
	}

	planner, err := plan.NewPlanner(models.Planner, registry, envCfg.Prompt)
	if err != nil {
		log.Fatalf("Failed to build planner: %v", err)
	}

	dispatcher, err := dispatch.NewDispatcher(tools.NewLocalTransport(), envCfg.Dispatch.CallTimeout, registry)
	if err != nil {
		log.Fatalf("Failed to build dispatcher: %v", err)
	}

	notifier, err := cart.NewRedisNotifier(rdb)
	if err != nil {
		log.Fatalf("Failed to build cart notifier: %v", err)
	}

	cycleCfg := cycle.FromModel(envCfg.Cycle)
	cycleCfg.StoreTimeout = envCfg.Memory.StoreTimeout

	controller, err := cycle.New(extractor, store, planner, dispatcher, notifier, cycleCfg)
	if err != nil {
		log.Fatalf("Failed to build cycle controller: %v", err)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Direct product search",
			query:       "I want Nike running shoes under $100",
		},
		{
			description: "Vague inquiry that should trigger a clarification",
			query:       "I need something for my workouts",
		},
		{
			description: "Follow-up with thanks",
			query:       "Thanks, that helps a lot!",
		},
	}

	conversationID := "test-conversation-123451"
	if err := turns.ClearTurns(ctx, conversationID); err != nil {
		log.Printf("Warning: could not reset conversation: %v", err)
	}

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: \"%s\"\n", test.query)
		fmt.Println("Processing...")

		history, err := turns.LoadTurns(ctx, conversationID)
		if err != nil {
			log.Fatalf("Failed to load conversation turns: %v", err)
		}

		result := controller.Run(ctx, model.QueryInput{
			ConversationID: conversationID,
			Query:          test.query,
			History:        history,
		})

		if err := turns.AppendTurn(ctx, conversationID, schema.UserMessage(test.query)); err != nil {
			log.Printf("Warning: could not persist user turn: %v", err)
		}

		switch result.Kind {
		case model.ResultSuccess:
			fmt.Printf("Answer %d (%d steps): %s\n", i+1, result.StepsUsed, result.FinalAnswer)
			if result.RecommendedItem != "" {
				fmt.Printf("Recommended item: %s\n", result.RecommendedItem)
			}
			if err := turns.AppendTurn(ctx, conversationID, schema.AssistantMessage(result.FinalAnswer, nil)); err != nil {
				log.Printf("Warning: could not persist assistant turn: %v", err)
			}
		case model.ResultAwaitingClarification:
			fmt.Printf("Agent asks: %s\n", result.Question)
			if err := turns.AppendTurn(ctx, conversationID, schema.AssistantMessage(result.Question, nil)); err != nil {
				log.Printf("Warning: could not persist assistant turn: %v", err)
			}
		case model.ResultError:
			log.Fatalf("Cycle %d failed: %v", i+1, result.Err)
		}

		fmt.Println("─────────────────────────────────────────────")

		// add slight delay between tests for readability
		time.Sleep(500 * time.Millisecond)
	}

	fmt.Printf("\nTotal LLM cost: $%.6f (perception) + $%.6f (planner)\n",
		models.Perception.TotalCostUSD(), models.Planner.TotalCostUSD())
	fmt.Println("All cycle tests completed successfully!")
}
