package model

import "time"

// ================ Config ================
type CycleConfig struct {
	MaxSteps                 int           `envconfig:"CYCLE_MAX_STEPS" default:"5"`
	MaxConsecutiveToolErrors int           `envconfig:"CYCLE_MAX_CONSECUTIVE_TOOL_ERRORS" default:"2"`
	WallClockBudget          time.Duration `envconfig:"CYCLE_WALL_CLOCK_BUDGET" default:"0"`
	RecallK                  int           `envconfig:"CYCLE_RECALL_K" default:"3"`
}

type PerceptionModelConfig struct {
	Model       string  `envconfig:"PERCEPTION_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"PERCEPTION_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"PERCEPTION_TEMPERATURE" default:"0.1"`
	MaxTurns    int     `envconfig:"PERCEPTION_MAX_TURNS" default:"5"`
}

type PlannerModelConfig struct {
	Model       string  `envconfig:"PLANNER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"PLANNER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"0.2"`
}

type MemoryConfig struct {
	TTL          string        `envconfig:"MEMORY_TTL" default:"30m"`
	StoreTimeout time.Duration `envconfig:"MEMORY_STORE_TIMEOUT" default:"2s"`
	EmbedModel   string        `envconfig:"MEMORY_EMBED_MODEL" default:"text-embedding-004"`
}

type DispatchConfig struct {
	CallTimeout time.Duration `envconfig:"TOOL_CALL_TIMEOUT" default:"30s"`
}
