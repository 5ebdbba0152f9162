package model

import (
	"context"
	"encoding/json"

	"github.com/cloudwego/eino/schema"
)

// CompletionRequest is one prompt for the LLM port. System may be empty.
type CompletionRequest struct {
	System string
	Prompt string
}

// Completion is the LLM port's reply plus usage metadata for cost accounting.
type Completion struct {
	Content string
	Model   string
	Usage   *schema.TokenUsage
}

// LLMClient is the completion port. Implementations fail with
// errx.ErrLLMUnavailable wrapped errors; they never retry on their own.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Embedder turns text into a vector. Owned by the memory store.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MemoryRepository stores and recalls conversation memories by similarity.
// Recall returns at most k records, most relevant first, ties broken by
// recency descending. Implementations must be safe for concurrent use.
type MemoryRepository interface {
	Recall(ctx context.Context, sessionID, query string, k int) ([]MemoryRecord, error)
	Store(ctx context.Context, rec MemoryRecord) error
}

// IntentExtractor produces a structured intent from the raw utterance and
// prior turns. Pure from the caller's perspective: no state between calls.
type IntentExtractor interface {
	Extract(ctx context.Context, utterance string, history []*schema.Message) (*IntentRecord, error)
}

// PlanContext is the read-only input of one planning step.
type PlanContext struct {
	Intent      *IntentRecord
	Memories    []MemoryRecord
	ToolResults []ToolOutcome
	History     []*schema.Message
}

// Planner selects the next action. Stateless between calls so one planner can
// serve concurrent cycles.
type Planner interface {
	Decide(ctx context.Context, pc PlanContext) (*DecisionRecord, error)
}

// ToolDispatcher executes one named tool call and normalises the result.
// The returned error is non-nil only when the parent context was canceled
// and the outcome must not be applied.
type ToolDispatcher interface {
	Invoke(ctx context.Context, name string, args map[string]any) (ToolOutcome, error)
}

// ToolTransport is the external tool-execution channel. Wire framing is owned
// by the implementation; the dispatcher applies timeouts via ctx. Tool-level
// failures are reported wrapped in errx.ErrToolFailed, names missing from the
// remote registry in errx.ErrUnknownTool.
type ToolTransport interface {
	Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

// CartNotifier is the recommendation side-effect port. Fire-and-forget from
// the cycle's point of view: errors are logged by the caller, never propagated.
type CartNotifier interface {
	NotifyRecommendation(ctx context.Context, sessionID, itemID string) error
}

// TurnRepository persists conversation turns across runs so a clarification
// resume sees the full exchange. Turns are returned oldest first.
type TurnRepository interface {
	AppendTurn(ctx context.Context, conversationID string, message *schema.Message) error
	LoadTurns(ctx context.Context, conversationID string) ([]*schema.Message, error)
	ClearTurns(ctx context.Context, conversationID string) error
	TurnCount(ctx context.Context, conversationID string) (int, error)
}
