package model

import (
	"github.com/cloudwego/eino/schema"

	errx "github.com/recomind-agent-poc/server/internal/core/error"
)

// ConversationState is the single mutable record threaded through one cycle
// run. It is exclusively owned by that run and never shared across concurrent
// cycles; all sequences are append-only.
type ConversationState struct {
	RunID     string
	SessionID string
	Utterance string

	// TurnHistory holds prior exchanges, oldest first. The caller re-invokes
	// a run with the clarification answer appended here.
	TurnHistory []*schema.Message

	Intent           *IntentRecord
	RecalledMemories []MemoryRecord
	PendingAction    *DecisionRecord
	ToolResults      []ToolOutcome

	StepCount       int
	FinalAnswer     string
	RecommendedItem string

	// SoftErrors records degraded-mode annotations (e.g. recall failures)
	// that did not abort the cycle.
	SoftErrors []string

	Err *errx.CycleError
}

// QueryInput is the caller-facing input of one cycle run.
type QueryInput struct {
	ConversationID string            `json:"conversation_id"`
	Query          string            `json:"query"`
	History        []*schema.Message `json:"-"`

	// MaxSteps overrides the configured step budget for this run when > 0.
	MaxSteps int `json:"max_steps,omitempty"`
}

// ResultKind discriminates the terminal variants of a cycle run.
type ResultKind string

const (
	ResultSuccess               ResultKind = "success"
	ResultAwaitingClarification ResultKind = "awaiting_clarification"
	ResultError                 ResultKind = "error"
)

// CycleResult is the well-typed terminal a run always hands back: Success,
// AwaitingClarification, or Error. No internal transition follows any of
// them without a new run call.
type CycleResult struct {
	Kind ResultKind

	// Success
	FinalAnswer     string
	RecommendedItem string

	// AwaitingClarification
	Question string

	// Error
	Err *errx.CycleError

	// StepsUsed reports how many Deciding steps the run consumed.
	StepsUsed int
}

// Success reports whether the run ended with a final answer.
func (r CycleResult) Success() bool {
	return r.Kind == ResultSuccess
}
