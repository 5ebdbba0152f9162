package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ================ Intent ================

// IntentType classifies what the user is after. The extractor maps anything
// it cannot classify to IntentOther rather than failing the cycle.
type IntentType string

const (
	IntentProductSearch IntentType = "product_search"
	IntentClarification IntentType = "clarification"
	IntentChitChat      IntentType = "chit_chat"
	IntentOther         IntentType = "other"
)

// ParseIntentType normalises a raw label into a known intent type.
func ParseIntentType(v string) IntentType {
	switch IntentType(v) {
	case IntentProductSearch, IntentClarification, IntentChitChat:
		return IntentType(v)
	default:
		return IntentOther
	}
}

// IntentRecord is the structured perception result for one cycle run.
// Immutable once produced by the extractor.
type IntentRecord struct {
	Type       IntentType        `json:"intent_type"`
	Entities   map[string]string `json:"entities"`
	Confidence float64           `json:"confidence"`

	// RefinedQuery is an attribute-focused rewrite of the utterance,
	// e.g. "BrandName Nike, ApparelType running shoes, PriceCeiling 100".
	// Empty when the utterance needs no refinement.
	RefinedQuery string `json:"refined_query,omitempty"`

	// ToolHint optionally names a registry tool the extractor believes will
	// help. The planner treats it as a hint only.
	ToolHint string `json:"tool_hint,omitempty"`
}

// ================ Decision ================

// DecisionType discriminates the planner's action variants.
type DecisionType string

const (
	DecisionToolCall    DecisionType = "tool_call"
	DecisionFinalAnswer DecisionType = "final_answer"
	DecisionClarify     DecisionType = "clarify"
)

// DecisionRecord is a tagged union: Type selects which field group is
// meaningful, and Validate rejects records that mix variants.
type DecisionRecord struct {
	Type DecisionType `json:"decision_type"`

	// tool_call
	ToolName string         `json:"tool_name,omitempty"`
	ToolArgs map[string]any `json:"tool_args,omitempty"`

	// final_answer
	AnswerText      string `json:"answer_text,omitempty"`
	RecommendedItem string `json:"recommended_item,omitempty"`

	// clarify
	QuestionText string `json:"question_text,omitempty"`
}

// Validate enforces that exactly the active variant's fields are set.
func (d *DecisionRecord) Validate() error {
	switch d.Type {
	case DecisionToolCall:
		if d.ToolName == "" {
			return fmt.Errorf("tool_call decision requires tool_name")
		}
		if d.AnswerText != "" || d.RecommendedItem != "" || d.QuestionText != "" {
			return fmt.Errorf("tool_call decision carries fields of another variant")
		}
	case DecisionFinalAnswer:
		if d.AnswerText == "" {
			return fmt.Errorf("final_answer decision requires answer_text")
		}
		if d.ToolName != "" || len(d.ToolArgs) > 0 || d.QuestionText != "" {
			return fmt.Errorf("final_answer decision carries fields of another variant")
		}
	case DecisionClarify:
		if d.QuestionText == "" {
			return fmt.Errorf("clarify decision requires question_text")
		}
		if d.ToolName != "" || len(d.ToolArgs) > 0 || d.AnswerText != "" || d.RecommendedItem != "" {
			return fmt.Errorf("clarify decision carries fields of another variant")
		}
	default:
		return fmt.Errorf("unknown decision_type %q", d.Type)
	}
	return nil
}

// ================ Tool outcome ================

// ToolStatus marks an outcome as usable payload or tool-level error.
type ToolStatus string

const (
	ToolStatusOK    ToolStatus = "ok"
	ToolStatusError ToolStatus = "error"
)

// ToolErrorDetail is the stable taxonomy errors are normalised to before the
// outcome is fed back to the planner.
type ToolErrorDetail string

const (
	ToolErrUnknownTool       ToolErrorDetail = "unknown_tool"
	ToolErrTimeout           ToolErrorDetail = "timeout"
	ToolErrTransportFailure  ToolErrorDetail = "transport_failure"
	ToolErrMalformedResponse ToolErrorDetail = "malformed_response"
	ToolErrToolFailed        ToolErrorDetail = "tool_failed"
)

// ToolOutcome is produced by the dispatcher and consumed by the planner on
// the next Deciding step. Exactly one of Payload / ErrorDetail is meaningful.
type ToolOutcome struct {
	ToolName    string          `json:"tool_name"`
	Status      ToolStatus      `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	ErrorDetail ToolErrorDetail `json:"error_detail,omitempty"`
	// Detail carries a short human-readable note for logs and planner context.
	Detail string `json:"detail,omitempty"`
}

// IsError reports whether the outcome is a tool-level error.
func (o ToolOutcome) IsError() bool {
	return o.Status == ToolStatusError
}

// ================ Memory ================

// MemoryKind labels what a memory record captured.
type MemoryKind string

const (
	MemoryToolOutput  MemoryKind = "tool_output"
	MemoryFinalAnswer MemoryKind = "final_answer"
	MemoryQuery       MemoryKind = "query"
	MemoryPreference  MemoryKind = "preference"
)

// MemoryRecord is a value stored once and never mutated. Embedding is owned
// by the memory store; nothing else reads it. Score is populated on recall.
type MemoryRecord struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Kind      MemoryKind `json:"kind"`
	Content   string     `json:"content"`
	ToolName  string     `json:"tool_name,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Embedding []float32  `json:"embedding,omitempty"`
	Score     float64    `json:"-"`
}
