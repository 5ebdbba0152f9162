package errx

import "fmt"

// CycleErrorKind labels the fatal terminal conditions of a cognitive cycle.
// Recoverable conditions (degraded recall, tool-level errors) are encoded as
// data on the conversation state instead and never surface as CycleErrors.
type CycleErrorKind string

const (
	// KindPerceptionFailure: intent extraction failed, no decision is possible.
	KindPerceptionFailure CycleErrorKind = "perception_failure"
	// KindPlanningSchemaFailure: the planner output failed validation after a retry.
	KindPlanningSchemaFailure CycleErrorKind = "planning_schema_failure"
	// KindToolTransportError: consecutive tool errors reached the configured threshold.
	KindToolTransportError CycleErrorKind = "tool_transport_error"
	// KindBudgetExceeded: the step or wall-clock budget was reached with no answer staged.
	KindBudgetExceeded CycleErrorKind = "budget_exceeded"
	// KindCanceled: the caller canceled the run between loop iterations.
	KindCanceled CycleErrorKind = "canceled"
)

// CycleError is the terminal error record a cycle hands back to its caller.
type CycleError struct {
	Kind   CycleErrorKind
	Detail string
	Err    error
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *CycleError) Unwrap() error {
	return e.Err
}

// NewCycleError creates a terminal cycle error of the given kind.
func NewCycleError(kind CycleErrorKind, err error, detail string) *CycleError {
	return &CycleError{Kind: kind, Detail: detail, Err: err}
}
