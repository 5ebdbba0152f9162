package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	errx "github.com/recomind-agent-poc/server/internal/core/error"
	logx "github.com/recomind-agent-poc/server/pkg/logger"
)

const (
	DefaultMaxSteps                 = 5
	DefaultMaxConsecutiveToolErrors = 2
	DefaultRecallK                  = 3
	DefaultStoreTimeout             = 2 * time.Second
)

// phase enumerates the internal states of one cycle run. Terminal variants
// are not phases: they are the CycleResult values a run returns.
type phase int

const (
	phasePerceiving phase = iota
	phaseRecalling
	phaseDeciding
	phaseExecuting
	phaseClarifying
	phaseFinishing
)

func (p phase) String() string {
	switch p {
	case phasePerceiving:
		return "perceiving"
	case phaseRecalling:
		return "recalling"
	case phaseDeciding:
		return "deciding"
	case phaseExecuting:
		return "executing"
	case phaseClarifying:
		return "clarifying"
	case phaseFinishing:
		return "finishing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Config holds the controller's runtime budgets.
type Config struct {
	// MaxSteps bounds the Deciding transitions of one run. QueryInput may
	// override it per run.
	MaxSteps int
	// MaxConsecutiveToolErrors forces an error terminal when this many tool
	// outcomes in a row come back status=error.
	MaxConsecutiveToolErrors int
	// WallClockBudget, when positive, bounds one run's elapsed time. Checked
	// at the top of each Deciding transition.
	WallClockBudget time.Duration
	// RecallK bounds how many memories are recalled per run.
	RecallK int
	// StoreTimeout bounds the append confirmation of memory writes.
	StoreTimeout time.Duration
}

// FromModel resolves a CycleConfig from the environment into runtime config.
func FromModel(mc model.CycleConfig) Config {
	return Config{
		MaxSteps:                 mc.MaxSteps,
		MaxConsecutiveToolErrors: mc.MaxConsecutiveToolErrors,
		WallClockBudget:          mc.WallClockBudget,
		RecallK:                  mc.RecallK,
	}
}

func (c *Config) applyDefaults() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxConsecutiveToolErrors <= 0 {
		c.MaxConsecutiveToolErrors = DefaultMaxConsecutiveToolErrors
	}
	if c.RecallK <= 0 {
		c.RecallK = DefaultRecallK
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
}

// Controller sequences one cognitive cycle: perceive the utterance, recall
// context, then loop deciding and executing tools until a terminal state or
// a budget is exhausted. One Run exclusively owns its ConversationState;
// distinct runs may execute concurrently as long as the injected
// collaborators are safe for concurrent use.
type Controller struct {
	extractor  model.IntentExtractor
	memory     model.MemoryRepository
	planner    model.Planner
	dispatcher model.ToolDispatcher
	cart       model.CartNotifier
	cfg        Config
}

// New wires the cycle controller. The cart notifier is optional; every other
// collaborator is required.
func New(
	extractor model.IntentExtractor,
	memory model.MemoryRepository,
	planner model.Planner,
	dispatcher model.ToolDispatcher,
	cart model.CartNotifier,
	cfg Config,
) (*Controller, error) {
	if extractor == nil {
		return nil, fmt.Errorf("intent extractor is nil")
	}
	if memory == nil {
		return nil, fmt.Errorf("memory repository is nil")
	}
	if planner == nil {
		return nil, fmt.Errorf("planner is nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("tool dispatcher is nil")
	}
	cfg.applyDefaults()
	return &Controller{
		extractor:  extractor,
		memory:     memory,
		planner:    planner,
		dispatcher: dispatcher,
		cart:       cart,
		cfg:        cfg,
	}, nil
}

// Run executes one cycle and always hands back a well-typed terminal result.
// Re-invoke with the clarification answer appended to History to continue an
// AwaitingClarification exchange.
func (c *Controller) Run(ctx context.Context, in model.QueryInput) model.CycleResult {
	st := &model.ConversationState{
		RunID:       uuid.NewString(),
		SessionID:   in.ConversationID,
		Utterance:   in.Query,
		TurnHistory: in.History,
	}

	maxSteps := in.MaxSteps
	if maxSteps <= 0 {
		maxSteps = c.cfg.MaxSteps
	}
	var deadline time.Time
	if c.cfg.WallClockBudget > 0 {
		deadline = time.Now().Add(c.cfg.WallClockBudget)
	}
	consecutiveToolErrors := 0

	logx.Debug().
		Str("run_id", st.RunID).
		Str("conversation_id", st.SessionID).
		Int("max_steps", maxSteps).
		Msg("cycle started")

	for ph := phasePerceiving; ; {
		switch ph {
		case phasePerceiving:
			intent, err := c.extractor.Extract(ctx, st.Utterance, st.TurnHistory)
			if err != nil {
				return c.fail(st, errx.KindPerceptionFailure, err, "intent extraction failed")
			}
			st.Intent = intent
			ph = phaseRecalling

		case phaseRecalling:
			memories, err := c.memory.Recall(ctx, st.SessionID, recallQuery(st), c.cfg.RecallK)
			if err != nil {
				// degraded mode: proceed with an empty memory set
				st.SoftErrors = append(st.SoftErrors, "recall degraded: "+err.Error())
				logx.Warn().
					Str("run_id", st.RunID).
					Err(err).
					Msg("memory recall failed, continuing without memories")
			} else {
				st.RecalledMemories = memories
			}
			ph = phaseDeciding

		case phaseDeciding:
			// cancellation is honored only between loop iterations
			if err := ctx.Err(); err != nil {
				return c.fail(st, errx.KindCanceled, err, "run canceled")
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				return c.budgetTerminal(st, "wall-clock budget elapsed")
			}
			if st.StepCount >= maxSteps {
				return c.budgetTerminal(st, fmt.Sprintf("step budget of %d reached", maxSteps))
			}

			dec, err := c.planner.Decide(ctx, model.PlanContext{
				Intent:      st.Intent,
				Memories:    st.RecalledMemories,
				ToolResults: st.ToolResults,
				History:     st.TurnHistory,
			})
			st.StepCount++
			if err != nil {
				return c.fail(st, errx.KindPlanningSchemaFailure, err, "planner failed")
			}
			st.PendingAction = dec

			if st.StepCount > maxSteps {
				return c.budgetTerminal(st, fmt.Sprintf("step budget of %d exceeded", maxSteps))
			}

			logx.Debug().
				Str("run_id", st.RunID).
				Int("step", st.StepCount).
				Str("decision_type", string(dec.Type)).
				Msg("decision")

			switch dec.Type {
			case model.DecisionToolCall:
				ph = phaseExecuting
			case model.DecisionClarify:
				ph = phaseClarifying
			case model.DecisionFinalAnswer:
				ph = phaseFinishing
			default:
				// planners validate their output; this is a wiring bug
				return c.fail(st, errx.KindPlanningSchemaFailure, nil,
					fmt.Sprintf("unvalidated decision type %q", dec.Type))
			}

		case phaseExecuting:
			dec := st.PendingAction
			outcome, err := c.dispatcher.Invoke(ctx, dec.ToolName, dec.ToolArgs)
			if err != nil {
				// parent cancellation: the call was abandoned, nothing is applied
				return c.fail(st, errx.KindCanceled, err, "run canceled during tool call")
			}
			st.ToolResults = append(st.ToolResults, outcome)

			if outcome.IsError() {
				consecutiveToolErrors++
				if consecutiveToolErrors >= c.cfg.MaxConsecutiveToolErrors {
					return c.fail(st, errx.KindToolTransportError, nil,
						fmt.Sprintf("%d consecutive tool errors (last: %s from %s)",
							consecutiveToolErrors, outcome.ErrorDetail, outcome.ToolName))
				}
			} else {
				consecutiveToolErrors = 0
			}

			c.remember(ctx, st, memoryFromOutcome(st, outcome))
			ph = phaseDeciding

		case phaseClarifying:
			// a clarify decision does not consume a tool step
			st.StepCount--
			question := st.PendingAction.QuestionText
			logx.Debug().
				Str("run_id", st.RunID).
				Str("question", question).
				Msg("cycle paused awaiting clarification")
			return model.CycleResult{
				Kind:      model.ResultAwaitingClarification,
				Question:  question,
				StepsUsed: st.StepCount,
			}

		case phaseFinishing:
			dec := st.PendingAction
			st.FinalAnswer = dec.AnswerText
			st.RecommendedItem = dec.RecommendedItem

			if st.RecommendedItem != "" && c.cart != nil {
				// fire-and-forget: a cart failure never fails the cycle
				if err := c.cart.NotifyRecommendation(ctx, st.SessionID, st.RecommendedItem); err != nil {
					logx.Error().
						Str("run_id", st.RunID).
						Str("item_id", st.RecommendedItem).
						Err(err).
						Msg("recommendation notification failed")
				}
			}

			c.remember(ctx, st, model.MemoryRecord{
				ID:        uuid.NewString(),
				SessionID: st.SessionID,
				Kind:      model.MemoryFinalAnswer,
				Content:   fmt.Sprintf("Answered %q with: %s", st.Utterance, st.FinalAnswer),
				Timestamp: time.Now().UTC(),
			})

			logx.Debug().
				Str("run_id", st.RunID).
				Int("steps_used", st.StepCount).
				Msg("cycle finished")
			return model.CycleResult{
				Kind:            model.ResultSuccess,
				FinalAnswer:     st.FinalAnswer,
				RecommendedItem: st.RecommendedItem,
				StepsUsed:       st.StepCount,
			}
		}
	}
}

// budgetTerminal force-terminates a run whose step or time budget elapsed:
// Success with the best staged answer when one exists, budget_exceeded
// otherwise.
func (c *Controller) budgetTerminal(st *model.ConversationState, detail string) model.CycleResult {
	if st.FinalAnswer != "" {
		logx.Warn().
			Str("run_id", st.RunID).
			Str("detail", detail).
			Msg("budget reached, returning staged partial answer")
		return model.CycleResult{
			Kind:            model.ResultSuccess,
			FinalAnswer:     st.FinalAnswer,
			RecommendedItem: st.RecommendedItem,
			StepsUsed:       st.StepCount,
		}
	}
	return c.fail(st, errx.KindBudgetExceeded, nil, detail)
}

func (c *Controller) fail(st *model.ConversationState, kind errx.CycleErrorKind, err error, detail string) model.CycleResult {
	cerr := errx.NewCycleError(kind, err, detail)
	st.Err = cerr
	logx.Warn().
		Str("run_id", st.RunID).
		Str("kind", string(kind)).
		Str("detail", detail).
		Err(err).
		Msg("cycle terminated with error")
	return model.CycleResult{
		Kind:      model.ResultError,
		Err:       cerr,
		StepsUsed: st.StepCount,
	}
}

// remember appends a memory record with a bounded confirmation window.
// Failures degrade the run instead of aborting it.
func (c *Controller) remember(ctx context.Context, st *model.ConversationState, rec model.MemoryRecord) {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.StoreTimeout)
	defer cancel()

	if err := c.memory.Store(storeCtx, rec); err != nil {
		st.SoftErrors = append(st.SoftErrors, "memory store degraded: "+err.Error())
		logx.Warn().
			Str("run_id", st.RunID).
			Str("memory_kind", string(rec.Kind)).
			Err(err).
			Msg("memory store failed, continuing")
	}
}

// recallQuery prefers the extractor's attribute-focused rewrite when present.
func recallQuery(st *model.ConversationState) string {
	if st.Intent != nil && st.Intent.RefinedQuery != "" {
		return st.Intent.RefinedQuery
	}
	return st.Utterance
}

func memoryFromOutcome(st *model.ConversationState, outcome model.ToolOutcome) model.MemoryRecord {
	content := fmt.Sprintf("Tool call %s got: %s", outcome.ToolName, string(outcome.Payload))
	if outcome.IsError() {
		content = fmt.Sprintf("Tool call %s failed (%s): %s", outcome.ToolName, outcome.ErrorDetail, outcome.Detail)
	}
	return model.MemoryRecord{
		ID:        uuid.NewString(),
		SessionID: st.SessionID,
		Kind:      model.MemoryToolOutput,
		Content:   content,
		ToolName:  outcome.ToolName,
		Timestamp: time.Now().UTC(),
	}
}
