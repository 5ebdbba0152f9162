package cycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	errx "github.com/recomind-agent-poc/server/internal/core/error"
)

// ---------- fakes ----------

type fakeExtractor struct {
	intent *model.IntentRecord
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, utterance string, history []*schema.Message) (*model.IntentRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.intent != nil {
		return f.intent, nil
	}
	return &model.IntentRecord{Type: model.IntentProductSearch, Confidence: 0.9}, nil
}

type fakeMemory struct {
	recalled  []model.MemoryRecord
	recallErr error
	storeErr  error
	stored    []model.MemoryRecord
	queries   []string
}

func (f *fakeMemory) Recall(ctx context.Context, sessionID, query string, k int) ([]model.MemoryRecord, error) {
	f.queries = append(f.queries, query)
	if f.recallErr != nil {
		return nil, f.recallErr
	}
	return f.recalled, nil
}

func (f *fakeMemory) Store(ctx context.Context, rec model.MemoryRecord) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.stored = append(f.stored, rec)
	return nil
}

// fakePlanner returns its scripted decisions in order and records the plan
// contexts it saw.
type fakePlanner struct {
	decisions []*model.DecisionRecord
	errs      []error
	calls     int
	contexts  []model.PlanContext
}

func (f *fakePlanner) Decide(ctx context.Context, pc model.PlanContext) (*model.DecisionRecord, error) {
	f.contexts = append(f.contexts, pc)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.decisions) {
		return nil, fmt.Errorf("planner called %d times, only %d decisions scripted", f.calls, len(f.decisions))
	}
	return f.decisions[i], nil
}

type fakeDispatcher struct {
	outcomes []model.ToolOutcome
	err      error
	calls    int
	names    []string
}

func (f *fakeDispatcher) Invoke(ctx context.Context, name string, args map[string]any) (model.ToolOutcome, error) {
	f.names = append(f.names, name)
	i := f.calls
	f.calls++
	if f.err != nil {
		return model.ToolOutcome{}, f.err
	}
	if i >= len(f.outcomes) {
		return model.ToolOutcome{ToolName: name, Status: model.ToolStatusOK, Payload: json.RawMessage(`{}`)}, nil
	}
	return f.outcomes[i], nil
}

type fakeCart struct {
	err     error
	calls   int
	itemIDs []string
}

func (f *fakeCart) NotifyRecommendation(ctx context.Context, sessionID, itemID string) error {
	f.calls++
	f.itemIDs = append(f.itemIDs, itemID)
	return f.err
}

// ---------- helpers ----------

func toolCall(name string) *model.DecisionRecord {
	return &model.DecisionRecord{
		Type:     model.DecisionToolCall,
		ToolName: name,
		ToolArgs: map[string]any{"query": "running shoes"},
	}
}

func finalAnswer(text, item string) *model.DecisionRecord {
	return &model.DecisionRecord{
		Type:            model.DecisionFinalAnswer,
		AnswerText:      text,
		RecommendedItem: item,
	}
}

func okOutcome(name string) model.ToolOutcome {
	return model.ToolOutcome{
		ToolName: name,
		Status:   model.ToolStatusOK,
		Payload:  json.RawMessage(`{"products":[{"id":"prod-001"}]}`),
	}
}

func errOutcome(name string, detail model.ToolErrorDetail) model.ToolOutcome {
	return model.ToolOutcome{
		ToolName:    name,
		Status:      model.ToolStatusError,
		ErrorDetail: detail,
		Detail:      "boom",
	}
}

func newController(t *testing.T, ex *fakeExtractor, mem *fakeMemory, pl *fakePlanner, disp *fakeDispatcher, cart *fakeCart, cfg Config) *Controller {
	t.Helper()
	c, err := New(ex, mem, pl, disp, cart, cfg)
	require.NoError(t, err)
	return c
}

func run(t *testing.T, c *Controller, query string) model.CycleResult {
	t.Helper()
	return c.Run(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          query,
	})
}

// ---------- construction ----------

func TestNewRejectsNilCollaborators(t *testing.T) {
	ex := &fakeExtractor{}
	mem := &fakeMemory{}
	pl := &fakePlanner{}
	disp := &fakeDispatcher{}

	_, err := New(nil, mem, pl, disp, nil, Config{})
	assert.Error(t, err)
	_, err = New(ex, nil, pl, disp, nil, Config{})
	assert.Error(t, err)
	_, err = New(ex, mem, nil, disp, nil, Config{})
	assert.Error(t, err)
	_, err = New(ex, mem, pl, nil, nil, Config{})
	assert.Error(t, err)

	// cart notifier is optional
	c, err := New(ex, mem, pl, disp, nil, Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSteps, c.cfg.MaxSteps)
	assert.Equal(t, DefaultMaxConsecutiveToolErrors, c.cfg.MaxConsecutiveToolErrors)
}

// ---------- happy path ----------

func TestRunToolCallThenFinalAnswer(t *testing.T) {
	ex := &fakeExtractor{}
	mem := &fakeMemory{}
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		toolCall("search_products"),
		finalAnswer("The Nike Air Zoom Pegasus 41 fits your budget.", "prod-001"),
	}}
	disp := &fakeDispatcher{outcomes: []model.ToolOutcome{okOutcome("search_products")}}
	cart := &fakeCart{}

	c := newController(t, ex, mem, pl, disp, cart, Config{})
	res := run(t, c, "Nike running shoes under $100")

	require.Equal(t, model.ResultSuccess, res.Kind)
	assert.True(t, res.Success())
	assert.Equal(t, "The Nike Air Zoom Pegasus 41 fits your budget.", res.FinalAnswer)
	assert.Equal(t, "prod-001", res.RecommendedItem)
	assert.Equal(t, 2, res.StepsUsed)

	assert.Equal(t, 1, ex.calls)
	assert.Equal(t, 2, pl.calls)
	assert.Equal(t, []string{"search_products"}, disp.names)

	// the recommendation was forwarded to the cart exactly once
	assert.Equal(t, []string{"prod-001"}, cart.itemIDs)

	// tool outcome and final answer were both persisted
	require.Len(t, mem.stored, 2)
	assert.Equal(t, model.MemoryToolOutput, mem.stored[0].Kind)
	assert.Equal(t, "search_products", mem.stored[0].ToolName)
	assert.Equal(t, model.MemoryFinalAnswer, mem.stored[1].Kind)

	// the second planning step saw the first tool outcome
	require.Len(t, pl.contexts, 2)
	assert.Empty(t, pl.contexts[0].ToolResults)
	require.Len(t, pl.contexts[1].ToolResults, 1)
	assert.Equal(t, model.ToolStatusOK, pl.contexts[1].ToolResults[0].Status)
}

func TestRunFinalAnswerWithoutTools(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		finalAnswer("Happy to help!", ""),
	}}
	disp := &fakeDispatcher{}
	cart := &fakeCart{}

	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, disp, cart, Config{})
	res := run(t, c, "thanks!")

	require.Equal(t, model.ResultSuccess, res.Kind)
	assert.Equal(t, 1, res.StepsUsed)
	assert.Zero(t, disp.calls)
	// no recommended item, no cart notification
	assert.Zero(t, cart.calls)
}

// ---------- perception ----------

func TestRunPerceptionFailureIsFatal(t *testing.T) {
	ex := &fakeExtractor{err: fmt.Errorf("model unreachable")}
	pl := &fakePlanner{}
	mem := &fakeMemory{}

	c := newController(t, ex, mem, pl, &fakeDispatcher{}, nil, Config{})
	res := run(t, c, "hello")

	require.Equal(t, model.ResultError, res.Kind)
	require.NotNil(t, res.Err)
	assert.Equal(t, errx.KindPerceptionFailure, res.Err.Kind)
	assert.Zero(t, pl.calls)
	assert.Empty(t, mem.queries)
	assert.Zero(t, res.StepsUsed)
}

func TestRunRecallQueryPrefersRefinedQuery(t *testing.T) {
	ex := &fakeExtractor{intent: &model.IntentRecord{
		Type:         model.IntentProductSearch,
		RefinedQuery: "BrandName Nike, ApparelType running shoes",
	}}
	mem := &fakeMemory{}
	pl := &fakePlanner{decisions: []*model.DecisionRecord{finalAnswer("ok", "")}}

	c := newController(t, ex, mem, pl, &fakeDispatcher{}, nil, Config{})
	res := run(t, c, "I want Nike running shoes")

	require.Equal(t, model.ResultSuccess, res.Kind)
	require.Len(t, mem.queries, 1)
	assert.Equal(t, "BrandName Nike, ApparelType running shoes", mem.queries[0])
}

// ---------- recall degradation ----------

func TestRunRecallFailureIsSoft(t *testing.T) {
	mem := &fakeMemory{recallErr: fmt.Errorf("redis down")}
	pl := &fakePlanner{decisions: []*model.DecisionRecord{finalAnswer("no memories needed", "")}}

	c := newController(t, &fakeExtractor{}, mem, pl, &fakeDispatcher{}, nil, Config{})
	res := run(t, c, "anything")

	require.Equal(t, model.ResultSuccess, res.Kind)
	require.Len(t, pl.contexts, 1)
	assert.Empty(t, pl.contexts[0].Memories)
}

func TestRunStoreFailureIsSoft(t *testing.T) {
	mem := &fakeMemory{storeErr: fmt.Errorf("redis down")}
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		toolCall("search_products"),
		finalAnswer("done", ""),
	}}
	disp := &fakeDispatcher{outcomes: []model.ToolOutcome{okOutcome("search_products")}}

	c := newController(t, &fakeExtractor{}, mem, pl, disp, nil, Config{})
	res := run(t, c, "anything")

	require.Equal(t, model.ResultSuccess, res.Kind)
	assert.Equal(t, 2, res.StepsUsed)
}

// ---------- planning failures ----------

func TestRunPlannerFailureIsFatal(t *testing.T) {
	pl := &fakePlanner{errs: []error{fmt.Errorf("schema violation after retry")}}

	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, &fakeDispatcher{}, nil, Config{})
	res := run(t, c, "anything")

	require.Equal(t, model.ResultError, res.Kind)
	require.NotNil(t, res.Err)
	assert.Equal(t, errx.KindPlanningSchemaFailure, res.Err.Kind)
	assert.Equal(t, 1, res.StepsUsed)
}

// ---------- budgets ----------

func TestRunStepBudgetExceededWithoutAnswer(t *testing.T) {
	// planner keeps calling tools forever; budget of 2 must stop it
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		toolCall("search_products"),
		toolCall("get_product_details"),
		toolCall("search_products"),
	}}
	disp := &fakeDispatcher{outcomes: []model.ToolOutcome{
		okOutcome("search_products"),
		okOutcome("get_product_details"),
	}}

	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, disp, nil, Config{MaxSteps: 2})
	res := run(t, c, "anything")

	require.Equal(t, model.ResultError, res.Kind)
	require.NotNil(t, res.Err)
	assert.Equal(t, errx.KindBudgetExceeded, res.Err.Kind)
	// the planner was consulted exactly MaxSteps times, never a third
	assert.Equal(t, 2, pl.calls)
	assert.Equal(t, 2, disp.calls)
	assert.Equal(t, 2, res.StepsUsed)
}

func TestRunPerRunStepOverride(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		toolCall("search_products"),
		toolCall("search_products"),
	}}
	disp := &fakeDispatcher{outcomes: []model.ToolOutcome{okOutcome("search_products")}}

	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, disp, nil, Config{MaxSteps: 5})
	res := c.Run(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "anything",
		MaxSteps:       1,
	})

	require.Equal(t, model.ResultError, res.Kind)
	assert.Equal(t, errx.KindBudgetExceeded, res.Err.Kind)
	assert.Equal(t, 1, pl.calls)
}

func TestRunWallClockBudgetElapsed(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		toolCall("search_products"),
		finalAnswer("never reached", ""),
	}}
	disp := &fakeDispatcher{outcomes: []model.ToolOutcome{okOutcome("search_products")}}

	// budget so small it is elapsed before the second Deciding step
	cfg := Config{WallClockBudget: time.Nanosecond}
	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, disp, nil, cfg)
	res := run(t, c, "anything")

	require.Equal(t, model.ResultError, res.Kind)
	assert.Equal(t, errx.KindBudgetExceeded, res.Err.Kind)
	// never consulted: budget check precedes the first Decide already
	assert.Zero(t, pl.calls)
}

// ---------- tool errors ----------

func TestRunSingleToolErrorIsRecoverable(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		toolCall("search_products"),
		finalAnswer("recovered after one error", ""),
	}}
	disp := &fakeDispatcher{outcomes: []model.ToolOutcome{
		errOutcome("search_products", model.ToolErrTransportFailure),
	}}

	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, disp, nil, Config{MaxConsecutiveToolErrors: 2})
	res := run(t, c, "anything")

	require.Equal(t, model.ResultSuccess, res.Kind)
	// the error outcome was fed back to the planner as data
	require.Len(t, pl.contexts, 2)
	require.Len(t, pl.contexts[1].ToolResults, 1)
	assert.True(t, pl.contexts[1].ToolResults[0].IsError())
}

func TestRunConsecutiveToolErrorsTerminate(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		toolCall("search_products"),
		toolCall("search_products"),
		finalAnswer("never reached", ""),
	}}
	disp := &fakeDispatcher{outcomes: []model.ToolOutcome{
		errOutcome("search_products", model.ToolErrTransportFailure),
		errOutcome("search_products", model.ToolErrTimeout),
	}}

	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, disp, nil, Config{MaxConsecutiveToolErrors: 2})
	res := run(t, c, "anything")

	require.Equal(t, model.ResultError, res.Kind)
	require.NotNil(t, res.Err)
	assert.Equal(t, errx.KindToolTransportError, res.Err.Kind)
	// terminated right after the second error, no third Decide
	assert.Equal(t, 2, pl.calls)
	assert.Equal(t, 2, disp.calls)
}

func TestRunSuccessResetsConsecutiveErrorCount(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		toolCall("search_products"),
		toolCall("search_products"),
		toolCall("search_products"),
		finalAnswer("got there", ""),
	}}
	disp := &fakeDispatcher{outcomes: []model.ToolOutcome{
		errOutcome("search_products", model.ToolErrTransportFailure),
		okOutcome("search_products"),
		errOutcome("search_products", model.ToolErrTransportFailure),
	}}

	cfg := Config{MaxSteps: 10, MaxConsecutiveToolErrors: 2}
	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, disp, nil, cfg)
	res := run(t, c, "anything")

	// error, ok, error never reaches two in a row
	require.Equal(t, model.ResultSuccess, res.Kind)
	assert.Equal(t, 4, res.StepsUsed)
}

func TestRunDispatcherAbandonOnCancel(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{toolCall("search_products")}}
	disp := &fakeDispatcher{err: context.Canceled}

	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, disp, nil, Config{})
	res := run(t, c, "anything")

	require.Equal(t, model.ResultError, res.Kind)
	require.NotNil(t, res.Err)
	assert.Equal(t, errx.KindCanceled, res.Err.Kind)
	assert.True(t, errors.Is(res.Err, context.Canceled))
}

func TestRunCancellationBetweenIterations(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pl := &fakePlanner{}
	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, &fakeDispatcher{}, nil, Config{})
	res := c.Run(ctx, model.QueryInput{ConversationID: "conv-1", Query: "anything"})

	require.Equal(t, model.ResultError, res.Kind)
	assert.Equal(t, errx.KindCanceled, res.Err.Kind)
	assert.Zero(t, pl.calls)
}

// ---------- clarification ----------

func TestRunClarifyPausesWithoutConsumingSteps(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		{Type: model.DecisionClarify, QuestionText: "Which sport are the shoes for?"},
	}}
	disp := &fakeDispatcher{}

	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, disp, nil, Config{})
	res := run(t, c, "I need shoes")

	require.Equal(t, model.ResultAwaitingClarification, res.Kind)
	assert.Equal(t, "Which sport are the shoes for?", res.Question)
	assert.Zero(t, res.StepsUsed)
	assert.Zero(t, disp.calls)
}

func TestRunClarifyResumeWithEnrichedHistory(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		{Type: model.DecisionClarify, QuestionText: "Trail or road running?"},
		finalAnswer("Road shoes it is.", "prod-006"),
	}}
	cart := &fakeCart{}
	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, &fakeDispatcher{}, cart, Config{})

	first := c.Run(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "I need running shoes",
	})
	require.Equal(t, model.ResultAwaitingClarification, first.Kind)

	history := []*schema.Message{
		schema.UserMessage("I need running shoes"),
		schema.AssistantMessage(first.Question, nil),
	}
	second := c.Run(context.Background(), model.QueryInput{
		ConversationID: "conv-1",
		Query:          "road running",
		History:        history,
	})

	require.Equal(t, model.ResultSuccess, second.Kind)
	assert.Equal(t, "prod-006", second.RecommendedItem)
	assert.Equal(t, 1, second.StepsUsed)
	// the resumed planning step saw the clarification exchange
	require.Len(t, pl.contexts, 2)
	assert.Len(t, pl.contexts[1].History, 2)
	assert.Equal(t, []string{"prod-006"}, cart.itemIDs)
}

// ---------- side effects ----------

func TestRunCartFailureDoesNotFailCycle(t *testing.T) {
	pl := &fakePlanner{decisions: []*model.DecisionRecord{
		finalAnswer("take these", "prod-001"),
	}}
	cart := &fakeCart{err: fmt.Errorf("cart service down")}

	c := newController(t, &fakeExtractor{}, &fakeMemory{}, pl, &fakeDispatcher{}, cart, Config{})
	res := run(t, c, "anything")

	require.Equal(t, model.ResultSuccess, res.Kind)
	assert.Equal(t, 1, cart.calls)
}
