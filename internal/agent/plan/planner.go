package plan

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	errx "github.com/recomind-agent-poc/server/internal/core/error"
	logx "github.com/recomind-agent-poc/server/pkg/logger"
)

//go:embed template/plan_prompt.txt
var planSystemPrompt string

const maxHistoryTurns = 6

// PromptConfig carries the business identity rendered into the planning prompt.
type PromptConfig struct {
	BusinessType string `envconfig:"PROMPT_BUSINESS_TYPE" default:"fashion and sportswear store"`
	BusinessName string `envconfig:"PROMPT_BUSINESS_NAME" default:"Recomind"`
}

// Planner selects the next action via the LLM port with a structured JSON
// output contract. Stateless between calls: everything it needs arrives in
// the PlanContext, so one instance serves concurrent cycles.
type Planner struct {
	llm    model.LLMClient
	tools  []model.ToolSpec
	prompt PromptConfig
}

func NewPlanner(llm model.LLMClient, tools []model.ToolSpec, promptCfg PromptConfig) (*Planner, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm client is nil")
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("planner needs at least one registry tool")
	}
	return &Planner{llm: llm, tools: tools, prompt: promptCfg}, nil
}

// Decide runs one planning step. A schema-validation failure is retried once
// with a corrective re-prompt; a second failure surfaces wrapped in
// errx.ErrSchemaViolation.
func (p *Planner) Decide(ctx context.Context, pc model.PlanContext) (*model.DecisionRecord, error) {
	if pc.Intent == nil {
		return nil, fmt.Errorf("plan context has no intent")
	}

	system, err := p.renderSystem(ctx)
	if err != nil {
		return nil, fmt.Errorf("render plan prompt: %w", err)
	}
	userPrompt := buildPlanContext(pc)

	dec, verr, err := p.complete(ctx, system, userPrompt)
	if err != nil {
		return nil, err
	}
	if verr == nil {
		return dec, nil
	}

	logx.Warn().
		Str("component", "plan").
		Err(verr).
		Msg("decision failed schema validation, re-prompting once")

	corrective := fmt.Sprintf(
		"%s\n\nYour previous response was rejected: %v. "+
			"Respond again with a single valid JSON object of exactly one variant.",
		userPrompt, verr,
	)
	dec, verr, err = p.complete(ctx, system, corrective)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		return nil, fmt.Errorf("decision rejected after corrective re-prompt: %w: %w", errx.ErrSchemaViolation, verr)
	}
	return dec, nil
}

// complete runs one LLM call and validates the parsed decision. The second
// return value is the validation error, kept separate from port errors so
// the caller can re-prompt.
func (p *Planner) complete(ctx context.Context, system, userPrompt string) (*model.DecisionRecord, error, error) {
	out, err := p.llm.Complete(ctx, model.CompletionRequest{System: system, Prompt: userPrompt})
	if err != nil {
		return nil, nil, fmt.Errorf("plan completion: %w", err)
	}

	content := stripFences(out.Content)
	var dec model.DecisionRecord
	if err := json.Unmarshal([]byte(content), &dec); err != nil {
		return nil, fmt.Errorf("not a JSON decision object: %w", err), nil
	}
	if err := dec.Validate(); err != nil {
		return nil, err, nil
	}

	logx.Debug().
		Str("component", "plan").
		Str("decision_type", string(dec.Type)).
		Str("tool_name", dec.ToolName).
		Msg("decision produced")
	return &dec, nil, nil
}

// renderSystem renders the embedded template via the Eino prompt component.
func (p *Planner) renderSystem(ctx context.Context) (string, error) {
	var catalog strings.Builder
	for _, t := range p.tools {
		catalog.WriteString(fmt.Sprintf("- %s: %s\n", t.Name, t.Desc))
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(planSystemPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"BusinessType": p.prompt.BusinessType,
		"BusinessName": p.prompt.BusinessName,
		"ToolCatalog":  strings.TrimRight(catalog.String(), "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("plan prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("plan prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// buildPlanContext serialises the read-only planning inputs into the user
// turn of the prompt.
func buildPlanContext(pc model.PlanContext) string {
	var b strings.Builder

	b.WriteString("<intent>\n")
	b.WriteString(fmt.Sprintf("type: %s (confidence %.2f)\n", pc.Intent.Type, pc.Intent.Confidence))
	for name, value := range pc.Intent.Entities {
		b.WriteString(fmt.Sprintf("entity %s: %s\n", name, value))
	}
	if pc.Intent.RefinedQuery != "" {
		b.WriteString("refined query: " + pc.Intent.RefinedQuery + "\n")
	}
	if pc.Intent.ToolHint != "" {
		b.WriteString("tool hint: " + pc.Intent.ToolHint + "\n")
	}
	b.WriteString("</intent>\n")

	b.WriteString("<relevant_memories>\n")
	if len(pc.Memories) == 0 {
		b.WriteString("None\n")
	}
	for _, m := range pc.Memories {
		b.WriteString(fmt.Sprintf("- [%s] %s\n", m.Kind, m.Content))
	}
	b.WriteString("</relevant_memories>\n")

	b.WriteString("<tool_outcomes_this_cycle>\n")
	if len(pc.ToolResults) == 0 {
		b.WriteString("None\n")
	}
	for _, o := range pc.ToolResults {
		if o.IsError() {
			b.WriteString(fmt.Sprintf("- %s -> error (%s): %s\n", o.ToolName, o.ErrorDetail, o.Detail))
			continue
		}
		b.WriteString(fmt.Sprintf("- %s -> ok: %s\n", o.ToolName, string(o.Payload)))
	}
	b.WriteString("</tool_outcomes_this_cycle>\n")

	b.WriteString("<conversation_context>\n")
	history := pc.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, msg := range history {
		if msg == nil || msg.Content == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			b.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			b.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}
	b.WriteString("</conversation_context>")
	return b.String()
}

// stripFences removes a surrounding markdown code fence when a model ignores
// the no-markdown instruction.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

var _ model.Planner = (*Planner)(nil)
