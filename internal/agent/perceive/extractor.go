package perceive

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	errx "github.com/recomind-agent-poc/server/internal/core/error"
	logx "github.com/recomind-agent-poc/server/pkg/logger"
)

//go:embed template/perception_prompt.txt
var perceptionSystemPrompt string

// Extractor turns a raw utterance plus prior turns into an IntentRecord.
// Stateless: every call is a pure function of its inputs and the LLM port.
type Extractor struct {
	llm      model.LLMClient
	maxTurns int
	tools    []model.ToolSpec
}

// NewExtractor builds the intent extractor. tools feeds the hint vocabulary
// of the perception prompt.
func NewExtractor(llm model.LLMClient, cfg model.PerceptionModelConfig, tools []model.ToolSpec) (*Extractor, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm client is nil")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &Extractor{llm: llm, maxTurns: maxTurns, tools: tools}, nil
}

// Extract classifies the utterance. Any LLM port failure is returned as-is
// so the cycle can terminate with a perception failure; parser-level noise
// degrades to IntentOther instead.
func (e *Extractor) Extract(ctx context.Context, utterance string, history []*schema.Message) (*model.IntentRecord, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, fmt.Errorf("empty utterance")
	}

	system, err := renderPerceptionSystem(ctx, e.tools)
	if err != nil {
		return nil, fmt.Errorf("render perception prompt: %w", err)
	}

	out, err := e.llm.Complete(ctx, model.CompletionRequest{
		System: system,
		Prompt: buildPerceptionContext(utterance, history, e.maxTurns),
	})
	if err != nil {
		return nil, fmt.Errorf("perception completion: %w", err)
	}
	if strings.TrimSpace(out.Content) == "" {
		return nil, fmt.Errorf("perception completion: %w", errx.ErrSchemaViolation)
	}

	rec := ParseIntentResponse(out.Content)
	logx.Debug().
		Str("component", "perceive").
		Str("intent_type", string(rec.Type)).
		Float64("confidence", rec.Confidence).
		Int("entities", len(rec.Entities)).
		Msg("intent extracted")
	return rec, nil
}

// renderPerceptionSystem renders the embedded template via the Eino prompt
// component so prompt callbacks fire like any other component.
func renderPerceptionSystem(ctx context.Context, tools []model.ToolSpec) (string, error) {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}

	// Safely render known tokens only to avoid interfering with the tuple
	// delimiters in the template body.
	content := strings.NewReplacer(
		"{TD}", tupDelim,
		"{RD}", recDelim,
		"{CD}", endDelim,
		"{tool_names}", strings.Join(names, ", "),
	).Replace(perceptionSystemPrompt)

	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(content)},
	})
	if err != nil {
		return "", fmt.Errorf("perception prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("perception prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}

// buildPerceptionContext frames the recent turns plus the current utterance
// the way the model was prompted to expect them.
func buildPerceptionContext(utterance string, history []*schema.Message, maxTurns int) string {
	recent := trimTail(history, maxTurns)

	var b strings.Builder
	b.WriteString("<conversation_context>\n")
	for _, msg := range recent {
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
	b.WriteString("</conversation_context>\n")
	b.WriteString("<current_message_to_analyze>\n")
	b.WriteString("UserMessage(" + utterance + ")\n")
	b.WriteString("</current_message_to_analyze>")
	return b.String()
}

func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}

var _ model.IntentExtractor = (*Extractor)(nil)
