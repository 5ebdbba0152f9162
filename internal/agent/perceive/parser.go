package perceive

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/recomind-agent-poc/server/internal/agent/model"
	logx "github.com/recomind-agent-poc/server/pkg/logger"
)

const (
	recDelim = "##"
	tupDelim = "<||>"
	endDelim = "<|COMPLETE|>"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxRecords    = 100
	maxTupleLen   = 4 * 1024 // 4KB per tuple
	maxErrSnippet = 200
)

type rawTuple struct {
	Type  string
	Parts []string
}

func parseRawTuple(s string) (*rawTuple, error) {
	if s == "" {
		return nil, fmt.Errorf("empty tuple")
	}
	if len(s) > maxTupleLen {
		return nil, fmt.Errorf("tuple too large")
	}

	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return nil, fmt.Errorf("invalid tuple parens")
	}
	// remove the outermost parens only
	inner := s[1 : len(s)-1]
	parts := strings.SplitN(inner, tupDelim, 4)
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid tuple parts")
	}
	return &rawTuple{Type: strings.TrimSpace(parts[0]), Parts: parts}, nil
}

func parseConfidence(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("confidence parse: %w", err)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("confidence out of range")
	}
	return v, nil
}

func validText(s string) bool {
	return s != "" && utf8.ValidString(s)
}

// ParseIntentResponse parses the delimiter-tuple output of the perception
// model into an IntentRecord. The format uses one record per tuple:
//
//	(intent<||>product_search<||>0.92)##
//	(entity<||>brand<||>Nike)##
//	(refine<||>BrandName Nike, ApparelType running shoes)##
//	(hint<||>search_products)<|COMPLETE|>
//
// Malformed tuples are skipped and logged; a response with no usable intent
// tuple degrades to IntentOther rather than failing the cycle.
func ParseIntentResponse(content string) *model.IntentRecord {
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "intent_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	// honor completion delimiter if present
	if idx := strings.Index(content, endDelim); idx >= 0 {
		content = content[:idx]
	}

	rec := &model.IntentRecord{
		Type:     model.IntentOther,
		Entities: map[string]string{},
	}

	var parseErrs []string
	addErr := func(msg string) {
		parseErrs = append(parseErrs, msg)
	}

	records := strings.Split(content, recDelim)
	processed := 0
	intentSeen := false
	for _, raw := range records {
		if processed >= maxRecords {
			logx.Warn().
				Str("component", "intent_parser").
				Int("max_records", maxRecords).
				Msg("record processing capped")
			break
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		processed++

		rt, err := parseRawTuple(raw)
		if err != nil {
			addErr(fmt.Sprintf("bad_record: %s", safeSnippet(raw)))
			continue
		}

		switch rt.Type {
		case "intent":
			if len(rt.Parts) < 3 {
				addErr("intent: insufficient parts")
				continue
			}
			label := strings.TrimSpace(rt.Parts[1])
			if !validText(label) {
				addErr("intent: invalid label")
				continue
			}
			conf, err := parseConfidence(rt.Parts[2])
			if err != nil {
				addErr("intent: invalid confidence")
				continue
			}
			// highest-confidence intent wins when the model emits several
			if !intentSeen || conf > rec.Confidence {
				rec.Type = model.ParseIntentType(label)
				rec.Confidence = conf
			}
			intentSeen = true

		case "entity":
			if len(rt.Parts) < 3 {
				addErr("entity: insufficient parts")
				continue
			}
			name := strings.TrimSpace(rt.Parts[1])
			value := strings.TrimSpace(rt.Parts[2])
			if !validText(name) || !validText(value) {
				addErr("entity: invalid name or value")
				continue
			}
			rec.Entities[name] = value

		case "refine":
			q := strings.TrimSpace(rt.Parts[1])
			if validText(q) {
				rec.RefinedQuery = q
			}

		case "hint":
			h := strings.TrimSpace(rt.Parts[1])
			if validText(h) {
				rec.ToolHint = h
			}

		default:
			addErr("unknown tuple type")
		}
	}

	if len(parseErrs) > 0 {
		logx.Warn().
			Str("component", "intent_parser").
			Strs("parse_errors", parseErrs).
			Msg("skipped malformed perception tuples")
	}
	return rec
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
