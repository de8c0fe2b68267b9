package mock

import (
	"fmt"
	"slices"
	"strings"
)

const (
	mockBullets     = "- Mock summary line 1\n- Mock summary line 2"
	instructionEcho = 200
)

// textRule selects free-text content for a chat step. Rules are evaluated
// in order and the first match wins.
type textRule struct {
	name    string
	matches func(Context) bool
	content func(Context) string
}

var textRules = []textRule{
	{
		name:    "bullets",
		matches: func(c Context) bool { return isTrue(c.Expectation.SummaryContainsBullets) },
		content: fixed(mockBullets),
	},
	{
		name:    "explanation-tokens",
		matches: func(c Context) bool { return len(c.Expectation.ExplanationContains) > 0 },
		content: func(c Context) string { return strings.Join(c.Expectation.ExplanationContains, " ") },
	},
	{
		name:    "transcription",
		matches: skillNameHas("transcribe"),
		content: fixed("Mock transcript."),
	},
	{
		name:    "image-description",
		matches: skillNameHas("image", "caption", "alttext"),
		content: fixed("Mock image description."),
	},
	{
		name:    "summarization",
		matches: skillNameHas("summarize"),
		content: fixed(mockBullets),
	},
	{
		name:    "instruction-echo",
		matches: func(c Context) bool { return c.Instruction != "" },
		content: func(c Context) string {
			return strings.TrimSpace("Mock response: " + truncateRunes(c.Instruction, instructionEcho))
		},
	},
	{
		name:    "fallback",
		matches: func(Context) bool { return true },
		content: fixed("Mock response."),
	},
}

func freeText(c Context) string {
	for _, r := range textRules {
		if r.matches(c) {
			return r.content(c)
		}
	}
	return ""
}

func fixed(s string) func(Context) string {
	return func(Context) string { return s }
}

func skillNameHas(subs ...string) func(Context) bool {
	return func(c Context) bool {
		for _, s := range subs {
			if strings.Contains(c.SkillName, s) {
				return true
			}
		}
		return false
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func isTrue(b *bool) bool { return b != nil && *b }

// structuredFields are the has_field names that get a placeholder in a
// structured response. Other required fields are expected to be produced
// by the pipeline itself.
var structuredFields = []string{
	"corrected", "issues", "score", "label", "confidence", "language", "code",
	"command", "explanation", "sql", "dialect", "flagged", "categories",
	"scores", "reasoning",
}

// structuredPayload builds the object a downstream parse_json step will
// see, shaped after what the test expects.
func structuredPayload(c Context) map[string]any {
	e := c.Expectation
	out := map[string]any{}
	setDefault := func(key string, v any) {
		if _, ok := out[key]; !ok {
			out[key] = v
		}
	}

	for _, key := range e.ExtractedContains {
		out[key] = placeholder(key, c.Instruction)
	}

	for _, key := range e.AnalysisHas {
		switch key {
		case "sentiment":
			out[key] = map[string]any{"label": "neutral", "score": 0.5, "explanation": "Mock sentiment"}
		case "entities", "topics", "keywords":
			out[key] = placeholder(key, c.Instruction)
		default:
			out[key] = "mock"
		}
	}

	if len(e.CommandContains) > 0 {
		out["command"] = commandFromTokens(e.CommandContains, c.Instruction)
		setDefault("explanation", "Mock explanation")
	}

	if len(e.ExplanationContains) > 0 {
		out["explanation"] = strings.Join(e.ExplanationContains, " ")
	}

	for _, f := range e.HasField {
		if slices.Contains(structuredFields, f) {
			setDefault(f, placeholder(f, c.Instruction))
		}
	}

	if e.HasPII != nil || e.HasSecrets != nil || e.FindingsLength != nil {
		count := 0
		switch {
		case e.FindingsLength != nil:
			count = *e.FindingsLength
		case isTrue(e.HasPII) || isTrue(e.HasSecrets):
			count = 1
		}
		kind := findingPII
		if isTrue(e.HasSecrets) {
			kind = findingSecret
		}
		setDefault("findings", findings(count, kind))
		setDefault("summary", "Mock summary")
	}

	if len(out) == 0 {
		return map[string]any{"result": "mock"}
	}
	return out
}

type findingKind int

const (
	findingPII findingKind = iota
	findingSecret
)

func findings(count int, kind findingKind) []any {
	out := make([]any, 0, max(count, 0))
	for i := 0; i < count; i++ {
		if kind == findingSecret {
			out = append(out, map[string]any{
				"type":     "api_key",
				"value":    fmt.Sprintf("mock-secret-%d", i),
				"line":     i + 1,
				"severity": "high",
			})
			continue
		}
		out = append(out, map[string]any{
			"type":       "email",
			"value":      fmt.Sprintf("mock%d@example.com", i),
			"start":      0,
			"end":        10,
			"confidence": 0.9,
		})
	}
	return out
}
