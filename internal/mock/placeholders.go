package mock

import (
	"slices"
	"strings"
)

// placeholderValues holds the fixed placeholder for well-known field
// names. Keys are lower case.
var placeholderValues = map[string]func() any{
	"name":        constant("John Doe"),
	"email":       constant("john@example.com"),
	"phone":       constant("555-123-4567"),
	"address":     constant("123 Main St"),
	"date":        constant("2026-01-15"),
	"amount":      constant("99.99"),
	"company":     constant("Acme Corp"),
	"summary":     constant(mockBullets),
	"explanation": constant("Mock explanation"),
	"sql":         constant("SELECT 1;"),
	"dialect":     constant("generic"),
	"language":    constant("English"),
	"code":        constant("en"),
	"confidence":  constant(0.9),
	"score":       constant(0.1),
	"label":       constant("neutral"),
	"flagged":     constant(false),
	"reasoning":   constant("Mock reasoning"),
	"categories":  func() any { return moderationMap(false) },
	"scores":      func() any { return moderationMap(0.0) },
	"entities": func() any {
		return []any{map[string]any{"text": "Mock", "type": "ORG", "start": 0, "end": 4}}
	},
	"topics":   func() any { return []any{"mock"} },
	"keywords": func() any { return []any{"mock"} },
}

var moderationCategories = []string{"violence", "sexual", "hate", "self_harm", "illegal", "dangerous"}

func constant(v any) func() any { return func() any { return v } }

func moderationMap(v any) map[string]any {
	m := make(map[string]any, len(moderationCategories))
	for _, c := range moderationCategories {
		m[c] = v
	}
	return m
}

// placeholder returns a type-appropriate value for a field name. Fresh
// containers are returned on every call so callers cannot alias them.
func placeholder(key, instruction string) any {
	lower := strings.ToLower(key)
	if lower == "command" {
		return generateCommand(instruction, "bash")
	}
	if f, ok := placeholderValues[lower]; ok {
		return f()
	}
	return "mock"
}

// generateCommand derives a shell command from the natural-language
// instruction.
func generateCommand(instruction, shell string) string {
	inst := strings.ToLower(instruction)
	switch {
	case strings.Contains(inst, "find") && (strings.Contains(inst, "python") || strings.Contains(inst, ".py")):
		return `find . -name "*.py"`
	case strings.Contains(inst, "disk") && strings.Contains(inst, "usage"):
		return "du -sh ."
	case strings.EqualFold(shell, "powershell"):
		return "Get-Process"
	}
	return `echo "mock command"`
}

// commandFromTokens picks a command containing the tokens a test expects.
func commandFromTokens(tokens []string, instruction string) string {
	lowered := make([]string, len(tokens))
	for i, t := range tokens {
		lowered[i] = strings.ToLower(t)
	}
	hasPy := slices.ContainsFunc(tokens, func(t string) bool { return strings.Contains(t, ".py") })
	switch {
	case slices.Contains(lowered, "find") && hasPy:
		return `find . -name "*.py"`
	case slices.Contains(lowered, "du"):
		return "du -sh ."
	case slices.ContainsFunc(lowered, func(t string) bool { return strings.Contains(t, "process") }):
		return "Get-Process"
	}
	return generateCommand(instruction, "bash")
}
