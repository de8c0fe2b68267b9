package expect

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Expectation is the declarative set of assertions a test case places on a
// job response. Every assertion kind is optional; a nil pointer or empty
// slice means the kind is absent. All present kinds must hold for a pass.
type Expectation struct {
	// ErrorOrEmpty accepts any error status, empty body or error-like body.
	ErrorOrEmpty bool
	// HasField lists required top-level fields.
	HasField []string
	// MetadataHas lists keys required under the top-level "metadata" object.
	MetadataHas []string
	// ExtractedContains lists keys (or tokens) required in "extracted".
	ExtractedContains []string
	// AnalysisHas lists keys required under the top-level "analysis" object.
	AnalysisHas []string
	// CommandContains lists substrings required in the "command" field.
	CommandContains []string
	// ExplanationContains lists substrings required in the "explanation" field.
	ExplanationContains []string

	HashLength     *int
	Hash           *string
	Algorithm      *string
	HasPII         *bool
	HasSecrets     *bool
	FindingsLength *int

	// SummaryContainsBullets requires (true) or forbids (false) list markup
	// in the "summary" field.
	SummaryContainsBullets *bool

	// MinLength and MaxLength bound the first non-empty of summary and
	// explanation.
	MinLength *int
	MaxLength *int
}

// knownKeys lists every assertion kind understood by FromMap.
var knownKeys = map[string]bool{
	"error_or_empty":           true,
	"has_field":                true,
	"metadata_has":             true,
	"extracted_contains":       true,
	"analysis_has":             true,
	"command_contains":         true,
	"explanation_contains":     true,
	"hash_length":              true,
	"hash":                     true,
	"algorithm":                true,
	"has_pii":                  true,
	"has_secrets":              true,
	"findings_length":          true,
	"summary_contains_bullets": true,
	"min_length":               true,
	"max_length":               true,
}

// FromMap builds an Expectation from a decoded test declaration. It
// rejects values of the wrong shape so a malformed test is reported at
// load time instead of producing a misleading pass or fail.
func FromMap(m map[string]any) (Expectation, error) {
	var e Expectation
	var err error

	if v, ok := m["error_or_empty"]; ok {
		if e.ErrorOrEmpty, err = toBool("error_or_empty", v); err != nil {
			return Expectation{}, err
		}
	}

	lists := []struct {
		key string
		dst *[]string
	}{
		{"has_field", &e.HasField},
		{"metadata_has", &e.MetadataHas},
		{"extracted_contains", &e.ExtractedContains},
		{"analysis_has", &e.AnalysisHas},
		{"command_contains", &e.CommandContains},
		{"explanation_contains", &e.ExplanationContains},
	}
	for _, l := range lists {
		if v, ok := m[l.key]; ok {
			if *l.dst, err = toStrings(l.key, v); err != nil {
				return Expectation{}, err
			}
		}
	}

	ints := []struct {
		key string
		dst **int
	}{
		{"hash_length", &e.HashLength},
		{"findings_length", &e.FindingsLength},
		{"min_length", &e.MinLength},
		{"max_length", &e.MaxLength},
	}
	for _, i := range ints {
		if v, ok := m[i.key]; ok {
			n, err := toInt(i.key, v)
			if err != nil {
				return Expectation{}, err
			}
			*i.dst = &n
		}
	}

	strs := []struct {
		key string
		dst **string
	}{
		{"hash", &e.Hash},
		{"algorithm", &e.Algorithm},
	}
	for _, s := range strs {
		if v, ok := m[s.key]; ok {
			str, ok := v.(string)
			if !ok {
				return Expectation{}, fmt.Errorf("%s: expected a string, got %T", s.key, v)
			}
			*s.dst = &str
		}
	}

	bools := []struct {
		key string
		dst **bool
	}{
		{"has_pii", &e.HasPII},
		{"has_secrets", &e.HasSecrets},
		{"summary_contains_bullets", &e.SummaryContainsBullets},
	}
	for _, b := range bools {
		if v, ok := m[b.key]; ok {
			flag, err := toBool(b.key, v)
			if err != nil {
				return Expectation{}, err
			}
			*b.dst = &flag
		}
	}

	return e, nil
}

// UnknownKeys returns the keys of m that are not assertion kinds, sorted.
func UnknownKeys(m map[string]any) []string {
	var unknown []string
	for k := range m {
		if !knownKeys[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

func toStrings(key string, v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, err := scalarString(key, item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := scalarString(key, v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func scalarString(key string, v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int, int64, float64, bool:
		return fmt.Sprint(t), nil
	default:
		return "", fmt.Errorf("%s: expected a string or list of strings, got %T", key, v)
	}
}

func toInt(key string, v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%s: expected an integer, got %v", key, t)
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%s: expected an integer, got %q", key, t)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: expected an integer, got %T", key, v)
	}
}

func toBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s: expected a boolean, got %T", key, v)
	}
	return b, nil
}
