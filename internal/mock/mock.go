// Package mock rewrites the external provider steps of a job pipeline into
// deterministic mapping steps so tests run offline and reproducibly.
package mock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"skilltest/internal/expect"
	"skilltest/pkg/logging"
)

// Kind classifies a processor step.
type Kind string

const (
	KindNone       Kind = ""
	KindChat       Kind = "chat"
	KindImage      Kind = "image"
	KindEmbeddings Kind = "embeddings"
	KindSpeech     Kind = "speech"
	// KindExternal steps reach the network or the host but are not mocked.
	// Credential gating decides whether a suite using them runs at all.
	KindExternal Kind = "external"
)

// stepKinds maps processor names onto kinds. The table is closed: anything
// not listed is KindNone.
var stepKinds = []struct {
	processor string
	kind      Kind
}{
	{"openai_chat_completion", KindChat},
	{"openai_image_generation", KindImage},
	{"openai_embeddings", KindEmbeddings},
	{"openai_speech", KindSpeech},
	{"http_client", KindExternal},
	{"command", KindExternal},
	{"subprocess", KindExternal},
}

// providerPrefix marks processors that call the mocked provider.
const providerPrefix = "openai_"

// Fixed replacements for provider steps whose output does not depend on
// the test case.
const (
	imageMapping      = `root = {"data": [{"url": "https://example.com/mock.png", "revised_prompt": "mock prompt"}]}`
	embeddingsMapping = `root = {"data": [{"embedding": [0.0, 0.0, 0.0, 0.0]}]}`
	speechMapping     = `root = "MOCK_AUDIO"`
)

// Context carries what the engine needs to synthesize content for a test
// case.
type Context struct {
	SkillName   string
	Expectation expect.Expectation
	// Instruction is the raw test input.
	Instruction string
}

// Step identifies one classified processor.
type Step struct {
	Index int
	Kind  Kind
	// Structured is set for chat steps whose output is parsed downstream.
	Structured bool
}

// Summary reports what Apply did.
type Summary struct {
	Mocked   []Step
	External []Step
}

// Classify returns the kind of a processor step.
func Classify(proc any) Kind {
	m, ok := proc.(map[string]any)
	if !ok {
		return KindNone
	}
	for _, sk := range stepKinds {
		if _, ok := m[sk.processor]; ok {
			return sk.kind
		}
	}
	return KindNone
}

// Apply replaces every provider step in processors, in place, with a
// mapping step that produces a literal response. Other steps are left
// untouched. The result is deterministic for identical arguments.
func Apply(processors []any, c Context) Summary {
	var s Summary
	for i, proc := range processors {
		kind := Classify(proc)
		var mapping string
		step := Step{Index: i, Kind: kind}

		switch kind {
		case KindChat:
			step.Structured = expectsStructured(processors, i)
			mapping = chatMapping(content(c, step.Structured))
		case KindImage:
			mapping = imageMapping
		case KindEmbeddings:
			mapping = embeddingsMapping
		case KindSpeech:
			mapping = speechMapping
		case KindExternal:
			s.External = append(s.External, step)
			continue
		default:
			continue
		}

		processors[i] = map[string]any{"mapping": mapping}
		s.Mocked = append(s.Mocked, step)
		logging.Debug("Mock", "Replaced %s step %d in %s (structured=%t)", kind, i, c.SkillName, step.Structured)
	}
	return s
}

// expectsStructured reports whether the output of the step at idx is
// parsed as JSON downstream. The first later mapping step decides; a later
// provider step ends the scan.
func expectsStructured(processors []any, idx int) bool {
	for _, proc := range processors[idx+1:] {
		m, ok := proc.(map[string]any)
		if !ok {
			continue
		}
		if mapping, ok := m["mapping"]; ok {
			s, _ := mapping.(string)
			return strings.Contains(s, "parse_json")
		}
		for key := range m {
			if strings.HasPrefix(key, providerPrefix) {
				return false
			}
		}
	}
	return false
}

func chatMapping(content string) string {
	return `root = {"choices": [{"message": {"content": ` + literal(content) + `}}]}`
}

func content(c Context, structured bool) string {
	if structured {
		return literal(structuredPayload(c))
	}
	return freeText(c)
}

// literal encodes v as compact JSON without HTML escaping.
func literal(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// Only placeholder data reaches here; it always encodes.
		panic(fmt.Sprintf("mock: encoding literal: %v", err))
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
