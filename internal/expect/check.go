// Package expect evaluates declarative expectations against job responses.
package expect

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// bulletMarkers are the sequences that count as list markup in a summary.
var bulletMarkers = []string{"\n-", "\n*", "\n•", "\n1."}

// lengthCandidates are checked in order by min_length and max_length.
var lengthCandidates = []string{"summary", "explanation"}

// Check validates a response body and status code against e. It has no
// side effects: the same arguments always produce the same result. Every
// present assertion is evaluated; the returned failures are in a fixed
// order and the check passes only when there are none.
func Check(e Expectation, body []byte, statusCode int) (bool, []string) {
	root := gjson.ParseBytes(body)
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	if e.ErrorOrEmpty && !isErrorOrEmpty(root, statusCode) {
		fail("expected error_or_empty but got output")
	}

	for _, f := range e.HasField {
		if !member(root, f).Exists() {
			fail("missing field: %s", f)
		}
	}

	if len(e.MetadataHas) > 0 {
		metadata := member(root, "metadata")
		for _, key := range e.MetadataHas {
			if !metadata.IsObject() || !member(metadata, key).Exists() {
				fail("missing metadata key: %s", key)
			}
		}
	}

	if len(e.ExtractedContains) > 0 {
		extracted := member(root, "extracted")
		if extracted.Type == gjson.String && gjson.Valid(extracted.Str) {
			extracted = gjson.Parse(extracted.Str)
		}
		for _, key := range e.ExtractedContains {
			switch {
			case !extracted.Exists() || extracted.IsObject():
				if !member(extracted, key).Exists() {
					fail("missing extracted key: %s", key)
				}
			case !strings.Contains(text(extracted), key):
				fail("missing extracted token: %s", key)
			}
		}
	}

	if len(e.AnalysisHas) > 0 {
		analysis := member(root, "analysis")
		for _, key := range e.AnalysisHas {
			if !analysis.IsObject() || !member(analysis, key).Exists() {
				fail("missing analysis key: %s", key)
			}
		}
	}

	if len(e.CommandContains) > 0 {
		command := text(member(root, "command"))
		for _, token := range e.CommandContains {
			if !strings.Contains(command, token) {
				fail("command missing token: %s", token)
			}
		}
	}

	if e.HashLength != nil {
		got := utf8.RuneCountInString(text(member(root, "hash")))
		if got != *e.HashLength {
			fail("hash length mismatch: expected %d, got %d", *e.HashLength, got)
		}
	}

	if e.Hash != nil {
		if got := member(root, "hash"); got.Type != gjson.String || got.Str != *e.Hash {
			fail("hash mismatch: expected %q, got %s", *e.Hash, describe(got))
		}
	}

	if e.Algorithm != nil {
		if got := member(root, "algorithm"); got.Type != gjson.String || got.Str != *e.Algorithm {
			fail("algorithm mismatch: expected %q, got %s", *e.Algorithm, describe(got))
		}
	}

	if e.HasPII != nil {
		if got := member(root, "has_pii"); !got.IsBool() || got.Bool() != *e.HasPII {
			fail("has_pii mismatch: expected %t, got %s", *e.HasPII, describe(got))
		}
	}

	if e.HasSecrets != nil {
		if got := member(root, "has_secrets"); !got.IsBool() || got.Bool() != *e.HasSecrets {
			fail("has_secrets mismatch: expected %t, got %s", *e.HasSecrets, describe(got))
		}
	}

	if e.FindingsLength != nil {
		findings := member(root, "findings")
		switch {
		case !findings.Exists():
			if *e.FindingsLength != 0 {
				fail("findings_length mismatch: expected %d, got 0", *e.FindingsLength)
			}
		case !findings.IsArray():
			fail("findings_length mismatch: expected %d, findings is not a list", *e.FindingsLength)
		case len(findings.Array()) != *e.FindingsLength:
			fail("findings_length mismatch: expected %d, got %d", *e.FindingsLength, len(findings.Array()))
		}
	}

	if e.SummaryContainsBullets != nil {
		has := hasBullets(text(member(root, "summary")))
		switch {
		case *e.SummaryContainsBullets && !has:
			fail("summary does not contain bullets")
		case !*e.SummaryContainsBullets && has:
			fail("summary unexpectedly contains bullets")
		}
	}

	if e.MinLength != nil || e.MaxLength != nil {
		got := utf8.RuneCountInString(lengthTarget(root))
		if e.MinLength != nil && got < *e.MinLength {
			fail("min_length not satisfied: expected at least %d, got %d", *e.MinLength, got)
		}
		if e.MaxLength != nil && got > *e.MaxLength {
			fail("max_length exceeded: expected at most %d, got %d", *e.MaxLength, got)
		}
	}

	for _, token := range e.ExplanationContains {
		if !strings.Contains(text(member(root, "explanation")), token) {
			fail("explanation missing token: %s", token)
		}
	}

	return len(failures) == 0, failures
}

// isErrorOrEmpty reports whether the response is an error status, has no
// content, carries an error-like field, or lacks a traced metadata object.
func isErrorOrEmpty(root gjson.Result, statusCode int) bool {
	if statusCode >= 400 || !truthy(root) {
		return true
	}
	if !root.IsObject() {
		return false
	}
	if member(root, "error").Exists() || member(root, "message").Exists() {
		return true
	}
	metadata := member(root, "metadata")
	if !truthy(metadata) {
		return true
	}
	return metadata.IsObject() && !truthy(member(metadata, "trace_id"))
}

func hasBullets(s string) bool {
	for _, marker := range bulletMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func lengthTarget(root gjson.Result) string {
	for _, key := range lengthCandidates {
		if v := member(root, key); truthy(v) {
			return text(v)
		}
	}
	return ""
}

// member returns the value stored under key in obj, matching the key
// exactly (no path syntax). Later duplicates win, as with encoding/json.
func member(obj gjson.Result, key string) gjson.Result {
	if !obj.IsObject() {
		return gjson.Result{}
	}
	var found gjson.Result
	obj.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			found = v
		}
		return true
	})
	return found
}

// truthy mirrors the usual notion of an empty value: missing, null, false,
// zero, "" and empty containers are all falsy.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	case gjson.JSON:
		if r.IsArray() {
			return len(r.Array()) > 0
		}
		empty := true
		r.ForEach(func(_, _ gjson.Result) bool {
			empty = false
			return false
		})
		return !empty
	}
	return false
}

// text renders a value the way a substring check should see it: strings
// by content, anything else by its raw JSON.
func text(r gjson.Result) string {
	if !r.Exists() {
		return ""
	}
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}

func describe(r gjson.Result) string {
	if !r.Exists() {
		return "<missing>"
	}
	return r.Raw
}
