// Package payload turns a test case's raw input into the JSON request body
// sent to a job's HTTP endpoint.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Field is a declared skill input. Only the name and type take part in
// payload synthesis.
type Field struct {
	Name string
	Type string
}

// DefaultExcluded lists environment names that are never merged into a
// payload because they carry credentials rather than skill inputs.
var DefaultExcluded = []string{
	"OPENAI_API_KEY",
	"STRIPE_API_KEY",
	"SLACK_WEBHOOK",
	"GITHUB_TOKEN",
}

var errTrailingData = errors.New("trailing data after JSON value")

// aliases maps legacy override names onto the declared input they feed.
// An alias only applies when its target input is declared and the
// override does not already match an input by name.
var aliases = map[string]string{
	"extract_fields": "fields",
	"shell_type":     "shell",
	"pii_types":      "types",
	"secret_types":   "types",
}

// Build synthesizes the request payload for raw. A raw value holding a
// JSON object is used verbatim. Otherwise the value is coerced to the type
// of the first declared field and stored under its name, or stored under
// "text" when no fields are declared. Overrides whose names match a
// declared field (case-insensitively) are merged last.
func Build(raw string, fields []Field, overrides map[string]any) map[string]any {
	out := map[string]any{}

	if obj, ok := parseObject(raw); ok {
		out = obj
	} else if primary, ok := first(fields); ok {
		out[primary.Name] = Coerce(raw, primary.Type)
	} else {
		out["text"] = raw
	}

	for key, value := range overrides {
		if name, ok := lookup(fields, key); ok {
			out[name] = value
		}
	}
	return out
}

// Coerce converts raw to the declared input type, returning raw unchanged
// when it does not parse as that type.
func Coerce(raw, typ string) any {
	switch typ {
	case "object", "array":
		if v, err := decode(raw); err == nil {
			return v
		}
	case "integer":
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			return n
		}
	case "number":
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return f
		}
	case "boolean":
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return raw
}

// ParseOverrides selects the entries of a test's env block that map onto
// declared inputs. Keys in the result are declared field names. Names in
// excluded are dropped regardless of case.
func ParseOverrides(env map[string]any, fields []Field, excluded []string) map[string]any {
	out := map[string]any{}
	for key, value := range env {
		if containsFold(excluded, key) {
			continue
		}
		if name, ok := lookup(fields, key); ok {
			out[name] = value
			continue
		}
		if target, ok := aliases[strings.ToLower(key)]; ok {
			if name, ok := lookup(fields, target); ok {
				out[name] = value
			}
		}
	}
	return out
}

func parseObject(raw string) (map[string]any, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	v, err := decode(raw)
	if err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

// decode parses a single JSON value, keeping numbers as json.Number so
// object payloads round-trip without float conversion.
func decode(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return v, nil
}

func first(fields []Field) (Field, bool) {
	for _, f := range fields {
		if f.Name != "" {
			return f, true
		}
	}
	return Field{}, false
}

func lookup(fields []Field, key string) (string, bool) {
	for _, f := range fields {
		if f.Name != "" && strings.EqualFold(f.Name, key) {
			return f.Name, true
		}
	}
	return "", false
}

func containsFold(list []string, key string) bool {
	for _, s := range list {
		if strings.EqualFold(s, key) {
			return true
		}
	}
	return false
}

// Marshal encodes a payload without HTML escaping, matching what the job
// endpoint receives byte for byte.
func Marshal(p map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
