// Package yamldoc decodes the loosely written YAML documents found in skill
// directories (skill.yaml, test.yaml, pipeline-mcp.yaml).
//
// Skill authors routinely repeat keys such as has_field inside a single
// mapping. A strict decoder rejects those documents, so Unmarshal walks the
// node tree itself and folds repeated keys into a list, preserving every
// value in document order.
package yamldoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unmarshal parses data into plain Go values: map[string]any, []any and
// scalars. An empty document yields a nil value and no error.
func Unmarshal(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if root.Kind == 0 {
		return nil, nil
	}
	return convert(&root)
}

// Decode parses data with duplicate-key merging and then maps the result
// onto out using its json struct tags.
func Decode(data []byte, out any) error {
	value, err := Unmarshal(data)
	if err != nil {
		return err
	}
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to normalize document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

func convert(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return convert(node.Content[0])
	case yaml.AliasNode:
		return convert(node.Alias)
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := convert(child)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	case yaml.MappingNode:
		return convertMapping(node)
	case yaml.ScalarNode:
		if b, ok := legacyBool(node); ok {
			return b, nil
		}
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", node.Line, node.Kind)
	}
}

func convertMapping(node *yaml.Node) (map[string]any, error) {
	out := make(map[string]any, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		key := keyNode.Value
		if keyNode.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
		}
		value, err := convert(valueNode)
		if err != nil {
			return nil, err
		}
		existing, seen := out[key]
		if !seen {
			out[key] = value
			continue
		}
		// Repeated keys fold into one flat list in document order.
		list, ok := existing.([]any)
		if !ok {
			list = []any{existing}
		}
		if items, ok := value.([]any); ok {
			out[key] = append(list, items...)
		} else {
			out[key] = append(list, value)
		}
	}
	return out, nil
}

// legacyBools are the YAML 1.1 boolean words skill files are written
// with. YAML 1.2 reads them as strings. Like YAML 1.1, only the lower,
// title and upper case spellings count.
var legacyBools = map[string]bool{
	"yes": true, "on": true,
	"no": false, "off": false,
}

// legacyBool maps a plain, untagged YAML 1.1 boolean word to a bool.
// Quoted or explicitly tagged strings are left alone.
func legacyBool(node *yaml.Node) (bool, bool) {
	if node.Style != 0 || node.ShortTag() != "!!str" {
		return false, false
	}
	lower := strings.ToLower(node.Value)
	b, ok := legacyBools[lower]
	if !ok {
		return false, false
	}
	switch node.Value {
	case lower, strings.ToUpper(lower), strings.ToUpper(lower[:1]) + lower[1:]:
		return b, true
	}
	return false, false
}
