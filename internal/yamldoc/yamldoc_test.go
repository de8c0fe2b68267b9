package yamldoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshal_MergesDuplicateKeys(t *testing.T) {
	doc := []byte(`
expected:
  has_field: summary
  has_field: metadata
  has_field: word_count
  hash_length: 64
`)
	value, err := Unmarshal(doc)
	require.NoError(t, err)

	root := value.(map[string]any)
	expected := root["expected"].(map[string]any)
	assert.Equal(t, []any{"summary", "metadata", "word_count"}, expected["has_field"])
	assert.Equal(t, 64, expected["hash_length"])
}

func TestUnmarshal_DuplicateOfListAppends(t *testing.T) {
	doc := []byte(`
metadata_has: [trace_id, skill]
metadata_has: timestamp
`)
	value, err := Unmarshal(doc)
	require.NoError(t, err)
	assert.Equal(t, []any{"trace_id", "skill", "timestamp"}, value.(map[string]any)["metadata_has"])
}

func TestUnmarshal_Empty(t *testing.T) {
	value, err := Unmarshal([]byte(""))
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestUnmarshal_Invalid(t *testing.T) {
	_, err := Unmarshal([]byte("key: [unterminated"))
	assert.Error(t, err)
}

func TestUnmarshal_Aliases(t *testing.T) {
	doc := []byte(`
base: &b
  kind: openai
copy: *b
`)
	value, err := Unmarshal(doc)
	require.NoError(t, err)
	root := value.(map[string]any)
	assert.Equal(t, map[string]any{"kind": "openai"}, root["copy"])
}

func TestDecode_IntoStruct(t *testing.T) {
	type test struct {
		Name string `json:"name"`
		Skip bool   `json:"skip"`
	}
	var out struct {
		Tests []test `json:"tests"`
	}
	doc := []byte(`
tests:
  - name: first
  - name: second
    skip: true
`)
	require.NoError(t, Decode(doc, &out))
	require.Len(t, out.Tests, 2)
	assert.Equal(t, "second", out.Tests[1].Name)
	assert.True(t, out.Tests[1].Skip)
}

func TestUnmarshal_RepeatedListsFlatten(t *testing.T) {
	doc := []byte(`
extracted_contains: [name, email]
extracted_contains: [phone]
extracted_contains: company
`)
	value, err := Unmarshal(doc)
	require.NoError(t, err)
	assert.Equal(t, []any{"name", "email", "phone", "company"}, value.(map[string]any)["extracted_contains"])
}

func TestUnmarshal_LegacyBooleans(t *testing.T) {
	doc := []byte(`
skip: no
has_pii: yes
enabled: On
disabled: OFF
mixed: yEs
quoted: "no"
tagged: !!str yes
letter: y
`)
	value, err := Unmarshal(doc)
	require.NoError(t, err)
	root := value.(map[string]any)

	assert.Equal(t, false, root["skip"])
	assert.Equal(t, true, root["has_pii"])
	assert.Equal(t, true, root["enabled"])
	assert.Equal(t, false, root["disabled"])
	assert.Equal(t, "yEs", root["mixed"])
	assert.Equal(t, "no", root["quoted"])
	assert.Equal(t, "yes", root["tagged"])
	assert.Equal(t, "y", root["letter"])
}
