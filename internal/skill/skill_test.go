package skill

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "text", "summarize", "skill.yaml"), "name: summarize\n")
	writeFile(t, filepath.Join(root, "text", "detect-pii", "skill.yaml"), "name: detect-pii\n")
	writeFile(t, filepath.Join(root, "audio", "transcribe", "skill.yaml"), "name: transcribe\n")
	writeFile(t, filepath.Join(root, "audio", "notes", "README.md"), "not a skill\n")
	writeFile(t, filepath.Join(root, "stray.yaml"), "x: 1\n")

	refs, err := Discover(root, nil)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, Ref{Name: "transcribe", Category: "audio", Dir: filepath.Join(root, "audio", "transcribe")}, refs[0])
	assert.Equal(t, "detect-pii", refs[1].Name)
	assert.Equal(t, "summarize", refs[2].Name)

	refs, err = Discover(root, []string{"summarize", "unknown"})
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "text", refs[0].Category)
}

func TestDiscover_MissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

const declaration = `
name: extract-contacts
inputs:
  - name: text
    type: string
    required: true
  - name: fields
    type: array
credentials:
  - name: OPENAI_API_KEY
  - name: OPTIONAL_KEY
    required: false
backends:
  - type: remote
    requires: ACME_API_KEY
  - type: remote
    requires: [OPENAI_API_KEY]
`

const tests = `
fixtures_dir: ./fixtures
tests:
  - name: inline
    input: "Contact John"
    env:
      EXTRACT_FIELDS: [name]
    expected:
      has_field: extracted
      has_field: metadata
  - name: from fixture
    input_file: sample.txt
    skip: true
    expected:
      hash_length: [64, 32]
  - name: prefixed fixture
    input_file: fixtures/sample.txt
  - name: object input
    input:
      text: hi
`

func TestLoadSuite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "text", "extract-contacts")
	writeFile(t, filepath.Join(dir, "skill.yaml"), declaration)
	writeFile(t, filepath.Join(dir, "pipeline-mcp.yaml"), "name: x\n")
	writeFile(t, filepath.Join(dir, "test", "test.yaml"), tests)
	writeFile(t, filepath.Join(dir, "test", "fixtures", "sample.txt"), "fixture body")

	s := LoadSuite(Ref{Name: "extract-contacts", Category: "text", Dir: dir})
	require.NoError(t, s.DeclarationErr)
	require.NoError(t, s.TestsErr)

	assert.Equal(t, filepath.Join(dir, "pipeline-mcp.yaml"), s.SpecPath)
	assert.Equal(t, "./fixtures", s.FixturesDir)
	assert.Equal(t, []string{"ACME_API_KEY", "OPENAI_API_KEY"}, s.Declaration.RequiredCredentials())
	assert.False(t, s.Declaration.HasLocalBackend())
	assert.Len(t, s.Declaration.Fields(), 2)
	require.Len(t, s.Tests, 4)
	assert.False(t, s.Skipped())

	inline := s.Tests[0]
	assert.Equal(t, "inline", inline.Name)
	assert.Equal(t, []string{"extracted", "metadata"}, inline.Expectation.HasField)
	assert.Equal(t, map[string]any{"EXTRACT_FIELDS": []any{"name"}}, inline.Env)
	in, err := inline.ResolveInput()
	require.NoError(t, err)
	assert.Equal(t, "Contact John", in)

	fixture := s.Tests[1]
	assert.True(t, fixture.Skip)
	assert.Error(t, fixture.ExpectationErr)
	in, err = fixture.ResolveInput()
	require.NoError(t, err)
	assert.Equal(t, "fixture body", in)

	in, err = s.Tests[2].ResolveInput()
	require.NoError(t, err)
	assert.Equal(t, "fixture body", in)

	assert.JSONEq(t, `{"text": "hi"}`, s.Tests[3].Input)
}

func TestLoadSuite_MissingParts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "skill.yaml"), "name: bare\n")

	s := LoadSuite(Ref{Name: "bare", Dir: dir})
	assert.NoError(t, s.DeclarationErr)
	assert.Empty(t, s.SpecPath)
	assert.Empty(t, s.TestPath)
	assert.Empty(t, s.Tests)
}

func TestLoadSuite_LegacyBooleans(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "skill.yaml"), "name: pii\n")
	writeFile(t, filepath.Join(dir, "test", "test.yaml"), `
tests:
  - name: plain words
    input: a
    skip: no
    expected:
      has_pii: yes
      has_secrets: off
  - name: quoted no
    input: b
    skip: "no"
  - name: skipped
    input: c
    skip: yes
`)
	s := LoadSuite(Ref{Name: "pii", Dir: dir})
	require.NoError(t, s.TestsErr)
	require.Len(t, s.Tests, 3)

	plain := s.Tests[0]
	assert.False(t, plain.Skip)
	require.NoError(t, plain.ExpectationErr)
	require.NotNil(t, plain.Expectation.HasPII)
	assert.True(t, *plain.Expectation.HasPII)
	require.NotNil(t, plain.Expectation.HasSecrets)
	assert.False(t, *plain.Expectation.HasSecrets)

	assert.False(t, s.Tests[1].Skip)
	assert.True(t, s.Tests[2].Skip)
	assert.Empty(t, s.Problems())
}

func TestSuite_Problems(t *testing.T) {
	s := &Suite{
		DeclarationErr: errors.New("invalid skill.yaml"),
		TestsErr:       errors.New("invalid test declaration"),
		Tests: []TestCase{
			{Name: "ok"},
			{Name: "bad", ExpectationErr: errors.New("hash_length: expected an integer")},
		},
	}
	assert.Equal(t, []string{
		"bad: hash_length: expected an integer",
		"invalid skill.yaml",
		"invalid test declaration",
	}, s.Problems())
}

func TestLoadSuite_InvalidTests(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "skill.yaml"), "name: bad\n")
	writeFile(t, filepath.Join(dir, "test", "test.yaml"), "tests: {a: 1}\n")

	s := LoadSuite(Ref{Name: "bad", Dir: dir})
	assert.Error(t, s.TestsErr)
}

func TestResolveInput_MissingFile(t *testing.T) {
	tc := TestCase{InputFile: "missing.txt", baseDir: t.TempDir()}
	_, err := tc.ResolveInput()
	assert.ErrorContains(t, err, "failed to read input_file")
}

func TestInputPath(t *testing.T) {
	base := filepath.FromSlash("/skills/x/test")
	tests := []struct {
		name     string
		file     string
		fixtures string
		want     string
	}{
		{"no fixtures dir", "a.txt", "", filepath.FromSlash("/skills/x/test/a.txt")},
		{"fixtures dir", "a.txt", "fixtures", filepath.FromSlash("/skills/x/test/fixtures/a.txt")},
		{"already prefixed", "fixtures/a.txt", "./fixtures/", filepath.FromSlash("/skills/x/test/fixtures/a.txt")},
		{"absolute", filepath.FromSlash("/tmp/a.txt"), "fixtures", filepath.FromSlash("/tmp/a.txt")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := TestCase{InputFile: tt.file, baseDir: base, fixturesDir: tt.fixtures}
			assert.Equal(t, tt.want, tc.InputPath())
		})
	}
}

func TestSkipped(t *testing.T) {
	s := &Suite{Tests: []TestCase{{Skip: true}, {Skip: true}}}
	assert.True(t, s.Skipped())
	s.Tests = append(s.Tests, TestCase{})
	assert.False(t, s.Skipped())
}

func TestStringList(t *testing.T) {
	var l StringList
	require.NoError(t, json.Unmarshal([]byte(`"A"`), &l))
	assert.Equal(t, StringList{"A"}, l)
	require.NoError(t, json.Unmarshal([]byte(`["A", "B"]`), &l))
	assert.Equal(t, StringList{"A", "B"}, l)
	assert.Error(t, json.Unmarshal([]byte(`{"a": 1}`), &l))
}
