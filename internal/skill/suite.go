package skill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"skilltest/internal/expect"
	"skilltest/internal/yamldoc"
)

// File names inside a skill directory.
const (
	DeclarationFile = "skill.yaml"
	SpecFile        = "pipeline-mcp.yaml"
	TestFile        = "test/test.yaml"
)

// Suite is one skill together with its declared tests. Problems found
// while loading are kept on the suite so the runner can record them as
// outcomes instead of aborting.
type Suite struct {
	Name     string
	Category string
	Dir      string

	Declaration    Declaration
	DeclarationErr error

	// SpecPath is empty when the skill has no job specification.
	SpecPath string

	// TestPath is empty when the skill has no test declaration.
	TestPath    string
	TestsErr    error
	FixturesDir string
	Tests       []TestCase
}

// TestCase is one declared test.
type TestCase struct {
	Name      string
	Input     string
	InputFile string
	Env       map[string]any
	Skip      bool

	// Expected is the raw expectation block as written.
	Expected       map[string]any
	Expectation    expect.Expectation
	ExpectationErr error

	baseDir     string
	fixturesDir string
}

// LoadSuite reads the declarations of the skill in ref.
func LoadSuite(ref Ref) *Suite {
	s := &Suite{Name: ref.Name, Category: ref.Category, Dir: ref.Dir}

	if err := loadDeclaration(filepath.Join(ref.Dir, DeclarationFile), &s.Declaration); err != nil {
		s.DeclarationErr = err
	}

	if exists(filepath.Join(ref.Dir, SpecFile)) {
		s.SpecPath = filepath.Join(ref.Dir, SpecFile)
	}

	testPath := filepath.Join(ref.Dir, filepath.FromSlash(TestFile))
	if !exists(testPath) {
		return s
	}
	s.TestPath = testPath
	s.FixturesDir, s.Tests, s.TestsErr = loadTests(testPath)
	return s
}

// Skipped reports whether every test is marked skip.
func (s *Suite) Skipped() bool {
	if len(s.Tests) == 0 {
		return false
	}
	for _, tc := range s.Tests {
		if !tc.Skip {
			return false
		}
	}
	return true
}

// Problems lists what went wrong while loading the suite: invalid
// expectations first, in test order, then declaration and test file errors.
func (s *Suite) Problems() []string {
	var problems []string
	for _, tc := range s.Tests {
		if tc.ExpectationErr != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", tc.Name, tc.ExpectationErr))
		}
	}
	if s.DeclarationErr != nil {
		problems = append(problems, s.DeclarationErr.Error())
	}
	if s.TestsErr != nil {
		problems = append(problems, s.TestsErr.Error())
	}
	return problems
}

// ResolveInput returns the raw input of the test, reading input_file when
// one is declared. Relative paths resolve against the test declaration's
// directory and, when set, the fixtures directory.
func (tc TestCase) ResolveInput() (string, error) {
	if tc.InputFile == "" {
		return tc.Input, nil
	}
	data, err := os.ReadFile(tc.InputPath())
	if err != nil {
		return "", fmt.Errorf("failed to read input_file: %w", err)
	}
	return string(data), nil
}

// InputPath returns the resolved input_file path.
func (tc TestCase) InputPath() string {
	raw := filepath.FromSlash(tc.InputFile)
	if filepath.IsAbs(raw) {
		return raw
	}
	prefix := strings.TrimLeft(filepath.ToSlash(tc.fixturesDir), "./")
	prefix = strings.TrimRight(prefix, "/")
	first, _, _ := strings.Cut(filepath.ToSlash(filepath.Clean(raw)), "/")
	switch {
	case prefix != "" && first == prefix:
		return filepath.Join(tc.baseDir, raw)
	case tc.fixturesDir != "":
		return filepath.Join(tc.baseDir, filepath.FromSlash(tc.fixturesDir), raw)
	default:
		return filepath.Join(tc.baseDir, raw)
	}
}

func loadDeclaration(path string, d *Declaration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", DeclarationFile, err)
	}
	if err := yamldoc.Decode(data, d); err != nil {
		return fmt.Errorf("invalid %s: %w", DeclarationFile, err)
	}
	return nil
}

func loadTests(path string) (string, []TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read test declaration: %w", err)
	}
	v, err := yamldoc.Unmarshal(data)
	if err != nil {
		return "", nil, fmt.Errorf("invalid test declaration: %w", err)
	}
	if v == nil {
		return "", nil, nil
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return "", nil, fmt.Errorf("invalid test declaration: expected a mapping, got %T", v)
	}

	fixtures, _ := doc["fixtures_dir"].(string)
	rawTests, ok := doc["tests"].([]any)
	if !ok && doc["tests"] != nil {
		return fixtures, nil, fmt.Errorf("invalid test declaration: tests must be a list")
	}

	baseDir := filepath.Dir(path)
	tests := make([]TestCase, 0, len(rawTests))
	for i, raw := range rawTests {
		m, ok := raw.(map[string]any)
		if !ok {
			return fixtures, nil, fmt.Errorf("invalid test declaration: test %d is not a mapping", i)
		}
		tc := parseTestCase(m)
		tc.baseDir = baseDir
		tc.fixturesDir = fixtures
		tests = append(tests, tc)
	}
	return fixtures, tests, nil
}

func parseTestCase(m map[string]any) TestCase {
	tc := TestCase{
		Name:  scalarText(m["name"]),
		Input: scalarText(m["input"]),
		Skip:  truthy(m["skip"]),
	}
	if f, ok := m["input_file"]; ok && f != nil {
		tc.InputFile = scalarText(f)
	}
	if env, ok := m["env"].(map[string]any); ok {
		tc.Env = env
	}

	switch exp := m["expected"].(type) {
	case nil:
		tc.Expected = map[string]any{}
	case map[string]any:
		tc.Expected = exp
	default:
		tc.Expected = map[string]any{}
		tc.ExpectationErr = fmt.Errorf("expected must be a mapping, got %T", exp)
	}
	if tc.ExpectationErr == nil {
		tc.Expectation, tc.ExpectationErr = expect.FromMap(tc.Expected)
	}
	return tc
}

// scalarText renders a YAML value as the string a test author meant: text
// as is, structured values as JSON.
func scalarText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "no", "off":
			return false
		}
		return true
	case nil:
		return false
	default:
		return true
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
