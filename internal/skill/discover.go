// Package skill discovers skill directories and loads their declarations
// and tests.
package skill

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// declarationGlob matches <category>/<skill>/skill.yaml under the skills
// root.
const declarationGlob = "*/*/" + DeclarationFile

// Ref locates a skill directory.
type Ref struct {
	Name     string
	Category string
	Dir      string
}

// Discover lists the skills under root, sorted by category then name.
// When names is non-empty only skills with those names are returned.
func Discover(root string, names []string) ([]Ref, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read skills directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("skills directory %s is not a directory", root)
	}

	matches, err := doublestar.Glob(os.DirFS(root), declarationGlob, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to scan skills directory: %w", err)
	}
	sort.Strings(matches)

	refs := make([]Ref, 0, len(matches))
	for _, m := range matches {
		dir := path.Dir(m)
		ref := Ref{
			Name:     path.Base(dir),
			Category: path.Dir(dir),
			Dir:      filepath.Join(root, filepath.FromSlash(dir)),
		}
		if len(names) > 0 && !slices.Contains(names, ref.Name) {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// LoadAll discovers and loads every matching suite.
func LoadAll(root string, names []string) ([]*Suite, error) {
	refs, err := Discover(root, names)
	if err != nil {
		return nil, err
	}
	suites := make([]*Suite, 0, len(refs))
	for _, ref := range refs {
		suites = append(suites, LoadSuite(ref))
	}
	return suites, nil
}
