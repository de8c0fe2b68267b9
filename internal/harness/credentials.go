package harness

import (
	"slices"

	"skilltest/internal/skill"
)

// MissingCredentials returns the required credentials of d that lookup
// cannot find, skipping names in ignore. A skill with a local backend can
// run without them, so nothing is reported for it.
func MissingCredentials(d skill.Declaration, ignore []string, lookup func(string) (string, bool)) []string {
	required := d.RequiredCredentials()
	if len(required) == 0 || d.HasLocalBackend() {
		return nil
	}
	var missing []string
	for _, name := range required {
		if slices.Contains(ignore, name) {
			continue
		}
		if v, ok := lookup(name); !ok || v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
