package skill

import (
	"encoding/json"
	"fmt"
	"sort"

	"skilltest/internal/payload"
)

// Declaration is the part of skill.yaml the harness reads.
type Declaration struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Inputs      []Input      `json:"inputs"`
	Credentials []Credential `json:"credentials"`
	Backends    []Backend    `json:"backends"`
}

// Input is a declared skill input.
type Input struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// Credential is a declared credential. Credentials are required unless
// marked otherwise.
type Credential struct {
	Name     string `json:"name"`
	Required *bool  `json:"required,omitempty"`
}

// IsRequired reports whether the credential must be present.
func (c Credential) IsRequired() bool {
	return c.Required == nil || *c.Required
}

// Backend is a declared execution backend.
type Backend struct {
	Type     string     `json:"type"`
	Requires StringList `json:"requires"`
}

// BackendLocal marks a backend that runs without external services.
const BackendLocal = "local"

// Fields returns the declared inputs in the form the payload synthesizer
// uses.
func (d Declaration) Fields() []payload.Field {
	fields := make([]payload.Field, 0, len(d.Inputs))
	for _, in := range d.Inputs {
		if in.Name == "" {
			continue
		}
		fields = append(fields, payload.Field{Name: in.Name, Type: in.Type})
	}
	return fields
}

// RequiredCredentials returns the sorted, de-duplicated names of required
// credentials and backend requirements.
func (d Declaration) RequiredCredentials() []string {
	seen := map[string]bool{}
	for _, c := range d.Credentials {
		if c.Name != "" && c.IsRequired() {
			seen[c.Name] = true
		}
	}
	for _, b := range d.Backends {
		for _, r := range b.Requires {
			if r != "" {
				seen[r] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// HasLocalBackend reports whether the skill can run without its
// credentials.
func (d Declaration) HasLocalBackend() bool {
	for _, b := range d.Backends {
		if b.Type == BackendLocal {
			return true
		}
	}
	return false
}

// StringList decodes either a single string or a list of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected a string or list of strings: %w", err)
	}
	*l = list
	return nil
}
