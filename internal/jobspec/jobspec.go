// Package jobspec wraps the deployable job document of a skill. The
// document is kept loosely typed so fields the harness does not know about
// survive a round trip; typed accessors cover the fields the harness reads
// or rewrites.
package jobspec

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"skilltest/internal/yamldoc"
)

var (
	// ErrEmpty is returned for a document without content.
	ErrEmpty = errors.New("job specification is empty")
	// ErrNoHTTPServer is returned when config.input.http_server is missing
	// or not a mapping.
	ErrNoHTTPServer = errors.New("job specification has no http_server input")
)

const (
	defaultPath   = "/"
	defaultMethod = "POST"
)

// Spec is a job specification document.
type Spec struct {
	doc map[string]any
}

// Load reads and parses the job specification at path.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job specification: %w", err)
	}
	return Parse(data)
}

// Parse decodes a job specification. The top level must be a mapping.
func Parse(data []byte) (*Spec, error) {
	v, err := yamldoc.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrEmpty
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("job specification must be a mapping, got %T", v)
	}
	if len(doc) == 0 {
		return nil, ErrEmpty
	}
	return &Spec{doc: doc}, nil
}

// Clone returns a deep copy; mutations of the copy never reach s.
func (s *Spec) Clone() *Spec {
	return &Spec{doc: deepCopy(s.doc).(map[string]any)}
}

// Name returns the job name.
func (s *Spec) Name() string {
	name, _ := s.doc["name"].(string)
	return name
}

// SetName sets the deployable job name.
func (s *Spec) SetName(name string) {
	s.doc["name"] = name
}

// config returns the config mapping, creating it when absent.
func (s *Spec) config() map[string]any {
	cfg, ok := s.doc["config"].(map[string]any)
	if !ok {
		cfg = map[string]any{}
		s.doc["config"] = cfg
	}
	return cfg
}

// DropHTTPConfig removes config.http, which only applies to hosted
// deployments and conflicts with the per-test listener.
func (s *Spec) DropHTTPConfig() {
	delete(s.config(), "http")
}

// HTTPServer returns the job's network input adapter.
func (s *Spec) HTTPServer() (*HTTPServer, error) {
	input, ok := s.config()["input"].(map[string]any)
	if !ok {
		return nil, ErrNoHTTPServer
	}
	server, ok := input["http_server"].(map[string]any)
	if !ok {
		return nil, ErrNoHTTPServer
	}
	return &HTTPServer{m: server}, nil
}

// Processors returns the top-level pipeline steps, or nil when the job has
// none. The slice shares storage with the document so in-place rewrites of
// its elements are kept.
func (s *Spec) Processors() []any {
	pipeline, ok := s.config()["pipeline"].(map[string]any)
	if !ok {
		return nil
	}
	procs, _ := pipeline["processors"].([]any)
	return procs
}

// Marshal encodes the document as YAML.
func (s *Spec) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(s.doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job specification: %w", err)
	}
	return data, nil
}

// HTTPServer is a view over config.input.http_server.
type HTTPServer struct {
	m map[string]any
}

// Address returns the configured listen address.
func (h *HTTPServer) Address() string {
	addr, _ := h.m["address"].(string)
	return addr
}

// SetAddress rewrites the listen address.
func (h *HTTPServer) SetAddress(addr string) {
	h.m["address"] = addr
}

// Path returns the route served by the job, "/" by default.
func (h *HTTPServer) Path() string {
	p, _ := h.m["path"].(string)
	if p == "" {
		return defaultPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Method returns the first allowed verb, POST by default.
func (h *HTTPServer) Method() string {
	switch verbs := h.m["allowed_verbs"].(type) {
	case []any:
		if len(verbs) > 0 {
			if v, ok := verbs[0].(string); ok && v != "" {
				return strings.ToUpper(v)
			}
		}
	case string:
		if verbs != "" {
			return strings.ToUpper(verbs)
		}
	}
	return defaultMethod
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
