// Package spec loads workflow specification documents from the workspace or
// a remote source, resolves $ref includes and validates them against an
// embedded CUE schema.
package spec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/psantana5/wfrunner/internal/yamldoc"
	"github.com/psantana5/wfrunner/pkg/logging"
)

const (
	// DefaultRemoteBaseURL serves raw files for github: toplevels
	DefaultRemoteBaseURL = "https://raw.githubusercontent.com"

	maxRefDepth = 32
)

// Document is a loaded, validated workflow specification. Its content is
// opaque to the runner and handed to the engine as-is.
type Document struct {
	Location string                 `json:"location"`
	Schema   string                 `json:"schema,omitempty"`
	Content  map[string]interface{} `json:"content"`
}

// LoadRequest describes which spec to load and how
type LoadRequest struct {
	SpecPath string
	Toplevel string
	Schema   string
	Validate bool
}

// Config configures a Loader
type Config struct {
	RemoteBaseURL string
	Timeout       time.Duration
	Client        *http.Client
}

// Loader reads and validates workflow specs
type Loader struct {
	client        *http.Client
	remoteBaseURL string
	logger        *logging.Logger
}

// NewLoader creates a spec loader
func NewLoader(cfg Config, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.Discard()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	base := cfg.RemoteBaseURL
	if base == "" {
		base = DefaultRemoteBaseURL
	}
	return &Loader{client: client, remoteBaseURL: base, logger: logger}
}

// Load locates, parses and resolves the spec, then validates it unless
// req.Validate is false
func (l *Loader) Load(ctx context.Context, req LoadRequest) (*Document, error) {
	location, err := Locate(req.Toplevel, req.SpecPath, l.remoteBaseURL)
	if err != nil {
		return nil, &NotFoundError{Location: req.Toplevel, Err: err}
	}

	l.logger.Debug("Loading workflow spec", logging.Fields{"location": location})

	r := &resolver{loader: l, cache: make(map[string]interface{})}
	root, err := r.document(ctx, location)
	if err != nil {
		return nil, err
	}

	resolved, err := r.resolve(ctx, root, location, 0)
	if err != nil {
		return nil, err
	}

	content, ok := resolved.(map[string]interface{})
	if !ok {
		return nil, &ValidationError{Location: location, Err: fmt.Errorf("expected a mapping at the top level, got %T", resolved)}
	}

	doc := &Document{Location: location, Content: content}
	if !req.Validate {
		return doc, nil
	}

	schema := req.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	if err := validate(schema, content); err != nil {
		return nil, &ValidationError{Location: location, Schema: schema, Err: err}
	}
	doc.Schema = schema

	l.logger.Debug("Workflow spec validated", logging.Fields{"location": location, "schema": schema})
	return doc, nil
}

// resolver expands $ref mappings, caching parsed documents per location
type resolver struct {
	loader *Loader
	cache  map[string]interface{}
}

func (r *resolver) document(ctx context.Context, location string) (interface{}, error) {
	if doc, ok := r.cache[location]; ok {
		return doc, nil
	}

	raw, err := r.loader.read(ctx, location)
	if err != nil {
		return nil, err
	}

	doc, err := yamldoc.Decode(raw)
	if err != nil {
		return nil, &ValidationError{Location: location, Err: err}
	}

	r.cache[location] = doc
	return doc, nil
}

// resolve returns a copy of node with every {"$ref": ...} replaced by the
// referenced content. base is the location node was read from.
func (r *resolver) resolve(ctx context.Context, node interface{}, base string, depth int) (interface{}, error) {
	switch v := node.(type) {
	case map[string]interface{}:
		if ref, ok := v["$ref"].(string); ok && len(v) == 1 {
			if depth >= maxRefDepth {
				return nil, &ValidationError{Location: base, Err: fmt.Errorf("$ref nesting exceeds %d levels at %q", maxRefDepth, ref)}
			}
			target, targetBase, err := r.follow(ctx, base, ref)
			if err != nil {
				return nil, err
			}
			return r.resolve(ctx, target, targetBase, depth+1)
		}

		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			resolved, err := r.resolve(ctx, item, base, depth)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			resolved, err := r.resolve(ctx, item, base, depth)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// follow loads the document a $ref points at and applies its JSON pointer
func (r *resolver) follow(ctx context.Context, base, ref string) (interface{}, string, error) {
	file, pointer, _ := strings.Cut(ref, "#")

	location := base
	if file != "" {
		var err error
		location, err = relative(base, file)
		if err != nil {
			return nil, "", &ValidationError{Location: base, Err: err}
		}
	}

	doc, err := r.document(ctx, location)
	if err != nil {
		return nil, "", err
	}

	target, err := lookupPointer(doc, pointer)
	if err != nil {
		return nil, "", &ValidationError{Location: location, Err: fmt.Errorf("$ref %q: %w", ref, err)}
	}
	return target, location, nil
}

// lookupPointer evaluates a JSON pointer (RFC 6901) against doc
func lookupPointer(doc interface{}, pointer string) (interface{}, error) {
	if pointer == "" || pointer == "/" {
		return doc, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("pointer %q must start with /", pointer)
	}

	current := doc
	for _, token := range strings.Split(pointer[1:], "/") {
		token = strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")

		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[token]
			if !ok {
				return nil, fmt.Errorf("key %q not found", token)
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("index %q out of range", token)
			}
			current = node[idx]
		default:
			return nil, errors.New("pointer descends into a scalar")
		}
	}
	return current, nil
}
