// Package initdata assembles the initial data handed to the engine from
// init files and caller-supplied parameters.
package initdata

import (
	"errors"
	"fmt"
	"os"

	"github.com/psantana5/wfrunner/internal/yamldoc"
)

// LoadError reports an init file that is missing, unreadable or not a mapping
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load init file %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Merge overlays each init file in list order, then parameters. Later files
// win over earlier ones and parameters win over every file. The first file
// error aborts the merge.
func Merge(initFiles []string, parameters map[string]interface{}) (map[string]interface{}, error) {
	data := make(map[string]interface{})

	for _, path := range initFiles {
		values, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range values {
			data[k] = v
		}
	}

	for k, v := range parameters {
		data[k] = v
	}

	return data, nil
}

// LoadFile reads a YAML (or JSON) document that must be a mapping
func LoadFile(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	doc, err := yamldoc.Decode(raw)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	switch v := doc.(type) {
	case map[string]interface{}:
		return v, nil
	case nil:
		return nil, &LoadError{Path: path, Err: errors.New("document is empty")}
	default:
		return nil, &LoadError{Path: path, Err: fmt.Errorf("expected a mapping, got %T", doc)}
	}
}
