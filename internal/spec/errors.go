package spec

import "fmt"

// FileMissingError is returned when the workflow file is absent from the
// workspace
type FileMissingError struct {
	Name string
	Path string
}

func (e *FileMissingError) Error() string {
	return fmt.Sprintf("Workflow file %s does not exist", e.Name)
}

// NotFoundError is returned when a spec location cannot be read
type NotFoundError struct {
	Location string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("workflow spec not found at %s: %v", e.Location, e.Err)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ValidationError is returned when a spec fails to parse, resolve or
// validate against its schema
type ValidationError struct {
	Location string
	Schema   string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Schema != "" {
		return fmt.Sprintf("workflow spec %s failed validation against %s: %v", e.Location, e.Schema, e.Err)
	}
	return fmt.Sprintf("invalid workflow spec %s: %v", e.Location, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }
