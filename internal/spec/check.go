package spec

import (
	"errors"
	"fmt"
	"os"
)

// CheckWorkflowFile verifies that the workflow file exists in the workspace.
// name is the path as the caller supplied it and is used in the error.
func CheckWorkflowFile(name, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &FileMissingError{Name: name, Path: path}
		}
		return fmt.Errorf("failed to stat workflow file %s: %w", path, err)
	}
	return nil
}
