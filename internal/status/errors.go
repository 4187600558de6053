package status

import (
	"errors"
	"fmt"
)

var errNoPublisher = errors.New("no status publisher configured")

type panicError struct {
	value interface{}
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
