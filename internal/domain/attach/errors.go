package attach

import (
	"errors"
	"fmt"
)

// NotAttachedError reports a content-scoped method invoked before the
// element's guest attach completed.
type NotAttachedError struct {
	Method string
}

func (e *NotAttachedError) Error() string {
	return fmt.Sprintf("%s: element has no attached guest; the method requires a completed attach", e.Method)
}

// IsNotAttached reports whether err is a NotAttachedError.
func IsNotAttached(err error) bool {
	var target *NotAttachedError
	return errors.As(err, &target)
}

// ErrElementDestroyed is returned for operations on an element in its
// terminal state.
var ErrElementDestroyed = errors.New("element is destroyed")
