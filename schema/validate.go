package schema

import "fmt"

// ValidationError reports malformed declarative input at registration
// time, identifying the offending field path.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid definition: %s: %s", e.Path, e.Message)
}

func validationErrorf(path string, format string, args ...any) error {
	return &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)}
}
