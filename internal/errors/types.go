package errors

import "errors"

var (
	ErrSpecNotFound    = errors.New("session spec file not found")
	ErrSpecParseFailed = errors.New("session spec parsing failed")
	ErrEngineFailed    = errors.New("container engine unavailable")
	ErrSessionFailed   = errors.New("session lifecycle failed")
	ErrCommandFailed   = errors.New("command failed")
	ErrCleanupFailed   = errors.New("container cleanup failed")
)

// DockboxError carries the user-facing presentation of a failure alongside
// the original error for logging and unwrapping.
type DockboxError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *DockboxError) Error() string {
	return e.OriginalErr.Error()
}

func (e *DockboxError) Unwrap() error {
	return e.OriginalErr
}

func NewDockboxError(errorType error, context, cause, suggestion string, originalErr error) *DockboxError {
	return &DockboxError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewSpecError(context, cause, suggestion string, originalErr error) *DockboxError {
	return NewDockboxError(ErrSpecNotFound, context, cause, suggestion, originalErr)
}

func NewParseError(context, cause, suggestion string, originalErr error) *DockboxError {
	return NewDockboxError(ErrSpecParseFailed, context, cause, suggestion, originalErr)
}

func NewEngineError(context, cause, suggestion string, originalErr error) *DockboxError {
	return NewDockboxError(ErrEngineFailed, context, cause, suggestion, originalErr)
}

func NewSessionError(context, cause, suggestion string, originalErr error) *DockboxError {
	return NewDockboxError(ErrSessionFailed, context, cause, suggestion, originalErr)
}

func NewCommandError(context, cause, suggestion string, originalErr error) *DockboxError {
	return NewDockboxError(ErrCommandFailed, context, cause, suggestion, originalErr)
}

func NewCleanupError(context, cause, suggestion string, originalErr error) *DockboxError {
	return NewDockboxError(ErrCleanupFailed, context, cause, suggestion, originalErr)
}
