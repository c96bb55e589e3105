package session

import "errors"

var (
	// ErrEngineUnavailable indicates the container engine daemon could not be reached.
	ErrEngineUnavailable = errors.New("container engine unavailable")
	// ErrContainerStart indicates the session container could not be created or started.
	ErrContainerStart = errors.New("container start failed")
	// ErrCommandExecution indicates the exec call itself failed. A command
	// that runs and exits non-zero is not this error; see Result.ExitCode.
	ErrCommandExecution = errors.New("command execution failed")
	// ErrSessionNotRunning indicates Run was called before Open or after Release.
	ErrSessionNotRunning = errors.New("session is not running")
	// ErrCleanup indicates the container could not be stopped or removed.
	// Cleanup failures are logged and never mask an in-flight error.
	ErrCleanup = errors.New("container cleanup failed")
)
