package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"dockbox/internal/ui"
)

type ErrorHandler struct {
	logger  *slog.Logger
	console *ui.Console
}

func NewErrorHandler() (*ErrorHandler, error) {
	logFile, err := createLogFile()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &ErrorHandler{
		logger:  logger,
		console: ui.NewConsole(),
	}, nil
}

// logDir returns the OS-standard log directory, honoring the
// DOCKBOX_LOG_DIR override.
func logDir() (string, error) {
	if customLogDir := os.Getenv("DOCKBOX_LOG_DIR"); customLogDir != "" {
		return customLogDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", "Dockbox"), nil
	case "windows":
		appDataDir := os.Getenv("APPDATA")
		if appDataDir == "" {
			appDataDir = filepath.Join(homeDir, "AppData", "Roaming")
		}
		return filepath.Join(appDataDir, "Dockbox", "logs"), nil
	default:
		// XDG Base Directory layout for Linux and the BSDs
		return filepath.Join(homeDir, ".local", "share", "dockbox", "logs"), nil
	}
}

// ensureLogDir creates the log directory, falling back to the current
// directory when the standard location is not writable.
func ensureLogDir() (string, error) {
	dir, err := logDir()
	if err == nil {
		if mkdirErr := os.MkdirAll(dir, 0750); mkdirErr == nil {
			return dir, nil
		}
	}

	currentDir, cwdErr := os.Getwd()
	if cwdErr != nil {
		return "", fmt.Errorf("cannot determine current directory for fallback logging: %w", cwdErr)
	}
	fmt.Fprintf(os.Stderr, "Warning: cannot access standard log directory, falling back to current directory\n")
	return currentDir, nil
}

// rotateLogFile rotates dockbox.log -> dockbox.log.1 -> ... up to maxFiles.
func rotateLogFile(logPath string) error {
	const maxFiles = 5

	oldest := fmt.Sprintf("%s.%d", logPath, maxFiles)
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			slog.Warn("Failed to remove old log file", "path", oldest, "error", err)
		}
	}

	for i := maxFiles - 1; i > 0; i-- {
		oldPath := fmt.Sprintf("%s.%d", logPath, i)
		if _, err := os.Stat(oldPath); err == nil {
			newPath := fmt.Sprintf("%s.%d", logPath, i+1)
			if err := os.Rename(oldPath, newPath); err != nil {
				slog.Warn("Failed to rotate log file", "old", oldPath, "new", newPath, "error", err)
			}
		}
	}

	if _, err := os.Stat(logPath); err == nil {
		return os.Rename(logPath, logPath+".1")
	}
	return nil
}

func createLogFile() (*os.File, error) {
	const maxSizeBytes = 10 * 1024 * 1024

	dir, err := ensureLogDir()
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(dir, "dockbox.log")
	if info, statErr := os.Stat(logPath); statErr == nil && info.Size() >= maxSizeBytes {
		if err := rotateLogFile(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to rotate log file: %v\n", err)
		}
	}

	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var dockboxErr *DockboxError
	if errors.As(err, &dockboxErr) {
		h.handleDockboxError(dockboxErr)
	} else {
		h.handleGenericError(err)
	}
}

func (h *ErrorHandler) handleDockboxError(err *DockboxError) {
	logAttrs := []slog.Attr{
		slog.String("error", err.OriginalErr.Error()),
		slog.String("type", getErrorTypeName(err.Type)),
		slog.String("context", err.Context),
	}
	if err.Cause != "" {
		logAttrs = append(logAttrs, slog.String("cause", err.Cause))
	}
	if err.Suggestion != "" {
		logAttrs = append(logAttrs, slog.String("suggestion", err.Suggestion))
	}
	h.logger.LogAttrs(context.TODO(), slog.LevelError, "Dockbox error occurred", logAttrs...)

	h.console.PrintError(h.console.FormatErrorMessage(err.Context, err.Cause, err.Suggestion))
}

func (h *ErrorHandler) handleGenericError(err error) {
	h.logger.Error("Unhandled error occurred",
		"error", err.Error(),
		"type", "generic",
	)

	h.console.PrintError(err.Error())
}

func getErrorTypeName(errType error) string {
	switch errType {
	case ErrSpecNotFound:
		return "spec_not_found"
	case ErrSpecParseFailed:
		return "spec_parse_failed"
	case ErrEngineFailed:
		return "engine_failed"
	case ErrSessionFailed:
		return "session_failed"
	case ErrCommandFailed:
		return "command_failed"
	case ErrCleanupFailed:
		return "cleanup_failed"
	default:
		return "unknown"
	}
}
