package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	dockboxerrors "dockbox/internal/errors"
	"dockbox/internal/parser"
	"dockbox/internal/ui"
	"dockbox/pkg/session"
	"dockbox/pkg/spec"
)

const (
	// Color codes for console output
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// Run executes all commands of a session spec file inside a single scoped
// container session. The first failing command stops the run; the container
// is released on every exit path.
func Run(specPath string, isDryRun bool) error {
	slog.Info("Starting dockbox run", "specPath", specPath, "dryRun", isDryRun)

	parsed, err := parser.Parse(specPath)
	if err != nil {
		return dockboxerrors.NewParseError(
			fmt.Sprintf("Failed to load session spec from %s", specPath),
			err.Error(),
			"Check that the file exists and matches the dockbox.yaml schema",
			err,
		)
	}
	slog.Info("Session spec parsed successfully", "name", parsed.Metadata.Name, "commands", len(parsed.Commands))

	if isDryRun {
		fmt.Printf("%s🔍 DRY RUN MODE - No containers will be created%s\n", ColorYellow, ColorReset)
		fmt.Printf("%sWould start session from image: %s%s\n", ColorYellow, parsed.Session.Image, ColorReset)
		for _, command := range parsed.Commands {
			fmt.Printf("%sWould run: %s%s\n", ColorYellow, command, ColorReset)
		}
		fmt.Printf("%s✅ Dry run completed successfully%s\n", ColorGreen, ColorReset)
		return nil
	}

	eng, err := NewEngineFactory().GetEngine(parsed.Session.Engine)
	if err != nil {
		return dockboxerrors.NewEngineError(
			"Failed to initialize container engine",
			err.Error(),
			"Check that the Docker daemon is running and DOCKER_HOST points at it",
			err,
		)
	}

	runID := uuid.New().String()
	cfg := sessionConfig(parsed, runID)
	console := ui.NewConsole()
	total := len(parsed.Commands)
	start := time.Now()

	runErr := session.With(context.Background(), eng, cfg, func(s *session.Session) error {
		fmt.Printf("%s📦 Session started: %s (image %s)%s\n", ColorCyan, s.ContainerName(), parsed.Session.Image, ColorReset)

		for i, command := range parsed.Commands {
			fmt.Printf("%s▶ [%d/%d] %s%s\n", ColorCyan, i+1, total, command, ColorReset)

			result, err := s.Run(context.Background(), command)
			if err != nil {
				return err
			}

			console.PrintCommandOutput(result.Stdout)
			if result.Stderr != "" {
				fmt.Fprint(os.Stderr, result.Stderr)
			}

			if !result.Succeeded() {
				return dockboxerrors.NewCommandError(
					fmt.Sprintf("Command %d of %d failed", i+1, total),
					fmt.Sprintf("'%s' exited with status %d", command, result.ExitCode),
					"Fix the failing command in the spec file; later commands were not run",
					fmt.Errorf("command exited with status %d", result.ExitCode),
				)
			}
		}
		return nil
	})
	if runErr != nil {
		var dockboxErr *dockboxerrors.DockboxError
		if errors.As(runErr, &dockboxErr) {
			return runErr
		}
		return sessionError(runErr)
	}

	fmt.Printf("%s✅ All %d commands completed successfully in %s%s\n", ColorGreen, total, time.Since(start).Round(time.Millisecond), ColorReset)
	slog.Info("Dockbox run completed successfully", "name", parsed.Metadata.Name, "runId", runID, "commands", total)
	return nil
}

// ExecOnce runs a single command in a throwaway session and returns the
// command's exit code.
func ExecOnce(cfg session.Config, command string) (int, error) {
	eng, err := NewEngineFactory().GetEngine("docker")
	if err != nil {
		return 0, dockboxerrors.NewEngineError(
			"Failed to initialize container engine",
			err.Error(),
			"Check that the Docker daemon is running and DOCKER_HOST points at it",
			err,
		)
	}

	var exitCode int
	console := ui.NewConsole()
	err = session.With(context.Background(), eng, cfg, func(s *session.Session) error {
		result, err := s.Run(context.Background(), command)
		if err != nil {
			return err
		}
		exitCode = result.ExitCode
		console.PrintCommandOutput(result.Stdout)
		if result.Stderr != "" {
			fmt.Fprint(os.Stderr, result.Stderr)
		}
		return nil
	})
	if err != nil {
		return 0, sessionError(err)
	}
	return exitCode, nil
}

// CheckPrerequisites verifies that the container engine is reachable.
func CheckPrerequisites() error {
	slog.Info("Validating dockbox prerequisites")

	eng, err := NewEngineFactory().GetEngine("docker")
	if err != nil {
		return fmt.Errorf("container engine check failed: %w", err)
	}
	if err := eng.Ping(context.Background()); err != nil {
		return fmt.Errorf("container engine check failed: %w", err)
	}

	slog.Info("All prerequisites validated successfully")
	return nil
}

// sessionError maps session lifecycle failures onto user-facing errors.
func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrEngineUnavailable):
		return dockboxerrors.NewEngineError(
			"Container engine is unreachable",
			err.Error(),
			"Start the Docker daemon and retry",
			err,
		)
	case errors.Is(err, session.ErrContainerStart):
		return dockboxerrors.NewSessionError(
			"Failed to start the session container",
			err.Error(),
			"Check that the image name is correct and pullable",
			err,
		)
	case errors.Is(err, session.ErrCommandExecution):
		return dockboxerrors.NewCommandError(
			"Failed to execute command in the session container",
			err.Error(),
			"Check that the image provides /bin/sh",
			err,
		)
	default:
		return dockboxerrors.NewSessionError("Session failed", err.Error(), "", err)
	}
}

// sessionConfig converts the parsed spec into a session configuration.
// Metadata labels are forwarded to the container, plus a run ID label so
// leaked containers can be traced back to their run.
func sessionConfig(parsed *spec.Spec, runID string) session.Config {
	labels := map[string]string{
		"dockbox.run-id": runID,
		"dockbox.name":   parsed.Metadata.Name,
	}
	for key, value := range parsed.Metadata.Labels {
		labels[key] = value
	}

	return session.Config{
		Image:         parsed.Session.Image,
		NamePrefix:    parsed.Session.NamePrefix,
		Timeout:       time.Duration(parsed.Session.TimeoutSeconds) * time.Second,
		Privileged:    parsed.Session.Privileged,
		CombineOutput: parsed.Session.CombineOutput,
		WorkingDir:    parsed.Session.WorkingDir,
		Env:           parsed.Session.Env,
		VolumeMounts:  parsed.Session.Volumes,
		Labels:        labels,
	}
}
