package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"dockbox/pkg/engine"
)

const (
	// DefaultImage is the base image used when Config.Image is empty.
	DefaultImage = "ubuntu"

	// DefaultNamePrefix prefixes generated container names.
	DefaultNamePrefix = "dockbox"

	// DefaultTimeout bounds the keepalive process inside the container, so
	// a leaked container exits on its own instead of living forever.
	DefaultTimeout = time.Hour
)

// State represents the lifecycle state of a Session.
type State int

const (
	Unstarted State = iota
	Running
	Released
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Running:
		return "running"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// Config holds the session parameters. Env and VolumeMounts are forwarded
// verbatim to the engine client.
type Config struct {
	Image         string
	NamePrefix    string
	Timeout       time.Duration
	Privileged    bool
	CombineOutput bool
	WorkingDir    string
	Env           map[string]string
	VolumeMounts  map[string]string
	Labels        map[string]string
}

// Result holds the captured output and exit status of a single Run call.
// A non-zero exit code is reported here, not as an error from Run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Succeeded reports whether the command exited with status 0.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Session pairs one container with the wrapper that created it. Each Session
// owns its engine handle and container ID for its lifetime; the container
// name is unique per Session and never reused.
//
// A Session is not safe for concurrent use without external synchronization.
type Session struct {
	engine        engine.ContainerEngine
	cfg           Config
	containerName string
	containerID   string
	state         State
}

// New creates a Session in the Unstarted state. No engine calls are made
// until Open.
func New(eng engine.ContainerEngine, cfg Config) *Session {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = DefaultNamePrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Session{
		engine:        eng,
		cfg:           cfg,
		containerName: fmt.Sprintf("%s-%s", cfg.NamePrefix, uuid.New().String()),
	}
}

// Open creates and starts the session container, pulling the base image
// first only when it is not already present on the host, so locally-built
// images work without a registry. The container runs a bounded sleep as its
// main process so exec calls have a live target. Open fails with
// ErrEngineUnavailable when the daemon cannot be reached and
// ErrContainerStart when the pull, creation, or start fails.
func (s *Session) Open(ctx context.Context) error {
	if s.state != Unstarted {
		return fmt.Errorf("cannot open session in state %s", s.state)
	}

	if err := s.engine.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}

	exists, err := s.engine.ImageExists(ctx, s.cfg.Image)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrContainerStart, err)
	}
	if !exists {
		if err := s.engine.PullImage(ctx, s.cfg.Image); err != nil {
			return fmt.Errorf("%w: %w", ErrContainerStart, err)
		}
	}

	keepaliveSeconds := strconv.Itoa(int(s.cfg.Timeout / time.Second))
	containerID, err := s.engine.CreateContainer(ctx, engine.CreateOptions{
		Image:        s.cfg.Image,
		Name:         s.containerName,
		Cmd:          []string{"/bin/sleep", keepaliveSeconds},
		Env:          s.cfg.Env,
		VolumeMounts: s.cfg.VolumeMounts,
		Privileged:   s.cfg.Privileged,
		Labels:       s.cfg.Labels,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrContainerStart, err)
	}
	s.containerID = containerID

	if err := s.engine.StartContainer(ctx, containerID); err != nil {
		// The container exists but never ran; remove it so a failed Open
		// leaves nothing behind.
		if removeErr := s.engine.RemoveContainer(ctx, containerID); removeErr != nil {
			slog.Error("Failed to remove container after start failure", "containerID", containerID, "error", removeErr)
		}
		s.containerID = ""
		return fmt.Errorf("%w: %w", ErrContainerStart, err)
	}

	s.state = Running
	slog.Info("Session opened", "container", s.containerName, "containerID", containerID, "image", s.cfg.Image)
	return nil
}

// Run executes command with `sh -c` inside the session container, in the
// session's configured working directory.
func (s *Session) Run(ctx context.Context, command string) (*Result, error) {
	return s.RunIn(ctx, command, s.cfg.WorkingDir)
}

// RunIn executes command in the given working directory. Relative directories
// resolve under the container user's home. The command's exit code is part of
// the Result; RunIn returns ErrCommandExecution only when the exec call
// itself fails, and never retries.
func (s *Session) RunIn(ctx context.Context, command, dir string) (*Result, error) {
	if s.state != Running {
		return nil, fmt.Errorf("%w: session is %s", ErrSessionNotRunning, s.state)
	}

	// Run through the shell so ~ in the working directory expands.
	wrapped := fmt.Sprintf("cd %s && %s", quoteWorkingDir(resolveWorkingDir(dir)), command)

	execResult, err := s.engine.Exec(ctx, s.containerID, engine.ExecOptions{
		Cmd:           []string{"/bin/sh", "-c", wrapped},
		CombineOutput: s.cfg.CombineOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommandExecution, err)
	}

	slog.Debug("Command completed", "container", s.containerName, "command", command, "exitCode", execResult.ExitCode)
	return &Result{
		Stdout:   execResult.Stdout,
		Stderr:   execResult.Stderr,
		ExitCode: execResult.ExitCode,
	}, nil
}

// Release stops and removes the session container. It is idempotent and
// transitions the session to Released from any state. Cleanup failures are
// logged before being returned wrapped in ErrCleanup; scoped callers (With,
// Wrap) discard them so they never mask an in-flight error.
func (s *Session) Release(ctx context.Context) error {
	if s.state == Released {
		return nil
	}
	if s.state == Unstarted {
		s.state = Released
		return nil
	}

	s.state = Released
	containerID := s.containerID
	s.containerID = ""

	var cleanupErr error
	if err := s.engine.StopContainer(ctx, containerID); err != nil {
		slog.Error("Failed to stop container", "containerID", containerID, "error", err)
		cleanupErr = err
	}
	if err := s.engine.RemoveContainer(ctx, containerID); err != nil {
		slog.Error("Failed to remove container", "containerID", containerID, "error", err)
		if cleanupErr == nil {
			cleanupErr = err
		}
	}

	if cleanupErr != nil {
		return fmt.Errorf("%w: %w", ErrCleanup, cleanupErr)
	}

	slog.Info("Session released", "container", s.containerName, "containerID", containerID)
	return nil
}

// State returns the session's lifecycle state.
func (s *Session) State() State {
	return s.state
}

// ContainerID returns the engine-assigned container ID, or "" outside the
// Running state.
func (s *Session) ContainerID() string {
	return s.containerID
}

// ContainerName returns the generated container name.
func (s *Session) ContainerName() string {
	return s.containerName
}

// With runs fn inside a scoped session: the container is created and started
// before fn is invoked and released on every exit path, including panics.
// Exactly one container is created and removed per call. Release errors have
// already been logged and are discarded here so fn's error is what the
// caller sees.
func With(ctx context.Context, eng engine.ContainerEngine, cfg Config, fn func(*Session) error) error {
	s := New(eng, cfg)
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer func() {
		_ = s.Release(ctx)
	}()

	return fn(s)
}

// Wrap returns a decorator that composes With around an arbitrary function.
// The decorated function acquires a fresh session on each call, receives it
// as an argument, and the session is released before the call returns.
func Wrap(eng engine.ContainerEngine, cfg Config) func(func(context.Context, *Session) error) func(context.Context) error {
	return func(fn func(context.Context, *Session) error) func(context.Context) error {
		return func(ctx context.Context) error {
			return With(ctx, eng, cfg, func(s *Session) error {
				return fn(ctx, s)
			})
		}
	}
}
