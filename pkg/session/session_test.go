package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"dockbox/pkg/engine"
)

// MockEngine is a mock implementation of the ContainerEngine interface
type MockEngine struct {
	*mock.Mock
}

func NewMockEngine() *MockEngine {
	return &MockEngine{Mock: &mock.Mock{}}
}

func (m *MockEngine) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	args := m.Called(ctx, image)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngine) PullImage(ctx context.Context, image string) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}

func (m *MockEngine) CreateContainer(ctx context.Context, opts engine.CreateOptions) (string, error) {
	args := m.Called(ctx, opts)
	return args.String(0), args.Error(1)
}

func (m *MockEngine) StartContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockEngine) Exec(ctx context.Context, containerID string, opts engine.ExecOptions) (*engine.ExecResult, error) {
	args := m.Called(ctx, containerID, opts)
	result, _ := args.Get(0).(*engine.ExecResult)
	return result, args.Error(1)
}

func (m *MockEngine) StopContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

func (m *MockEngine) RemoveContainer(ctx context.Context, containerID string) error {
	args := m.Called(ctx, containerID)
	return args.Error(0)
}

// expectOpen registers the engine calls a successful Open makes.
func expectOpen(m *MockEngine, containerID string) {
	m.On("Ping", mock.Anything).Return(nil)
	m.On("ImageExists", mock.Anything, mock.Anything).Return(false, nil)
	m.On("PullImage", mock.Anything, mock.Anything).Return(nil)
	m.On("CreateContainer", mock.Anything, mock.Anything).Return(containerID, nil)
	m.On("StartContainer", mock.Anything, containerID).Return(nil)
}

// expectRelease registers the engine calls a successful Release makes.
func expectRelease(m *MockEngine, containerID string) {
	m.On("StopContainer", mock.Anything, containerID).Return(nil)
	m.On("RemoveContainer", mock.Anything, containerID).Return(nil)
}

func TestWith_CreatesAndRemovesExactlyOnce(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	expectRelease(mockEngine, "abc123")

	var fnCalled bool
	err := With(context.Background(), mockEngine, Config{}, func(s *Session) error {
		fnCalled = true
		if s.State() != Running {
			t.Errorf("Expected state Running inside With, got %s", s.State())
		}
		if s.ContainerID() != "abc123" {
			t.Errorf("Expected container ID 'abc123', got %q", s.ContainerID())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if !fnCalled {
		t.Fatal("Expected fn to be called")
	}

	mockEngine.AssertNumberOfCalls(t, "CreateContainer", 1)
	mockEngine.AssertNumberOfCalls(t, "StopContainer", 1)
	mockEngine.AssertNumberOfCalls(t, "RemoveContainer", 1)
	mockEngine.AssertExpectations(t)
}

func TestWith_ReleasesWhenFnFails(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	expectRelease(mockEngine, "abc123")

	fnErr := errors.New("something broke inside the session")
	err := With(context.Background(), mockEngine, Config{}, func(s *Session) error {
		return fnErr
	})
	if !errors.Is(err, fnErr) {
		t.Errorf("Expected fn error to propagate, got: %v", err)
	}

	mockEngine.AssertNumberOfCalls(t, "StopContainer", 1)
	mockEngine.AssertNumberOfCalls(t, "RemoveContainer", 1)
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	expectRelease(mockEngine, "abc123")

	func() {
		defer func() {
			if recovered := recover(); recovered == nil {
				t.Error("Expected panic to propagate out of With")
			}
		}()
		_ = With(context.Background(), mockEngine, Config{}, func(s *Session) error {
			panic("boom")
		})
	}()

	mockEngine.AssertNumberOfCalls(t, "RemoveContainer", 1)
}

func TestWith_CleanupFailureDoesNotMaskError(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	mockEngine.On("StopContainer", mock.Anything, "abc123").Return(errors.New("stop failed"))
	mockEngine.On("RemoveContainer", mock.Anything, "abc123").Return(errors.New("remove failed"))

	fnErr := errors.New("primary failure")
	err := With(context.Background(), mockEngine, Config{}, func(s *Session) error {
		return fnErr
	})
	if !errors.Is(err, fnErr) {
		t.Errorf("Expected primary error, got: %v", err)
	}
	if errors.Is(err, ErrCleanup) {
		t.Error("Cleanup error must not mask the primary error")
	}
}

func TestOpen_EngineUnavailable(t *testing.T) {
	mockEngine := NewMockEngine()
	mockEngine.On("Ping", mock.Anything).Return(errors.New("daemon not responding"))

	s := New(mockEngine, Config{})
	err := s.Open(context.Background())
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("Expected ErrEngineUnavailable, got: %v", err)
	}
	if s.State() != Unstarted {
		t.Errorf("Expected state Unstarted after failed Open, got %s", s.State())
	}

	mockEngine.AssertNotCalled(t, "CreateContainer", mock.Anything, mock.Anything)
}

func TestOpen_CreateFails(t *testing.T) {
	mockEngine := NewMockEngine()
	mockEngine.On("Ping", mock.Anything).Return(nil)
	mockEngine.On("ImageExists", mock.Anything, mock.Anything).Return(false, nil)
	mockEngine.On("PullImage", mock.Anything, mock.Anything).Return(nil)
	mockEngine.On("CreateContainer", mock.Anything, mock.Anything).Return("", errors.New("no such image"))

	s := New(mockEngine, Config{Image: "does-not-exist"})
	err := s.Open(context.Background())
	if !errors.Is(err, ErrContainerStart) {
		t.Errorf("Expected ErrContainerStart, got: %v", err)
	}
}

func TestOpen_StartFailureRemovesContainer(t *testing.T) {
	mockEngine := NewMockEngine()
	mockEngine.On("Ping", mock.Anything).Return(nil)
	mockEngine.On("ImageExists", mock.Anything, mock.Anything).Return(false, nil)
	mockEngine.On("PullImage", mock.Anything, mock.Anything).Return(nil)
	mockEngine.On("CreateContainer", mock.Anything, mock.Anything).Return("abc123", nil)
	mockEngine.On("StartContainer", mock.Anything, "abc123").Return(errors.New("start failed"))
	mockEngine.On("RemoveContainer", mock.Anything, "abc123").Return(nil)

	s := New(mockEngine, Config{})
	err := s.Open(context.Background())
	if !errors.Is(err, ErrContainerStart) {
		t.Errorf("Expected ErrContainerStart, got: %v", err)
	}
	if s.ContainerID() != "" {
		t.Errorf("Expected empty container ID after failed start, got %q", s.ContainerID())
	}

	mockEngine.AssertNumberOfCalls(t, "RemoveContainer", 1)
}

func TestOpen_DefaultsApplied(t *testing.T) {
	mockEngine := NewMockEngine()
	mockEngine.On("Ping", mock.Anything).Return(nil)
	mockEngine.On("ImageExists", mock.Anything, DefaultImage).Return(false, nil)
	mockEngine.On("PullImage", mock.Anything, DefaultImage).Return(nil)
	mockEngine.On("CreateContainer", mock.Anything, mock.MatchedBy(func(opts engine.CreateOptions) bool {
		return opts.Image == DefaultImage &&
			strings.HasPrefix(opts.Name, DefaultNamePrefix+"-") &&
			len(opts.Cmd) == 2 && opts.Cmd[0] == "/bin/sleep" && opts.Cmd[1] == "3600"
	})).Return("abc123", nil)
	mockEngine.On("StartContainer", mock.Anything, "abc123").Return(nil)

	s := New(mockEngine, Config{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	mockEngine.AssertExpectations(t)
}

func TestOpen_LocalImageSkipsPull(t *testing.T) {
	mockEngine := NewMockEngine()
	mockEngine.On("Ping", mock.Anything).Return(nil)
	mockEngine.On("ImageExists", mock.Anything, "myapp:dev").Return(true, nil)
	mockEngine.On("CreateContainer", mock.Anything, mock.Anything).Return("abc123", nil)
	mockEngine.On("StartContainer", mock.Anything, "abc123").Return(nil)

	// A locally-built image has no registry to pull from; Open must start
	// the container without attempting a pull.
	s := New(mockEngine, Config{Image: "myapp:dev"})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if s.State() != Running {
		t.Errorf("Expected state Running, got %s", s.State())
	}

	mockEngine.AssertNotCalled(t, "PullImage", mock.Anything, mock.Anything)
	mockEngine.AssertExpectations(t)
}

func TestOpen_PullFailsForAbsentImage(t *testing.T) {
	mockEngine := NewMockEngine()
	mockEngine.On("Ping", mock.Anything).Return(nil)
	mockEngine.On("ImageExists", mock.Anything, "ghost:latest").Return(false, nil)
	mockEngine.On("PullImage", mock.Anything, "ghost:latest").Return(errors.New("pull access denied"))

	s := New(mockEngine, Config{Image: "ghost:latest"})
	err := s.Open(context.Background())
	if !errors.Is(err, ErrContainerStart) {
		t.Errorf("Expected ErrContainerStart, got: %v", err)
	}

	mockEngine.AssertNotCalled(t, "CreateContainer", mock.Anything, mock.Anything)
}

func TestNew_UniqueContainerNames(t *testing.T) {
	mockEngine := NewMockEngine()

	first := New(mockEngine, Config{NamePrefix: "job"})
	second := New(mockEngine, Config{NamePrefix: "job"})

	if !strings.HasPrefix(first.ContainerName(), "job-") {
		t.Errorf("Expected container name with 'job-' prefix, got %q", first.ContainerName())
	}
	if first.ContainerName() == second.ContainerName() {
		t.Errorf("Expected unique container names, both were %q", first.ContainerName())
	}
}

func TestRun_BeforeOpen(t *testing.T) {
	mockEngine := NewMockEngine()

	s := New(mockEngine, Config{})
	_, err := s.Run(context.Background(), "echo hello")
	if !errors.Is(err, ErrSessionNotRunning) {
		t.Errorf("Expected ErrSessionNotRunning, got: %v", err)
	}
}

func TestRun_AfterRelease(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	expectRelease(mockEngine, "abc123")

	s := New(mockEngine, Config{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if err := s.Release(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	_, err := s.Run(context.Background(), "echo hello")
	if !errors.Is(err, ErrSessionNotRunning) {
		t.Errorf("Expected ErrSessionNotRunning, got: %v", err)
	}

	mockEngine.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_EchoHello(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	mockEngine.On("Exec", mock.Anything, "abc123", mock.MatchedBy(func(opts engine.ExecOptions) bool {
		return len(opts.Cmd) == 3 && opts.Cmd[0] == "/bin/sh" && opts.Cmd[1] == "-c" &&
			strings.Contains(opts.Cmd[2], "echo hello")
	})).Return(&engine.ExecResult{Stdout: "hello\n", ExitCode: 0}, nil)

	s := New(mockEngine, Config{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	result, err := s.Run(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if !strings.Contains(result.Stdout, "hello") {
		t.Errorf("Expected output to contain 'hello', got %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
	if !result.Succeeded() {
		t.Error("Expected Succeeded() to be true")
	}
}

func TestRunIn_QuotesWorkingDir(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	mockEngine.On("Exec", mock.Anything, "abc123", mock.MatchedBy(func(opts engine.ExecOptions) bool {
		return len(opts.Cmd) == 3 && strings.Contains(opts.Cmd[2], "cd '/my project' && pwd")
	})).Return(&engine.ExecResult{Stdout: "/my project\n", ExitCode: 0}, nil)

	s := New(mockEngine, Config{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	if _, err := s.RunIn(context.Background(), "pwd", "/my project"); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	mockEngine.AssertExpectations(t)
}

func TestRun_NonZeroExitIsNotRetried(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	mockEngine.On("Exec", mock.Anything, "abc123", mock.Anything).Return(&engine.ExecResult{ExitCode: 1}, nil)

	s := New(mockEngine, Config{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	result, err := s.Run(context.Background(), "false")
	if err != nil {
		t.Fatalf("Expected non-zero exit to be reported in the result, got error: %v", err)
	}
	if result.ExitCode == 0 {
		t.Error("Expected non-zero exit code")
	}
	if result.Succeeded() {
		t.Error("Expected Succeeded() to be false")
	}

	mockEngine.AssertNumberOfCalls(t, "Exec", 1)
}

func TestRun_ExecFailure(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	mockEngine.On("Exec", mock.Anything, "abc123", mock.Anything).Return(nil, errors.New("connection reset"))

	s := New(mockEngine, Config{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	_, err := s.Run(context.Background(), "echo hello")
	if !errors.Is(err, ErrCommandExecution) {
		t.Errorf("Expected ErrCommandExecution, got: %v", err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	expectRelease(mockEngine, "abc123")

	s := New(mockEngine, Config{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	if err := s.Release(context.Background()); err != nil {
		t.Fatalf("Unexpected error on first Release: %s", err)
	}
	if err := s.Release(context.Background()); err != nil {
		t.Fatalf("Unexpected error on second Release: %s", err)
	}
	if s.State() != Released {
		t.Errorf("Expected state Released, got %s", s.State())
	}

	mockEngine.AssertNumberOfCalls(t, "StopContainer", 1)
	mockEngine.AssertNumberOfCalls(t, "RemoveContainer", 1)
}

func TestRelease_Unstarted(t *testing.T) {
	mockEngine := NewMockEngine()

	s := New(mockEngine, Config{})
	if err := s.Release(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if s.State() != Released {
		t.Errorf("Expected state Released, got %s", s.State())
	}

	mockEngine.AssertNotCalled(t, "StopContainer", mock.Anything, mock.Anything)
	mockEngine.AssertNotCalled(t, "RemoveContainer", mock.Anything, mock.Anything)
}

func TestRelease_CleanupErrorWrapped(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	mockEngine.On("StopContainer", mock.Anything, "abc123").Return(errors.New("stop failed"))
	mockEngine.On("RemoveContainer", mock.Anything, "abc123").Return(nil)

	s := New(mockEngine, Config{})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	err := s.Release(context.Background())
	if !errors.Is(err, ErrCleanup) {
		t.Errorf("Expected ErrCleanup, got: %v", err)
	}
}

func TestWrap_SessionReleasedAfterReturn(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	expectRelease(mockEngine, "abc123")
	mockEngine.On("Exec", mock.Anything, "abc123", mock.Anything).Return(&engine.ExecResult{Stdout: "hi\n"}, nil)

	var captured *Session
	decorated := Wrap(mockEngine, Config{})(func(ctx context.Context, s *Session) error {
		captured = s
		_, err := s.Run(ctx, "echo hi")
		return err
	})

	if err := decorated(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	if captured.State() != Released {
		t.Errorf("Expected session to be Released after the decorated call, got %s", captured.State())
	}
	_, err := captured.Run(context.Background(), "echo again")
	if !errors.Is(err, ErrSessionNotRunning) {
		t.Errorf("Expected ErrSessionNotRunning after release, got: %v", err)
	}

	mockEngine.AssertNumberOfCalls(t, "CreateContainer", 1)
	mockEngine.AssertNumberOfCalls(t, "RemoveContainer", 1)
}

func TestWrap_FreshSessionPerCall(t *testing.T) {
	mockEngine := NewMockEngine()
	mockEngine.On("Ping", mock.Anything).Return(nil)
	mockEngine.On("ImageExists", mock.Anything, mock.Anything).Return(false, nil)
	mockEngine.On("PullImage", mock.Anything, mock.Anything).Return(nil)
	mockEngine.On("CreateContainer", mock.Anything, mock.Anything).Return("abc123", nil)
	mockEngine.On("StartContainer", mock.Anything, "abc123").Return(nil)
	mockEngine.On("StopContainer", mock.Anything, "abc123").Return(nil)
	mockEngine.On("RemoveContainer", mock.Anything, "abc123").Return(nil)

	var names []string
	decorated := Wrap(mockEngine, Config{})(func(ctx context.Context, s *Session) error {
		names = append(names, s.ContainerName())
		return nil
	})

	if err := decorated(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if err := decorated(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	if len(names) != 2 || names[0] == names[1] {
		t.Errorf("Expected two distinct container names, got %v", names)
	}

	mockEngine.AssertNumberOfCalls(t, "CreateContainer", 2)
	mockEngine.AssertNumberOfCalls(t, "RemoveContainer", 2)
}

func TestConfig_TimeoutControlsKeepalive(t *testing.T) {
	mockEngine := NewMockEngine()
	mockEngine.On("Ping", mock.Anything).Return(nil)
	mockEngine.On("ImageExists", mock.Anything, mock.Anything).Return(false, nil)
	mockEngine.On("PullImage", mock.Anything, mock.Anything).Return(nil)
	mockEngine.On("CreateContainer", mock.Anything, mock.MatchedBy(func(opts engine.CreateOptions) bool {
		return len(opts.Cmd) == 2 && opts.Cmd[1] == "90"
	})).Return("abc123", nil)
	mockEngine.On("StartContainer", mock.Anything, "abc123").Return(nil)

	s := New(mockEngine, Config{Timeout: 90 * time.Second})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	mockEngine.AssertExpectations(t)
}

func TestConfig_CombineOutputForwarded(t *testing.T) {
	mockEngine := NewMockEngine()
	expectOpen(mockEngine, "abc123")
	mockEngine.On("Exec", mock.Anything, "abc123", mock.MatchedBy(func(opts engine.ExecOptions) bool {
		return opts.CombineOutput
	})).Return(&engine.ExecResult{Stdout: "out and err\n"}, nil)

	s := New(mockEngine, Config{CombineOutput: true})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if _, err := s.Run(context.Background(), "echo out and err"); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	mockEngine.AssertExpectations(t)
}
