package engine

import "context"

// CreateOptions defines the parameters for creating a container.
// Volume mounts and environment variables are forwarded verbatim to the
// container engine; dockbox attaches no semantics of its own to them.
type CreateOptions struct {
	Image        string
	Name         string
	Cmd          []string
	Env          map[string]string
	VolumeMounts map[string]string
	WorkingDir   string
	Privileged   bool
	Labels       map[string]string
}

// ExecOptions defines the parameters for executing a command inside a
// running container.
type ExecOptions struct {
	Cmd []string
	Env map[string]string
	// CombineOutput folds the stderr stream into Stdout, preserving the
	// interleaving produced by the engine.
	CombineOutput bool
}

// ExecResult holds the captured output and exit status of a single exec.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ContainerEngine defines the contract for container operations. It is the
// narrow binding over the external engine client; implementations must not
// add retries or lifecycle logic beyond the single call they wrap.
type ContainerEngine interface {
	Ping(ctx context.Context) error
	ImageExists(ctx context.Context, image string) (bool, error)
	PullImage(ctx context.Context, image string) error
	CreateContainer(ctx context.Context, opts CreateOptions) (string, error)
	StartContainer(ctx context.Context, containerID string) error
	Exec(ctx context.Context, containerID string, opts ExecOptions) (*ExecResult, error)
	StopContainer(ctx context.Context, containerID string) error
	RemoveContainer(ctx context.Context, containerID string) error
}
