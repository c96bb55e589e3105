package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"dockbox/pkg/engine"
)

// DockerEngine implements the ContainerEngine interface using the Docker client.
type DockerEngine struct {
	client *client.Client
}

// NewDockerEngine creates a new DockerEngine instance using client.FromEnv.
// It pings the daemon once so that an unreachable engine surfaces at
// construction time rather than on first use.
func NewDockerEngine() (*DockerEngine, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := dockerClient.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}

	return &DockerEngine{client: dockerClient}, nil
}

// Ping checks that the Docker daemon is reachable.
func (d *DockerEngine) Ping(ctx context.Context) error {
	if _, err := d.client.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to Docker daemon: %w", err)
	}
	return nil
}

// ImageExists reports whether the image is already present on the host, so
// locally-built images work without a registry.
func (d *DockerEngine) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, _, err := d.client.ImageInspectWithRaw(ctx, imageName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect image %s: %w", imageName, err)
	}
	return true, nil
}

// PullImage pulls a Docker image.
func (d *DockerEngine) PullImage(ctx context.Context, imageName string) error {
	slog.Info("Pulling Docker image", "image", imageName)

	reader, err := d.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	// Drain the progress stream; printing it would clutter the output.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to stream image pull output: %w", err)
	}

	slog.Info("Successfully pulled Docker image", "image", imageName)
	return nil
}

// CreateContainer creates a container and returns its engine-assigned ID.
func (d *DockerEngine) CreateContainer(ctx context.Context, opts engine.CreateOptions) (string, error) {
	containerConfig := &container.Config{
		Image:      opts.Image,
		Cmd:        opts.Cmd,
		Env:        toEnvSlice(opts.Env),
		WorkingDir: opts.WorkingDir,
		Labels:     opts.Labels,
	}

	hostConfig := &container.HostConfig{
		Mounts:     toMounts(opts.VolumeMounts),
		Privileged: opts.Privileged,
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	slog.Info("Created container", "containerID", resp.ID, "image", opts.Image, "name", opts.Name)
	return resp.ID, nil
}

// StartContainer starts a previously created container.
func (d *DockerEngine) StartContainer(ctx context.Context, containerID string) error {
	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// Exec runs a command inside a running container and captures its output and
// exit code. The multiplexed output stream is demultiplexed with stdcopy.
func (d *DockerEngine) Exec(ctx context.Context, containerID string, opts engine.ExecOptions) (*engine.ExecResult, error) {
	execConfig := container.ExecOptions{
		Cmd:          opts.Cmd,
		Env:          toEnvSlice(opts.Env),
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := d.client.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := d.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	errSink := io.Writer(&stderr)
	if opts.CombineOutput {
		errSink = &stdout
	}
	if _, err := stdcopy.StdCopy(&stdout, errSink, attach.Reader); err != nil {
		return nil, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := d.client.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect exec: %w", err)
	}

	return &engine.ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// StopContainer stops a running container using the engine's default grace period.
func (d *DockerEngine) StopContainer(ctx context.Context, containerID string) error {
	if err := d.client.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// RemoveContainer force-removes a container.
func (d *DockerEngine) RemoveContainer(ctx context.Context, containerID string) error {
	if err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// toEnvSlice converts an environment map to the KEY=VALUE slice format the
// Docker API expects.
func toEnvSlice(env map[string]string) []string {
	var envVars []string
	for key, value := range env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", key, value))
	}
	return envVars
}

// toMounts converts a hostPath -> containerPath map to bind mounts.
func toMounts(volumes map[string]string) []mount.Mount {
	var mounts []mount.Mount
	for hostPath, containerPath := range volumes {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: hostPath,
			Target: containerPath,
		})
	}
	return mounts
}
