package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// DockerEngine drives the Docker daemon through its HTTP API.
type DockerEngine struct {
	cli *client.Client
}

// NewDockerEngine connects using the standard DOCKER_* environment.
func NewDockerEngine() (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client init: %w", err)
	}
	return &DockerEngine{cli: cli}, nil
}

func (d *DockerEngine) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon: %w: %v", ErrUnavailable, err)
	}
	return nil
}

func (d *DockerEngine) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, err := d.cli.ImageInspect(ctx, ref)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, d.wrap("inspecting image "+ref, err)
}

func (d *DockerEngine) PullImage(ctx context.Context, ref string) error {
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return d.wrap("pulling image "+ref, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("reading pull progress for %s: %w", ref, err)
	}
	return nil
}

func (d *DockerEngine) RunContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	memory, err := spec.Policy.MemoryBytes()
	if err != nil {
		return "", err
	}

	cfg := &container.Config{
		Image:      spec.Image,
		Labels:     spec.Labels,
		WorkingDir: spec.WorkingDir,
	}
	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    memory,
			CPUPeriod: spec.Policy.CPUPeriod,
			CPUQuota:  spec.Policy.CPUQuota,
		},
	}

	if len(spec.Ports) > 0 {
		exposed := nat.PortSet{}
		bindings := nat.PortMap{}
		for _, cp := range spec.Ports.ContainerPorts() {
			port := nat.Port(fmt.Sprintf("%d/tcp", cp))
			exposed[port] = struct{}{}
			hostPort := ""
			if hp := spec.Ports[cp]; hp > 0 {
				hostPort = strconv.Itoa(hp)
			}
			bindings[port] = []nat.PortBinding{{HostPort: hostPort}}
		}
		cfg.ExposedPorts = exposed
		hostCfg.PortBindings = bindings
	}

	resp, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, spec.Name)
	if err != nil {
		return "", d.wrap("creating container "+spec.Name, err)
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", d.wrap("starting container "+spec.Name, err)
	}
	return resp.ID, nil
}

func (d *DockerEngine) ContainerIDByName(ctx context.Context, name string) (string, error) {
	inspect, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		return "", d.wrap("inspecting container "+name, err)
	}
	return inspect.ID, nil
}

func (d *DockerEngine) StopContainer(ctx context.Context, id string, grace time.Duration) error {
	timeout := int(grace.Seconds())
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return d.wrap("stopping container "+id, err)
	}
	return nil
}

func (d *DockerEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: force}); err != nil {
		return d.wrap("removing container "+id, err)
	}
	return nil
}

func (d *DockerEngine) ListContainers(ctx context.Context, labels map[string]string, all bool) ([]Container, error) {
	args := filters.NewArgs()
	for k, v := range labels {
		args.Add("label", k+"="+v)
	}
	summaries, err := d.cli.ContainerList(ctx, container.ListOptions{All: all, Filters: args})
	if err != nil {
		return nil, d.wrap("listing containers", err)
	}

	out := make([]Container, 0, len(summaries))
	for _, s := range summaries {
		c := Container{
			ID:      s.ID,
			Labels:  s.Labels,
			State:   string(s.State),
			Ports:   map[string]string{},
			Created: time.Unix(s.Created, 0),
		}
		if len(s.Names) > 0 {
			c.Name = trimSlash(s.Names[0])
		}
		for _, p := range s.Ports {
			if p.PublicPort == 0 {
				continue
			}
			key := fmt.Sprintf("%d/%s", p.PrivatePort, p.Type)
			if _, seen := c.Ports[key]; !seen {
				c.Ports[key] = strconv.Itoa(int(p.PublicPort))
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *DockerEngine) Exec(ctx context.Context, id string, argv []string) ([]byte, int, error) {
	execResp, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, 0, d.wrap("creating exec in "+id, err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, 0, d.wrap("attaching exec in "+id, err)
	}
	defer attach.Close()

	// Unblock the copy below when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			attach.Close()
		case <-done:
		}
	}()

	// Both streams go to one buffer: the caller gets the combined output.
	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, attach.Reader); err != nil && err != io.EOF {
		if ctx.Err() != nil {
			return out.Bytes(), 0, ctx.Err()
		}
		return out.Bytes(), 0, fmt.Errorf("reading exec output: %w", err)
	}

	exitCode, err := d.waitExec(ctx, execResp.ID)
	if err != nil {
		return out.Bytes(), 0, err
	}
	return out.Bytes(), exitCode, nil
}

func (d *DockerEngine) waitExec(ctx context.Context, execID string) (int, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		ins, err := d.cli.ContainerExecInspect(ctx, execID)
		if err != nil {
			return 0, d.wrap("inspecting exec", err)
		}
		if !ins.Running {
			return ins.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *DockerEngine) CopyArchive(ctx context.Context, id, dir string, archive io.Reader) error {
	if err := d.cli.CopyToContainer(ctx, id, dir, archive, container.CopyToContainerOptions{}); err != nil {
		return d.wrap("copying archive to "+id+":"+dir, err)
	}
	return nil
}

func (d *DockerEngine) Logs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error) {
	lo := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
	}
	if opts.Tail > 0 {
		lo.Tail = strconv.Itoa(opts.Tail)
	}
	if opts.Since > 0 {
		lo.Since = strconv.FormatInt(time.Now().Add(-opts.Since).Unix(), 10)
	}
	rc, err := d.cli.ContainerLogs(ctx, id, lo)
	if err != nil {
		return nil, d.wrap("fetching logs for "+id, err)
	}

	// Demultiplex into a single stream as the log is read.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		rc.Close()
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (d *DockerEngine) Close() error {
	return d.cli.Close()
}

func (d *DockerEngine) wrap(what string, err error) error {
	switch {
	case client.IsErrNotFound(err):
		return fmt.Errorf("%s: %w: %v", what, ErrNotFound, err)
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%s: %w: %v", what, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func trimSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}
