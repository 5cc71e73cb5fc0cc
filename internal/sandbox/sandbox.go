package sandbox

import (
	"context"
	"errors"
	"io"
	"time"
)

// Errors returned (wrapped) by Engine implementations.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("container runtime unavailable")
)

// ContainerSpec describes a container to create and start.
type ContainerSpec struct {
	Image      string
	Name       string
	Labels     map[string]string
	WorkingDir string
	Policy     Policy
	Ports      PortMap
}

// Container is a runtime container as seen by a listing.
type Container struct {
	ID      string
	Name    string
	Labels  map[string]string
	State   string // e.g. "running", "exited"
	Ports   map[string]string
	Created time.Time
}

// LogOptions controls log retrieval.
type LogOptions struct {
	Tail   int           // lines from the end; <= 0 means all
	Since  time.Duration // only logs newer than now-Since; 0 means no window
	Follow bool
}

// Engine is the container runtime control API the manager drives.
type Engine interface {
	Ping(ctx context.Context) error

	// ImageExists reports whether ref is present in the local image store.
	ImageExists(ctx context.Context, ref string) (bool, error)
	PullImage(ctx context.Context, ref string) error

	// RunContainer creates and starts a container. A failure during start
	// may leave a created container behind under spec.Name.
	RunContainer(ctx context.Context, spec ContainerSpec) (string, error)
	// ContainerIDByName resolves a container by its name, including
	// containers that were created but never started.
	ContainerIDByName(ctx context.Context, name string) (string, error)
	StopContainer(ctx context.Context, id string, grace time.Duration) error
	RemoveContainer(ctx context.Context, id string, force bool) error
	ListContainers(ctx context.Context, labels map[string]string, all bool) ([]Container, error)

	// Exec runs argv and returns the combined stdout/stderr stream and exit code.
	Exec(ctx context.Context, id string, argv []string) ([]byte, int, error)
	// CopyArchive extracts a tar archive into dir inside the container.
	CopyArchive(ctx context.Context, id, dir string, archive io.Reader) error
	// Logs returns the container log with stdout and stderr interleaved.
	Logs(ctx context.Context, id string, opts LogOptions) (io.ReadCloser, error)

	Close() error
}

// ExecResult is the output of a command run inside a sandbox.
//
// The runtime captures one combined stream, so Stdout holds it when the
// exit code is zero and Stderr holds it otherwise.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Info describes a managed sandbox.
type Info struct {
	ID        string            `json:"container_id" yaml:"container_id"`
	Name      string            `json:"name" yaml:"name"`
	ProjectID string            `json:"project_id" yaml:"project_id"`
	Version   string            `json:"dotnet_version,omitempty" yaml:"dotnet_version,omitempty"`
	Status    string            `json:"status" yaml:"status"`
	Ports     map[string]string `json:"ports" yaml:"ports"`
}

// StopOutcome is the result of an idempotent stop.
type StopOutcome int

const (
	StopRemoved StopOutcome = iota
	StopNotFound
	StopFailed
)

func (o StopOutcome) String() string {
	switch o {
	case StopRemoved:
		return "removed"
	case StopNotFound:
		return "not_found"
	default:
		return "failed"
	}
}
