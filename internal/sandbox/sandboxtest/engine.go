// Package sandboxtest provides an in-memory sandbox.Engine for tests.
//
// The fake keeps a file tree per container and understands the archive
// uploads and shell commands the manager issues, so file operations can be
// exercised end to end without a Docker daemon.
package sandboxtest

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

// ExecHook intercepts Exec. Returning handled=false falls through to the
// built-in command emulation.
type ExecHook func(ctx context.Context, id string, argv []string) (out []byte, code int, handled bool, err error)

// Engine is a fake container runtime.
type Engine struct {
	mu sync.Mutex

	containers map[string]*container
	names      map[string]string
	images     map[string]bool
	boundPorts map[int]string
	seq        int
	nextPort   int

	// Injected failures.
	PingErr   error
	PullErr   error
	StartErr  error
	StopErr   error
	RemoveErr error
	ListErr   error

	// ExecHook, when set, sees every Exec first.
	ExecHook ExecHook

	// Specs records every RunContainer request.
	Specs []sandbox.ContainerSpec

	// Counters.
	RunCalls int
	Removed  int
	Pulls    int
	Execs    int
}

type container struct {
	sandbox.Container
	seq       int
	hostPorts []int
	dirs      map[string]bool
	files     map[string][]byte
	procs     []string
	logs      []string
}

// NewEngine returns an empty fake runtime with the given images present.
func NewEngine(images ...string) *Engine {
	e := &Engine{
		containers: map[string]*container{},
		names:      map[string]string{},
		images:     map[string]bool{},
		boundPorts: map[int]string{},
		nextPort:   32768,
	}
	for _, img := range images {
		e.images[img] = true
	}
	return e
}

// AddImage marks ref as present locally.
func (e *Engine) AddImage(ref string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[ref] = true
}

// AddContainer registers a running container directly, bypassing
// RunContainer. It returns the container id.
func (e *Engine) AddContainer(name string, labels map[string]string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.newContainer(name, labels)
	c.State = "running"
	return c.ID
}

func (e *Engine) newContainer(name string, labels map[string]string) *container {
	e.seq++
	id := fmt.Sprintf("%064x", e.seq)
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	c := &container{
		Container: sandbox.Container{
			ID:      id,
			Name:    name,
			Labels:  copied,
			State:   "created",
			Ports:   map[string]string{},
			Created: time.Now(),
		},
		seq:   e.seq,
		dirs:  map[string]bool{"/": true, sandbox.Workdir: true, "/tmp": true},
		files: map[string][]byte{},
	}
	e.containers[id] = c
	if name != "" {
		e.names[name] = id
	}
	return c
}

func (e *Engine) Ping(ctx context.Context) error {
	if e.PingErr != nil {
		return fmt.Errorf("ping: %w: %v", sandbox.ErrUnavailable, e.PingErr)
	}
	return nil
}

func (e *Engine) ImageExists(ctx context.Context, ref string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.images[ref], nil
}

func (e *Engine) PullImage(ctx context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Pulls++
	if e.PullErr != nil {
		return fmt.Errorf("pulling image %s: %w", ref, e.PullErr)
	}
	e.images[ref] = true
	return nil
}

// RunContainer creates the container first and then starts it. A start
// failure leaves the created container behind, as Docker does.
func (e *Engine) RunContainer(ctx context.Context, spec sandbox.ContainerSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.RunCalls++
	e.Specs = append(e.Specs, spec)

	if !e.images[spec.Image] {
		return "", fmt.Errorf("creating container %s: %w: no such image %s", spec.Name, sandbox.ErrNotFound, spec.Image)
	}
	if _, taken := e.names[spec.Name]; taken {
		return "", fmt.Errorf("creating container %s: Conflict. The container name is already in use", spec.Name)
	}

	c := e.newContainer(spec.Name, spec.Labels)

	if e.StartErr != nil {
		return "", fmt.Errorf("starting container %s: %w", spec.Name, e.StartErr)
	}
	for _, cp := range spec.Ports.ContainerPorts() {
		hp := spec.Ports[cp]
		if hp == 0 {
			continue
		}
		if owner, bound := e.boundPorts[hp]; bound && owner != c.ID {
			return "", fmt.Errorf("starting container %s: driver failed programming external connectivity on endpoint %s: Bind for 0.0.0.0:%d failed: port is already allocated", spec.Name, spec.Name, hp)
		}
	}
	for _, cp := range spec.Ports.ContainerPorts() {
		hp := spec.Ports[cp]
		if hp == 0 {
			for e.boundPorts[e.nextPort] != "" {
				e.nextPort++
			}
			hp = e.nextPort
			e.nextPort++
		}
		e.boundPorts[hp] = c.ID
		c.hostPorts = append(c.hostPorts, hp)
		c.Ports[fmt.Sprintf("%d/tcp", cp)] = strconv.Itoa(hp)
	}
	c.State = "running"
	return c.ID, nil
}

func (e *Engine) ContainerIDByName(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.names[name]
	if !ok {
		return "", fmt.Errorf("inspecting container %s: %w", name, sandbox.ErrNotFound)
	}
	return id, nil
}

func (e *Engine) StopContainer(ctx context.Context, id string, grace time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[id]
	if !ok {
		return fmt.Errorf("stopping container %s: %w", id, sandbox.ErrNotFound)
	}
	if e.StopErr != nil {
		return fmt.Errorf("stopping container %s: %w", id, e.StopErr)
	}
	e.release(c)
	c.State = "exited"
	c.procs = nil
	return nil
}

func (e *Engine) RemoveContainer(ctx context.Context, id string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[id]
	if !ok {
		return fmt.Errorf("removing container %s: %w", id, sandbox.ErrNotFound)
	}
	if e.RemoveErr != nil {
		return fmt.Errorf("removing container %s: %w", id, e.RemoveErr)
	}
	if c.State == "running" && !force {
		return fmt.Errorf("removing container %s: cannot remove a running container", id)
	}
	e.release(c)
	delete(e.containers, id)
	delete(e.names, c.Name)
	e.Removed++
	return nil
}

func (e *Engine) release(c *container) {
	for _, hp := range c.hostPorts {
		if e.boundPorts[hp] == c.ID {
			delete(e.boundPorts, hp)
		}
	}
	c.hostPorts = nil
}

func (e *Engine) ListContainers(ctx context.Context, labels map[string]string, all bool) ([]sandbox.Container, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ListErr != nil {
		return nil, fmt.Errorf("listing containers: %w", e.ListErr)
	}

	var matched []*container
	for _, c := range e.containers {
		if !all && c.State != "running" {
			continue
		}
		ok := true
		for k, v := range labels {
			if c.Labels[k] != v {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	out := make([]sandbox.Container, 0, len(matched))
	for _, c := range matched {
		cp := c.Container
		cp.Labels = make(map[string]string, len(c.Labels))
		for k, v := range c.Labels {
			cp.Labels[k] = v
		}
		cp.Ports = make(map[string]string, len(c.Ports))
		for k, v := range c.Ports {
			cp.Ports[k] = v
		}
		out = append(out, cp)
	}
	return out, nil
}

func (e *Engine) Exec(ctx context.Context, id string, argv []string) ([]byte, int, error) {
	e.mu.Lock()
	e.Execs++
	c, ok := e.containers[id]
	running := ok && c.State == "running"
	hook := e.ExecHook
	e.mu.Unlock()

	if !ok {
		return nil, 0, fmt.Errorf("creating exec in %s: %w", id, sandbox.ErrNotFound)
	}
	if !running {
		return nil, 0, fmt.Errorf("creating exec in %s: container %s is not running", id, id)
	}
	if hook != nil {
		out, code, handled, err := hook(ctx, id, argv)
		if handled || err != nil {
			return out, code, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.builtin(c, argv)
}

func (e *Engine) builtin(c *container, argv []string) ([]byte, int, error) {
	switch {
	case len(argv) == 5 && argv[0] == "sh" && argv[1] == "-c" && argv[2] == `base64 "$1"`:
		p := argv[4]
		data, ok := c.files[p]
		if !ok {
			return []byte(fmt.Sprintf("base64: %s: No such file or directory\n", p)), 1, nil
		}
		return wrap76(base64.StdEncoding.EncodeToString(data)), 0, nil

	case len(argv) == 3 && argv[0] == "sh" && argv[1] == "-c" && strings.HasPrefix(argv[2], "nohup "):
		c.procs = append(c.procs, strings.TrimPrefix(argv[2], "nohup "))
		return nil, 0, nil

	case len(argv) == 3 && argv[0] == "test" && argv[1] == "-f":
		if _, ok := c.files[argv[2]]; ok {
			return nil, 0, nil
		}
		return nil, 1, nil

	case len(argv) == 3 && argv[0] == "ls" && argv[1] == "-1":
		dir := path.Clean(argv[2])
		if !c.dirs[dir] {
			return []byte(fmt.Sprintf("ls: cannot access '%s': No such file or directory\n", dir)), 2, nil
		}
		var names []string
		for p := range c.files {
			if path.Dir(p) == dir {
				names = append(names, path.Base(p))
			}
		}
		for p := range c.dirs {
			if p != dir && path.Dir(p) == dir {
				names = append(names, path.Base(p))
			}
		}
		sort.Strings(names)
		if len(names) == 0 {
			return nil, 0, nil
		}
		return []byte(strings.Join(names, "\n") + "\n"), 0, nil

	case len(argv) == 3 && argv[0] == "pkill" && argv[1] == "-f":
		kept := c.procs[:0]
		killed := false
		for _, p := range c.procs {
			if strings.Contains(p, argv[2]) {
				killed = true
				continue
			}
			kept = append(kept, p)
		}
		c.procs = kept
		if killed {
			return nil, 0, nil
		}
		return nil, 1, nil

	case len(argv) >= 1 && argv[0] == "echo":
		return []byte(strings.Join(argv[1:], " ") + "\n"), 0, nil
	}
	return []byte(fmt.Sprintf("sh: %s: not found\n", argv[0])), 127, nil
}

func wrap76(s string) []byte {
	var b bytes.Buffer
	for len(s) > 76 {
		b.WriteString(s[:76])
		b.WriteByte('\n')
		s = s[76:]
	}
	b.WriteString(s)
	b.WriteByte('\n')
	return b.Bytes()
}

func (e *Engine) CopyArchive(ctx context.Context, id, dir string, archive io.Reader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[id]
	if !ok {
		return fmt.Errorf("copying archive to %s: %w", id, sandbox.ErrNotFound)
	}
	dir = path.Clean(dir)
	if !c.dirs[dir] {
		return fmt.Errorf("copying archive to %s:%s: Could not find the file %s in container", id, dir, dir)
	}

	tr := tar.NewReader(archive)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		target := path.Join(dir, hdr.Name)
		switch hdr.Typeflag {
		case tar.TypeDir:
			if !c.dirs[path.Dir(target)] {
				return fmt.Errorf("archive entry %s: parent directory missing", hdr.Name)
			}
			c.dirs[target] = true
		case tar.TypeReg:
			if !c.dirs[path.Dir(target)] {
				return fmt.Errorf("archive entry %s: parent directory missing", hdr.Name)
			}
			data, err := io.ReadAll(tr)
			if err != nil {
				return fmt.Errorf("reading archive entry %s: %w", hdr.Name, err)
			}
			c.files[target] = data
		default:
			return fmt.Errorf("archive entry %s: unsupported type %c", hdr.Name, hdr.Typeflag)
		}
	}
}

func (e *Engine) Logs(ctx context.Context, id string, opts sandbox.LogOptions) (io.ReadCloser, error) {
	e.mu.Lock()
	c, ok := e.containers[id]
	var lines []string
	if ok {
		lines = append(lines, c.logs...)
	}
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fetching logs for %s: %w", id, sandbox.ErrNotFound)
	}

	if opts.Tail > 0 && len(lines) > opts.Tail {
		lines = lines[len(lines)-opts.Tail:]
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if !opts.Follow {
		return io.NopCloser(strings.NewReader(b.String())), nil
	}

	pr, pw := io.Pipe()
	go func() {
		if _, err := io.WriteString(pw, b.String()); err != nil {
			return
		}
		<-ctx.Done()
		pw.Close()
	}()
	return pr, nil
}

func (e *Engine) Close() error { return nil }

// AppendLog adds a line to a container's log.
func (e *Engine) AppendLog(id, line string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.containers[id]; ok {
		c.logs = append(c.logs, line)
	}
}

// File returns the content of p in container id.
func (e *Engine) File(id, p string) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[id]
	if !ok {
		return nil, false
	}
	data, ok := c.files[p]
	return data, ok
}

// Dir reports whether p is a directory in container id.
func (e *Engine) Dir(id, p string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[id]
	return ok && c.dirs[p]
}

// Processes returns the background commands running in container id.
func (e *Engine) Processes(id string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.containers[id]; ok {
		return append([]string(nil), c.procs...)
	}
	return nil
}

// ContainerNames returns the names of all containers, in creation order.
func (e *Engine) ContainerNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs := make([]*container, 0, len(e.containers))
	for _, c := range e.containers {
		cs = append(cs, c)
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].seq < cs[j].seq })
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of containers, including stopped ones.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.containers)
}

var _ sandbox.Engine = (*Engine)(nil)

// ErrBoom is a generic injected failure.
var ErrBoom = errors.New("boom")
