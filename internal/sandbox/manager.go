package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/michaelbrown/dotbox/internal/metrics"
	"github.com/michaelbrown/dotbox/internal/storage"
)

// Labels attached to every sandbox container.
const (
	LabelManagedBy = "managed-by"
	LabelProjectID = "project-id"
	LabelVersion   = "dotnet-version"
	LabelCreatedAt = "created-at"

	// ManagedBy is the ownership label value scoping all listings.
	ManagedBy = "dotbox-mcp"

	// Workdir is the working directory inside every sandbox.
	Workdir = "/workspace"
)

const defaultExecTimeout = 30 * time.Second

var projectIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,63}$`)

// Journal receives lifecycle events. Failures are logged, never returned.
type Journal interface {
	RecordEvent(ctx context.Context, e *storage.Event) error
}

// Manager owns sandbox lifecycle: creation, command execution, teardown
// and idle eviction. It is safe for concurrent use.
type Manager struct {
	engine      Engine
	images      ImageSource
	policy      Policy
	activity    *ActivityRegistry
	journal     Journal
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time
	execTimeout time.Duration

	creates singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithImageSource selects local or registry images.
func WithImageSource(src ImageSource) Option {
	return func(m *Manager) { m.images = src }
}

// WithPolicy overrides the resource policy. Intended for tests; callers
// in production use DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "sandbox").Logger() }
}

// WithClock replaces time.Now for activity and age calculations.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithExecTimeout sets the timeout used when Execute is called without one.
func WithExecTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.execTimeout = d
		}
	}
}

// NewManager creates a manager driving engine.
func NewManager(engine Engine, opts ...Option) *Manager {
	m := &Manager{
		engine:      engine,
		images:      ImageSource{Registry: DefaultRegistry},
		policy:      DefaultPolicy(),
		activity:    NewActivityRegistry(),
		log:         zerolog.Nop(),
		now:         time.Now,
		execTimeout: defaultExecTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Images returns the configured image source.
func (m *Manager) Images() ImageSource {
	return m.images
}

// Ping verifies the container runtime is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.engine.Ping(ctx); err != nil {
		return classify("ping", "container runtime is not reachable", err)
	}
	return nil
}

// LastActivity returns the recorded activity instant for a sandbox.
func (m *Manager) LastActivity(id string) (time.Time, bool) {
	return m.activity.Last(id)
}

// Create returns a running sandbox for projectID, creating one if the
// project has none. Concurrent calls for one project share a single
// creation.
func (m *Manager) Create(ctx context.Context, version Version, projectID string, ports PortMap) (string, error) {
	version, err := ParseVersion(string(version))
	if err != nil {
		return "", err
	}
	if !projectIDPattern.MatchString(projectID) {
		return "", Invalid("invalid project_id %q: use letters, digits, '-', '_' or '.'", projectID)
	}

	v, err, _ := m.creates.Do(projectID, func() (any, error) {
		existing, err := m.lookup(ctx, projectID)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return existing.ID, nil
		}
		return m.create(ctx, version, projectID, ports)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) create(ctx context.Context, version Version, projectID string, ports PortMap) (string, error) {
	ref := m.images.Ref(version)
	if err := m.ensureImage(ctx, ref); err != nil {
		m.record(ctx, storage.Event{Kind: storage.EventCreateFailed, ProjectID: projectID, Version: string(version), Detail: err.Error()})
		return "", err
	}

	name := fmt.Sprintf("dotnet%s-%s-%s", version, projectID, uuid.NewString()[:8])
	spec := ContainerSpec{
		Image: ref,
		Name:  name,
		Labels: map[string]string{
			LabelManagedBy: ManagedBy,
			LabelProjectID: projectID,
			LabelVersion:   string(version),
			LabelCreatedAt: strconv.FormatInt(m.now().Unix(), 10),
		},
		WorkingDir: Workdir,
		Policy:     m.policy,
		Ports:      ports,
	}

	id, err := m.engine.RunContainer(ctx, spec)
	if err != nil {
		// The engine may have created the container before start failed.
		m.removeOrphan(ctx, name)
		err = m.creationError(name, projectID, ports, err)
		m.record(ctx, storage.Event{Kind: storage.EventCreateFailed, ProjectID: projectID, Version: string(version), Detail: err.Error()})
		return "", err
	}

	m.activity.Touch(id, m.now())
	m.metrics.SandboxCreated(string(version))
	m.metrics.SetActive(m.activity.Len())
	m.record(ctx, storage.Event{Kind: storage.EventCreated, SandboxID: id, ProjectID: projectID, Version: string(version)})
	m.log.Info().Str("container_id", shortID(id)).Str("name", name).Str("image", ref).Msg("sandbox created")
	return id, nil
}

func (m *Manager) ensureImage(ctx context.Context, ref string) error {
	ok, err := m.engine.ImageExists(ctx, ref)
	if err != nil {
		return classify("ensure_image", "checking image "+ref, err)
	}
	if ok {
		return nil
	}
	if m.images.IsLocal() {
		return newError(KindImage, "ensure_image",
			fmt.Sprintf("sandbox image %q not found locally", ref), nil,
			"Build it with: cd docker && ./build-images.sh",
			"Or unset DOTBOX_SANDBOX_REGISTRY to pull images from the registry")
	}

	m.log.Info().Str("image", ref).Msg("sandbox image not found locally, pulling")
	if err := m.engine.PullImage(ctx, ref); err != nil {
		if errors.Is(err, ErrUnavailable) {
			return classify("pull_image", "pulling image "+ref, err)
		}
		return newError(KindImage, "pull_image",
			fmt.Sprintf("failed to pull sandbox image %q", ref), err,
			"Ensure Docker is running and you have internet access",
			"Set DOTBOX_SANDBOX_REGISTRY=local to use locally built images")
	}
	m.log.Info().Str("image", ref).Msg("pulled sandbox image")
	return nil
}

// removeOrphan force-removes a container left behind by a failed start.
func (m *Manager) removeOrphan(ctx context.Context, name string) {
	ctx = context.WithoutCancel(ctx)
	id, err := m.engine.ContainerIDByName(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			m.log.Warn().Err(err).Str("name", name).Msg("looking up orphaned container")
		}
		return
	}
	if err := m.engine.RemoveContainer(ctx, id, true); err != nil {
		m.log.Warn().Err(err).Str("container_id", shortID(id)).Msg("removing orphaned container")
		return
	}
	m.metrics.SandboxRemoved(metrics.ReasonOrphan)
	m.log.Debug().Str("name", name).Msg("removed orphaned container")
}

func (m *Manager) creationError(name, projectID string, ports PortMap, err error) error {
	if IsPortConflict(err) {
		auto := ""
		for i, cp := range ports.ContainerPorts() {
			if i > 0 {
				auto += ", "
			}
			auto += fmt.Sprintf("'%d': 0", cp)
		}
		return newError(KindPortConflict, "create",
			"port conflict: one or more requested host ports are already in use", err,
			fmt.Sprintf("Use auto-assigned ports instead: dotnet_start_container(project_id='%s', ports={%s})", projectID, auto),
			"Check which containers are using the port: dotnet_list_containers()",
			"Stop the conflicting container if no longer needed",
			"Use different host ports that are not occupied")
	}
	return classify("create", "failed to create container "+name, err)
}

// StartResult describes the sandbox returned by Start.
type StartResult struct {
	Info
	Existing bool `json:"already_running" yaml:"already_running"`
}

// Start is Create for callers that want the sandbox description. A blank
// projectID is replaced by a generated one.
func (m *Manager) Start(ctx context.Context, version Version, projectID string, ports PortMap) (StartResult, error) {
	version, err := ParseVersion(string(version))
	if err != nil {
		return StartResult{}, err
	}
	if projectID == "" {
		projectID = fmt.Sprintf("dotnet%s-proj-%s", version, uuid.NewString()[:6])
	}
	if existing, err := m.lookup(ctx, projectID); err != nil {
		return StartResult{}, err
	} else if existing != nil {
		return StartResult{Info: m.info(*existing), Existing: true}, nil
	}

	id, err := m.Create(ctx, version, projectID, ports)
	if err != nil {
		return StartResult{}, err
	}

	// Auto-assigned host ports are only known once the container runs.
	c, err := m.lookup(ctx, projectID)
	if err != nil || c == nil || c.ID != id {
		return StartResult{Info: Info{
			ID:        id,
			ProjectID: projectID,
			Version:   string(version),
			Status:    "running",
			Ports:     map[string]string{},
		}}, nil
	}
	return StartResult{Info: m.info(*c)}, nil
}

// Execute runs argv in a sandbox. The runtime returns one combined output
// stream: it lands in Stdout on exit code zero and in Stderr otherwise.
// A non-zero exit is not an error.
func (m *Manager) Execute(ctx context.Context, id string, argv []string, timeout time.Duration) (ExecResult, error) {
	if len(argv) == 0 {
		return ExecResult{}, Invalid("command must not be empty")
	}
	if timeout <= 0 {
		timeout = m.execTimeout
	}

	m.activity.Touch(id, m.now())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	out, code, err := m.engine.Exec(ctx, id, argv)
	m.metrics.ObserveExec(time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			m.activity.Forget(id)
			m.metrics.SetActive(m.activity.Len())
			return ExecResult{}, notFound(id, err)
		case errors.Is(err, context.DeadlineExceeded):
			return ExecResult{}, newError(KindTimeout, "exec",
				fmt.Sprintf("command timed out after %s", timeout), err,
				"Increase the timeout",
				"Run long-lived processes with dotnet_run_background")
		}
		return ExecResult{}, classify("exec", "command execution failed in sandbox "+shortID(id), err)
	}
	return routeOutput(out, code), nil
}

func routeOutput(out []byte, code int) ExecResult {
	if code == 0 {
		return ExecResult{Stdout: string(out), ExitCode: 0}
	}
	return ExecResult{Stderr: string(out), ExitCode: code}
}

// Stop stops and removes a sandbox. It never fails: a missing sandbox
// yields StopNotFound and other runtime errors are logged and yield
// StopFailed. The activity record is always dropped.
func (m *Manager) Stop(ctx context.Context, id string) StopOutcome {
	return m.teardown(ctx, id, "", metrics.ReasonStopped, storage.EventStopped)
}

// StopProject stops the running sandbox of a project. It returns the
// sandbox id, or "" when the project has none.
func (m *Manager) StopProject(ctx context.Context, projectID string) (string, StopOutcome, error) {
	c, err := m.lookup(ctx, projectID)
	if err != nil {
		return "", StopFailed, err
	}
	if c == nil {
		return "", StopNotFound, nil
	}
	return c.ID, m.teardown(ctx, c.ID, projectID, metrics.ReasonStopped, storage.EventStopped), nil
}

func (m *Manager) teardown(ctx context.Context, id, projectID, reason string, kind storage.EventKind) StopOutcome {
	defer func() {
		m.activity.Forget(id)
		m.metrics.SetActive(m.activity.Len())
	}()

	err := m.engine.StopContainer(ctx, id, m.policy.StopGrace)
	if err == nil {
		err = m.engine.RemoveContainer(ctx, id, false)
	}
	switch {
	case err == nil:
		m.metrics.SandboxRemoved(reason)
		m.record(ctx, storage.Event{Kind: kind, SandboxID: id, ProjectID: projectID, Detail: reason})
		m.log.Info().Str("container_id", shortID(id)).Str("reason", reason).Msg("sandbox removed")
		return StopRemoved
	case errors.Is(err, ErrNotFound):
		return StopNotFound
	default:
		m.log.Warn().Err(err).Str("container_id", shortID(id)).Msg("failed to stop sandbox")
		return StopFailed
	}
}

// List returns every owned container, derived from the runtime.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	containers, err := m.engine.ListContainers(ctx, ownerLabels(), true)
	if err != nil {
		return nil, classify("list", "listing sandboxes", err)
	}
	out := make([]Info, 0, len(containers))
	for _, c := range containers {
		out = append(out, m.info(c))
	}
	return out, nil
}

// FindByProjectID returns the id of the running sandbox for projectID.
func (m *Manager) FindByProjectID(ctx context.Context, projectID string) (string, bool, error) {
	c, err := m.lookup(ctx, projectID)
	if err != nil || c == nil {
		return "", false, err
	}
	return c.ID, true, nil
}

func (m *Manager) lookup(ctx context.Context, projectID string) (*Container, error) {
	labels := ownerLabels()
	labels[LabelProjectID] = projectID
	containers, err := m.engine.ListContainers(ctx, labels, false)
	if err != nil {
		return nil, classify("find", "looking up project "+projectID, err)
	}
	if len(containers) == 0 {
		return nil, nil
	}
	return &containers[0], nil
}

// CleanupAll removes every owned container and returns how many were
// removed. Per-container failures are logged and skipped.
func (m *Manager) CleanupAll(ctx context.Context) (int, error) {
	containers, err := m.engine.ListContainers(ctx, ownerLabels(), true)
	if err != nil {
		return 0, classify("cleanup", "listing sandboxes", err)
	}

	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, c := range containers {
		g.Go(func() error {
			if m.teardown(gctx, c.ID, c.Labels[LabelProjectID], metrics.ReasonShutdown, storage.EventStopped) == StopRemoved {
				removed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(removed.Load()), nil
}

// LazyCleanup removes owned containers idle for longer than idleTimeout.
// Idle time comes from the activity record, or the created-at label when
// there is none. Containers with neither are never evicted.
func (m *Manager) LazyCleanup(ctx context.Context, idleTimeout time.Duration) (int, error) {
	containers, err := m.engine.ListContainers(ctx, ownerLabels(), true)
	if err != nil {
		return 0, classify("lazy_cleanup", "listing sandboxes", err)
	}

	now := m.now()
	count := 0
	for _, c := range containers {
		idle, ok := m.idleFor(c, now)
		if !ok || idle <= idleTimeout {
			continue
		}
		if m.teardown(ctx, c.ID, c.Labels[LabelProjectID], metrics.ReasonReaped, storage.EventReaped) == StopRemoved {
			count++
			m.log.Info().Str("container_id", shortID(c.ID)).Dur("idle", idle).Msg("reaped idle sandbox")
		}
	}
	return count, nil
}

// maxCreatedAt bounds plausible created-at labels (year 2200, in seconds).
const maxCreatedAt = 7258118400

func (m *Manager) idleFor(c Container, now time.Time) (time.Duration, bool) {
	if last, ok := m.activity.Last(c.ID); ok {
		return now.Sub(last), true
	}
	raw, ok := c.Labels[LabelCreatedAt]
	if !ok {
		return 0, false
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 || secs > maxCreatedAt {
		return 0, false
	}
	created := time.Unix(0, int64(secs*float64(time.Second)))
	return now.Sub(created), true
}

// Logs returns the tail of a sandbox's log, optionally limited to the
// last since.
func (m *Manager) Logs(ctx context.Context, id string, tail int, since time.Duration) (string, error) {
	rc, err := m.engine.Logs(ctx, id, LogOptions{Tail: tail, Since: since})
	if err != nil {
		return "", m.lookupError("logs", id, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return "", classify("logs", "reading logs", err)
	}
	return string(b), nil
}

// FollowLogs streams a sandbox's log until ctx is done or the sandbox exits.
func (m *Manager) FollowLogs(ctx context.Context, id string, tail int) (io.ReadCloser, error) {
	rc, err := m.engine.Logs(ctx, id, LogOptions{Tail: tail, Follow: true})
	if err != nil {
		return nil, m.lookupError("logs", id, err)
	}
	return rc, nil
}

func (m *Manager) lookupError(op, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return notFound(id, err)
	}
	return classify(op, op+" failed for sandbox "+shortID(id), err)
}

func (m *Manager) record(ctx context.Context, e storage.Event) {
	if m.journal == nil {
		return
	}
	e.At = m.now()
	if err := m.journal.RecordEvent(context.WithoutCancel(ctx), &e); err != nil {
		m.log.Warn().Err(err).Str("event", string(e.Kind)).Msg("recording sandbox event")
	}
}

func (m *Manager) info(c Container) Info {
	project := c.Labels[LabelProjectID]
	if project == "" {
		project = "unknown"
	}
	ports := c.Ports
	if ports == nil {
		ports = map[string]string{}
	}
	return Info{
		ID:        c.ID,
		Name:      c.Name,
		ProjectID: project,
		Version:   c.Labels[LabelVersion],
		Status:    c.State,
		Ports:     ports,
	}
}

func ownerLabels() map[string]string {
	return map[string]string{LabelManagedBy: ManagedBy}
}

func notFound(id string, cause error) error {
	e := NotFound(shortID(id))
	e.Cause = cause
	return e
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
