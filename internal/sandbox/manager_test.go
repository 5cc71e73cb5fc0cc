package sandbox_test

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/dotbox/internal/metrics"
	"github.com/michaelbrown/dotbox/internal/sandbox"
	"github.com/michaelbrown/dotbox/internal/sandbox/sandboxtest"
	"github.com/michaelbrown/dotbox/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type memJournal struct {
	mu     sync.Mutex
	events []storage.Event
}

func (j *memJournal) RecordEvent(_ context.Context, e *storage.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, *e)
	return nil
}

func (j *memJournal) kinds() []storage.EventKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []storage.EventKind
	for _, e := range j.events {
		out = append(out, e.Kind)
	}
	return out
}

func allImages() []string {
	var refs []string
	for _, v := range sandbox.Versions {
		refs = append(refs, sandbox.ImageSource{}.Ref(v))
	}
	return refs
}

func newTestManager(t *testing.T, opts ...sandbox.Option) (*sandbox.Manager, *sandboxtest.Engine, *fakeClock) {
	t.Helper()
	engine := sandboxtest.NewEngine(allImages()...)
	clock := newClock()
	opts = append([]sandbox.Option{sandbox.WithClock(clock.Now)}, opts...)
	return sandbox.NewManager(engine, opts...), engine, clock
}

func TestCreateAppliesLabelsAndLimits(t *testing.T) {
	m, engine, clock := newTestManager(t)

	id, err := m.Create(context.Background(), sandbox.V8, "proj-a", nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, engine.Specs, 1)

	spec := engine.Specs[0]
	assert.Regexp(t, regexp.MustCompile(`^dotnet8-proj-a-[0-9a-f]{8}$`), spec.Name)
	assert.Equal(t, sandbox.ImageSource{}.Ref(sandbox.V8), spec.Image)
	assert.Equal(t, sandbox.Workdir, spec.WorkingDir)
	assert.Equal(t, "512m", spec.Policy.MaxMemory)
	assert.Equal(t, int64(100000), spec.Policy.CPUPeriod)
	assert.Equal(t, int64(50000), spec.Policy.CPUQuota)
	assert.Equal(t, map[string]string{
		sandbox.LabelManagedBy: sandbox.ManagedBy,
		sandbox.LabelProjectID: "proj-a",
		sandbox.LabelVersion:   "8",
		sandbox.LabelCreatedAt: strconv.FormatInt(clock.Now().Unix(), 10),
	}, spec.Labels)

	last, ok := m.LastActivity(id)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), last)
}

func TestCreateIsIdempotentPerProject(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, sandbox.V8, "proj-a", nil)
	require.NoError(t, err)
	second, err := m.Create(ctx, sandbox.V8, "proj-a", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, engine.RunCalls)
	assert.Equal(t, 1, engine.Len())
}

func TestCreateConcurrentSameProject(t *testing.T) {
	m, engine, _ := newTestManager(t)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = m.Create(context.Background(), sandbox.V9, "shared", nil)
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, engine.Len())
}

func TestCreateAfterStopYieldsNewID(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, sandbox.V8, "proj-a", nil)
	require.NoError(t, err)
	require.Equal(t, sandbox.StopRemoved, m.Stop(ctx, first))

	second, err := m.Create(ctx, sandbox.V8, "proj-a", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, sandbox.V8, "bad project/id", nil)
	assert.True(t, sandbox.IsKind(err, sandbox.KindValidation))

	_, err = m.Create(ctx, "6", "proj", nil)
	assert.True(t, sandbox.IsKind(err, sandbox.KindValidation))

	assert.Zero(t, engine.RunCalls)
}

func TestCreateLocalModeMissingImage(t *testing.T) {
	engine := sandboxtest.NewEngine()
	m := sandbox.NewManager(engine, sandbox.WithImageSource(sandbox.ImageSource{Registry: sandbox.LocalRegistry}))

	_, err := m.Create(context.Background(), sandbox.V8, "proj", nil)
	require.Error(t, err)
	assert.True(t, sandbox.IsKind(err, sandbox.KindImage))
	assert.Contains(t, err.Error(), "dotnet-sandbox:8")
	assert.NotEmpty(t, sandbox.SuggestionsOf(err))
	assert.Zero(t, engine.Pulls, "local mode must never pull")
}

func TestCreatePullsMissingImage(t *testing.T) {
	engine := sandboxtest.NewEngine()
	m := sandbox.NewManager(engine)

	_, err := m.Create(context.Background(), sandbox.V9, "proj", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.Pulls)
}

func TestCreatePullFailure(t *testing.T) {
	engine := sandboxtest.NewEngine()
	engine.PullErr = errors.New("manifest unknown")
	journal := &memJournal{}
	m := sandbox.NewManager(engine, sandbox.WithJournal(journal))

	_, err := m.Create(context.Background(), sandbox.V9, "proj", nil)
	require.Error(t, err)
	assert.True(t, sandbox.IsKind(err, sandbox.KindImage))
	assert.Zero(t, engine.RunCalls)
	assert.Equal(t, []storage.EventKind{storage.EventCreateFailed}, journal.kinds())
}

func TestCreatePortConflictRemovesOrphan(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Create(ctx, sandbox.V8, "proj-a", sandbox.PortMap{5000: 8080})
	require.NoError(t, err)

	_, err = m.Create(ctx, sandbox.V8, "proj-b", sandbox.PortMap{5000: 8080})
	require.Error(t, err)
	assert.True(t, sandbox.IsKind(err, sandbox.KindPortConflict), "got %v", err)

	suggestions := sandbox.SuggestionsOf(err)
	require.NotEmpty(t, suggestions)
	assert.Contains(t, suggestions[0], "'5000': 0")

	for _, name := range engine.ContainerNames() {
		assert.False(t, strings.HasPrefix(name, "dotnet8-proj-b-"), "orphan %s left behind", name)
	}
	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "proj-a", list[0].ProjectID)
}

func TestCreateStartFailureRemovesOrphan(t *testing.T) {
	m, engine, _ := newTestManager(t)
	engine.StartErr = errors.New("OCI runtime create failed")

	_, err := m.Create(context.Background(), sandbox.V8, "proj", nil)
	require.Error(t, err)
	assert.True(t, sandbox.IsKind(err, sandbox.KindExecution))
	assert.Contains(t, err.Error(), "OCI runtime create failed")
	assert.Zero(t, engine.Len())
}

func TestCreateOrphanRemovalFailureKeepsOriginalError(t *testing.T) {
	m, engine, _ := newTestManager(t)
	engine.StartErr = errors.New("port is already allocated")
	engine.RemoveErr = errors.New("device busy")

	_, err := m.Create(context.Background(), sandbox.V8, "proj", sandbox.PortMap{80: 8080})
	require.Error(t, err)
	assert.True(t, sandbox.IsKind(err, sandbox.KindPortConflict))
	assert.NotContains(t, err.Error(), "device busy")
}

func TestCreateUnavailable(t *testing.T) {
	m, engine, _ := newTestManager(t)
	engine.ListErr = sandbox.ErrUnavailable

	_, err := m.Create(context.Background(), sandbox.V8, "proj", nil)
	assert.True(t, sandbox.IsKind(err, sandbox.KindUnavailable))
}

func TestPing(t *testing.T) {
	m, engine, _ := newTestManager(t)
	require.NoError(t, m.Ping(context.Background()))

	engine.PingErr = errors.New("dial unix /var/run/docker.sock: connect: no such file")
	err := m.Ping(context.Background())
	assert.True(t, sandbox.IsKind(err, sandbox.KindUnavailable))
}

func TestStartGeneratesProjectID(t *testing.T) {
	m, _, _ := newTestManager(t)

	res, err := m.Start(context.Background(), sandbox.V9, "", sandbox.PortMap{5000: 0})
	require.NoError(t, err)
	assert.Regexp(t, `^dotnet9-proj-[0-9a-f]{6}$`, res.ProjectID)
	assert.False(t, res.Existing)
	assert.Equal(t, "9", res.Version)
	assert.NotEmpty(t, res.Ports["5000/tcp"], "auto-assigned port should be reported")
}

func TestStartReturnsExisting(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Start(ctx, sandbox.V8, "web", sandbox.PortMap{5000: 8081})
	require.NoError(t, err)
	second, err := m.Start(ctx, sandbox.V8, "web", nil)
	require.NoError(t, err)

	assert.True(t, second.Existing)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "8081", second.Ports["5000/tcp"])
	assert.Equal(t, 1, engine.RunCalls)
}

func TestExecuteRoutesOutput(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()
	id, err := m.Create(ctx, sandbox.V8, "proj", nil)
	require.NoError(t, err)

	res, err := m.Execute(ctx, id, []string{"echo", "hello"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, sandbox.ExecResult{Stdout: "hello\n"}, res)

	engine.ExecHook = func(_ context.Context, _ string, argv []string) ([]byte, int, bool, error) {
		if argv[0] == "warn" {
			return []byte("warning on stderr\n"), 0, true, nil
		}
		if argv[0] == "fail" {
			return []byte("partial stdout\nthen failure\n"), 3, true, nil
		}
		return nil, 0, false, nil
	}

	res, err = m.Execute(ctx, id, []string{"warn"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "warning on stderr\n", res.Stdout)
	assert.Empty(t, res.Stderr)

	res, err = m.Execute(ctx, id, []string{"fail"}, time.Second)
	require.NoError(t, err, "a non-zero exit is data, not an error")
	assert.Empty(t, res.Stdout)
	assert.Equal(t, "partial stdout\nthen failure\n", res.Stderr)
	assert.Equal(t, 3, res.ExitCode)
}

func TestExecuteNotFound(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.Execute(context.Background(), "missing", []string{"echo"}, time.Second)
	require.Error(t, err)
	assert.True(t, sandbox.IsKind(err, sandbox.KindNotFound))
	assert.ErrorIs(t, err, sandbox.ErrNotFound)
}

func TestExecuteOnMissingSandboxLeavesNoActivity(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Execute(ctx, "ghost", []string{"true"}, time.Second)
	require.True(t, sandbox.IsKind(err, sandbox.KindNotFound), "got %v", err)
	_, ok := m.LastActivity("ghost")
	assert.False(t, ok)

	_, err = m.ReadFile(ctx, "ghost2", "/workspace/x")
	require.Error(t, err)
	_, ok = m.LastActivity("ghost2")
	assert.False(t, ok)

	_, err = m.ListFiles(ctx, "ghost3", "/workspace")
	require.Error(t, err)
	_, ok = m.LastActivity("ghost3")
	assert.False(t, ok)
}

func TestExecuteEmptyCommand(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.Execute(context.Background(), "any", nil, time.Second)
	assert.True(t, sandbox.IsKind(err, sandbox.KindValidation))
}

func TestExecuteTimeoutKeepsSandbox(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()
	id, err := m.Create(ctx, sandbox.V8, "proj", nil)
	require.NoError(t, err)

	engine.ExecHook = func(ctx context.Context, _ string, _ []string) ([]byte, int, bool, error) {
		<-ctx.Done()
		return nil, 0, true, ctx.Err()
	}

	_, err = m.Execute(ctx, id, []string{"sleep", "60"}, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, sandbox.IsKind(err, sandbox.KindTimeout), "got %v", err)

	found, ok, err := m.FindByProjectID(ctx, "proj")
	require.NoError(t, err)
	assert.True(t, ok, "timeout must not destroy the sandbox")
	assert.Equal(t, id, found)
}

func TestExecuteRefreshesActivityBeforeDispatch(t *testing.T) {
	m, engine, clock := newTestManager(t)
	ctx := context.Background()
	id, err := m.Create(ctx, sandbox.V8, "proj", nil)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	var seen time.Time
	engine.ExecHook = func(_ context.Context, id string, _ []string) ([]byte, int, bool, error) {
		seen, _ = m.LastActivity(id)
		return nil, 0, true, nil
	}

	_, err = m.Execute(ctx, id, []string{"true"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), seen)
}

func TestStopIsIdempotent(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()
	id, err := m.Create(ctx, sandbox.V8, "proj", nil)
	require.NoError(t, err)

	assert.Equal(t, sandbox.StopRemoved, m.Stop(ctx, id))
	assert.Equal(t, sandbox.StopNotFound, m.Stop(ctx, id))
	assert.Equal(t, sandbox.StopNotFound, m.Stop(ctx, "never-created"))

	_, tracked := m.LastActivity(id)
	assert.False(t, tracked)
	assert.Zero(t, engine.Len())

	_, ok, err := m.FindByProjectID(ctx, "proj")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStopFailureStillForgetsActivity(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()
	id, err := m.Create(ctx, sandbox.V8, "proj", nil)
	require.NoError(t, err)

	engine.StopErr = errors.New("daemon hiccup")
	assert.Equal(t, sandbox.StopFailed, m.Stop(ctx, id))
	_, tracked := m.LastActivity(id)
	assert.False(t, tracked)
}

func TestStopProject(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	id, outcome, err := m.StopProject(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Equal(t, sandbox.StopNotFound, outcome)

	created, err := m.Create(ctx, sandbox.V8, "proj", nil)
	require.NoError(t, err)
	id, outcome, err = m.StopProject(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, created, id)
	assert.Equal(t, sandbox.StopRemoved, outcome)
}

func TestListDerivesFromRuntime(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, sandbox.V9, "api", sandbox.PortMap{5000: 0})
	require.NoError(t, err)
	engine.AddContainer("stray", map[string]string{sandbox.LabelManagedBy: sandbox.ManagedBy})
	engine.AddContainer("foreign", map[string]string{"managed-by": "someone-else"})

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "api", list[0].ProjectID)
	assert.Equal(t, "9", list[0].Version)
	assert.Equal(t, "running", list[0].Status)
	assert.NotEmpty(t, list[0].Ports["5000/tcp"])

	assert.Equal(t, "unknown", list[1].ProjectID)
	assert.NotNil(t, list[1].Ports)
}

func TestFindByProjectID(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, ok, err := m.FindByProjectID(ctx, "proj")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := m.Create(ctx, sandbox.V8, "proj", nil)
	require.NoError(t, err)
	found, ok, err := m.FindByProjectID(ctx, "proj")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, found)
}

func TestCleanupAll(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()

	var ids []string
	for _, p := range []string{"a", "b", "c"} {
		id, err := m.Create(ctx, sandbox.V8, p, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	engine.AddContainer("foreign", map[string]string{"app": "db"})

	n, err := m.CleanupAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, engine.Len())
	assert.Equal(t, []string{"foreign"}, engine.ContainerNames())
	for _, id := range ids {
		_, tracked := m.LastActivity(id)
		assert.False(t, tracked)
	}
}

func TestCleanupAllContinuesPastFailures(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()
	for _, p := range []string{"a", "b"} {
		_, err := m.Create(ctx, sandbox.V8, p, nil)
		require.NoError(t, err)
	}

	engine.StopErr = errors.New("stuck")
	n, err := m.CleanupAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, engine.Len())
}

func TestLazyCleanupThreshold(t *testing.T) {
	m, engine, clock := newTestManager(t)
	ctx := context.Background()
	idle := 30 * time.Minute

	old, err := m.Create(ctx, sandbox.V8, "old", nil)
	require.NoError(t, err)
	clock.Advance(2 * time.Second)
	fresh, err := m.Create(ctx, sandbox.V8, "fresh", nil)
	require.NoError(t, err)

	// old is idle+1s, fresh is idle-1s.
	clock.Advance(idle - time.Second)

	n, err := m.LazyCleanup(ctx, idle)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, tracked := m.LastActivity(old)
	assert.False(t, tracked)
	_, tracked = m.LastActivity(fresh)
	assert.True(t, tracked)
	assert.Equal(t, 1, engine.Len())

	_, ok, err := m.FindByProjectID(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLazyCleanupActivityResetsIdle(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()
	idle := 30 * time.Minute

	id, err := m.Create(ctx, sandbox.V8, "busy", nil)
	require.NoError(t, err)
	clock.Advance(25 * time.Minute)
	_, err = m.Execute(ctx, id, []string{"echo", "hi"}, time.Second)
	require.NoError(t, err)
	clock.Advance(25 * time.Minute)

	n, err := m.LazyCleanup(ctx, idle)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLazyCleanupFallbackAging(t *testing.T) {
	m, engine, clock := newTestManager(t)
	ctx := context.Background()
	idle := 30 * time.Minute

	owned := func(extra map[string]string) map[string]string {
		labels := map[string]string{sandbox.LabelManagedBy: sandbox.ManagedBy}
		for k, v := range extra {
			labels[k] = v
		}
		return labels
	}
	stale := strconv.FormatInt(clock.Now().Add(-time.Hour).Unix(), 10)
	recent := strconv.FormatInt(clock.Now().Add(-time.Minute).Unix(), 10)

	engine.AddContainer("stale", owned(map[string]string{sandbox.LabelCreatedAt: stale}))
	engine.AddContainer("recent", owned(map[string]string{sandbox.LabelCreatedAt: recent}))
	engine.AddContainer("unlabeled", owned(nil))
	engine.AddContainer("garbage", owned(map[string]string{sandbox.LabelCreatedAt: "yesterday"}))
	engine.AddContainer("nan", owned(map[string]string{sandbox.LabelCreatedAt: "NaN"}))
	engine.AddContainer("inf", owned(map[string]string{sandbox.LabelCreatedAt: "Inf"}))
	engine.AddContainer("neginf", owned(map[string]string{sandbox.LabelCreatedAt: "-Inf"}))
	engine.AddContainer("negative", owned(map[string]string{sandbox.LabelCreatedAt: "-5"}))
	engine.AddContainer("far-future", owned(map[string]string{sandbox.LabelCreatedAt: "1e300"}))

	unagable := []string{"unlabeled", "garbage", "nan", "inf", "neginf", "negative", "far-future"}

	n, err := m.LazyCleanup(ctx, idle)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.ElementsMatch(t, append([]string{"recent"}, unagable...), engine.ContainerNames())

	// An un-agable container survives no matter how far the clock moves.
	clock.Advance(1000 * time.Hour)
	_, err = m.LazyCleanup(ctx, idle)
	require.NoError(t, err)
	assert.ElementsMatch(t, unagable, engine.ContainerNames())
}

func TestLazyCleanupListFailure(t *testing.T) {
	m, engine, _ := newTestManager(t)
	engine.ListErr = errors.New("daemon busy")

	n, err := m.LazyCleanup(context.Background(), time.Minute)
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestLogs(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()
	id, err := m.Create(ctx, sandbox.V8, "proj", nil)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		engine.AppendLog(id, "line "+strconv.Itoa(i))
	}
	logs, err := m.Logs(ctx, id, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "line 4\nline 5\n", logs)

	_, err = m.Logs(ctx, "missing", 10, 0)
	assert.True(t, sandbox.IsKind(err, sandbox.KindNotFound))
}

func TestFollowLogs(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, err := m.Create(ctx, sandbox.V8, "proj", nil)
	require.NoError(t, err)
	engine.AppendLog(id, "Now listening on: http://[::]:5000")

	rc, err := m.FollowLogs(ctx, id, 10)
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, 64)
	n, err := rc.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "Now listening")
}

func TestRunBackgroundAndKill(t *testing.T) {
	m, engine, _ := newTestManager(t)
	ctx := context.Background()
	id, err := m.Create(ctx, sandbox.V8, "web", nil)
	require.NoError(t, err)

	res, err := m.RunBackground(ctx, id, []string{"dotnet", "run", "--project", "/workspace/My App"})
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)

	procs := engine.Processes(id)
	require.Len(t, procs, 1)
	assert.Contains(t, procs[0], `'/workspace/My App'`)
	assert.Contains(t, procs[0], ">/proc/1/fd/1 2>/proc/1/fd/2 &")

	killed, err := m.KillProcesses(ctx, id, "")
	require.NoError(t, err)
	assert.True(t, killed)

	killed, err = m.KillProcesses(ctx, id, "dotnet")
	require.NoError(t, err)
	assert.False(t, killed)
}

func TestJournalAndMetrics(t *testing.T) {
	journal := &memJournal{}
	reg := prometheus.NewRegistry()
	m, _, clock := newTestManager(t, sandbox.WithJournal(journal), sandbox.WithMetrics(metrics.New(reg)))
	ctx := context.Background()

	a, err := m.Create(ctx, sandbox.V8, "a", nil)
	require.NoError(t, err)
	_, err = m.Create(ctx, sandbox.V8, "b", nil)
	require.NoError(t, err)
	m.Stop(ctx, a)
	clock.Advance(time.Hour)
	_, err = m.LazyCleanup(ctx, 30*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, []storage.EventKind{
		storage.EventCreated, storage.EventCreated, storage.EventStopped, storage.EventReaped,
	}, journal.kinds())
	assert.Equal(t, "b", journal.events[3].ProjectID)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
