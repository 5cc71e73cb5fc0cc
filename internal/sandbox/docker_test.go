package sandbox_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

const testCsproj = `<Project Sdk="Microsoft.NET.Sdk">
  <PropertyGroup>
    <OutputType>Exe</OutputType>
    <TargetFramework>net8.0</TargetFramework>
    <ImplicitUsings>enable</ImplicitUsings>
  </PropertyGroup>
</Project>
`

// dockerManager returns a manager backed by the local Docker daemon, or
// skips unless DOTBOX_DOCKER_TESTS=1.
func dockerManager(t *testing.T) *sandbox.Manager {
	t.Helper()
	if os.Getenv("DOTBOX_DOCKER_TESTS") != "1" {
		t.Skip("set DOTBOX_DOCKER_TESTS=1 to run Docker integration tests")
	}
	engine, err := sandbox.NewDockerEngine()
	if err != nil {
		t.Skipf("docker client: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	registry := os.Getenv("DOTBOX_SANDBOX_REGISTRY")
	if registry == "" {
		registry = sandbox.DefaultRegistry
	}
	m := sandbox.NewManager(engine, sandbox.WithImageSource(sandbox.ImageSource{Registry: registry}))
	if err := m.Ping(context.Background()); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}
	return m
}

func TestDockerBuildAndRun(t *testing.T) {
	m := dockerManager(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	id, err := m.Create(ctx, sandbox.V8, "it-e2e", nil)
	require.NoError(t, err)
	defer m.Stop(context.Background(), id)

	require.NoError(t, m.WriteFile(ctx, id, "/workspace/Hello/Hello.csproj", []byte(testCsproj)))
	require.NoError(t, m.WriteFile(ctx, id, "/workspace/Hello/Program.cs", []byte(`Console.WriteLine("Hello from sandbox");`)))

	build, err := m.Execute(ctx, id, []string{"dotnet", "build", "/workspace/Hello"}, 2*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 0, build.ExitCode, build.Stderr)

	run, err := m.Execute(ctx, id, []string{"dotnet", "run", "--no-build", "--project", "/workspace/Hello"}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, run.ExitCode)
	assert.Contains(t, run.Stdout, "Hello from sandbox")
	assert.Empty(t, run.Stderr)

	assert.Equal(t, sandbox.StopRemoved, m.Stop(ctx, id))
	_, ok, err := m.FindByProjectID(ctx, "it-e2e")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDockerFileRoundTrip(t *testing.T) {
	m := dockerManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx, sandbox.V8, "it-files", nil)
	require.NoError(t, err)
	defer m.Stop(ctx, id)

	for p, content := range map[string][]byte{
		"/workspace/test.txt":  []byte("Hello from test file!"),
		"/workspace/bin/x.bin": {0x00, 0x01, 0x02},
	} {
		require.NoError(t, m.WriteFile(ctx, id, p, content))
		got, err := m.ReadFile(ctx, id, p)
		require.NoError(t, err)
		assert.Equal(t, content, got)
	}

	files, err := m.ListFiles(ctx, id, "/workspace/does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDockerPortConflictLeavesNoOrphan(t *testing.T) {
	m := dockerManager(t)
	ctx := context.Background()

	first, err := m.Create(ctx, sandbox.V8, "it-port-a", sandbox.PortMap{5000: 18080})
	require.NoError(t, err)
	defer m.Stop(ctx, first)

	_, err = m.Create(ctx, sandbox.V8, "it-port-b", sandbox.PortMap{5000: 18080})
	require.Error(t, err)
	assert.True(t, sandbox.IsKind(err, sandbox.KindPortConflict), "got %v", err)

	list, err := m.List(ctx)
	require.NoError(t, err)
	for _, info := range list {
		assert.False(t, strings.HasPrefix(info.Name, "dotnet8-it-port-b-"), "orphan %s left behind", info.Name)
	}
}
