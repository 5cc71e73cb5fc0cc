package tools

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

func request(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: "test", Arguments: args}}
}

func TestWorkspacePath(t *testing.T) {
	ok := map[string]string{
		"":                    "/workspace",
		"Program.cs":          "/workspace/Program.cs",
		"/workspace":          "/workspace",
		"/workspace/a//b.cs":  "/workspace/a/b.cs",
		"./App/./App.csproj":  "/workspace/App/App.csproj",
		"/workspace/App/obj/": "/workspace/App/obj",
	}
	for in, want := range ok {
		got, err := workspacePath(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"..", "a/../../etc", "/etc/passwd", "/workspaces/x", "/"} {
		_, err := workspacePath(in)
		assert.True(t, sandbox.IsKind(err, sandbox.KindValidation), in)
	}
}

func TestTranslateLocalhost(t *testing.T) {
	tests := []struct {
		in          string
		inContainer bool
		want        string
	}{
		{"http://localhost:8080/health", false, "http://localhost:8080/health"},
		{"http://localhost:8080/health", true, "http://host.docker.internal:8080/health"},
		{"http://127.0.0.1:5000/api?q=1", true, "http://host.docker.internal:5000/api?q=1"},
		{"http://localhost/", true, "http://host.docker.internal/"},
		{"https://example.com/localhost", true, "https://example.com/localhost"},
	}
	for _, tt := range tests {
		got, err := translateLocalhost(tt.in, tt.inContainer)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "localhost:8080", "ftp://localhost/x", "::"} {
		_, err := translateLocalhost(bad, false)
		assert.Error(t, err, bad)
	}
}

func TestCommandArg(t *testing.T) {
	argv, err := commandArg(request(map[string]any{"command": []any{"dotnet", "new", "console"}}), "command")
	require.NoError(t, err)
	assert.Equal(t, []string{"dotnet", "new", "console"}, argv)

	argv, err = commandArg(request(map[string]any{"command": `dotnet run --project "/workspace/My App"`}), "command")
	require.NoError(t, err)
	assert.Equal(t, []string{"dotnet", "run", "--project", "/workspace/My App"}, argv)

	for _, bad := range []any{nil, "", []any{}, `echo "unterminated`, 42} {
		_, err := commandArg(request(map[string]any{"command": bad}), "command")
		assert.True(t, sandbox.IsKind(err, sandbox.KindValidation), "%v", bad)
	}
}

func TestSecondsArg(t *testing.T) {
	d, err := secondsArg(request(map[string]any{}), "timeout", defaultCommandTimeout, maxCommandTimeout)
	require.NoError(t, err)
	assert.Equal(t, defaultCommandTimeout, d)

	d, err = secondsArg(request(map[string]any{"timeout": float64(120)}), "timeout", defaultCommandTimeout, maxCommandTimeout)
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, d)

	for _, bad := range []any{float64(0), float64(-5), float64(301), "soon"} {
		_, err := secondsArg(request(map[string]any{"timeout": bad}), "timeout", defaultCommandTimeout, maxCommandTimeout)
		assert.Error(t, err, "%v", bad)
	}
}

func TestConcise(t *testing.T) {
	short := "a\nb\n"
	assert.Equal(t, short, concise(short, 50))

	var b strings.Builder
	for range 80 {
		b.WriteString("line\n")
	}
	out := concise(b.String(), 50)
	assert.Equal(t, 51, strings.Count(out, "\n"))
	assert.Contains(t, out, "output truncated")
}

func TestErrorResultKeepsKindAndSuggestions(t *testing.T) {
	res := errorResult("Failed to start container", sandbox.NotFound("abc"))
	require.True(t, res.IsError)
	env, err := decodeEnvelope(res)
	require.NoError(t, err)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, string(sandbox.KindNotFound), env.Error.Type)
	assert.Equal(t, "sandbox not found: abc", env.Error.Message)
	assert.NotEmpty(t, env.Error.Suggestions)

	res = errorResult("Failed to start container", errors.New("socket closed"))
	env, err = decodeEnvelope(res)
	require.NoError(t, err)
	assert.Equal(t, TypeInternal, env.Error.Type)
	assert.Equal(t, "Failed to start container", env.Error.Message)
	assert.Equal(t, "socket closed", env.Error.Details)

	res = successResult(map[string]any{"ok": true})
	assert.False(t, res.IsError)
}
