package tools

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

func requireProjectID(req mcp.CallToolRequest) (string, error) {
	id, err := req.RequireString("project_id")
	if err != nil {
		return "", sandbox.Invalid("project_id is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", sandbox.Invalid("project_id is required")
	}
	return id, nil
}

func versionArg(req mcp.CallToolRequest) (sandbox.Version, error) {
	return sandbox.ParseVersion(req.GetString("dotnet_version", string(sandbox.V8)))
}

// commandArg accepts an argv array or a single shell-style string.
func commandArg(req mcp.CallToolRequest, key string) ([]string, error) {
	var argv []string
	switch v := req.GetArguments()[key].(type) {
	case string:
		words, err := shellquote.Split(v)
		if err != nil {
			return nil, sandbox.Invalid("parsing %s: %v", key, err)
		}
		argv = words
	case []any, []string:
		argv = req.GetStringSlice(key, nil)
	}
	if len(argv) == 0 {
		return nil, sandbox.Invalid("%s must be a non-empty list of arguments", key)
	}
	return argv, nil
}

// secondsArg reads a duration given in seconds, bounded to [1, limit].
func secondsArg(req mcp.CallToolRequest, key string, def, limit time.Duration) (time.Duration, error) {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return def, nil
	}
	n := req.GetFloat(key, -1)
	if n < 1 || time.Duration(n*float64(time.Second)) > limit {
		return 0, sandbox.Invalid("%s must be between 1 and %d seconds", key, int(limit.Seconds()))
	}
	return time.Duration(n * float64(time.Second)), nil
}

// workspacePath resolves p against /workspace and rejects anything that
// escapes it.
func workspacePath(p string) (string, error) {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", sandbox.Invalid("path %q must not contain '..'", p)
		}
	}
	resolved := sandbox.ResolvePath(p)
	if resolved != sandbox.Workdir && !strings.HasPrefix(resolved, sandbox.Workdir+"/") {
		return "", sandbox.Invalid("path %q must be within %s", p, sandbox.Workdir)
	}
	return path.Clean(resolved), nil
}

func fullDetail(req mcp.CallToolRequest) bool {
	return req.GetString("detail_level", "concise") == "full"
}

// resolve maps a project id to its running sandbox.
func (t *Toolset) resolve(ctx context.Context, projectID string) (string, error) {
	id, ok, err := t.mgr.FindByProjectID(ctx, projectID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &sandbox.Error{
			Kind:        sandbox.KindNotFound,
			Op:          "lookup",
			Message:     fmt.Sprintf("No running container found for project '%s'", projectID),
			Suggestions: []string{"Start a container first with dotnet_start_container"},
		}
	}
	return id, nil
}
