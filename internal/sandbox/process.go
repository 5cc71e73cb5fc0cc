package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
)

// DefaultKillPattern matches the processes started by the dotnet CLI.
const DefaultKillPattern = "dotnet"

// RunBackground starts argv detached inside the sandbox. Its output goes
// to the container's main process streams so it shows up in Logs.
func (m *Manager) RunBackground(ctx context.Context, id string, argv []string) (ExecResult, error) {
	if len(argv) == 0 {
		return ExecResult{}, Invalid("command must not be empty")
	}
	script := fmt.Sprintf("nohup %s </dev/null >/proc/1/fd/1 2>/proc/1/fd/2 &", shellquote.Join(argv...))
	return m.Execute(ctx, id, []string{"sh", "-c", script}, 0)
}

// KillProcesses sends SIGTERM to processes whose command line matches
// pattern. It reports whether any process matched.
func (m *Manager) KillProcesses(ctx context.Context, id, pattern string) (bool, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultKillPattern
	}
	res, err := m.Execute(ctx, id, []string{"pkill", "-f", pattern}, 0)
	if err != nil {
		return false, err
	}
	switch res.ExitCode {
	case 0:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, newError(KindExecution, "kill",
			fmt.Sprintf("pkill exited with code %d", res.ExitCode),
			errors.New(strings.TrimSpace(res.Stderr)))
	}
}
