package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/dotbox/internal/dotnet"
	"github.com/michaelbrown/dotbox/internal/sandbox"
)

func (t *Toolset) handleExecuteSnippet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil || strings.TrimSpace(code) == "" {
		return errorResult("Invalid input parameters", sandbox.Invalid("code is required")), nil
	}
	if len(code) > 50000 {
		return errorResult("Invalid input parameters", sandbox.Invalid("code exceeds 50000 characters")), nil
	}
	version, err := versionArg(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	packages := req.GetStringSlice("packages", nil)
	if len(packages) > 20 {
		return errorResult("Invalid input parameters", sandbox.Invalid("at most 20 packages are allowed")), nil
	}

	res, err := t.exec.RunSnippet(ctx, code, version, packages, t.snippetTimeout)
	if err != nil {
		return errorResult("Snippet execution failed", err), nil
	}

	if !res.Success {
		exitCode := res.ExitCode
		if res.Phase == dotnet.PhaseBuild {
			return errResult(&ErrorBody{
				Type:        TypeBuildFailed,
				Message:     "Build failed",
				Details:     res.Stderr,
				BuildErrors: res.BuildErrors,
				ExitCode:    &exitCode,
				Suggestions: []string{"Fix the compiler errors listed in build_errors and run the snippet again"},
			}), nil
		}
		return errResult(&ErrorBody{
			Type:     TypeCommandFailed,
			Message:  "Code execution failed",
			Details:  res.Stderr,
			ExitCode: &exitCode,
		}), nil
	}

	output := res.Stdout
	if !fullDetail(req) {
		output = concise(output, conciseLines)
	}
	return successResult(map[string]any{
		"output":         output,
		"exit_code":      res.ExitCode,
		"dotnet_version": string(version),
	}), nil
}
