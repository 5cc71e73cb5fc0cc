package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

func (t *Toolset) handleStartContainer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	version, err := versionArg(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	raw, _ := req.GetArguments()["ports"].(map[string]any)
	ports, err := sandbox.ParsePortMap(raw)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	projectID := strings.TrimSpace(req.GetString("project_id", ""))

	res, err := t.mgr.Start(ctx, version, projectID, ports)
	if err != nil {
		return errorResult("Failed to start container", err), nil
	}

	data := map[string]any{
		"container_id":   res.ID,
		"project_id":     res.ProjectID,
		"dotnet_version": string(version),
		"status":         "running",
	}
	if res.Existing {
		data["message"] = "Container already running"
		data["status"] = "already_running"
		if res.Version != "" {
			data["dotnet_version"] = res.Version
		}
	}
	if len(res.Ports) > 0 {
		data["ports"] = res.Ports
		var urls []string
		for _, hp := range res.Ports {
			urls = append(urls, "http://localhost:"+hp)
		}
		data["urls"] = urls
	}
	return successResult(data), nil
}

func (t *Toolset) handleStopContainer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requireProjectID(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	id, outcome, err := t.mgr.StopProject(ctx, projectID)
	if err != nil {
		return errorResult("Failed to stop container", err), nil
	}
	data := map[string]any{"project_id": projectID}
	switch {
	case id == "" || outcome == sandbox.StopNotFound:
		data["message"] = "No running container found"
	case outcome == sandbox.StopFailed:
		data["container_id"] = id
		data["message"] = "Container stop failed; it will be retried by idle cleanup"
	default:
		data["container_id"] = id
		data["message"] = "Container stopped and removed"
	}
	return successResult(data), nil
}

func (t *Toolset) handleExecuteCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requireProjectID(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	argv, err := commandArg(req, "command")
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	timeout, err := secondsArg(req, "timeout", defaultCommandTimeout, maxCommandTimeout)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	id, err := t.resolve(ctx, projectID)
	if err != nil {
		return errorResult("Failed to execute command", err), nil
	}

	res, err := t.mgr.Execute(ctx, id, argv, timeout)
	if err != nil {
		return errorResult("Failed to execute command", err), nil
	}
	if res.ExitCode != 0 {
		code := res.ExitCode
		return errResult(&ErrorBody{
			Type:     TypeCommandFailed,
			Message:  fmt.Sprintf("Command failed with exit code %d", code),
			Details:  res.Stderr,
			ExitCode: &code,
		}), nil
	}
	return successResult(map[string]any{
		"project_id":   projectID,
		"container_id": id,
		"command":      argv,
		"exit_code":    res.ExitCode,
		"stdout":       res.Stdout,
		"stderr":       res.Stderr,
	}), nil
}

func (t *Toolset) handleRunBackground(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requireProjectID(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	argv, err := commandArg(req, "command")
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	wait := req.GetFloat("wait_for_ready", defaultWaitForReady.Seconds())
	if wait < 0 || wait > 60 {
		return errorResult("Invalid input parameters", sandbox.Invalid("wait_for_ready must be between 0 and 60 seconds")), nil
	}
	id, err := t.resolve(ctx, projectID)
	if err != nil {
		return errorResult("Failed to run background process", err), nil
	}

	res, err := t.mgr.RunBackground(ctx, id, argv)
	if err != nil {
		return errorResult("Failed to run background process", err), nil
	}
	if res.ExitCode != 0 {
		code := res.ExitCode
		return errResult(&ErrorBody{
			Type:     TypeCommandFailed,
			Message:  "Background process could not be started",
			Details:  res.Stderr,
			ExitCode: &code,
		}), nil
	}
	if err := t.sleep(ctx, time.Duration(wait*float64(time.Second))); err != nil {
		return errorResult("Failed to run background process", err), nil
	}
	return successResult(map[string]any{
		"project_id":     projectID,
		"container_id":   id,
		"command":        argv,
		"wait_for_ready": wait,
		"message":        "Process started in background. Use dotnet_get_logs to check output.",
	}), nil
}

func (t *Toolset) handleGetLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requireProjectID(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	tail := req.GetInt("tail", 50)
	if tail < 1 || tail > 1000 {
		return errorResult("Invalid input parameters", sandbox.Invalid("tail must be between 1 and 1000")), nil
	}
	since := req.GetInt("since", 0)
	if since < 0 {
		return errorResult("Invalid input parameters", sandbox.Invalid("since must be positive")), nil
	}
	id, err := t.resolve(ctx, projectID)
	if err != nil {
		return errorResult("Failed to get logs", err), nil
	}

	logs, err := t.mgr.Logs(ctx, id, tail, time.Duration(since)*time.Second)
	if err != nil {
		return errorResult("Failed to get logs", err), nil
	}
	if !fullDetail(req) {
		logs = concise(logs, conciseLines)
	}
	data := map[string]any{
		"project_id": projectID,
		"logs":       logs,
		"tail":       tail,
	}
	if since > 0 {
		data["since"] = since
	}
	return successResult(data), nil
}

func (t *Toolset) handleKillProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := requireProjectID(req)
	if err != nil {
		return errorResult("Invalid input parameters", err), nil
	}
	pattern := req.GetString("process_pattern", sandbox.DefaultKillPattern)
	id, err := t.resolve(ctx, projectID)
	if err != nil {
		return errorResult("Failed to kill process", err), nil
	}

	killed, err := t.mgr.KillProcesses(ctx, id, pattern)
	if err != nil {
		return errorResult("Failed to kill process", err), nil
	}
	msg := "Processes killed"
	if !killed {
		msg = "No matching processes found"
	}
	return successResult(map[string]any{
		"project_id": projectID,
		"pattern":    pattern,
		"killed":     killed,
		"message":    msg,
	}), nil
}

func (t *Toolset) handleListContainers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := t.mgr.List(ctx)
	if err != nil {
		return errorResult("Failed to list containers", err), nil
	}
	if list == nil {
		list = []sandbox.Info{}
	}
	return successResult(map[string]any{
		"containers": list,
		"count":      len(list),
	}), nil
}
