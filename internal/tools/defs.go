package tools

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var versionEnum = mcp.Enum("8", "9", "10-rc2")

func projectIDParam() mcp.ToolOption {
	return mcp.WithString("project_id", mcp.Required(),
		mcp.Description("Project identifier returned by dotnet_start_container"))
}

func detailParam() mcp.ToolOption {
	return mcp.WithString("detail_level", mcp.Enum("concise", "full"), mcp.DefaultString("concise"),
		mcp.Description("'concise' keeps the first 50 lines of output, 'full' returns everything"))
}

func snippetTool() mcp.Tool {
	return mcp.NewTool("dotnet_execute_snippet",
		mcp.WithDescription(`Execute a C# code snippet in an isolated .NET sandbox.

Creates a temporary project, builds it, runs it and removes the sandbox afterwards.
Use dotnet_start_container for multi-file projects or long-running services.

Packages are given as "Name" (latest stable release) or "Name@1.2.3".`),
		mcp.WithString("code", mcp.Required(), mcp.MaxLength(50000),
			mcp.Description("C# source; top-level statements are supported")),
		mcp.WithString("dotnet_version", versionEnum, mcp.DefaultString("8"),
			mcp.Description(".NET version: '8', '9' or '10-rc2'")),
		mcp.WithArray("packages", mcp.Items(map[string]any{"type": "string"}), mcp.MaxItems(20),
			mcp.Description("NuGet packages, e.g. ['Newtonsoft.Json', 'Dapper@2.1.35']")),
		detailParam(),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

func startTool() mcp.Tool {
	return mcp.NewTool("dotnet_start_container",
		mcp.WithDescription(`Start a persistent .NET sandbox for a project.

Returns the existing sandbox when one is already running for project_id.
A missing project_id is generated as dotnet{version}-proj-{random}.
Files live only inside the sandbox. Idle sandboxes are removed after 30 minutes.

Port mapping uses {"container_port": host_port}; host port 0 picks a free port.
The app must listen on the container port.`),
		mcp.WithString("project_id", mcp.Description("Project identifier (generated when omitted)")),
		mcp.WithString("dotnet_version", versionEnum, mcp.DefaultString("8"),
			mcp.Description(".NET version: '8', '9' or '10-rc2'")),
		mcp.WithObject("ports", mcp.AdditionalProperties(map[string]any{"type": "integer"}),
			mcp.Description(`Port mapping, e.g. {"5000": 8080} or {"5000": 0}`)),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

func stopTool() mcp.Tool {
	return mcp.NewTool("dotnet_stop_container",
		mcp.WithDescription(`Stop and remove the sandbox of a project. All files in it are lost.
Stopping a project without a running sandbox succeeds.`),
		projectIDParam(),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

func writeFileTool() mcp.Tool {
	return mcp.NewTool("dotnet_write_file",
		mcp.WithDescription(`Write a file into a project sandbox, creating parent directories.
This replaces the whole file. Paths must be inside /workspace; relative
paths are resolved against it. Maximum size is 100KB.`),
		projectIDParam(),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path, e.g. /workspace/MyApp/Program.cs")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Complete file content")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func readFileTool() mcp.Tool {
	return mcp.NewTool("dotnet_read_file",
		mcp.WithDescription("Read a text file from a project sandbox. Paths must be inside /workspace."),
		projectIDParam(),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func listFilesTool() mcp.Tool {
	return mcp.NewTool("dotnet_list_files",
		mcp.WithDescription(`List the immediate children of a directory in a project sandbox.
A missing directory lists as empty.`),
		projectIDParam(),
		mcp.WithString("path", mcp.DefaultString("/workspace"), mcp.Description("Directory path")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func executeCommandTool() mcp.Tool {
	return mcp.NewTool("dotnet_execute_command",
		mcp.WithDescription(`Run a command in a project sandbox and wait for it.

Examples: ["dotnet", "new", "webapi", "-o", "/workspace/MyApi"],
["dotnet", "build", "/workspace/MyApi"], ["dotnet", "add", "/workspace/MyApi", "package", "Dapper"].
Commands run inside the sandbox, so use container ports. git, jq, sqlite3 and tree are available.`),
		projectIDParam(),
		mcp.WithArray("command", mcp.Required(), mcp.Items(map[string]any{"type": "string"}),
			mcp.Description("Command and arguments")),
		mcp.WithNumber("timeout", mcp.Min(1), mcp.Max(300), mcp.DefaultNumber(30),
			mcp.Description("Timeout in seconds")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func runBackgroundTool() mcp.Tool {
	return mcp.NewTool("dotnet_run_background",
		mcp.WithDescription(`Start a long-running process, such as a web server, in a project sandbox.

The tool returns after wait_for_ready seconds. Process output goes to the
sandbox log; read it with dotnet_get_logs and check the app with dotnet_test_endpoint.`),
		projectIDParam(),
		mcp.WithArray("command", mcp.Required(), mcp.Items(map[string]any{"type": "string"}),
			mcp.Description(`Command and arguments, e.g. ["dotnet", "run", "--project", "/workspace/MyApi", "--urls", "http://0.0.0.0:5000"]`)),
		mcp.WithNumber("wait_for_ready", mcp.Min(0), mcp.Max(60), mcp.DefaultNumber(5),
			mcp.Description("Seconds to wait after starting")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

func testEndpointTool() mcp.Tool {
	return mcp.NewTool("dotnet_test_endpoint",
		mcp.WithDescription(`Send an HTTP request to an app running in a sandbox.

Use localhost with the HOST port reported by dotnet_start_container or
dotnet_list_containers, e.g. http://localhost:8080/health.`),
		mcp.WithString("url", mcp.Required(), mcp.Description("Request URL")),
		mcp.WithString("method", mcp.Enum("GET", "POST", "PUT", "PATCH", "DELETE"), mcp.DefaultString("GET"),
			mcp.Description("HTTP method")),
		mcp.WithObject("headers", mcp.AdditionalProperties(map[string]any{"type": "string"}),
			mcp.Description("Request headers")),
		mcp.WithString("body", mcp.Description("Request body for POST, PUT and PATCH")),
		mcp.WithNumber("timeout", mcp.Min(1), mcp.Max(300), mcp.DefaultNumber(30),
			mcp.Description("Timeout in seconds")),
		detailParam(),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(true),
	)
}

func getLogsTool() mcp.Tool {
	return mcp.NewTool("dotnet_get_logs",
		mcp.WithDescription("Read the sandbox log, which includes output of background processes."),
		projectIDParam(),
		mcp.WithNumber("tail", mcp.Min(1), mcp.Max(1000), mcp.DefaultNumber(50),
			mcp.Description("Lines from the end of the log")),
		mcp.WithNumber("since", mcp.Min(1), mcp.Description("Only entries from the last N seconds")),
		detailParam(),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func killProcessTool() mcp.Tool {
	return mcp.NewTool("dotnet_kill_process",
		mcp.WithDescription(`Kill background processes in a project sandbox without stopping it.
Without process_pattern every dotnet process is killed.`),
		projectIDParam(),
		mcp.WithString("process_pattern", mcp.Description("Pattern matched against full command lines")),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}

func listContainersTool() mcp.Tool {
	return mcp.NewTool("dotnet_list_containers",
		mcp.WithDescription("List the sandboxes managed by this server with their project ids, status and port mappings."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)
}
