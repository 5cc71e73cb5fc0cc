// Package tools exposes the sandbox manager and the snippet executor as MCP
// tools.
package tools

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/dotbox/internal/dotnet"
	"github.com/michaelbrown/dotbox/internal/sandbox"
)

const (
	// ServerName is the MCP implementation name.
	ServerName = "dotbox-mcp"

	DefaultIdleTimeout    = 30 * time.Minute
	DefaultSnippetTimeout = 30 * time.Second
	defaultCommandTimeout = 30 * time.Second
	maxCommandTimeout     = 300 * time.Second
	defaultWaitForReady   = 5 * time.Second
	maxFileSize           = 100 * 1024
	conciseLines          = 50
)

// Toolset holds the collaborators shared by all tool handlers.
type Toolset struct {
	mgr            *sandbox.Manager
	exec           *dotnet.Executor
	log            zerolog.Logger
	idleTimeout    time.Duration
	snippetTimeout time.Duration
	client         *http.Client
	inContainer    func() bool
	sleep          func(ctx context.Context, d time.Duration) error
}

// Option configures a Toolset.
type Option func(*Toolset)

// WithLogger sets the toolset logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Toolset) { t.log = l.With().Str("component", "tools").Logger() }
}

// WithIdleTimeout sets the idle threshold enforced before every call.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Toolset) { t.idleTimeout = d }
}

// WithSnippetTimeout bounds the run step of dotnet_execute_snippet.
func WithSnippetTimeout(d time.Duration) Option {
	return func(t *Toolset) { t.snippetTimeout = d }
}

// WithHTTPClient sets the client used by dotnet_test_endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Toolset) { t.client = c }
}

// WithContainerDetector overrides detection of a containerized server
// process.
func WithContainerDetector(f func() bool) Option {
	return func(t *Toolset) { t.inContainer = f }
}

// New creates a toolset.
func New(mgr *sandbox.Manager, exec *dotnet.Executor, opts ...Option) *Toolset {
	t := &Toolset{
		mgr:            mgr,
		exec:           exec,
		log:            zerolog.Nop(),
		idleTimeout:    DefaultIdleTimeout,
		snippetTimeout: DefaultSnippetTimeout,
		client:         &http.Client{},
		inContainer:    runningInContainer,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewServer builds an MCP server with every tool registered.
func (t *Toolset) NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(t.lazyCleanup),
	)
	t.Register(s)
	return s
}

// lazyCleanup evicts idle sandboxes before each tool call. Failures are
// logged and never fail the call.
func (t *Toolset) lazyCleanup(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := t.mgr.LazyCleanup(ctx, t.idleTimeout)
		if err != nil {
			t.log.Warn().Err(err).Str("tool", req.Params.Name).Msg("lazy cleanup failed")
		} else if n > 0 {
			t.log.Info().Int("count", n).Msg("reaped idle sandboxes")
		}
		return next(ctx, req)
	}
}

// Register adds every tool to s.
func (t *Toolset) Register(s *server.MCPServer) {
	for _, tool := range t.tools() {
		s.AddTool(tool.def, tool.handler)
	}
}

type toolEntry struct {
	def     mcp.Tool
	handler server.ToolHandlerFunc
}

func (t *Toolset) tools() []toolEntry {
	return []toolEntry{
		{snippetTool(), t.handleExecuteSnippet},
		{startTool(), t.handleStartContainer},
		{stopTool(), t.handleStopContainer},
		{writeFileTool(), t.handleWriteFile},
		{readFileTool(), t.handleReadFile},
		{listFilesTool(), t.handleListFiles},
		{executeCommandTool(), t.handleExecuteCommand},
		{runBackgroundTool(), t.handleRunBackground},
		{testEndpointTool(), t.handleTestEndpoint},
		{getLogsTool(), t.handleGetLogs},
		{killProcessTool(), t.handleKillProcess},
		{listContainersTool(), t.handleListContainers},
	}
}

func runningInContainer() bool {
	for _, p := range []string{"/.dockerenv", "/run/.containerenv"} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
