package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/dotbox/internal/server"
)

var httpAddrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dotbox MCP tool server",
	Long: `Start the MCP tool server. By default it speaks MCP over stdin/stdout.

On startup every sandbox left behind by a previous run is removed and an
idle reaper is started. On shutdown all sandboxes are removed.

With --http the server listens on the given address instead and serves:
  /mcp                                  streamable HTTP MCP endpoint
  /healthz                              container runtime health
  /metrics                              prometheus metrics
  /api/sandboxes                        sandbox listing
  /api/sandboxes/{project}/logs/ws      live log follow (websocket)

Examples:
  dotbox serve
  dotbox serve --http :8080
  DOTBOX_SANDBOX_REGISTRY=local dotbox serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&httpAddrFlag, "http", "", "Serve MCP over HTTP on this address instead of stdio")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.mgr.Ping(ctx); err != nil {
		a.log.Warn().Err(err).Msg("container runtime unavailable; tools will fail until it is reachable")
	} else if n, err := a.mgr.CleanupAll(ctx); err != nil {
		a.log.Warn().Err(err).Msg("startup cleanup failed")
	} else if n > 0 {
		a.log.Info().Int("count", n).Msg("removed sandboxes from a previous run")
	}

	reaper := a.mgr.StartReaper(ctx, a.cfg.Sandbox.ReapInterval, a.cfg.Sandbox.IdleTimeout)
	defer a.mgr.Shutdown(context.Background(), reaper)

	tools := a.toolset().NewServer(version)

	if httpAddrFlag != "" {
		return serveHTTP(ctx, a, tools)
	}

	a.log.Info().Str("version", version).Msg("dotbox MCP server listening on stdio")
	stdio := mcpserver.NewStdioServer(tools)
	stdio.SetErrorLogger(stdlog.New(a.log, "", 0))
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio transport: %w", err)
	}
	return nil
}

func serveHTTP(ctx context.Context, a *app, tools *mcpserver.MCPServer) error {
	srv := server.New(a.mgr, tools, a.registry, a.log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(httpAddrFlag) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		a.log.Warn().Err(err).Msg("HTTP shutdown")
	}
	return nil
}
