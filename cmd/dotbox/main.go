package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configFlag   string
	registryFlag string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "dotbox",
	Short: "dotbox - .NET sandboxes for MCP clients",
	Long: `dotbox runs C# code and .NET projects inside disposable Docker
containers and exposes them to AI assistants as MCP tools.

Run "dotbox serve" from an MCP client configuration to start the stdio
tool server, or "dotbox serve --http :8080" for the HTTP transport.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./dotbox.yaml or $HOME/.dotbox/dotbox.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryFlag, "registry", "", `Sandbox image registry, or "local" for locally built images`)
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
