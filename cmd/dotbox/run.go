package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	runVersion  string
	runPackages []string
)

var runCmd = &cobra.Command{
	Use:   "run <file.cs | ->",
	Short: "Run a C# file in a throwaway sandbox",
	Long: `Build and run a single C# file (top-level statements supported) in a
fresh sandbox that is removed afterwards. Use "-" to read from stdin.

Examples:
  dotbox run hello.cs
  dotbox run --version 9 --package Newtonsoft.Json script.cs
  echo 'Console.WriteLine(42);' | dotbox run -
  dotbox run --server http://localhost:8080/mcp hello.cs`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runVersion, "version", "8", ".NET version: 8, 9 or 10-rc2")
	runCmd.Flags().StringArrayVar(&runPackages, "package", nil, `NuGet package, "Name" or "Name@1.2.3" (repeatable)`)
	runCmd.Flags().StringVar(&serverFlag, "server", "", "Use a running dotbox server at this MCP URL instead of Docker directly")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	var (
		code []byte
		err  error
	)
	if args[0] == "-" {
		code, err = io.ReadAll(os.Stdin)
	} else {
		code, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, closeSession, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession()

	callArgs := map[string]any{
		"code":           string(code),
		"dotnet_version": runVersion,
		"detail_level":   "full",
	}
	if len(runPackages) > 0 {
		callArgs["packages"] = runPackages
	}

	env, err := session.Call(ctx, "dotnet_execute_snippet", callArgs)
	if err != nil {
		return err
	}
	if env.Error != nil {
		printToolError(env.Error)
		return errors.New("snippet failed")
	}
	fmt.Print(dataString(env, "output"))
	return nil
}
