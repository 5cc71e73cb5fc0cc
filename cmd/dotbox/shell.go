package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/dotbox/internal/tools"
)

var (
	shellVersion string
	shellKeep    bool
)

var shellCmd = &cobra.Command{
	Use:   "shell <project-id>",
	Short: "Open an interactive shell on a project sandbox",
	Long: `Start (or attach to) the sandbox of a project and run commands in it.
Each line runs as one command in /workspace.

The sandbox is stopped on exit unless --keep is given.

Examples:
  dotbox shell my-api
  dotbox shell my-api --version 9 --keep
  dotbox shell my-api --server http://localhost:8080/mcp`,
	Args: cobra.ExactArgs(1),
	RunE: runShell,
}

func init() {
	shellCmd.Flags().StringVar(&shellVersion, "version", "8", ".NET version: 8, 9 or 10-rc2")
	shellCmd.Flags().BoolVar(&shellKeep, "keep", false, "Leave the sandbox running on exit")
	shellCmd.Flags().StringVar(&serverFlag, "server", "", "Use a running dotbox server at this MCP URL instead of Docker directly")
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	project := args[0]
	ctx := context.Background()

	session, closeSession, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer closeSession()

	env, err := session.Call(ctx, "dotnet_start_container", map[string]any{
		"project_id":     project,
		"dotnet_version": shellVersion,
	})
	if err != nil {
		return err
	}
	if env.Error != nil {
		printToolError(env.Error)
		return fmt.Errorf("could not start sandbox for %s", project)
	}

	fmt.Printf("dotbox shell - project %s (.NET %s, %s)\n", project, shellVersion, dataString(env, "status"))
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	if !shellKeep {
		defer func() {
			if _, err := session.Call(context.Background(), "dotnet_stop_container", map[string]any{"project_id": project}); err != nil {
				fmt.Fprintf(os.Stderr, "stopping sandbox: %v\n", err)
				return
			}
			fmt.Printf("Sandbox for %s stopped.\n", project)
		}()
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("\033[36m%s>\033[0m ", project),
		HistoryFile:     "/tmp/dotbox_history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	// Ctrl+C cancels the running command, not the shell.
	var reqCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if reqCancel != nil {
				reqCancel()
			}
		}
	}()

	for {
		input, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		reqCtx, cancel := context.WithCancel(ctx)
		reqCancel = cancel

		var quit bool
		if strings.HasPrefix(input, "/") {
			quit = shellCommand(reqCtx, session, project, input)
		} else {
			execShellLine(reqCtx, session, project, input)
		}
		cancel()
		reqCancel = nil

		if quit {
			return nil
		}
	}
}

func execShellLine(ctx context.Context, session *tools.Client, project, line string) {
	env, err := session.Call(ctx, "dotnet_execute_command", map[string]any{
		"project_id": project,
		"command":    line,
		"timeout":    300,
	})
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("(interrupted)")
			return
		}
		fmt.Fprintf(os.Stderr, "\033[31merror: %s\033[0m\n", err)
		return
	}
	if env.Error != nil {
		printToolError(env.Error)
		return
	}
	fmt.Print(dataString(env, "stdout"))
}

// shellCommand handles a slash command and reports whether to exit.
func shellCommand(ctx context.Context, session *tools.Client, project, input string) bool {
	fields := strings.Fields(input)
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	var (
		tool string
		args = map[string]any{"project_id": project}
		show func(env *tools.Envelope)
	)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  <command>        - Run a command in /workspace")
		fmt.Println("  /files [path]    - List files")
		fmt.Println("  /cat <path>      - Print a file")
		fmt.Println("  /bg <command>    - Run a command in the background")
		fmt.Println("  /kill [pattern]  - Kill background processes (default: dotnet)")
		fmt.Println("  /logs            - Show recent sandbox output")
		fmt.Println("  /quit            - Exit")
		fmt.Println()
		return false
	case "/files":
		tool = "dotnet_list_files"
		if arg != "" {
			args["path"] = arg
		}
		show = func(env *tools.Envelope) {
			m, _ := env.Data.(map[string]any)
			files, _ := m["files"].([]any)
			for _, f := range files {
				fmt.Println(f)
			}
		}
	case "/cat":
		tool = "dotnet_read_file"
		args["path"] = arg
		show = func(env *tools.Envelope) { fmt.Println(strings.TrimRight(dataString(env, "content"), "\n")) }
	case "/bg":
		tool = "dotnet_run_background"
		args["command"] = arg
		show = func(env *tools.Envelope) { fmt.Println(dataString(env, "message")) }
	case "/kill":
		tool = "dotnet_kill_process"
		if arg != "" {
			args["process_pattern"] = arg
		}
		show = func(env *tools.Envelope) { fmt.Println(dataString(env, "message")) }
	case "/logs":
		tool = "dotnet_get_logs"
		args["detail_level"] = "full"
		show = func(env *tools.Envelope) { fmt.Print(dataString(env, "logs")) }
	default:
		fmt.Printf("Unknown command: %s (try /help)\n\n", input)
		return false
	}

	env, err := session.Call(ctx, tool, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\033[31merror: %s\033[0m\n", err)
		return false
	}
	if env.Error != nil {
		printToolError(env.Error)
		return false
	}
	show(env)
	return false
}
