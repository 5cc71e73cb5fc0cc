package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/dotbox/internal/config"
	"github.com/michaelbrown/dotbox/internal/storage"
	"github.com/michaelbrown/dotbox/internal/storage/sqlite"
)

var (
	historyProject string
	historyKind    string
	historyLimit   int
	historyFormat  string
	historyOutput  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the sandbox lifecycle journal",
	Long: `Show sandbox lifecycle events recorded by "dotbox serve": creations,
failed creations, stops and idle reaps, newest first.

Examples:
  dotbox history
  dotbox history --project my-api --limit 50
  dotbox history --kind reaped --format md -o reaped.md`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyProject, "project", "", "Only events for this project id")
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "Only events of this kind (created, create_failed, stopped, reaped)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Max events to show")
	historyCmd.Flags().StringVar(&historyFormat, "format", "table", "Output format: table, md, json or yaml")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "", "Output file (default: stdout)")
	rootCmd.AddCommand(historyCmd)
}

func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Storage.DBPath == "" {
		return nil, errors.New("journal disabled: storage.db_path is empty")
	}
	return sqlite.Open(cfg.Storage.DBPath)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListEvents(context.Background(), storage.EventListOptions{
		ProjectID: historyProject,
		Kind:      storage.EventKind(historyKind),
		Limit:     historyLimit,
	})
	if err != nil {
		return err
	}

	var output string
	switch historyFormat {
	case "table":
		output = formatEvents(events)
	case "md":
		output = storage.ExportMarkdown("dotbox sandbox history", events)
	case "json":
		data, err := storage.ExportJSON(events)
		if err != nil {
			return err
		}
		output = string(data) + "\n"
	case "yaml":
		data, err := storage.ExportYAML(events)
		if err != nil {
			return err
		}
		output = string(data)
	default:
		return fmt.Errorf("unknown format %q (use table, md, json or yaml)", historyFormat)
	}

	if historyOutput != "" {
		return os.WriteFile(historyOutput, []byte(output), 0o644)
	}
	fmt.Print(output)
	return nil
}

func formatEvents(events []storage.Event) string {
	if len(events) == 0 {
		return "No sandbox events recorded.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-14s %-28s %-8s %-14s %s\n", "WHEN", "EVENT", "PROJECT", "DOTNET", "CONTAINER", "DETAIL")
	b.WriteString(strings.Repeat("─", 100) + "\n")
	for _, e := range events {
		fmt.Fprintf(&b, "%-10s %-14s %-28s %-8s %-14s %s\n",
			timeAgo(e.At), e.Kind, truncate(e.ProjectID, 28), e.Version, shorten(e.SandboxID, 12), truncate(e.Detail, 60))
	}
	return b.String()
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
