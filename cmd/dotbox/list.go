package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

var listOutput string

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List dotbox sandboxes",
	RunE:    runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format: table, json or yaml")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	infos, err := a.mgr.List(context.Background())
	if err != nil {
		return err
	}

	switch listOutput {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		return yaml.NewEncoder(os.Stdout).Encode(infos)
	case "table":
		printSandboxTable(infos)
		return nil
	default:
		return fmt.Errorf("unknown output format %q (use table, json or yaml)", listOutput)
	}
}

func printSandboxTable(infos []sandbox.Info) {
	if len(infos) == 0 {
		fmt.Println("No sandboxes running.")
		return
	}

	fmt.Printf("%-14s %-28s %-8s %-10s %s\n", "CONTAINER", "PROJECT", "DOTNET", "STATUS", "PORTS")
	fmt.Println(strings.Repeat("─", 80))
	for _, info := range infos {
		fmt.Printf("%-14s %-28s %-8s %-10s %s\n",
			shorten(info.ID, 12), truncate(info.ProjectID, 28), info.Version, info.Status, formatPorts(info.Ports))
	}
}

func formatPorts(ports map[string]string) string {
	if len(ports) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(ports))
	for k := range ports {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = ports[k] + "->" + k
	}
	return strings.Join(parts, ", ")
}

func shorten(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		return s[:maxLen-2] + ".."
	}
	return s
}
