package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	cleanupAll  bool
	cleanupIdle time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove dotbox sandboxes",
	Long: `Remove dotbox sandboxes.

Without flags, sandboxes idle for longer than sandbox.idle_timeout are
removed. Idle time is measured from container creation, since activity
is only tracked inside a running server.

Examples:
  dotbox cleanup
  dotbox cleanup --idle 10m
  dotbox cleanup --all`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupAll, "all", false, "Remove every dotbox sandbox")
	cleanupCmd.Flags().DurationVar(&cleanupIdle, "idle", 0, "Remove sandboxes idle for longer than this (default sandbox.idle_timeout)")
	cleanupCmd.MarkFlagsMutuallyExclusive("all", "idle")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if cleanupAll {
		n, err := a.mgr.CleanupAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d sandbox(es).\n", n)
		return nil
	}

	idle := cleanupIdle
	if idle <= 0 {
		idle = a.cfg.Sandbox.IdleTimeout
	}
	n, err := a.mgr.LazyCleanup(ctx, idle)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d sandbox(es) idle for more than %s.\n", n, idle)
	return nil
}
