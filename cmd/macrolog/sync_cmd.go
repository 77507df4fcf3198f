package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncClearCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Deliver queued offline changes",
	Long:  "Replay queued offline changes against the API, oldest first. Failed changes stay queued for the next sync.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, offline := getOfflineClient()
		defer offline.Close()

		pending := offline.PendingCount()
		if pending == 0 {
			fmt.Println("Nothing to sync.")
			return nil
		}
		fmt.Printf("Syncing %d queued change(s)...\n", pending)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		result, err := offline.Drain(ctx)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Synced: %d  Failed: %d", result.Synced, result.Failed)
		if result.Abandoned > 0 {
			fmt.Printf("  Abandoned: %d", result.Abandoned)
		}
		fmt.Println()
		for _, f := range result.Failures {
			fmt.Printf("  %s %s: %s\n", f.Method, f.URL, f.Error)
		}
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List queued offline changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, offline := getOfflineClient()
		defer offline.Close()

		queued, err := offline.ListQueued()
		if err != nil {
			return fmt.Errorf("cannot read queue: %w", err)
		}
		if len(queued) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		for _, req := range queued {
			line := fmt.Sprintf("%s  %-6s %-30s %s",
				req.CreatedAt.Local().Format("2006-01-02 15:04"),
				req.Method, req.URL, req.Status)
			if req.Attempts > 0 {
				line += fmt.Sprintf(" (attempts: %d, last error: %s)", req.Attempts, req.LastError)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var syncClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard all queued offline changes",
	Long:  "Discard every queued change without delivering it. This cannot be undone.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, offline := getOfflineClient()
		defer offline.Close()

		pending := offline.PendingCount()
		if err := offline.ClearQueued(); err != nil {
			return fmt.Errorf("cannot clear queue: %w", err)
		}
		fmt.Printf("Discarded %d queued change(s).\n", pending)
		return nil
	},
}
