package main

import (
	"context"
	"fmt"
	"time"

	macrolog "github.com/macrolog-app/macrolog-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, account, and offline queue status",
	Long:  "Display the current configuration, the pending offline queue, and live account info.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Print config summary.
		fmt.Println("Configuration:")
		fmt.Printf("  Environment: %s\n", valueOrDefault(cfg.Default.Environment, "(not set)"))
		if cfg.Default.BaseURL != "" {
			fmt.Printf("  Base URL:    %s\n", cfg.Default.BaseURL)
		}

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.Email != "" {
			fmt.Printf("  Email:   %s\n", cfg.Auth.Email)
			fmt.Printf("  User ID: %d\n", cfg.Auth.UserID)
			fmt.Printf("  Token:   %s\n", maskToken(cfg.Auth.Token))
		} else {
			fmt.Println("  (not logged in)")
		}

		// Offline queue summary, without touching the network.
		fmt.Println()
		fmt.Println("Offline queue:")
		dbPath, err := offlineDBPath()
		if err == nil {
			if store, serr := macrolog.OpenSQLiteStore(dbPath, nil); serr == nil {
				defer store.Close()
				pending, _ := store.PendingCount()
				fmt.Printf("  Pending: %d\n", pending)
			} else {
				fmt.Printf("  Unavailable: %v\n", serr)
			}
		}

		// If logged in, try live status.
		if cfg.Auth.Token != "" {
			fmt.Println()
			fmt.Println("Live status:")

			client := macrolog.NewClient(cfg.Auth.Token, clientOptions(cfg)...)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			me, err := client.Auth.Me(ctx)
			if err != nil {
				fmt.Printf("  Error fetching account info: %v\n", err)
				return nil
			}
			fmt.Printf("  Email:   %s\n", me.Email)
			fmt.Printf("  User ID: %d\n", me.ID)
			if me.Name != "" {
				fmt.Printf("  Name:    %s\n", me.Name)
			}
		}

		return nil
	},
}

// maskToken shows the first 8 and last 4 characters of a token.
func maskToken(token string) string {
	if token == "" {
		return "(none)"
	}
	if len(token) < 4 {
		return "..."
	}
	if len(token) <= 12 {
		return token[:4] + "..."
	}
	return token[:8] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
