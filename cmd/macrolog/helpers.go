package main

import (
	"fmt"
	"os"

	macrolog "github.com/macrolog-app/macrolog-go"
)

// clientOptions builds client options from the stored configuration.
func clientOptions(cfg *Config) []macrolog.ClientOption {
	var opts []macrolog.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, macrolog.WithBaseURL(cfg.Default.BaseURL))
	} else if cfg.Default.Environment != "" && cfg.Default.Environment != "production" {
		opts = append(opts, macrolog.WithEnvironment(macrolog.Environment(cfg.Default.Environment)))
	}
	return opts
}

// getClient creates a MacroLog client authenticated with the stored token.
func getClient() (*macrolog.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'macrolog login <email>' first.")
		os.Exit(1)
	}
	return macrolog.NewClient(cfg.Auth.Token, clientOptions(cfg)...), cfg
}

// getAnonClient creates an unauthenticated client for login and registration.
func getAnonClient() (*macrolog.Client, *Config) {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return macrolog.NewClient("", clientOptions(cfg)...), cfg
}

// getOfflineClient creates an authenticated client with the durable offline
// layer attached. When the queue database cannot be opened the client runs
// online-only for this invocation.
func getOfflineClient() (*macrolog.Client, *macrolog.OfflineManager) {
	client, _ := getClient()

	dbPath, err := offlineDBPath()
	var store macrolog.QueueStore
	if err == nil {
		if s, serr := macrolog.OpenSQLiteStore(dbPath, nil); serr == nil {
			store = s
		} else {
			fmt.Fprintf(os.Stderr, "Warning: offline storage unavailable (%v); running online-only\n", serr)
		}
	}

	offline := macrolog.NewOfflineManager(store, client, nil)
	client.AttachOffline(offline)
	return client, offline
}
