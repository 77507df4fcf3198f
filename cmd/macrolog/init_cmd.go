package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	initBaseURL     string
	initEnvironment string
)

func init() {
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "API base URL (overrides environment)")
	initCmd.Flags().StringVar(&initEnvironment, "environment", "", "Named environment: production, staging")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.macrolog/config.toml",
	Long:  "Initialize the MacroLog CLI by creating the local configuration file.\nUse --base-url or --environment to point at a non-production server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if initBaseURL != "" {
			cfg.Default.BaseURL = initBaseURL
		}
		if initEnvironment != "" {
			cfg.Default.Environment = initEnvironment
		}
		if cfg.Default.Environment == "" {
			cfg.Default.Environment = "production"
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Configuration saved to %s\n", path)
		fmt.Println("Next: run 'macrolog login <email>' to authenticate.")
		return nil
	},
}
