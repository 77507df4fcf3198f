package main

import (
	"context"
	"fmt"
	"time"

	macrolog "github.com/macrolog-app/macrolog-go"
	"github.com/spf13/cobra"
)

var (
	loginPassword    string
	registerPassword string
	registerName     string
)

func init() {
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	loginCmd.MarkFlagRequired("password")
	registerCmd.Flags().StringVar(&registerPassword, "password", "", "Account password")
	registerCmd.MarkFlagRequired("password")
	registerCmd.Flags().StringVar(&registerName, "name", "", "Display name")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in and store the session token",
	Long:  "Authenticate against the MacroLog API and store the session token in ~/.macrolog/config.toml.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getAnonClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		auth, err := client.Auth.Login(ctx, &macrolog.LoginOptions{
			Email:    args[0],
			Password: loginPassword,
		})
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		cfg.Auth.Token = auth.Token
		cfg.Auth.UserID = auth.UserID
		cfg.Auth.Email = auth.Email
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Printf("Logged in as %s (user %d)\n", auth.Email, auth.UserID)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create an account and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getAnonClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		auth, err := client.Auth.Register(ctx, &macrolog.RegisterOptions{
			Email:    args[0],
			Password: registerPassword,
			Name:     registerName,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		cfg.Auth.Token = auth.Token
		cfg.Auth.UserID = auth.UserID
		cfg.Auth.Email = auth.Email
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Println("Registration successful!")
		fmt.Printf("  User ID: %d\n", auth.UserID)
		fmt.Printf("  Email:   %s\n", auth.Email)
		return nil
	},
}
