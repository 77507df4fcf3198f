package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	macrolog "github.com/macrolog-app/macrolog-go"
	"github.com/spf13/cobra"
)

var (
	logMealType string
	logNotes    string
)

func init() {
	logCmd.Flags().StringVar(&logMealType, "meal", "snack", "Meal type: breakfast, lunch, dinner, snack")
	logCmd.Flags().StringVar(&logNotes, "notes", "", "Free-form note attached to the log")
	rootCmd.AddCommand(logCmd)
}

var logCmd = &cobra.Command{
	Use:   "log <food-id> <grams>",
	Short: "Log a meal",
	Long:  "Record a meal for today. If the API is unreachable the log is queued locally and delivered on the next sync.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		foodID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("food-id must be an integer: %q", args[0])
		}
		grams, err := strconv.ParseFloat(args[1], 64)
		if err != nil || grams <= 0 {
			return fmt.Errorf("grams must be a positive number: %q", args[1])
		}

		client, offline := getOfflineClient()
		defer offline.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		opts := &macrolog.LogMealOptions{
			FoodID:   foodID,
			Grams:    grams,
			MealType: logMealType,
			Notes:    logNotes,
		}
		result, err := client.Meals.Log(ctx, opts)
		if err != nil {
			var apiErr *macrolog.APIError
			if errors.As(err, &apiErr) {
				return fmt.Errorf("log failed: %w", err)
			}
			// Transport failure: flip offline and retry so the log queues.
			offline.SetOnline(false)
			result, err = client.Meals.Log(ctx, opts)
			if err != nil {
				return fmt.Errorf("log failed: %w", err)
			}
		}

		if result.Offline {
			fmt.Printf("Offline: meal queued (%s). It will sync when connection returns.\n", result.QueuedID)
			return nil
		}
		fmt.Printf("Logged %s: food %d, %.0f g\n", logMealType, foodID, grams)
		if result.Log != nil && result.Log.FoodName != "" {
			fmt.Printf("  %s\n", result.Log.FoodName)
		}
		return nil
	},
}
