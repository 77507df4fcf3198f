package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(summaryCmd)
}

var summaryCmd = &cobra.Command{
	Use:   "summary [date]",
	Short: "Show a day's nutrition totals",
	Long:  "Show logged meals and macro totals for a date (YYYY-MM-DD, default today).\nWhile offline, the last fetched summary is served from the local cache.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date := ""
		if len(args) == 1 {
			date = args[0]
		}

		client, offline := getOfflineClient()
		defer offline.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		summary, err := client.Meals.DaySummary(ctx, date)
		if err != nil {
			return fmt.Errorf("summary failed: %w", err)
		}

		fmt.Printf("Summary for %s (%d logs)\n", summary.Date, summary.LogCount)
		fmt.Printf("  Calories: %7.0f", summary.Totals.Calories)
		if summary.Goal != nil {
			fmt.Printf(" / %.0f", summary.Goal.Calories)
		}
		fmt.Println()
		fmt.Printf("  Protein:  %7.1f g\n", summary.Totals.ProteinG)
		fmt.Printf("  Fat:      %7.1f g\n", summary.Totals.FatG)
		fmt.Printf("  Carbs:    %7.1f g\n", summary.Totals.CarbsG)

		if len(summary.Logs) > 0 {
			fmt.Println()
			for _, log := range summary.Logs {
				fmt.Printf("  %-10s %-30s %6.0f g\n", log.MealType, log.FoodName, log.Grams)
			}
		}
		return nil
	},
}
