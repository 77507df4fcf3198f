package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var searchLimit int

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the food database",
	Long:  "Search for foods by name. While offline, recent results are served from the local cache.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, offline := getOfflineClient()
		defer offline.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		result, err := client.Foods.Search(ctx, args[0], searchLimit)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if len(result.Foods) == 0 {
			fmt.Printf("No foods found for %q\n", args[0])
			return nil
		}
		for _, food := range result.Foods {
			name := food.Name
			if food.Brand != "" {
				name = fmt.Sprintf("%s (%s)", name, food.Brand)
			}
			fmt.Printf("%6d  %-40s %5.0f kcal  %4.1fP %4.1fF %4.1fC\n",
				food.ID, name,
				food.Nutrition.Calories, food.Nutrition.ProteinG,
				food.Nutrition.FatG, food.Nutrition.CarbsG)
		}
		return nil
	},
}
