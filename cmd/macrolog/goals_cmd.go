package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	goalCalories float64
	goalProtein  float64
	goalFat      float64
	goalCarbs    float64
)

func init() {
	goalsSetCmd.Flags().Float64Var(&goalCalories, "calories", 0, "Daily calorie target (kcal)")
	goalsSetCmd.Flags().Float64Var(&goalProtein, "protein", 0, "Daily protein target (g)")
	goalsSetCmd.Flags().Float64Var(&goalFat, "fat", 0, "Daily fat target (g)")
	goalsSetCmd.Flags().Float64Var(&goalCarbs, "carbs", 0, "Daily carbohydrate target (g)")
	goalsCmd.AddCommand(goalsShowCmd)
	goalsCmd.AddCommand(goalsSetCmd)
	goalsCmd.AddCommand(goalsTemplatesCmd)
	goalsCmd.AddCommand(goalsApplyCmd)
	rootCmd.AddCommand(goalsCmd)
}

var goalsCmd = &cobra.Command{
	Use:   "goals",
	Short: "View and set daily nutrition goals",
}

var goalsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current daily goals",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		goals, err := client.Goals.Get(ctx, cfg.Auth.UserID)
		if err != nil {
			return fmt.Errorf("failed to fetch goals: %w", err)
		}

		fmt.Println("Daily goals:")
		fmt.Printf("  Calories: %7.0f kcal\n", goals.Calories)
		fmt.Printf("  Protein:  %7.1f g\n", goals.ProteinG)
		fmt.Printf("  Fat:      %7.1f g\n", goals.FatG)
		fmt.Printf("  Carbs:    %7.1f g\n", goals.CarbsG)
		return nil
	},
}

var goalsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set daily goals",
	Long:  "Set daily nutrition targets. Flags left at zero keep the current value.\nExample: macrolog goals set --calories 2200 --protein 160",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		goals, err := client.Goals.Get(ctx, cfg.Auth.UserID)
		if err != nil {
			return fmt.Errorf("failed to fetch current goals: %w", err)
		}

		if goalCalories > 0 {
			goals.Calories = goalCalories
		}
		if goalProtein > 0 {
			goals.ProteinG = goalProtein
		}
		if goalFat > 0 {
			goals.FatG = goalFat
		}
		if goalCarbs > 0 {
			goals.CarbsG = goalCarbs
		}

		if _, err := client.Goals.Set(ctx, cfg.Auth.UserID, goals); err != nil {
			return fmt.Errorf("failed to save goals: %w", err)
		}

		fmt.Printf("Goals updated: %.0f kcal, %.0fP %.0fF %.0fC\n",
			goals.Calories, goals.ProteinG, goals.FatG, goals.CarbsG)
		return nil
	},
}

var goalsTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available goal templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		templates, err := client.Goals.Templates(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch templates: %w", err)
		}

		if len(templates) == 0 {
			fmt.Println("No templates available.")
			return nil
		}
		for _, tpl := range templates {
			fmt.Printf("%-20s %5.0f kcal  %4.0fP %4.0fF %4.0fC",
				tpl.Name, tpl.Goals.Calories, tpl.Goals.ProteinG, tpl.Goals.FatG, tpl.Goals.CarbsG)
			if tpl.Description != "" {
				fmt.Printf("  %s", tpl.Description)
			}
			fmt.Println()
		}
		return nil
	},
}

var goalsApplyCmd = &cobra.Command{
	Use:   "apply <template>",
	Short: "Apply a named goal template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := client.Goals.ApplyTemplate(ctx, cfg.Auth.UserID, args[0]); err != nil {
			return fmt.Errorf("failed to apply template: %w", err)
		}

		fmt.Printf("Applied template %q for user %d\n", args[0], cfg.Auth.UserID)
		return nil
	},
}
