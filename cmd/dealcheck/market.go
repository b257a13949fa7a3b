package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func marketCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Show the current surveyed market prices for food items",
		Long: `Fetch the latest surveyed retail price for every tracked food and
beverage item and print the snapshot. Results are cached for a day.

Examples:
  dealcheck market
  dealcheck market --output json`,
		RunE: runMarket,
	}

	cmd.Flags().String("output", "table", "output format (table, json)")

	return cmd
}

func runMarket(cmd *cobra.Command, _ []string) error {
	comps, err := buildComponents()
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	entries := comps.aggregator.Refresh(cmd.Context())

	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Println("no market prices available")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%-24s %8.0f yen / %s\n", e.ItemName, e.Price, e.Unit)
	}
	return nil
}
