package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func metasearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metasearch <query>",
		Short: "Search the survey's item classifications",
		Long: `Search the selected statistical table's classification entries for a
free-text query, to see which surveyed items a receipt line could map to.

Examples:
  dealcheck metasearch 牛乳
  dealcheck metasearch パン --limit 5 --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runMetasearch,
	}

	cmd.Flags().Int("limit", 20, "maximum number of entries to list")
	cmd.Flags().String("output", "table", "output format (table, json)")

	return cmd
}

func runMetasearch(cmd *cobra.Command, args []string) error {
	comps, err := buildComponents()
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	output, _ := cmd.Flags().GetString("output")
	query := strings.Join(args, " ")

	hits, err := comps.analyzer.MetaSearch(cmd.Context(), query, limit)
	if err != nil {
		return err
	}

	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	if len(hits) == 0 {
		fmt.Printf("no classification entries match %q\n", query)
		return nil
	}
	for _, h := range hits {
		fmt.Printf("%-6s %-8s %s\n", h.GroupID, h.Code, h.Name)
	}
	return nil
}
