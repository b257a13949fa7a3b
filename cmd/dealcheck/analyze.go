package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hmurakami/dealcheck/internal/analyzer"
	"github.com/hmurakami/dealcheck/internal/judge"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a receipt and judge each line against surveyed prices",
		Long: `Analyze a receipt, either already-extracted text or an image.

Each line item is matched to a surveyed retail item, priced from the
statistics catalog, and judged as a deal, fair, or an overpay.

Examples:
  # Analyze receipt text from a file
  dealcheck analyze receipt.txt

  # Analyze receipt text from stdin
  cat receipt.txt | dealcheck analyze

  # Analyze a receipt photo (requires vision.api_key)
  dealcheck analyze --image receipt.jpg

  # Use a specific survey area
  dealcheck analyze receipt.txt --area 27100

  # Emit the full result as JSON
  dealcheck analyze receipt.txt --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAnalyze,
	}

	cmd.Flags().String("image", "", "receipt image file to OCR instead of text input")
	cmd.Flags().String("area", "", "survey area code to price against (default: table's nationwide entry)")
	cmd.Flags().String("output", "summary", "output format (summary, json)")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	comps, err := buildComponents()
	if err != nil {
		return err
	}

	area, _ := cmd.Flags().GetString("area")
	if area == "" {
		area = viper.GetString("estat.area")
	}
	imagePath, _ := cmd.Flags().GetString("image")
	output, _ := cmd.Flags().GetString("output")

	var resp *analyzer.Response
	switch {
	case imagePath != "":
		image, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		resp, err = comps.analyzer.AnalyzeImage(cmd.Context(), image, mimeTypeFor(imagePath), area)
		if err != nil {
			return err
		}
	case len(args) == 1:
		text, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading receipt text: %w", err)
		}
		resp, err = comps.analyzer.AnalyzeText(cmd.Context(), string(text), area)
		if err != nil {
			return err
		}
	default:
		text, err := readAllStdin()
		if err != nil {
			return err
		}
		resp, err = comps.analyzer.AnalyzeText(cmd.Context(), text, area)
		if err != nil {
			return err
		}
	}

	if output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	printSummary(resp)
	return nil
}

func readAllStdin() (string, error) {
	text, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return string(text), nil
}

func printSummary(resp *analyzer.Response) {
	if resp.PurchaseDate != "" {
		fmt.Printf("Receipt dated %s\n", resp.PurchaseDate)
	}
	for _, item := range resp.Items {
		name := item.Canonical
		if name == "" {
			name = item.RawName
		}
		switch item.Judgment.Verdict {
		case judge.VerdictUnknown:
			note := item.Note
			if note == "" {
				note = item.Judgment.Note
			}
			fmt.Printf("  ?  %-20s %s\n", name, note)
		default:
			fmt.Printf("  %-2s %-20s paid %.0f, surveyed %.0f (%+.1f%%)\n",
				verdictMark(item.Judgment.Verdict), name,
				*item.PaidPrice, *item.ReferencePrice, item.Judgment.Rate*100)
		}
	}
	fmt.Printf("%d items: %d deals, %d overpays, %d unknown, net %+.0f yen vs survey\n",
		resp.Summary.Items, resp.Summary.Deals, resp.Summary.Overpays,
		resp.Summary.Unknown, resp.Summary.NetDiff)
}

func verdictMark(v judge.Verdict) string {
	switch v {
	case judge.VerdictDeal:
		return "✓"
	case judge.VerdictOverpay:
		return "✗"
	default:
		return "-"
	}
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}
