package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/hmurakami/dealcheck/internal/analyzer"
	"github.com/hmurakami/dealcheck/internal/canonical"
	"github.com/hmurakami/dealcheck/internal/classindex"
	"github.com/hmurakami/dealcheck/internal/estat"
	"github.com/hmurakami/dealcheck/internal/judge"
	"github.com/hmurakami/dealcheck/internal/market"
	"github.com/hmurakami/dealcheck/internal/receipt"
	"github.com/hmurakami/dealcheck/internal/rules"
	"github.com/hmurakami/dealcheck/internal/vision"
)

// components bundles everything the subcommands share, wired once from the
// loaded configuration.
type components struct {
	analyzer   *analyzer.Analyzer
	aggregator *market.Aggregator
	catalog    *estat.Client
}

func buildComponents() (*components, error) {
	table, err := rules.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	matcher, err := canonical.NewMatcher(table.ItemRules)
	if err != nil {
		return nil, fmt.Errorf("compiling canonical rules: %w", err)
	}
	rescuer, err := canonical.NewRescuer(table.RescueNormalize, table.RescueRules)
	if err != nil {
		return nil, fmt.Errorf("compiling rescue rules: %w", err)
	}

	index := classindex.New(matcher, rescuer, table.NameHints, table.ClassSearchOrder, table.ClassifyOrder)
	parser := receipt.NewParser(table.ExcludeWords)

	catalog := estat.NewClient(estat.Config{
		AppID:             viper.GetString("estat.app_id"),
		BaseURL:           viper.GetString("estat.base_url"),
		SearchPhrase:      table.SearchPhrase,
		ProbeKeywords:     table.ProbeKeywords,
		ScoreWeights:      table.TableScoreWeights,
		ClassSearchOrder:  table.ClassSearchOrder,
		RequestsPerSecond: viper.GetFloat64("estat.requests_per_second"),
	}, slog.Default())

	thresholds := judge.DefaultThresholds()
	if viper.IsSet("judge.deal_below") {
		thresholds.DealBelow = viper.GetFloat64("judge.deal_below")
	}
	if viper.IsSet("judge.overpay_above") {
		thresholds.OverpayAbove = viper.GetFloat64("judge.overpay_above")
	}
	engine := judge.New(thresholds)

	var extractor analyzer.TextExtractor
	if key := viper.GetString("vision.api_key"); key != "" {
		extractor = vision.NewClient(vision.Config{
			APIKey: key,
			Model:  viper.GetString("vision.model"),
		})
	}

	return &components{
		analyzer:   analyzer.New(parser, index, catalog, engine, extractor, slog.Default()),
		aggregator: market.New(catalog, slog.Default()),
		catalog:    catalog,
	}, nil
}
