package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shanehull/resultalert/internal/analysis"
	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/extract"
	"github.com/shanehull/resultalert/internal/notify"
	"github.com/shanehull/resultalert/internal/store"
	"github.com/shanehull/resultalert/internal/types"
)

var (
	symbol     string
	quarter    int
	fiscalYear int
)

var extractCmd = &cobra.Command{
	Use:   "extract <url|file>",
	Short: "Run the extraction engine once and print the metrics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := extractOnce(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url|file>",
	Short: "Extract then analyze a results document and print the alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := extractOnce(ctx, args[0])
		if err != nil {
			return err
		}

		prior := analysis.MergePrior(storedPrior(ctx, m), analysis.PriorFromDocument(m))
		est := lookupEstimate(ctx, m)

		now := time.Now()
		r := newAnalyzer().Analyze(m, prior, est, now)
		r.Announcement = types.Announcement{
			Source:        "cli",
			Symbol:        m.Symbol,
			AttachmentURL: args[0],
			DiscoveredAt:  now,
			Identity:      types.IdentityKey{Symbol: m.Symbol, Quarter: m.Quarter, FiscalYear: m.FiscalYear},
		}
		for _, k := range analysis.Missing(r) {
			logger.Warn().Str("kind", string(k)).Msg("analysis input missing")
		}
		fmt.Fprintln(cmd.OutOrStdout(), notify.RenderConsole(r))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{extractCmd, analyzeCmd} {
		c.Flags().StringVarP(&symbol, "symbol", "s", "", "exchange symbol the document belongs to")
		c.Flags().IntVarP(&quarter, "quarter", "q", 0, "fiscal quarter hint (1-4)")
		c.Flags().IntVar(&fiscalYear, "fy", 0, "fiscal year hint, e.g. 2025 for FY25")
	}
	_ = analyzeCmd.MarkFlagRequired("symbol")
}

func extractOnce(ctx context.Context, target string) (types.ExtractedMetrics, error) {
	engine, err := newExtractor(ctx)
	if err != nil {
		return types.ExtractedMetrics{}, err
	}

	var doc *extract.Document
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		doc, err = extract.NewDownloader(cfg.Extraction.Download, logger).Fetch(ctx, target)
	} else {
		doc, err = extract.LoadFile(target)
	}
	if err != nil {
		return types.ExtractedMetrics{}, err
	}
	doc.Hint = extract.Hint{
		Symbol:     strings.ToUpper(symbol),
		Quarter:    quarter,
		FiscalYear: fiscalYear,
		Reference:  time.Now(),
	}

	m, err := engine.ExtractDocument(ctx, doc)
	if err != nil {
		return m, err
	}
	if engine.LowConfidence(m) {
		logger.Warn().Str("method", m.ExtractionMethod).Float64("confidence", m.Confidence).Msg("low confidence extraction")
	}
	return m, nil
}

// storedPrior reads prior actuals from the results database when it exists.
func storedPrior(ctx context.Context, m types.ExtractedMetrics) *types.PriorPeriodActuals {
	if cfg.Store.Path == "" {
		return nil
	}
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		return nil
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Warn().Err(err).Msg("results database unavailable")
		return nil
	}
	defer db.Close()

	p, err := db.GetPriorActuals(ctx, m.Symbol, m.Quarter, m.FiscalYear)
	if err != nil {
		if !errors.Is(err, rerrors.ErrNotFound) {
			logger.Warn().Err(err).Msg("prior actuals lookup failed")
		}
		return nil
	}
	return p
}

func lookupEstimate(ctx context.Context, m types.ExtractedMetrics) *types.Estimate {
	rdb, err := connectRedis(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, analysing without estimates")
		return nil
	}
	if rdb == nil {
		return nil
	}
	defer rdb.Close()

	est, err := store.NewEstimates(rdb, cfg.Estimates.TTL).GetEstimate(ctx, m.Symbol, m.Quarter, m.FiscalYear)
	if err != nil {
		if !errors.Is(err, rerrors.ErrNotFound) {
			logger.Warn().Err(err).Msg("estimates lookup failed")
		}
		return nil
	}
	return est
}
