package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/analysis"
	"github.com/san-kum/probowler/server/config"
	"github.com/san-kum/probowler/server/pose"
	"github.com/san-kum/probowler/server/report"
	"github.com/san-kum/probowler/server/store"
)

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "analyze a landmark CSV and write the biomechanics report",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:     "input",
				Aliases:  []string{"i"},
				Usage:    "landmark CSV with a frame column and {idx|NAME}_{x|y|z|v} columns",
				Required: true,
			},
			&cli.PathFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "full report CSV",
				Value:   "enhanced_biomechanics_post_ffc.csv",
			},
			&cli.PathFlag{
				Name:  "comparison",
				Usage: "also write the reduced Feature,Average,Min,Max,Frames report to `FILE`",
			},
			&cli.StringFlag{
				Name:  "side",
				Usage: "dominant side, left or right (default from ANALYSIS_DOMINANT_SIDE)",
			},
			&cli.StringFlag{
				Name:  "trial-id",
				Usage: "trial identifier stored with the report",
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "store the report in the database at STORE_PATH",
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	cfg := config.LoadConfig()

	logger, err := newLogger(cfg, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := cfg.AnalysisOptions()
	if side := c.String("side"); side != "" {
		if opts.DominantSide, err = analysis.ParseSide(side); err != nil {
			return err
		}
	}

	seq, err := readSequence(c.Path("input"))
	if err != nil {
		return err
	}

	start := time.Now()
	rpt, err := analysis.Analyze(c.Context, seq, opts)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", c.Path("input"), err)
	}

	if err := writeReport(c.Path("output"), rpt.Rows, report.WriteCSV); err != nil {
		return err
	}
	if path := c.Path("comparison"); path != "" {
		if err := writeReport(path, rpt.Rows, report.WriteComparisonCSV); err != nil {
			return err
		}
	}

	printSummary(logger, rpt, len(seq), time.Since(start))

	if c.Bool("save") {
		id, err := saveReport(c.Context, cfg.Store.Path, c.String("trial-id"), opts.DominantSide, rpt)
		if err != nil {
			return err
		}
		logger.Info("Report saved", zap.String("report_id", id), zap.String("store", cfg.Store.Path))
	}

	logger.Info("Report written", zap.String("output", c.Path("output")), zap.String("comparison", c.Path("comparison")))
	return nil
}

func readSequence(path string) (analysis.Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seq, err := pose.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return seq, nil
}

func writeReport(path string, rows []analysis.SummaryRow, write func(w io.Writer, rows []analysis.SummaryRow) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func saveReport(ctx context.Context, path, trialID string, side analysis.Side, rpt *analysis.Report) (string, error) {
	db, err := store.New(path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	rec := &store.ReportRecord{
		ID:           uuid.NewString(),
		TrialID:      trialID,
		Source:       store.SourceCLI,
		DominantSide: side,
		Report:       rpt,
	}
	if err := db.Reports().Create(ctx, rec); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return rec.ID, nil
}

// printSummary logs the detected events and one line per summary row.
func printSummary(logger *zap.Logger, rpt *analysis.Report, frames int, elapsed time.Duration) {
	logger.Info("Events detected",
		zap.Int("frames", frames),
		zap.Stringer("ffc_frame", rpt.Events.FFC),
		zap.Stringer("release_frame", rpt.Events.Release),
		zap.Bool("fallback", rpt.Events.Fallback),
		zap.Int("post_ffc_frames", rpt.FramesProcessed),
		zap.Duration("elapsed", elapsed))

	for _, row := range rpt.Rows {
		if !row.Average.Defined() {
			logger.Info(row.Feature, zap.String("phase", row.MeasurementPhase), zap.String("average", "n/a"))
			continue
		}
		logger.Info(row.Feature,
			zap.String("phase", row.MeasurementPhase),
			zap.String("average", row.Average.String()),
			zap.String("range", row.Min.String()+" to "+row.Max.String()),
			zap.Int("frames", row.Frames))
	}

	for _, w := range rpt.Warnings() {
		logger.Warn(w.Error())
	}
}
