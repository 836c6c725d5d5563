package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-insights/internal/config"
	"github.com/miradorstack/mirador-insights/internal/models"
	"github.com/miradorstack/mirador-insights/internal/utils"
)

type analyzeOptions struct {
	metric  string
	tenant  string
	tags    map[string]string
	window  string
	horizon int
	end     string
}

func newAnalyzeCmd(configPath *string) *cobra.Command {
	opts := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one series on demand and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return analyze(cmd.Context(), *configPath, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.metric, "metric", "", "Metric name")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "Tenant ID")
	cmd.Flags().StringToStringVar(&opts.tags, "tag", nil, "Series tags as key=value")
	cmd.Flags().StringVar(&opts.window, "window", "", "Lookback window, e.g. 1h or 7d (defaults to schedule.shortWindow)")
	cmd.Flags().IntVar(&opts.horizon, "horizon", 0, "Forecast horizon in samples (defaults to analysis.forecastHorizon)")
	cmd.Flags().StringVar(&opts.end, "end", "", "RFC3339 end of the window (defaults to now)")
	_ = cmd.MarkFlagRequired("metric")
	return cmd
}

func analyze(ctx context.Context, configPath string, opts analyzeOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	req := models.AnalyzeRequest{
		Key:     models.SeriesKey{Metric: opts.metric, TenantID: opts.tenant, Tags: opts.tags},
		Horizon: opts.horizon,
	}
	if opts.window != "" {
		window, err := utils.ParseWindow(opts.window)
		if err != nil {
			return fmt.Errorf("--window: %w", err)
		}
		req.Window = window
	}
	if opts.end != "" {
		end, err := utils.ParseRFC3339(opts.end)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		req.End = end
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	logger := newLogger(cfg)

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close(logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.publisher.Close(closeCtx)
	}()

	result, err := d.agg.Analyze(ctx, req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
