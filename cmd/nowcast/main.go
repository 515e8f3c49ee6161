// Command nowcast runs one nowcast evaluation: it ingests the indicator
// files, evaluates every horizon and writes the run bundle.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nowcast/internal/config"
	"nowcast/internal/infrastructure"
	"nowcast/internal/operations"
	"nowcast/pkg/contracts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command and returns the process exit code: 0 on a
// completed run, 1 on a failed run and 2 on bad usage or configuration
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("nowcast", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file")
	inputDir := fs.String("input", "", "input directory (overrides paths.input_dir)")
	resultsDir := fs.String("out", "", "results directory (overrides paths.results_dir)")
	workbook := fs.Bool("xlsx", false, "also write the results workbook")
	csvOut := fs.Bool("csv", false, "also write the results as CSV")
	timeout := fs.Duration("timeout", config.DefaultRunTimeout, "overall run timeout")
	version := fs.Bool("version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *version {
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 2
	}
	if *inputDir != "" {
		cfg.Paths.InputDir = *inputDir
	}
	if *resultsDir != "" {
		cfg.Paths.ResultsDir = *resultsDir
	}

	logger, err := infrastructure.NewLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize logger: %v\n", err)
		return 2
	}
	slog.SetDefault(logger)
	defer infrastructure.CloseLogFile()

	providers, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		logger.Error("telemetry_init_failed", slog.String("error", err.Error()))
		return 2
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry_shutdown_failed", slog.String("error", err.Error()))
		}
	}()
	metrics, err := infrastructure.NewPipelineMetrics(providers.Meter)
	if err != nil {
		logger.Error("metrics_init_failed", slog.String("error", err.Error()))
		return 2
	}

	opts := operations.Options{
		Logger:   logger,
		Recorder: metrics,
		Workbook: *workbook,
		CSV:      *csvOut,
	}
	if providers.TracerProvider != nil {
		opts.TracerProvider = providers.TracerProvider
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	logger.Info("nowcast_started",
		slog.String("version", contracts.Version),
		slog.String("y_var", cfg.Run.YVar),
		slog.String("input_dir", cfg.Paths.InputDir),
		slog.String("results_dir", cfg.Paths.ResultsDir))

	state, err := operations.NewPipeline(opts).Run(ctx, cfg)
	if state == nil {
		logger.Error("nowcast_rejected", slog.String("error", err.Error()))
		return 2
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(summarize(state)); encErr != nil {
		logger.Error("summary_write_failed", slog.String("error", encErr.Error()))
	}
	if err != nil {
		logger.Error("nowcast_failed",
			slog.String("run_id", state.ID),
			slog.String("error", err.Error()))
		return 1
	}
	logger.Info("nowcast_completed", slog.String("run_id", state.ID), slog.Duration("duration", state.Duration()))
	return 0
}

// runSummary is printed on stdout when the run ends
type runSummary struct {
	*operations.RunResponse
	Bundle   string `json:"bundle,omitempty"`
	Workbook string `json:"workbook,omitempty"`
	CSV      string `json:"csv,omitempty"`
}

func summarize(state *operations.RunState) runSummary {
	s := runSummary{RunResponse: state.Response()}
	if p := state.Artifacts.Persisted; p != nil {
		s.Bundle = p.BundlePath
		s.Workbook = p.WorkbookPath
		s.CSV = p.CSVPath
	}
	return s
}
