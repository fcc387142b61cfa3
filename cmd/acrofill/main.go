package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/acrofill/acrofill/internal/config"
	"github.com/acrofill/acrofill/internal/credits"
	"github.com/acrofill/acrofill/internal/document"
	"github.com/acrofill/acrofill/internal/fill"
	"github.com/acrofill/acrofill/internal/jobs"
	"github.com/acrofill/acrofill/internal/progress"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
)

var (
	templatePath = pflag.String("template", "", "PDF template with form fields (required)")
	dataPath     = pflag.String("data", "", "CSV or XLSX batch data (required)")
	namePattern  = pflag.String("name-pattern", "", "Expression deriving output names when the Filename column is absent")
	allowance    = pflag.Int64("allowance", 0, "Monthly credit allowance; 0 disables metering")
	rollover     = pflag.Int64("rollover", 0, "Rollover credit balance")
	topup        = pflag.Int64("topup", 0, "Top-up credit balance")
)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if version != "dev" {
		cfg.Version = version
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("batch failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	if *templatePath == "" || *dataPath == "" {
		return fmt.Errorf("both --template and --data are required")
	}

	tmpl, err := document.LoadTemplate(*templatePath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*dataPath)
	if err != nil {
		return fmt.Errorf("reading data file: %w", err)
	}
	if int64(len(data)) > cfg.MaxUploadSize {
		return fmt.Errorf("data file exceeds maximum size of %d bytes", cfg.MaxUploadSize)
	}

	// The CLI runs a single local job; credits live in an in-memory store
	// seeded from flags. A zero allowance with no balances means unmetered,
	// which is modeled as a balance that always covers the batch.
	const userID = "local"
	metered := *allowance > 0 || *rollover > 0 || *topup > 0
	store := credits.NewMemStore(map[string]credits.Balances{
		userID: {Rollover: *rollover, Topup: *topup},
	})

	job := jobs.Job{
		UserID:           userID,
		Template:         tmpl,
		DataName:         *dataPath,
		Data:             data,
		MonthlyAllowance: *allowance,
		OutputDir:        cfg.OutputDir,
		NamePattern:      *namePattern,
	}
	if !metered {
		// An effectively unlimited allowance keeps the flow identical.
		job.MonthlyAllowance = int64(1) << 40
	}

	registry := progress.NewRegistry()
	engine := fill.NewEngine(cfg.WorkDir, logger)
	dispatcher := jobs.NewDispatcher(engine, store, registry, cfg.MaxConcurrentJobs, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go registry.RunSweeper(ctx, cfg.ProgressTTL)

	out := dispatcher.Run(ctx, job)
	if out.Err != nil {
		return out.Err
	}

	fmt.Printf("Processed %d of %d rows", out.Result.Successful, out.Result.Total)
	if out.Result.Failed > 0 {
		fmt.Printf(" (%d failed)", out.Result.Failed)
	}
	fmt.Println()
	for _, msg := range out.Result.Errors {
		fmt.Printf("  %s\n", msg)
	}
	if out.Result.ArchivePath != "" {
		fmt.Printf("Archive: %s\n", out.Result.ArchivePath)
	}
	if metered {
		fmt.Printf("Credits used: %d subscription, %d rollover, %d top-up\n",
			out.Split.Subscription, out.Split.Rollover, out.Split.Topup)
	}
	return nil
}

func printVersion() {
	fmt.Printf("acrofill\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
