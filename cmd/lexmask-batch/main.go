package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/lexmask/internal/app"
	"github.com/raaihank/lexmask/internal/batch"
	"github.com/raaihank/lexmask/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Input dataset file (CSV, JSON lines, or Parquet)")
		outputFile = flag.String("output", "", "Output file (same format as input)")
		mode       = flag.String("mode", "redact", "redact or restore")
		columns    = flag.String("columns", "text", "Comma-separated CSV columns or JSON fields to process")
		progress   = flag.Int("progress", 1000, "Log progress every N records (0 disables)")
		dryRun     = flag.Bool("dry-run", false, "Process without writing output")
	)
	flag.Parse()

	if *inputFile == "" || (*outputFile == "" && !*dryRun) {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -input chats.csv -output masked.csv -columns prompt,reply\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input masked.parquet -output restored.parquet -mode restore\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := app.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling operations...")
		cancel()
	}()

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	// Token numbering must not depend on when the recognizer came up.
	if err := services.AwaitNER(ctx, cfg.NER.LoadTimeout); err != nil {
		log.Error("NER did not finish loading", zap.Error(err))
		services.Close()
		os.Exit(1)
	}

	pipeline, err := batch.NewPipeline(services.Engine, batch.Config{
		Mode:           batch.Mode(*mode),
		Columns:        splitColumns(*columns),
		DryRun:         *dryRun,
		ProgressReport: *progress,
	}, log)
	if err != nil {
		log.Fatal("Invalid batch configuration", zap.Error(err))
	}

	result, err := pipeline.ProcessFile(ctx, *inputFile, *outputFile)
	if err != nil {
		log.Error("Batch processing failed", zap.Error(err))
		services.Close()
		os.Exit(1)
	}

	fmt.Printf("records: %d, fields changed: %d, duration: %s\n", result.TotalRecords, result.FieldsChanged, result.Duration)
}

func splitColumns(raw string) []string {
	var cols []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
