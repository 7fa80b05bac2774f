package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/lexmask/internal/app"
	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/privacy"
	"github.com/raaihank/lexmask/internal/proxy"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		mode        = flag.String("mode", "serve", "serve, redact (stdin to stdout) or restore (stdin to stdout)")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
		healthURL   = flag.String("health-url", "http://localhost:8080/health", "URL probed by -health-check")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("lexmask %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck(*healthURL)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
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

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	switch *mode {
	case "redact", "restore":
		if err := services.AwaitNER(ctx, cfg.NER.LoadTimeout); err != nil {
			log.Error("NER did not finish loading", zap.Error(err))
			services.Close()
			os.Exit(1)
		}
		if err := runOnce(ctx, services.Engine, *mode, os.Stdin, os.Stdout); err != nil {
			log.Error("One-shot run failed", zap.String("mode", *mode), zap.Error(err))
			services.Close()
			os.Exit(1)
		}
		return
	case "serve":
	default:
		fmt.Fprintf(os.Stderr, "Unknown mode %q\n", *mode)
		os.Exit(2)
	}

	log.Info("Starting lexmask",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	current := cfg
	err = config.Watch(func(next *config.Config) {
		if err := services.ApplyReload(ctx, current, next); err != nil {
			log.Error("Failed to apply configuration reload", zap.Error(err))
			return
		}
		current = next
	}, func(err error) {
		log.Warn("Ignoring invalid configuration change", zap.Error(err))
	})
	if err != nil {
		log.Debug("Configuration hot reload disabled", zap.Error(err))
	}

	server, err := proxy.New(cfg, services.Engine, log, version)
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
		log.Info("Server shutdown complete")
	}
}

// runOnce redacts or restores all of r and writes the result to w.
func runOnce(ctx context.Context, engine *privacy.Engine, mode string, r io.Reader, w io.Writer) error {
	input, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	var out string
	if mode == "restore" {
		out = engine.Restore(string(input))
	} else {
		res, err := engine.Redact(ctx, string(input))
		if errors.Is(err, privacy.ErrInputTooLarge) {
			return fmt.Errorf("input is %d bytes: %w", len(input), err)
		}
		if err != nil {
			return err
		}
		out = res.Text
	}

	_, err = io.WriteString(w, out)
	return err
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(url string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
