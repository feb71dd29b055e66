package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-photo-pipeline/internal/compositor"
	"github.com/tendant/simple-photo-pipeline/internal/config"
	"github.com/tendant/simple-photo-pipeline/internal/coordinator"
	"github.com/tendant/simple-photo-pipeline/internal/handlers"
	"github.com/tendant/simple-photo-pipeline/internal/metrics"
	"github.com/tendant/simple-photo-pipeline/internal/printing"
)

// shutdownTimeout bounds draining the queue and the HTTP server on exit
const shutdownTimeout = 30 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	NoStart        bool
	SampleTemplate bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the photo pipeline and its control API",
		Long: `Run the photo pipeline until interrupted.

Configuration is read from --config, a .env file in the working directory
and PHOTOBOOTH_* environment variables.

Example:
  photobooth run --config photobooth.yaml
  PHOTOBOOTH_PRINT_ENABLED=false photobooth run --sample-template`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoStart, "no-start", false, "serve the control API but wait for POST /v1/start")
	cmd.Flags().BoolVar(&opts.SampleTemplate, "sample-template", false, "create a sample template if the configured one is missing")

	return cmd
}

func runPipeline(opts *RunOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	log.Printf("Photo Monitor and Print Application")
	log.Printf("  Watch folder: %s", cfg.WatchFolder)
	log.Printf("  Template: %s", cfg.TemplatePath)
	log.Printf("  Output folder: %s", cfg.OutputFolder)
	log.Printf("  HTTP address: %s", cfg.HTTPAddr)

	if opts.SampleTemplate {
		if _, err := os.Stat(cfg.TemplatePath); errors.Is(err, os.ErrNotExist) {
			if err := createTemplate(cfg.TemplatePath); err != nil {
				return err
			}
		}
	}

	var spooler printing.Spooler
	cups := printing.NewCUPSSpooler()
	if cups.Available() {
		spooler = cups
		log.Printf("✓ CUPS spooler available")
	} else if cfg.PrintEnabled {
		log.Printf("lp not found; print jobs will fail with SpoolerUnavailable")
	}

	m := metrics.New()
	coord := coordinator.New(cfg,
		coordinator.WithSpooler(spooler),
		coordinator.WithMetrics(m),
	)

	var server *http.Server
	if cfg.HTTPAddr != "" {
		server = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handlers.NewRouter(coord, m.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("✓ Control API ready on %s", cfg.HTTPAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Server failed: %v", err)
			}
		}()
	}

	if !opts.NoStart {
		if err := coord.Start(context.Background()); err != nil {
			if server != nil {
				_ = server.Close()
			}
			return fmt.Errorf("failed to start pipeline: %w", err)
		}
		log.Printf("Waiting for new photos... (Press Ctrl+C to stop)")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := coord.Close(ctx); err != nil {
		log.Printf("Pipeline did not stop cleanly: %v", err)
	}
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
	}

	log.Println("Application stopped.")
	return nil
}

func createTemplate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := compositor.WriteSampleTemplate(path); err != nil {
		return fmt.Errorf("failed to create sample template: %w", err)
	}
	log.Printf("✓ Sample template created: %s (%dx%d)", path, compositor.SampleWidth, compositor.SampleHeight)
	return nil
}
