package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"ocrgate/internal/backends"
	"ocrgate/internal/logger"
	"ocrgate/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OCR HTTP service",
	Long: `Load the configured OCR backends and serve the HTTP API.

Endpoints:
  GET  /     liveness probe
  POST /ocr  multipart field "file" or JSON {"image_base64": "..."}

Backends are loaded once at startup. If a configured backend cannot be
loaded (missing tessdata, ONNX models or cloud credentials) the service
does not start.

Environment variables:
  OCR_BACKENDS   - Ordered backend list (default: tesseract,easyocr,google_vision)
  OCR_FALLBACK   - Skip later backends once one succeeds (default: true)
  PORT, HOST     - Listen address (default: 0.0.0.0:5000)
  OCR_DEBUG_DIR  - Write every decoded upload here as PNG (default: off)`,
	Example: `  # Serve on the default port
  ocrgate serve

  # Serve only Tesseract and Google Vision on port 8080
  OCR_BACKENDS=tesseract,google_vision ocrgate serve --port 8080`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Listening port (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Port = port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Strs("backends", cfg.Backends).
		Bool("fallback", cfg.Fallback).
		Msg("Loading OCR backends")

	set, err := backends.Load(ctx, cfg, backends.DefaultFactories())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load OCR backends")
		return fmt.Errorf("startup failed: %w", err)
	}
	defer func() {
		if closeErr := set.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to release OCR backends")
		}
	}()

	srv := server.New(set.Chain(cfg), server.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		MaxImagePixels: cfg.MaxImagePixels,
		ChainTimeout:   cfg.OCRTimeout,
		DebugDir:       cfg.DebugDir,
	})

	if cfg.DebugDir != "" {
		log.Warn().Str("dir", cfg.DebugDir).Msg("Decoded uploads will be written to disk")
	}

	if err := srv.ListenAndServe(ctx, cfg.Addr(), cfg.RequestTimeout); err != nil {
		log.Error().Err(err).Msg("HTTP server stopped with error")
		return err
	}

	log.Info().Msg("HTTP server stopped")
	return nil
}
