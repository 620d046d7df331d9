package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"ocrgate/internal/config"
	"ocrgate/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "ocrgate",
	Short: "ocrgate - multi-backend OCR service",
	Long: `ocrgate extracts text from images with up to four OCR backends:
a local Tesseract engine, a local neural engine, Google Cloud Vision and
Google Document AI.

Backends run in the order given by OCR_BACKENDS. Tokens read with a
confidence below 0.7 are replaced by ILLEGIBLE, and with fallback enabled
later backends are reported as NOT_NEEDED once one of them succeeds.

Run "ocrgate serve" to start the HTTP service or "ocrgate ocr" to process
a local image file.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Info().
			Str("version", version).
			Msg("ocrgate executed")

		fmt.Println("Welcome to ocrgate!")
		fmt.Println("Use --help to see available commands and options.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
