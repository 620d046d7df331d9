package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"ocrgate/internal/backends"
	"ocrgate/internal/logger"
	"ocrgate/internal/ocr"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file]",
	Short: "Extract text from an image with the configured OCR backends",
	Long: `Run a local image file through the same backend chain as the HTTP service.

By default only the first recognized text is printed, or ILLEGIBLE when no
backend produced usable text. With --json every backend's result is printed
as a JSON object, exactly as POST /ocr would return it.

Supported formats: PNG, JPEG, GIF, BMP, TIFF, WebP.

Environment variables:
  OCR_BACKENDS - Ordered backend list (default: tesseract,easyocr,google_vision)
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  # Print the text of scan.png
  ocrgate ocr scan.png

  # Print every backend's result as JSON and save it
  ocrgate ocr scan.png --json -o result.json

  # Run every backend regardless of earlier results
  ocrgate ocr scan.png --all --json`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	FileName           string            `json:"file_name"`
	FileSize           int64             `json:"file_size"`
	Text               string            `json:"text"`
	Backends           map[string]string `json:"backends"`
	ProcessingDuration string            `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("json", false, "Output every backend's result as JSON")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
	ocrCmd.Flags().Bool("all", false, "Run every backend (disables fallback)")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	// Get flags
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	runAll, _ := cmd.Flags().GetBool("all")

	imagePath := args[0]

	log.Info().
		Str("file", imagePath).
		Str("output", outputPath).
		Bool("json", jsonOutput).
		Bool("all", runAll).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runAll {
		cfg.Fallback = false
	}

	// Validate and get file info
	fileInfo, err := validateImageFile(imagePath, cfg.MaxUploadBytes, log)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", imagePath).
			Msg("Failed to read image file")
		return fmt.Errorf("failed to read image file: %w", err)
	}

	img, err := ocr.DecodeImageLimit(data, cfg.MaxImagePixels)
	if err != nil {
		log.Error().Err(err).Str("file", imagePath).Msg("Failed to decode image")
		return fmt.Errorf("invalid or corrupted image %s: %w", imagePath, err)
	}

	// Create context with timeout and signal handling
	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
	defer cancel()

	set, err := backends.Load(ctx, cfg, backends.DefaultFactories())
	if err != nil {
		return handleStartupError(err, log)
	}
	defer func() {
		if closeErr := set.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to release OCR backends")
		}
	}()

	startTime := time.Now()
	report := set.Chain(cfg).Run(ctx, img)
	processingDuration := time.Since(startTime)

	if err := ctx.Err(); err != nil {
		return handleContextError(err)
	}

	log.Info().
		Str("format", img.Format).
		Dur("duration", processingDuration).
		Int("text_length", len(report.Text())).
		Msg("OCR processing completed")

	return outputResults(os.Stdout, report, fileInfo, processingDuration, outputPath, jsonOutput, log)
}

// validateImageFile checks that the path is a readable, non-empty regular file
// within the upload limit.
func validateImageFile(imagePath string, maxBytes int64, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", imagePath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Permission denied accessing image file")
			return nil, fmt.Errorf("permission denied accessing image file: %s", imagePath)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", imagePath).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", imagePath)
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", imagePath).
			Msg("Image file is empty")
		return nil, fmt.Errorf("image file is empty: %s", imagePath)
	}

	if maxBytes > 0 && fileInfo.Size() > maxBytes {
		log.Error().
			Str("file", imagePath).
			Int64("size", fileInfo.Size()).
			Int64("max_size", maxBytes).
			Msg("Image file exceeds maximum size limit")
		return nil, fmt.Errorf("image file too large (%d bytes). Maximum size is %d bytes",
			fileInfo.Size(), maxBytes)
	}

	return fileInfo, nil
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling OCR processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleStartupError provides user-friendly messages for backends that
// cannot be loaded.
func handleStartupError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Failed to load OCR backends")

	switch {
	case errors.Is(err, ocr.ErrMissingCredentials):
		return fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
			"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"2. Export GOOGLE_CREDENTIALS with inline JSON:\n" +
			"   export GOOGLE_CREDENTIALS='{\"type\":\"service_account\",\"project_id\":\"your-project\",...}'\n\n" +
			"3. Use Application Default Credentials (if gcloud is configured):\n" +
			"   gcloud auth application-default login\n\n" +
			"4. Or drop the cloud backends from OCR_BACKENDS")
	case errors.Is(err, ocr.ErrEngineUnavailable):
		return fmt.Errorf("an OCR engine could not be loaded. Check ONNXRUNTIME_LIB and the NEURAL_* model paths, "+
			"or remove the backend from OCR_BACKENDS: %w", err)
	default:
		return fmt.Errorf("failed to load OCR backends: %w", err)
	}
}

func handleContextError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or using fewer backends")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	default:
		return err
	}
}

// outputResults formats and outputs the OCR results
func outputResults(stdout io.Writer, report ocr.Report, fileInfo os.FileInfo, duration time.Duration, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	var outputData []byte

	if jsonOutput {
		result := OCROutput{
			FileName:           filepath.Base(fileInfo.Name()),
			FileSize:           fileInfo.Size(),
			Text:               report.Text(),
			Backends:           report.Wire(),
			ProcessingDuration: duration.String(),
		}

		var err error
		outputData, err = json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	} else {
		outputData = []byte(report.Text())
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, outputData, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(outputData)).
			Msg("OCR results written to file")
		return nil
	}

	if _, err := stdout.Write(append(outputData, '\n')); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
