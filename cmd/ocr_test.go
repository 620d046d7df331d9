package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocrgate/internal/ocr"
)

func sampleReport() ocr.Report {
	outcomes := []ocr.Outcome{ocr.Illegible(nil), ocr.Recognized("Bon dia"), ocr.Skipped()}
	for i, name := range []string{"tesseract", "easyocr", "google_vision"} {
		outcomes[i].Backend = name
	}
	return ocr.Report{Outcomes: outcomes}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestValidateImageFile(t *testing.T) {
	log := zerolog.Nop()

	path := writeFile(t, "scan.png", []byte("0123456789"))
	info, err := validateImageFile(path, 100, log)
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size())

	_, err = validateImageFile(path, 5, log)
	assert.ErrorContains(t, err, "too large")

	_, err = validateImageFile(writeFile(t, "empty.png", nil), 100, log)
	assert.ErrorContains(t, err, "empty")

	_, err = validateImageFile(filepath.Join(t.TempDir(), "missing.png"), 100, log)
	assert.ErrorContains(t, err, "not found")

	_, err = validateImageFile(t.TempDir(), 100, log)
	assert.ErrorContains(t, err, "not a regular file")
}

func TestOutputResultsText(t *testing.T) {
	info, err := os.Stat(writeFile(t, "scan.png", []byte("x")))
	require.NoError(t, err)

	var stdout bytes.Buffer
	require.NoError(t, outputResults(&stdout, sampleReport(), info, time.Second, "", false, zerolog.Nop()))

	assert.Equal(t, "Bon dia\n", stdout.String())
}

func TestOutputResultsJSONToFile(t *testing.T) {
	info, err := os.Stat(writeFile(t, "scan.png", []byte("xyz")))
	require.NoError(t, err)
	outPath := filepath.Join(t.TempDir(), "result.json")

	var stdout bytes.Buffer
	require.NoError(t, outputResults(&stdout, sampleReport(), info, 1500*time.Millisecond, outPath, true, zerolog.Nop()))
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var out OCROutput
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, OCROutput{
		FileName: "scan.png",
		FileSize: 3,
		Text:     "Bon dia",
		Backends: map[string]string{
			"tesseract":     ocr.SentinelIllegible,
			"easyocr":       "Bon dia",
			"google_vision": ocr.SentinelNotNeeded,
		},
		ProcessingDuration: "1.5s",
	}, out)
}

func TestHandleStartupError(t *testing.T) {
	err := handleStartupError(fmt.Errorf("load backend google_vision: %w", ocr.ErrMissingCredentials), zerolog.Nop())
	assert.ErrorContains(t, err, "GOOGLE_APPLICATION_CREDENTIALS")

	err = handleStartupError(ocr.NewOCRError("easyocr", "New", ocr.ErrEngineUnavailable, "no model"), zerolog.Nop())
	assert.ErrorIs(t, err, ocr.ErrEngineUnavailable)
}
