package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRejectsUnknownLevel(t *testing.T) {
	err := Setup(LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestSetupWritesJSONToFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	path := filepath.Join(t.TempDir(), "ocrgate.log")
	require.NoError(t, Setup(LogConfig{Level: "info", Format: "json", Output: path}))

	bl := WithBackend("tesseract")
	bl.Info().Msg("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "backend", entry["component"])
	assert.Equal(t, "tesseract", entry["backend"])
	assert.Equal(t, "hello", entry["message"])
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).With().Str("request_id", "r1").Logger()

	fl := FromContext(l.WithContext(context.Background()))
	fl.Info().Msg("x")
	assert.Contains(t, buf.String(), `"request_id":"r1"`)

	// Without a logger in the context the global logger is returned.
	assert.Equal(t, log.Logger, FromContext(context.Background()))
}

func TestForBackend(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).With().Str("request_id", "r2").Logger()

	bl := ForBackend(l.WithContext(context.Background()), "easyocr", zerolog.Nop())
	bl.Warn().Msg("x")
	assert.Contains(t, buf.String(), `"request_id":"r2"`)
	assert.Contains(t, buf.String(), `"backend":"easyocr"`)

	var fallback bytes.Buffer
	fb := ForBackend(context.Background(), "easyocr", zerolog.New(&fallback))
	fb.Warn().Msg("y")
	assert.Contains(t, fallback.String(), `"message":"y"`)
}
