package backends

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocrgate/internal/config"
	"ocrgate/internal/ocr"
)

type stubBackend struct {
	name   string
	closed *[]string
}

func (s stubBackend) Name() string { return s.name }

func (s stubBackend) Recognize(ctx context.Context, img *ocr.Image) ocr.Outcome {
	return ocr.Recognized(s.name)
}

func (s stubBackend) Close() error {
	*s.closed = append(*s.closed, s.name)
	return nil
}

func stubFactories(closed *[]string, failing string) map[string]Factory {
	factories := map[string]Factory{}
	for _, name := range []string{config.BackendTesseract, config.BackendNeural, config.BackendGoogleVision} {
		factories[name] = func(ctx context.Context, cfg *config.Config) (ocr.Backend, error) {
			if name == failing {
				return nil, errors.New("model missing")
			}
			return stubBackend{name: name, closed: closed}, nil
		}
	}
	return factories
}

func TestLoadKeepsConfiguredOrder(t *testing.T) {
	var closed []string
	cfg := &config.Config{Backends: []string{"google_vision", "tesseract", "easyocr"}, Fallback: true}

	set, err := Load(context.Background(), cfg, stubFactories(&closed, ""))
	require.NoError(t, err)

	assert.Equal(t, []string{"google_vision", "tesseract", "easyocr"}, set.Chain(cfg).Names())

	require.NoError(t, set.Close())
	assert.Equal(t, []string{"google_vision", "tesseract", "easyocr"}, closed)
}

func TestLoadFailureClosesLoadedBackends(t *testing.T) {
	var closed []string
	cfg := &config.Config{Backends: []string{"tesseract", "easyocr", "google_vision"}}

	_, err := Load(context.Background(), cfg, stubFactories(&closed, "easyocr"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load backend easyocr")
	assert.Equal(t, []string{"tesseract"}, closed)
}

func TestLoadUnknownBackend(t *testing.T) {
	var closed []string
	cfg := &config.Config{Backends: []string{"document_ai"}}

	_, err := Load(context.Background(), cfg, stubFactories(&closed, ""))
	assert.Error(t, err)
}

func TestDefaultFactoriesCoverEveryBackend(t *testing.T) {
	factories := DefaultFactories()
	for _, name := range []string{config.BackendTesseract, config.BackendNeural, config.BackendGoogleVision, config.BackendDocumentAI} {
		assert.Contains(t, factories, name)
	}
}

func TestTesseractFactoryUsesConfig(t *testing.T) {
	cfg := &config.Config{TesseractLanguages: []string{"cat", "eng"}, TesseractPSM: 6}

	b, err := newTesseract(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, config.BackendTesseract, b.Name())

	// The engine owns a generated config file, so it must be closed with the set.
	set := &Set{Backends: []ocr.Backend{b}}
	assert.NoError(t, set.Close())
}
