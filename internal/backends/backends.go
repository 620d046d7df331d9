// Package backends is the startup phase of the service: it builds the
// configured OCR engines in priority order and owns their lifetime.
package backends

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"ocrgate/internal/config"
	"ocrgate/internal/gcp"
	"ocrgate/internal/logger"
	"ocrgate/internal/ocr"
	"ocrgate/internal/ocr/documentai"
	"ocrgate/internal/ocr/neural"
	"ocrgate/internal/ocr/tesseract"
	"ocrgate/internal/ocr/vision"
)

// Factory builds one backend from the configuration.
type Factory func(ctx context.Context, cfg *config.Config) (ocr.Backend, error)

// Set is the ordered list of loaded backends.
type Set struct {
	Backends []ocr.Backend
	log      zerolog.Logger
}

// DefaultFactories maps backend names to their constructors.
func DefaultFactories() map[string]Factory {
	return map[string]Factory{
		config.BackendTesseract:    newTesseract,
		config.BackendNeural:       newNeural,
		config.BackendGoogleVision: newVision,
		config.BackendDocumentAI:   newDocumentAI,
	}
}

// Load builds every backend named in cfg.Backends, in order. If any backend
// fails to load, the ones already built are closed and the error is returned.
func Load(ctx context.Context, cfg *config.Config, factories map[string]Factory) (*Set, error) {
	log := logger.WithComponent("backends")
	set := &Set{log: log}

	for _, name := range cfg.Backends {
		factory, ok := factories[name]
		if !ok {
			set.Close()
			return nil, fmt.Errorf("no factory for backend %q", name)
		}

		b, err := factory(ctx, cfg)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("load backend %s: %w", name, err)
		}

		log.Info().Str("backend", name).Msg("Backend loaded")
		set.Backends = append(set.Backends, b)
	}

	return set, nil
}

// Chain builds the fallback orchestrator over the loaded backends.
func (s *Set) Chain(cfg *config.Config) *ocr.Chain {
	return ocr.NewChain(s.Backends, ocr.WithFallback(cfg.Fallback))
}

// Close releases every backend that holds native or network resources.
func (s *Set) Close() error {
	var errs []error
	for _, b := range s.Backends {
		c, ok := b.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			s.log.Warn().Err(err).Str("backend", b.Name()).Msg("Failed to close backend")
			errs = append(errs, err)
		}
	}
	s.Backends = nil
	return errors.Join(errs...)
}

func credentials(cfg *config.Config) gcp.Credentials {
	return gcp.Credentials{
		File: cfg.GoogleCredentialsFile,
		JSON: cfg.GoogleCredentialsJSON,
	}
}

func newTesseract(_ context.Context, cfg *config.Config) (ocr.Backend, error) {
	tc := tesseract.DefaultConfig()
	tc.Languages = cfg.TesseractLanguages
	tc.PageSegMode = cfg.TesseractPSM
	e, err := tesseract.New(tc)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func newNeural(_ context.Context, cfg *config.Config) (ocr.Backend, error) {
	return neural.New(neural.Config{
		SharedLibraryPath: cfg.ONNXRuntimeLib,
		DetectorModel:     cfg.NeuralDetectorModel,
		RecognizerModel:   cfg.NeuralRecognizerModel,
		CharsetFile:       cfg.NeuralCharset,
		DetectorSize:      cfg.NeuralDetectorSize,
	})
}

func newVision(ctx context.Context, cfg *config.Config) (ocr.Backend, error) {
	return vision.New(ctx, vision.Config{
		Mode:        vision.Mode(cfg.VisionMode),
		Credentials: credentials(cfg),
	})
}

func newDocumentAI(ctx context.Context, cfg *config.Config) (ocr.Backend, error) {
	return documentai.New(ctx, documentai.Config{
		ProjectID:   cfg.GoogleCloudProject,
		Location:    cfg.GoogleCloudLocation,
		ProcessorID: cfg.DocumentAIProcessorID,
		Credentials: credentials(cfg),
	})
}
