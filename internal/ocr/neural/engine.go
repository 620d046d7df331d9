// Package neural is a local neural OCR backend. A text detector model finds
// word regions and a CTC recognizer model reads each region; both run on ONNX
// Runtime. Every (region, text, confidence) triple goes through the
// Confidence Gate.
//
// The backend reports under the key "easyocr", the name clients of the
// service already expect for the neural engine.
package neural

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"ocrgate/internal/logger"
	"ocrgate/internal/ocr"
)

// Name is the backend key reported in responses.
const Name = "easyocr"

// Config locates the engine assets.
type Config struct {
	// SharedLibraryPath is the ONNX Runtime library to load.
	SharedLibraryPath string

	DetectorModel   string
	RecognizerModel string
	CharsetFile     string

	// DetectorSize is the side of the square detector input.
	DetectorSize int
}

// Engine implements ocr.Backend.
type Engine struct {
	detector   Detector
	recognizer Recognizer
	closers    []func() error
	log        zerolog.Logger
}

// New loads ONNX Runtime and both models.
func New(config Config) (*Engine, error) {
	const op = "New"

	if config.DetectorSize <= 0 {
		config.DetectorSize = 960
	}

	charset, err := LoadCharset(config.CharsetFile)
	if err != nil {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineUnavailable, err.Error())
	}
	if err := initEnvironment(config.SharedLibraryPath); err != nil {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineUnavailable, err.Error())
	}

	det, err := newDetector(config.DetectorModel, config.DetectorSize)
	if err != nil {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineUnavailable, err.Error())
	}
	rec, err := newRecognizer(config.RecognizerModel, charset)
	if err != nil {
		det.close()
		return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineUnavailable, err.Error())
	}

	e := NewWithModels(det, rec)
	e.closers = []func() error{det.close, rec.close}
	e.log.Info().
		Str("detector", config.DetectorModel).
		Str("recognizer", config.RecognizerModel).
		Int("charset_size", len(charset)).
		Msg("Neural OCR models loaded")
	return e, nil
}

// NewWithModels creates the engine around explicit models.
func NewWithModels(detector Detector, recognizer Recognizer) *Engine {
	return &Engine{
		detector:   detector,
		recognizer: recognizer,
		log:        logger.WithBackend(Name),
	}
}

func (e *Engine) Name() string { return Name }

// Recognize detects text regions and reads each one.
func (e *Engine) Recognize(ctx context.Context, img *ocr.Image) ocr.Outcome {
	const op = "Recognize"

	log := logger.ForBackend(ctx, Name, e.log)
	tokens, err := e.tokens(ctx, img.Bitmap)
	if err != nil {
		log.Warn().Err(err).Str("op", op).Msg("Neural OCR failed")
		return ocr.Failed(err)
	}
	if len(tokens) == 0 {
		return ocr.Illegible(nil)
	}

	log.Debug().Int("regions", len(tokens)).Msg("Neural OCR regions read")
	return ocr.GateTokens(tokens)
}

func (e *Engine) tokens(ctx context.Context, bitmap image.Image) ([]ocr.Token, error) {
	const op = "Recognize"

	boxes, err := e.detector.Detect(ctx, bitmap)
	if err != nil {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineFailed, fmt.Sprintf("detect: %v", err))
	}

	tokens := make([]ocr.Token, 0, len(boxes))
	for _, box := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, ocr.WrapOCRError(Name, op, err, "")
		}
		text, confidence, err := e.recognizer.Recognize(ctx, imaging.Crop(bitmap, box))
		if err != nil {
			return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineFailed, fmt.Sprintf("recognize region %v: %v", box, err))
		}
		tokens = append(tokens, ocr.Token{Text: text, Confidence: confidence, Box: box})
	}
	return tokens, nil
}

// Close releases the model sessions.
func (e *Engine) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
