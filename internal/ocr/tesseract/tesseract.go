// Package tesseract adapts the Tesseract engine (through gosseract) to the
// ocr.Backend interface.
package tesseract

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"

	"ocrgate/internal/logger"
	"ocrgate/internal/ocr"
)

// Name is the backend key reported in responses.
const Name = "tesseract"

// client is the subset of *gosseract.Client used by the engine.
type client interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	SetConfigFile(fpath string) error
	SetVariable(key gosseract.SettableVariable, value string) error
	SetPageSegMode(mode gosseract.PageSegMode) error
	Text() (string, error)
	Close() error
}

// Config holds the fixed engine parameters.
type Config struct {
	// Languages is the tessdata bundle, e.g. {"cat", "spa", "eng"}.
	Languages []string

	// PageSegMode is Tesseract's --psm value.
	PageSegMode int

	// InitVariables are read by Tesseract while it loads a language, such
	// as the dictionary switches. They are written to a config file that is
	// handed to every client before initialisation.
	InitVariables map[string]string

	// Variables are runtime Tesseract variables applied on every call.
	Variables map[string]string
}

// DefaultConfig disables dictionary-based correction and treats the image as
// a single uniform block of text.
func DefaultConfig() Config {
	return Config{
		Languages:   []string{"cat", "spa", "eng", "fra", "deu", "glg", "eus"},
		PageSegMode: int(gosseract.PSM_SINGLE_BLOCK),
		InitVariables: map[string]string{
			"load_system_dawg": "F",
			"load_freq_dawg":   "F",
		},
	}
}

// Engine implements ocr.Backend. gosseract clients are not safe for
// concurrent use, so a fresh client is created for every image.
type Engine struct {
	config        Config
	configFile    string
	clientFactory func() client
	log           zerolog.Logger
}

// New constructs a Tesseract-backed engine. When the config carries init
// variables a config file is written for them; Close removes it.
func New(config Config) (*Engine, error) {
	const op = "New"

	e := &Engine{
		config:        config,
		clientFactory: func() client { return gosseract.NewClient() },
		log:           logger.WithBackend(Name),
	}

	if len(config.InitVariables) > 0 {
		path, err := writeConfigFile(config.InitVariables)
		if err != nil {
			return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineUnavailable, err.Error())
		}
		e.configFile = path
	}
	return e, nil
}

// writeConfigFile stores variables in Tesseract's "name value" config format.
func writeConfigFile(variables map[string]string) (string, error) {
	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s %s\n", k, variables[k])
	}

	f, err := os.CreateTemp("", "ocrgate-tesseract-*.cfg")
	if err != nil {
		return "", fmt.Errorf("create tesseract config: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write tesseract config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write tesseract config: %w", err)
	}
	return f.Name(), nil
}

func (e *Engine) Name() string { return Name }

// Recognize returns the trimmed page text, or ILLEGIBLE when the engine
// produced nothing or raised an error.
func (e *Engine) Recognize(ctx context.Context, img *ocr.Image) ocr.Outcome {
	const op = "Recognize"

	text, err := e.recognize(ctx, img)
	if err != nil {
		blog := logger.ForBackend(ctx, Name, e.log)
		blog.Warn().
			Err(err).
			Str("op", op).
			Msg("Tesseract recognition failed")
		return ocr.Failed(err)
	}
	return ocr.TextOutcome(text)
}

func (e *Engine) recognize(ctx context.Context, img *ocr.Image) (string, error) {
	const op = "Recognize"

	if err := ctx.Err(); err != nil {
		return "", ocr.WrapOCRError(Name, op, err, "")
	}

	data, err := img.PNG()
	if err != nil {
		return "", ocr.WrapOCRError(Name, op, err, "encode image")
	}

	c := e.clientFactory()
	defer c.Close()

	if err := e.configure(c); err != nil {
		return "", ocr.NewOCRError(Name, op, ocr.ErrEngineFailed, err.Error())
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return "", ocr.NewOCRError(Name, op, ocr.ErrEngineFailed, fmt.Sprintf("set image: %v", err))
	}

	text, err := c.Text()
	if err != nil {
		return "", ocr.NewOCRError(Name, op, ocr.ErrEngineFailed, fmt.Sprintf("recognize text: %v", err))
	}
	return text, nil
}

func (e *Engine) configure(c client) error {
	if e.configFile != "" {
		if err := c.SetConfigFile(e.configFile); err != nil {
			return fmt.Errorf("set config file: %w", err)
		}
	}
	if len(e.config.Languages) > 0 {
		if err := c.SetLanguage(e.config.Languages...); err != nil {
			return fmt.Errorf("set languages: %w", err)
		}
	}
	if e.config.PageSegMode > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.config.PageSegMode)); err != nil {
			return fmt.Errorf("set page segmentation mode %d: %w", e.config.PageSegMode, err)
		}
	}
	for k, v := range e.config.Variables {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	return nil
}

// Close removes the generated config file.
func (e *Engine) Close() error {
	if e.configFile == "" {
		return nil
	}
	err := os.Remove(e.configFile)
	e.configFile = ""
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
