package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"ocrgate/internal/logger"
	"ocrgate/internal/ocr"
)

// Backend names as they appear in OCR_BACKENDS and in the /ocr response.
const (
	BackendTesseract    = "tesseract"
	BackendNeural       = "easyocr"
	BackendGoogleVision = "google_vision"
	BackendDocumentAI   = "document_ai"
)

// Vision response policies.
const (
	VisionModeSimple   = "simple"
	VisionModeDetailed = "detailed"
)

type Config struct {
	// HTTP Configuration
	Host           string
	Port           int
	RequestTimeout time.Duration
	MaxUploadBytes int64
	MaxImagePixels int64
	DebugDir       string

	// Orchestration
	Backends   []string
	Fallback   bool
	OCRTimeout time.Duration

	// Tesseract Configuration
	TesseractLanguages []string
	TesseractPSM       int

	// Neural Engine Configuration
	ONNXRuntimeLib        string
	NeuralDetectorModel   string
	NeuralRecognizerModel string
	NeuralCharset         string
	NeuralDetectorSize    int

	// Google Cloud Configuration
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	VisionMode            string
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		Host:                  getEnv("HOST", "0.0.0.0"),
		DebugDir:              getEnv("OCR_DEBUG_DIR", ""),
		Backends:              splitList(getEnv("OCR_BACKENDS", "tesseract,easyocr,google_vision"), ","),
		TesseractLanguages:    splitList(getEnv("TESSERACT_LANGUAGES", "cat+spa+eng+fra+deu+glg+eus"), "+"),
		ONNXRuntimeLib:        getEnv("ONNXRUNTIME_LIB", defaultONNXRuntimeLib()),
		NeuralDetectorModel:   getEnv("NEURAL_DETECTOR_MODEL", "models/det.onnx"),
		NeuralRecognizerModel: getEnv("NEURAL_RECOGNIZER_MODEL", "models/rec.onnx"),
		NeuralCharset:         getEnv("NEURAL_CHARSET", "models/charset.txt"),
		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS", ""),
		VisionMode:            strings.ToLower(getEnv("VISION_MODE", VisionModeDetailed)),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stdout"),
	}

	var err error
	if config.Port, err = getEnvInt("PORT", 5000); err != nil {
		return nil, err
	}
	if config.TesseractPSM, err = getEnvInt("TESSERACT_PSM", 6); err != nil {
		return nil, err
	}
	if config.NeuralDetectorSize, err = getEnvInt("NEURAL_DETECTOR_SIZE", 960); err != nil {
		return nil, err
	}
	maxUpload, err := getEnvInt("MAX_UPLOAD_BYTES", 20*1024*1024)
	if err != nil {
		return nil, err
	}
	config.MaxUploadBytes = int64(maxUpload)
	if config.MaxImagePixels, err = getEnvInt64("MAX_IMAGE_PIXELS", ocr.DefaultMaxImagePixels); err != nil {
		return nil, err
	}
	if config.Fallback, err = getEnvBool("OCR_FALLBACK", true); err != nil {
		return nil, err
	}
	if config.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if config.OCRTimeout, err = getEnvDuration("OCR_TIMEOUT", 0); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("OCR_BACKENDS must name at least one backend")
	}
	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		switch b {
		case BackendTesseract, BackendNeural, BackendGoogleVision, BackendDocumentAI:
		default:
			return fmt.Errorf("OCR_BACKENDS: unknown backend %q", b)
		}
		if seen[b] {
			return fmt.Errorf("OCR_BACKENDS: backend %q listed twice", b)
		}
		seen[b] = true
	}
	if len(c.TesseractLanguages) == 0 {
		return fmt.Errorf("TESSERACT_LANGUAGES must name at least one language")
	}
	if c.VisionMode != VisionModeSimple && c.VisionMode != VisionModeDetailed {
		return fmt.Errorf("VISION_MODE must be %q or %q, got %q", VisionModeSimple, VisionModeDetailed, c.VisionMode)
	}
	if c.NeuralDetectorSize <= 0 || c.NeuralDetectorSize%32 != 0 {
		return fmt.Errorf("NEURAL_DETECTOR_SIZE must be a positive multiple of 32, got %d", c.NeuralDetectorSize)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxImagePixels < 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must not be negative, got %d", c.MaxImagePixels)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.OCRTimeout < 0 {
		return fmt.Errorf("OCR_TIMEOUT must not be negative, got %s", c.OCRTimeout)
	}
	if seen[BackendDocumentAI] {
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the %s backend", BackendDocumentAI)
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for the %s backend", BackendDocumentAI)
		}
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HasBackend reports whether name is configured.
func (c *Config) HasBackend(name string) bool {
	for _, b := range c.Backends {
		if b == name {
			return true
		}
	}
	return false
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func splitList(value, sep string) []string {
	var out []string
	for _, part := range strings.Split(value, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultONNXRuntimeLib() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}
