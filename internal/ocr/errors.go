package ocr

import (
	"errors"
	"fmt"
)

// Common OCR errors
var (
	// ErrNoImage is returned when a request carries neither an uploaded file nor a base64 payload.
	ErrNoImage = errors.New("no image supplied")

	// ErrInvalidImage is returned when the supplied bytes cannot be decoded into a bitmap.
	ErrInvalidImage = errors.New("invalid or corrupted image")

	// ErrImageTooLarge is returned when the declared image dimensions exceed
	// the pixel limit. It matches ErrInvalidImage under errors.Is.
	ErrImageTooLarge = fmt.Errorf("%w: too many pixels", ErrInvalidImage)

	// ErrEngineUnavailable is returned when a backend engine could not be loaded at startup.
	ErrEngineUnavailable = errors.New("OCR engine unavailable")

	// ErrEngineFailed is returned when a backend engine raised an error while recognizing an image.
	ErrEngineFailed = errors.New("OCR engine failed")

	// ErrCloudAPI is returned when a cloud backend answers with a populated error field.
	ErrCloudAPI = errors.New("cloud OCR API returned an error")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS is configured and default credentials cannot be found.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrLowConfidence is recorded on outcomes whose text was empty or entirely gated.
	ErrLowConfidence = errors.New("no token reached the confidence threshold")
)

// OCRError wraps errors with the backend and operation that produced them.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "LoadModel").
	Op string

	// Backend is the backend name, empty for errors outside an adapter.
	Backend string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	prefix := "ocr"
	if e.Backend != "" {
		prefix = "ocr/" + e.Backend
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s failed: %s: %v", prefix, e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", prefix, e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError for the given backend and operation.
func NewOCRError(backend, op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Backend: backend,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(backend, op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(backend, op, err, details)
}
