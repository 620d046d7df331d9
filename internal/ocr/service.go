// Package ocr runs an uploaded image through an ordered list of OCR backends.
//
// Each backend (a local Tesseract engine, a local neural engine, a cloud vision
// API) turns a decoded image into an Outcome. Backends that report per-token
// confidence pass their tokens through the Confidence Gate, which replaces any
// token scored below ConfidenceThreshold with the ILLEGIBLE sentinel.
//
// The Chain runs backends in their configured order. With fallback enabled it
// stops invoking backends once one of them produced usable text, and reports
// the rest as NOT_NEEDED.
//
// Wire contract:
//   - extracted text, possibly containing ILLEGIBLE markers for gated tokens
//   - ILLEGIBLE when the engine ran but produced nothing usable, or failed
//   - NOT_NEEDED when the engine was skipped
//
// Engine adapters live in sub-packages (tesseract, neural, vision, documentai)
// so that this package stays free of native dependencies.
package ocr

import (
	"context"
	"image"
	"strings"
	"time"
)

const (
	// SentinelIllegible stands in for text that could not be read.
	SentinelIllegible = "ILLEGIBLE"

	// SentinelNotNeeded marks a backend that was skipped by the fallback policy.
	SentinelNotNeeded = "NOT_NEEDED"
)

// Backend is one OCR engine adapter.
type Backend interface {
	// Name is the key under which the backend's result is reported.
	Name() string

	// Recognize extracts text from img. Engine errors are reported through
	// the returned Outcome, never by panicking or returning an error.
	Recognize(ctx context.Context, img *Image) Outcome
}

// Token is a unit of recognized text with the engine's confidence in [0,1].
type Token struct {
	Text       string
	Confidence float64

	// Box locates the token in source image coordinates. It is the zero
	// rectangle for engines that do not report geometry.
	Box image.Rectangle
}

// Status classifies an Outcome.
type Status int

const (
	// StatusRecognized means the backend produced usable text.
	StatusRecognized Status = iota

	// StatusLowConfidence means the backend ran but nothing cleared the gate.
	StatusLowConfidence

	// StatusFailed means the engine raised an error.
	StatusFailed

	// StatusSkipped means the backend was not invoked.
	StatusSkipped
)

// String returns the status name used in logs.
func (s Status) String() string {
	switch s {
	case StatusRecognized:
		return "recognized"
	case StatusLowConfidence:
		return "low_confidence"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the typed result of running one backend.
type Outcome struct {
	// Backend is filled in by the Chain.
	Backend string

	Status Status

	// Text is set only for StatusRecognized.
	Text string

	// Err holds the cause for StatusFailed and StatusLowConfidence.
	Err error

	// Duration is how long the backend took; zero for skipped backends.
	Duration time.Duration
}

// Recognized returns a successful outcome carrying text.
func Recognized(text string) Outcome {
	return Outcome{Status: StatusRecognized, Text: text}
}

// Illegible returns an outcome for an engine that ran without usable text.
func Illegible(reason error) Outcome {
	if reason == nil {
		reason = ErrLowConfidence
	}
	return Outcome{Status: StatusLowConfidence, Err: reason}
}

// Failed returns an outcome for an engine error.
func Failed(err error) Outcome {
	return Outcome{Status: StatusFailed, Err: err}
}

// Skipped returns an outcome for a backend the Chain did not invoke.
func Skipped() Outcome {
	return Outcome{Status: StatusSkipped}
}

// Usable reports whether the outcome stops the fallback chain.
func (o Outcome) Usable() bool {
	return o.Status == StatusRecognized
}

// Wire projects the outcome onto the response contract.
func (o Outcome) Wire() string {
	switch o.Status {
	case StatusRecognized:
		return o.Text
	case StatusSkipped:
		return SentinelNotNeeded
	default:
		return SentinelIllegible
	}
}

// TextOutcome turns an engine's raw text into an outcome: trimmed text, or
// ILLEGIBLE when nothing but whitespace is left.
func TextOutcome(raw string) Outcome {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Illegible(nil)
	}
	return Recognized(text)
}
