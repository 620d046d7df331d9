// Package vision adapts Google Cloud Vision text detection to the ocr.Backend
// interface.
//
// Two response policies are supported:
//   - simple: the first whole-image text annotation, verbatim
//   - detailed: every word of the full text annotation, passed through the
//     Confidence Gate
//
// Cloud Vision API limits:
//   - Maximum image size: 20MB for inline content
//   - Any error, including a populated error field in the response, maps to ILLEGIBLE
package vision

import (
	"context"
	"fmt"
	"image"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"

	"ocrgate/internal/gcp"
	"ocrgate/internal/logger"
	"ocrgate/internal/ocr"
)

// Name is the backend key reported in responses.
const Name = "google_vision"

// MaxImageSizeBytes is the maximum inline image size accepted by the API.
const MaxImageSizeBytes = 20 * 1024 * 1024

// Mode selects how a response is turned into text.
type Mode string

const (
	ModeSimple   Mode = "simple"
	ModeDetailed Mode = "detailed"
)

// Annotator is the subset of *vision.ImageAnnotatorClient used by the engine.
type Annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

// Config holds the engine parameters.
type Config struct {
	Mode        Mode
	Credentials gcp.Credentials
}

// Engine implements ocr.Backend using Google Cloud Vision.
type Engine struct {
	client Annotator
	mode   Mode
	log    zerolog.Logger
}

// New creates the engine and its long-lived API client.
func New(ctx context.Context, config Config) (*Engine, error) {
	const op = "New"

	client, err := vision.NewImageAnnotatorClient(ctx, config.Credentials.ClientOptions()...)
	if err != nil {
		if !config.Credentials.Configured() {
			return nil, ocr.WrapOCRError(Name, op, ocr.ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, ocr.WrapOCRError(Name, op, err, fmt.Sprintf("failed to create client with %s", config.Credentials.Source()))
	}

	return NewWithClient(client, config.Mode), nil
}

// NewWithClient creates the engine around an explicit client.
func NewWithClient(client Annotator, mode Mode) *Engine {
	if mode == "" {
		mode = ModeDetailed
	}
	return &Engine{
		client: client,
		mode:   mode,
		log:    logger.WithBackend(Name),
	}
}

func (e *Engine) Name() string { return Name }

// Recognize sends the PNG-encoded image for text detection.
func (e *Engine) Recognize(ctx context.Context, img *ocr.Image) ocr.Outcome {
	const op = "Recognize"

	resp, err := e.annotate(ctx, img)
	if err != nil {
		blog := logger.ForBackend(ctx, Name, e.log)
		blog.Warn().
			Err(err).
			Str("op", op).
			Str("mode", string(e.mode)).
			Msg("Google Vision request failed")
		return ocr.Failed(err)
	}

	if e.mode == ModeSimple {
		return simpleOutcome(resp)
	}
	return detailedOutcome(resp)
}

func (e *Engine) annotate(ctx context.Context, img *ocr.Image) (*visionpb.AnnotateImageResponse, error) {
	const op = "Recognize"

	content, err := img.PNG()
	if err != nil {
		return nil, ocr.WrapOCRError(Name, op, err, "encode image")
	}
	if len(content) > MaxImageSizeBytes {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrInvalidImage, fmt.Sprintf("encoded size %d bytes exceeds %d", len(content), MaxImageSizeBytes))
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: content},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := e.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.GetResponses()) == 0 {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrCloudAPI, "no response from Vision API")
	}

	imageResp := resp.GetResponses()[0]
	if msg := imageResp.GetError().GetMessage(); msg != "" {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrCloudAPI, msg)
	}
	return imageResp, nil
}

// simpleOutcome takes the first annotation, which covers the whole image,
// and returns its description verbatim.
func simpleOutcome(resp *visionpb.AnnotateImageResponse) ocr.Outcome {
	annotations := resp.GetTextAnnotations()
	if len(annotations) == 0 {
		return ocr.Illegible(nil)
	}
	desc := annotations[0].GetDescription()
	if strings.TrimSpace(desc) == "" {
		return ocr.Illegible(nil)
	}
	return ocr.Recognized(desc)
}

// detailedOutcome gates every word of the page hierarchy.
func detailedOutcome(resp *visionpb.AnnotateImageResponse) ocr.Outcome {
	full := resp.GetFullTextAnnotation()
	if strings.TrimSpace(full.GetText()) == "" {
		return ocr.Illegible(nil)
	}
	return ocr.GateTokens(wordTokens(full))
}

// wordTokens flattens pages -> blocks -> paragraphs -> words. A word's text
// is its symbols concatenated without separators.
func wordTokens(full *visionpb.TextAnnotation) []ocr.Token {
	var tokens []ocr.Token
	for _, page := range full.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, paragraph := range block.GetParagraphs() {
				for _, word := range paragraph.GetWords() {
					var text strings.Builder
					for _, symbol := range word.GetSymbols() {
						text.WriteString(symbol.GetText())
					}
					tokens = append(tokens, ocr.Token{
						Text:       text.String(),
						Confidence: float64(word.GetConfidence()),
						Box:        boundingRect(word.GetBoundingBox()),
					})
				}
			}
		}
	}
	return tokens
}

func boundingRect(poly *visionpb.BoundingPoly) image.Rectangle {
	vertices := poly.GetVertices()
	if len(vertices) == 0 {
		return image.Rectangle{}
	}
	minX, minY := vertices[0].GetX(), vertices[0].GetY()
	maxX, maxY := minX, minY
	for _, v := range vertices[1:] {
		minX, maxX = min(minX, v.GetX()), max(maxX, v.GetX())
		minY, maxY = min(minY, v.GetY()), max(maxY, v.GetY())
	}
	return image.Rect(int(minX), int(minY), int(maxX), int(maxY))
}

// Close closes the underlying Vision client.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
