// Package documentai adapts a Google Document AI OCR processor to the
// ocr.Backend interface. Page tokens are rebuilt from the document text and
// passed through the Confidence Gate.
//
// Required configuration:
//   - GOOGLE_CLOUD_PROJECT: project that owns the processor
//   - GOOGLE_CLOUD_LOCATION: processor location ("us", "eu", ...)
//   - DOCUMENT_AI_PROCESSOR_ID: an OCR processor (Document OCR)
package documentai

import (
	"context"
	"fmt"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"ocrgate/internal/gcp"
	"ocrgate/internal/logger"
	"ocrgate/internal/ocr"
)

// Name is the backend key reported in responses.
const Name = "document_ai"

// Processor is the subset of *documentai.DocumentProcessorClient used by the engine.
type Processor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
	Close() error
}

// Config holds Document AI processor coordinates.
type Config struct {
	ProjectID   string
	Location    string
	ProcessorID string

	// ProcessorVersion pins a processor version. Empty uses the default.
	ProcessorVersion string

	Credentials gcp.Credentials
}

// ProcessorName returns the full resource name of the processor.
func (c Config) ProcessorName() string {
	if c.ProcessorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			c.ProjectID, c.Location, c.ProcessorID, c.ProcessorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		c.ProjectID, c.Location, c.ProcessorID)
}

// Engine implements ocr.Backend using Document AI.
type Engine struct {
	client Processor
	config Config
	log    zerolog.Logger
}

// New creates the engine with a regional Document AI client.
func New(ctx context.Context, config Config) (*Engine, error) {
	const op = "New"

	if config.ProjectID == "" || config.ProcessorID == "" {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineUnavailable, "project and processor ID are required")
	}
	if config.Location == "" {
		config.Location = "us"
	}

	clientOptions := config.Credentials.ClientOptions()
	if config.Location != "us" {
		endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", config.Location)
		clientOptions = append(clientOptions, option.WithEndpoint(endpoint))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, clientOptions...)
	if err != nil {
		if !config.Credentials.Configured() {
			return nil, ocr.WrapOCRError(Name, op, ocr.ErrMissingCredentials, "no credentials found in environment")
		}
		return nil, ocr.WrapOCRError(Name, op, err, fmt.Sprintf("failed to create Document AI client for location: %s", config.Location))
	}

	return NewWithClient(client, config), nil
}

// NewWithClient creates the engine around an explicit client.
func NewWithClient(client Processor, config Config) *Engine {
	return &Engine{
		client: client,
		config: config,
		log:    logger.WithBackend(Name),
	}
}

func (e *Engine) Name() string { return Name }

// Recognize sends the PNG-encoded image to the OCR processor.
func (e *Engine) Recognize(ctx context.Context, img *ocr.Image) ocr.Outcome {
	const op = "Recognize"

	doc, err := e.process(ctx, img)
	if err != nil {
		blog := logger.ForBackend(ctx, Name, e.log)
		blog.Warn().
			Err(err).
			Str("op", op).
			Str("processor", e.config.ProcessorID).
			Msg("Document AI request failed")
		return ocr.Failed(err)
	}
	if strings.TrimSpace(doc.GetText()) == "" {
		return ocr.Illegible(nil)
	}
	return ocr.GateTokens(pageTokens(doc))
}

func (e *Engine) process(ctx context.Context, img *ocr.Image) (*documentaipb.Document, error) {
	const op = "Recognize"

	content, err := img.PNG()
	if err != nil {
		return nil, ocr.WrapOCRError(Name, op, err, "encode image")
	}

	req := &documentaipb.ProcessRequest{
		Name: e.config.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  content,
				MimeType: "image/png",
			},
		},
	}

	resp, err := e.client.ProcessDocument(ctx, req)
	if err != nil {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrEngineFailed, fmt.Sprintf("Document AI error: %v", err))
	}
	if resp.GetDocument() == nil {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrCloudAPI, "no document in response")
	}
	if msg := resp.GetDocument().GetError().GetMessage(); msg != "" {
		return nil, ocr.NewOCRError(Name, op, ocr.ErrCloudAPI, msg)
	}
	return resp.GetDocument(), nil
}

// pageTokens resolves each page token's text anchor against the document
// text. Anchor offsets count Unicode code points.
func pageTokens(doc *documentaipb.Document) []ocr.Token {
	text := []rune(doc.GetText())
	var tokens []ocr.Token
	for _, page := range doc.GetPages() {
		for _, token := range page.GetTokens() {
			layout := token.GetLayout()
			tokens = append(tokens, ocr.Token{
				Text:       strings.TrimSpace(anchorText(text, layout.GetTextAnchor())),
				Confidence: float64(layout.GetConfidence()),
			})
		}
	}
	return tokens
}

func anchorText(text []rune, anchor *documentaipb.Document_TextAnchor) string {
	var b strings.Builder
	for _, seg := range anchor.GetTextSegments() {
		start, end := seg.GetStartIndex(), seg.GetEndIndex()
		if start < 0 || end > int64(len(text)) || start >= end {
			continue
		}
		b.WriteString(string(text[start:end]))
	}
	return b.String()
}

// Close closes the underlying Document AI client.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}
