package documentai

import (
	"context"
	"errors"
	"image"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"

	"ocrgate/internal/ocr"
)

type fakeProcessor struct {
	resp *documentaipb.ProcessResponse
	err  error
	req  *documentaipb.ProcessRequest
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeProcessor) Close() error { return nil }

var testConfig = Config{ProjectID: "acme", Location: "eu", ProcessorID: "ocr123"}

func token(start, end int64, confidence float32) *documentaipb.Document_Page_Token {
	return &documentaipb.Document_Page_Token{
		Layout: &documentaipb.Document_Page_Layout{
			Confidence: confidence,
			TextAnchor: &documentaipb.Document_TextAnchor{
				TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
					{StartIndex: start, EndIndex: end},
				},
			},
		},
	}
}

func document(text string, tokens ...*documentaipb.Document_Page_Token) *documentaipb.ProcessResponse {
	return &documentaipb.ProcessResponse{
		Document: &documentaipb.Document{
			Text:  text,
			Pages: []*documentaipb.Document_Page{{Tokens: tokens}},
		},
	}
}

func testImage() *ocr.Image {
	return ocr.NewImage(image.NewGray(image.Rect(0, 0, 4, 4)))
}

func TestProcessorName(t *testing.T) {
	assert.Equal(t, "projects/acme/locations/eu/processors/ocr123", testConfig.ProcessorName())

	pinned := testConfig
	pinned.ProcessorVersion = "pretrained-ocr-v2.0"
	assert.Equal(t, "projects/acme/locations/eu/processors/ocr123/processorVersions/pretrained-ocr-v2.0", pinned.ProcessorName())
}

func TestRecognizeGatesTokens(t *testing.T) {
	// "Adéu món " with the accented word read at low confidence.
	fp := &fakeProcessor{resp: document("Adéu món ", token(0, 5, 0.92), token(5, 9, 0.31))}

	out := NewWithClient(fp, testConfig).Recognize(context.Background(), testImage())

	require.Equal(t, ocr.StatusRecognized, out.Status)
	assert.Equal(t, "Adéu ILLEGIBLE", out.Text)

	require.NotNil(t, fp.req)
	assert.Equal(t, testConfig.ProcessorName(), fp.req.GetName())
	assert.Equal(t, "image/png", fp.req.GetRawDocument().GetMimeType())
}

func TestRecognizeEmptyDocumentIsIllegible(t *testing.T) {
	fp := &fakeProcessor{resp: document("")}

	out := NewWithClient(fp, testConfig).Recognize(context.Background(), testImage())

	assert.Equal(t, ocr.StatusLowConfidence, out.Status)
}

func TestRecognizeFailures(t *testing.T) {
	tests := []struct {
		name    string
		fp      *fakeProcessor
		wantErr error
	}{
		{"rpc error", &fakeProcessor{err: errors.New("PERMISSION_DENIED")}, ocr.ErrEngineFailed},
		{"no document", &fakeProcessor{resp: &documentaipb.ProcessResponse{}}, ocr.ErrCloudAPI},
		{"document error", &fakeProcessor{resp: &documentaipb.ProcessResponse{
			Document: &documentaipb.Document{Error: &status.Status{Message: "unsupported"}},
		}}, ocr.ErrCloudAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewWithClient(tt.fp, testConfig).Recognize(context.Background(), testImage())

			assert.Equal(t, ocr.StatusFailed, out.Status)
			assert.ErrorIs(t, out.Err, tt.wantErr)
		})
	}
}

func TestAnchorTextIgnoresOutOfRangeSegments(t *testing.T) {
	text := []rune("abc")
	anchor := &documentaipb.Document_TextAnchor{
		TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
			{StartIndex: 0, EndIndex: 1},
			{StartIndex: 2, EndIndex: 10},
			{StartIndex: 2, EndIndex: 3},
		},
	}

	assert.Equal(t, "ac", anchorText(text, anchor))
}

func TestNewRequiresProcessor(t *testing.T) {
	_, err := New(context.Background(), Config{ProjectID: "acme"})
	assert.ErrorIs(t, err, ocr.ErrEngineUnavailable)
}
