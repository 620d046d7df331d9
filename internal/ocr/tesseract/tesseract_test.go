package tesseract

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocrgate/internal/ocr"
)

type fakeClient struct {
	languages  []string
	configFile string
	psm        gosseract.PageSegMode
	variables  map[string]string
	image      []byte
	text       string
	textErr    error
	langErr    error
	closed     bool
}

func (f *fakeClient) SetImageFromBytes(data []byte) error {
	f.image = data
	return nil
}

func (f *fakeClient) SetLanguage(langs ...string) error {
	f.languages = langs
	return f.langErr
}

func (f *fakeClient) SetConfigFile(fpath string) error {
	f.configFile = fpath
	return nil
}

func (f *fakeClient) SetVariable(key gosseract.SettableVariable, value string) error {
	if f.variables == nil {
		f.variables = map[string]string{}
	}
	f.variables[string(key)] = value
	return nil
}

func (f *fakeClient) SetPageSegMode(mode gosseract.PageSegMode) error {
	f.psm = mode
	return nil
}

func (f *fakeClient) Text() (string, error) { return f.text, f.textErr }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func newTestEngine(t *testing.T, fc *fakeClient) *Engine {
	t.Helper()
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	e.clientFactory = func() client { return fc }
	e.log = zerolog.Nop()
	return e
}

func testImage() *ocr.Image {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(2, 2, color.Gray{Y: 255})
	return ocr.NewImage(img)
}

func TestRecognizeTrimsText(t *testing.T) {
	fc := &fakeClient{text: "  Hola món\n\n"}
	out := newTestEngine(t, fc).Recognize(context.Background(), testImage())

	assert.Equal(t, ocr.StatusRecognized, out.Status)
	assert.Equal(t, "Hola món", out.Text)
	assert.True(t, fc.closed, "client must be closed after use")
	assert.NotEmpty(t, fc.image)
}

func TestRecognizeAppliesFixedConfiguration(t *testing.T) {
	fc := &fakeClient{text: "x"}
	newTestEngine(t, fc).Recognize(context.Background(), testImage())

	assert.Equal(t, []string{"cat", "spa", "eng", "fra", "deu", "glg", "eus"}, fc.languages)
	assert.Equal(t, gosseract.PSM_SINGLE_BLOCK, fc.psm)

	// Dictionary switches are only honoured at init time, so they travel in
	// the config file rather than through SetVariable.
	require.NotEmpty(t, fc.configFile)
	data, err := os.ReadFile(fc.configFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "load_system_dawg F\n")
	assert.Contains(t, string(data), "load_freq_dawg F\n")
	assert.NotContains(t, fc.variables, "load_system_dawg")
	assert.NotContains(t, fc.variables, "load_freq_dawg")
}

func TestCloseRemovesConfigFile(t *testing.T) {
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	path := e.configFile
	require.FileExists(t, path)

	require.NoError(t, e.Close())
	assert.NoFileExists(t, path)
	assert.NoError(t, e.Close())
}

func TestNewWithoutInitVariablesWritesNoFile(t *testing.T) {
	e, err := New(Config{Languages: []string{"eng"}})
	require.NoError(t, err)

	fc := &fakeClient{text: "x"}
	e.clientFactory = func() client { return fc }
	e.log = zerolog.Nop()
	e.Recognize(context.Background(), testImage())

	assert.Empty(t, fc.configFile)
}

func TestRecognizeFailureLogsRequestScope(t *testing.T) {
	var buf bytes.Buffer
	reqLog := zerolog.New(&buf).With().Str("request_id", "req-7").Logger()
	ctx := reqLog.WithContext(context.Background())

	fc := &fakeClient{textErr: errors.New("tesseract crashed")}
	newTestEngine(t, fc).Recognize(ctx, testImage())

	assert.Contains(t, buf.String(), `"request_id":"req-7"`)
	assert.Contains(t, buf.String(), `"backend":"tesseract"`)
	assert.Contains(t, buf.String(), `"op":"Recognize"`)
}

func TestRecognizeEmptyTextIsIllegible(t *testing.T) {
	out := newTestEngine(t, &fakeClient{text: " \n\t"}).Recognize(context.Background(), testImage())

	assert.Equal(t, ocr.StatusLowConfidence, out.Status)
	assert.Equal(t, ocr.SentinelIllegible, out.Wire())
}

func TestRecognizeEngineErrorIsSwallowed(t *testing.T) {
	tests := []struct {
		name string
		fc   *fakeClient
	}{
		{"missing language data", &fakeClient{langErr: errors.New("failed loading language 'glg'")}},
		{"text extraction", &fakeClient{textErr: errors.New("tesseract crashed")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := newTestEngine(t, tt.fc).Recognize(context.Background(), testImage())

			require.Equal(t, ocr.StatusFailed, out.Status)
			assert.ErrorIs(t, out.Err, ocr.ErrEngineFailed)
			assert.Equal(t, ocr.SentinelIllegible, out.Wire())
			assert.True(t, tt.fc.closed)
		})
	}
}

func TestRecognizeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fc := &fakeClient{text: "never"}
	out := newTestEngine(t, fc).Recognize(ctx, testImage())

	assert.Equal(t, ocr.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Nil(t, fc.image, "engine must not run after cancellation")
}
