package neural

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	recognizerHeight   = 48
	recognizerMaxWidth = 320
)

// Recognizer reads the text of a single cropped line or word.
type Recognizer interface {
	// Recognize returns the text of crop and a confidence in [0,1].
	Recognize(ctx context.Context, crop image.Image) (string, float64, error)
}

type onnxRecognizer struct {
	session *session
	charset Charset
}

func newRecognizer(modelPath string, charset Charset) (*onnxRecognizer, error) {
	s, err := newSession(modelPath)
	if err != nil {
		return nil, err
	}
	return &onnxRecognizer{session: s, charset: charset}, nil
}

func (r *onnxRecognizer) Recognize(ctx context.Context, crop image.Image) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	input := recognizerInput(crop)
	probs, shape, err := r.session.run(ort.NewShape(1, 1, recognizerHeight, recognizerMaxWidth), input)
	if err != nil {
		return "", 0, err
	}
	if len(shape) != 3 {
		return "", 0, fmt.Errorf("unexpected recognizer output shape %v", shape)
	}

	steps, classes := int(shape[1]), int(shape[2])
	if classes != r.charset.Classes() {
		return "", 0, fmt.Errorf("recognizer emits %d classes, charset has %d", classes, r.charset.Classes())
	}
	if !isDistribution(probs) {
		softmax(probs, steps, classes)
	}

	text, confidence := ctcDecode(probs, steps, classes, r.charset)
	return strings.TrimSpace(text), confidence, nil
}

func (r *onnxRecognizer) close() error {
	return r.session.close()
}

// recognizerInput scales crop to the recognizer height keeping its aspect
// ratio, converts it to grayscale in [-1,1] and right-pads it to the fixed
// width by repeating the last column.
func recognizerInput(crop image.Image) []float32 {
	b := crop.Bounds()
	width := recognizerMaxWidth
	if b.Dy() > 0 {
		width = min(recognizerMaxWidth, max(1, (b.Dx()*recognizerHeight+b.Dy()/2)/b.Dy()))
	}

	gray := imaging.Grayscale(imaging.Resize(crop, width, recognizerHeight, imaging.Linear))
	data := make([]float32, recognizerHeight*recognizerMaxWidth)

	for y := 0; y < recognizerHeight; y++ {
		row := gray.Pix[y*gray.Stride:]
		out := data[y*recognizerMaxWidth : (y+1)*recognizerMaxWidth]
		for x := 0; x < width; x++ {
			out[x] = float32(row[x*4])/127.5 - 1
		}
		for x := width; x < recognizerMaxWidth; x++ {
			out[x] = out[width-1]
		}
	}
	return data
}
