package ocr_test

import (
	"context"
	"fmt"
	"image"

	"ocrgate/internal/ocr"
)

// staticBackend always returns the same outcome.
type staticBackend struct {
	name    string
	outcome ocr.Outcome
}

func (b staticBackend) Name() string { return b.name }

func (b staticBackend) Recognize(ctx context.Context, img *ocr.Image) ocr.Outcome {
	return b.outcome
}

// ExampleGate shows how individual tokens are gated.
func ExampleGate() {
	fmt.Println(ocr.Gate("factura", 0.92))
	fmt.Println(ocr.Gate("factura", 0.7))
	fmt.Println(ocr.Gate("factura", 0.69))
	fmt.Println(ocr.Gate("   ", 0.99))
	// Output:
	// factura
	// factura
	// ILLEGIBLE
	// ILLEGIBLE
}

// ExampleGateTokens demonstrates joining gated tokens into a backend result.
func ExampleGateTokens() {
	partial := ocr.GateTokens([]ocr.Token{
		{Text: "Total", Confidence: 0.98},
		{Text: "1.234,56", Confidence: 0.41},
		{Text: "EUR", Confidence: 0.88},
	})
	fmt.Println(partial.Wire())

	none := ocr.GateTokens([]ocr.Token{
		{Text: "a", Confidence: 0.1},
		{Text: "b", Confidence: 0.2},
	})
	fmt.Println(none.Wire())
	// Output:
	// Total ILLEGIBLE EUR
	// ILLEGIBLE
}

// ExampleChain_Run demonstrates the fallback policy: the second backend
// answers, so the third is never invoked.
func ExampleChain_Run() {
	chain := ocr.NewChain([]ocr.Backend{
		staticBackend{"tesseract", ocr.Illegible(nil)},
		staticBackend{"easyocr", ocr.Recognized("Bon dia")},
		staticBackend{"google_vision", ocr.Recognized("unused")},
	})

	report := chain.Run(context.Background(), ocr.NewImage(image.NewGray(image.Rect(0, 0, 1, 1))))
	for _, o := range report.Outcomes {
		fmt.Printf("%s: %s\n", o.Backend, o.Wire())
	}
	fmt.Println("text:", report.Text())
	// Output:
	// tesseract: ILLEGIBLE
	// easyocr: Bon dia
	// google_vision: NOT_NEEDED
	// text: Bon dia
}
