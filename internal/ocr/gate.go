package ocr

import "strings"

// ConfidenceThreshold is the minimum per-token confidence kept verbatim.
const ConfidenceThreshold = 0.7

// Gate returns token unchanged when it is non-blank and confidence reaches
// ConfidenceThreshold, and SentinelIllegible otherwise.
func Gate(token string, confidence float64) string {
	if !legible(token, confidence) {
		return SentinelIllegible
	}
	return token
}

func legible(token string, confidence float64) bool {
	return confidence >= ConfidenceThreshold && strings.TrimSpace(token) != ""
}

// GateTokens applies Gate to every token and joins the results with single
// spaces. When no token survives the gate the whole result is ILLEGIBLE
// rather than a run of joined sentinels.
func GateTokens(tokens []Token) Outcome {
	words := make([]string, 0, len(tokens))
	kept := 0
	for _, t := range tokens {
		if legible(t.Text, t.Confidence) {
			kept++
		}
		words = append(words, Gate(t.Text, t.Confidence))
	}
	if kept == 0 {
		return Illegible(nil)
	}
	return TextOutcome(strings.Join(words, " "))
}
