package neural

import (
	"math"
	"strings"
)

// ctcDecode performs greedy CTC decoding over a [steps x classes] row-major
// probability matrix. Repeated classes collapse and the blank (class 0) is
// dropped. The confidence is the mean probability of the emitted steps.
func ctcDecode(probs []float32, steps, classes int, charset Charset) (string, float64) {
	var (
		text  strings.Builder
		sum   float64
		count int
		prev  = -1
	)

	for t := 0; t < steps; t++ {
		row := probs[t*classes : (t+1)*classes]
		best, p := argmax(row)
		if best != 0 && best != prev && best-1 < len(charset) {
			text.WriteString(charset[best-1])
			sum += float64(p)
			count++
		}
		prev = best
	}

	if count == 0 {
		return "", 0
	}
	return text.String(), sum / float64(count)
}

func argmax(row []float32) (int, float32) {
	best, p := 0, row[0]
	for i, v := range row[1:] {
		if v > p {
			best, p = i+1, v
		}
	}
	return best, p
}

// softmax normalises each step in place. Recognizers exported without a
// final softmax layer emit logits.
func softmax(values []float32, steps, classes int) {
	for t := 0; t < steps; t++ {
		row := values[t*classes : (t+1)*classes]
		_, peak := argmax(row)
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - peak))
			row[i] = float32(e)
			sum += e
		}
		for i := range row {
			row[i] = float32(float64(row[i]) / sum)
		}
	}
}

// isDistribution reports whether every value already lies in [0,1].
func isDistribution(values []float32) bool {
	for _, v := range values {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}
