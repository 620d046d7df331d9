package neural

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

const (
	// textThreshold binarises the detector probability map.
	textThreshold = 0.3

	// minRegionSide drops map regions thinner than this many pixels.
	minRegionSide = 3
)

// ImageNet statistics used by the detector's training pipeline.
var (
	detectorMean = [3]float32{0.485, 0.456, 0.406}
	detectorStd  = [3]float32{0.229, 0.224, 0.225}
)

// Detector finds text regions in an image.
type Detector interface {
	// Detect returns text boxes in img's coordinate space, in reading order.
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

type onnxDetector struct {
	session *session
	size    int
}

func newDetector(modelPath string, size int) (*onnxDetector, error) {
	s, err := newSession(modelPath)
	if err != nil {
		return nil, err
	}
	return &onnxDetector{session: s, size: size}, nil
}

func (d *onnxDetector) Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := detectorInput(img, d.size)
	probs, shape, err := d.session.run(ort.NewShape(1, 3, int64(d.size), int64(d.size)), input)
	if err != nil {
		return nil, err
	}
	if len(shape) < 2 {
		return nil, fmt.Errorf("unexpected detector output shape %v", shape)
	}

	// The map is the trailing two dimensions, possibly downsampled.
	rows, cols := int(shape[len(shape)-2]), int(shape[len(shape)-1])
	if rows*cols > len(probs) {
		return nil, fmt.Errorf("detector output shape %v does not match %d values", shape, len(probs))
	}

	regions, err := mapRegions(probs[:rows*cols], rows, cols)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	boxes := scaleBoxes(regions, cols, rows, b)
	return orderBoxes(boxes), nil
}

func (d *onnxDetector) close() error {
	return d.session.close()
}

// detectorInput resizes img to a size x size square and returns the
// normalised CHW tensor data.
func detectorInput(img image.Image, size int) []float32 {
	resized := imaging.Resize(img, size, size, imaging.Linear)
	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			i := y*size + x
			for c := 0; c < 3; c++ {
				data[c*plane+i] = (float32(px[c])/255 - detectorMean[c]) / detectorStd[c]
			}
		}
	}
	return data
}

// mapRegions extracts bounding rectangles of the connected text areas in a
// rows x cols probability map.
func mapRegions(probs []float32, rows, cols int) ([]image.Rectangle, error) {
	levels := make([]byte, len(probs))
	for i, p := range probs {
		levels[i] = uint8(min(max(p, 0), 1) * 255)
	}

	src, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC1, levels)
	if err != nil {
		return nil, fmt.Errorf("probability map: %w", err)
	}
	defer src.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(src, &mask, textThreshold*255, 255, gocv.ThresholdBinary)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3))
	defer kernel.Close()
	gocv.Dilate(mask, &mask, kernel)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var regions []image.Rectangle
	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i))
		if rect.Dx() < minRegionSide || rect.Dy() < minRegionSide {
			continue
		}
		regions = append(regions, rect)
	}
	return regions, nil
}

// scaleBoxes maps regions from a mapW x mapH map onto bounds, padding each
// box by a tenth of its height and clipping to bounds.
func scaleBoxes(regions []image.Rectangle, mapW, mapH int, bounds image.Rectangle) []image.Rectangle {
	sx := float64(bounds.Dx()) / float64(mapW)
	sy := float64(bounds.Dy()) / float64(mapH)

	boxes := make([]image.Rectangle, 0, len(regions))
	for _, r := range regions {
		box := image.Rect(
			int(float64(r.Min.X)*sx),
			int(float64(r.Min.Y)*sy),
			int(float64(r.Max.X)*sx+0.5),
			int(float64(r.Max.Y)*sy+0.5),
		)
		pad := max(1, box.Dy()/10)
		box = box.Inset(-pad).Add(bounds.Min).Intersect(bounds)
		if !box.Empty() {
			boxes = append(boxes, box)
		}
	}
	return boxes
}

// orderBoxes sorts boxes into reading order. Boxes whose vertical centres are
// within half the median box height of a row's first box share that row.
func orderBoxes(boxes []image.Rectangle) []image.Rectangle {
	if len(boxes) < 2 {
		return boxes
	}

	heights := make([]int, len(boxes))
	for i, b := range boxes {
		heights[i] = b.Dy()
	}
	sort.Ints(heights)
	tolerance := heights[len(heights)/2] / 2

	sorted := append([]image.Rectangle(nil), boxes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return centerY(sorted[i]) < centerY(sorted[j])
	})

	ordered := make([]image.Rectangle, 0, len(sorted))
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && centerY(sorted[end])-centerY(sorted[start]) <= tolerance {
			end++
		}
		row := sorted[start:end]
		sort.SliceStable(row, func(i, j int) bool { return row[i].Min.X < row[j].Min.X })
		ordered = append(ordered, row...)
		start = end
	}
	return ordered
}

func centerY(r image.Rectangle) int {
	return (r.Min.Y + r.Max.Y) / 2
}
