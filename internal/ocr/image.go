package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded upload. It is owned by the request that decoded it and
// must not be modified by backends.
type Image struct {
	// Bitmap is the decoded image with EXIF orientation applied.
	Bitmap image.Image

	// Format is the source encoding as reported by the image package ("png", "jpeg", ...).
	Format string

	// Size is the length of the encoded upload in bytes.
	Size int

	pngOnce sync.Once
	pngData []byte
	pngErr  error
}

// DefaultMaxImagePixels is the decoded pixel count above which an upload is
// refused. It matches Pillow's decompression bomb threshold.
const DefaultMaxImagePixels int64 = 89478485

// DecodeImage decodes an uploaded file into an Image, refusing images larger
// than DefaultMaxImagePixels.
func DecodeImage(data []byte) (*Image, error) {
	return DecodeImageLimit(data, DefaultMaxImagePixels)
}

// DecodeImageLimit decodes an uploaded file into an Image. The dimensions
// declared in the header are checked against maxPixels before any pixel data
// is allocated; a limit of zero or less disables the check.
func DecodeImageLimit(data []byte, maxPixels int64) (*Image, error) {
	const op = "DecodeImage"

	if len(data) == 0 {
		return nil, WrapOCRError("", op, ErrNoImage, "empty payload")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, WrapOCRError("", op, ErrInvalidImage, err.Error())
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, NewOCRError("", op, ErrImageTooLarge,
			fmt.Sprintf("%s image is %dx%d (%d pixels), limit %d", format, cfg.Width, cfg.Height, pixels, maxPixels))
	}

	bitmap, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, WrapOCRError("", op, ErrInvalidImage, fmt.Sprintf("decode %s: %v", format, err))
	}

	return &Image{Bitmap: bitmap, Format: format, Size: len(data)}, nil
}

// NewImage wraps an already decoded bitmap.
func NewImage(bitmap image.Image) *Image {
	return &Image{Bitmap: bitmap, Format: "png"}
}

// PNG returns the bitmap encoded as PNG. The encoding is computed once and
// shared by every backend that needs it.
func (i *Image) PNG() ([]byte, error) {
	i.pngOnce.Do(func() {
		var buf bytes.Buffer
		if err := png.Encode(&buf, i.Bitmap); err != nil {
			i.pngErr = WrapOCRError("", "EncodePNG", err, "")
			return
		}
		i.pngData = buf.Bytes()
	})
	return i.pngData, i.pngErr
}

// Bounds returns the bitmap bounds.
func (i *Image) Bounds() image.Rectangle {
	return i.Bitmap.Bounds()
}
