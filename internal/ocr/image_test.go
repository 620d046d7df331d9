package ocr

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeImagePNG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 12, 7))
	src.Set(3, 3, color.RGBA{R: 200, A: 255})
	data := encodePNG(t, src)

	img, err := DecodeImage(data)
	require.NoError(t, err)

	assert.Equal(t, "png", img.Format)
	assert.Equal(t, len(data), img.Size)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 7, img.Bounds().Dy())
}

func TestDecodeImageJPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16)), nil))

	img, err := DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
}

func TestDecodeImageErrors(t *testing.T) {
	_, err := DecodeImage(nil)
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = DecodeImage([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrInvalidImage)

	// Valid header, truncated body.
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 64, 64)))
	_, err = DecodeImage(data[:40])
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestDecodeImageLimitRejectsTooManyPixels(t *testing.T) {
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 12, 7)))

	_, err := DecodeImageLimit(data, 50)
	assert.ErrorIs(t, err, ErrImageTooLarge)
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.ErrorContains(t, err, "12x7")

	img, err := DecodeImageLimit(data, 84)
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())

	_, err = DecodeImageLimit(data, 0)
	assert.NoError(t, err, "a non-positive limit disables the check")
}

func TestDecodeImageRefusesDecompressionBomb(t *testing.T) {
	// A header declaring 20000x20000 pixels; decoding must stop before the
	// pixel buffer is allocated.
	data := encodePNG(t, image.NewGray(image.Rect(0, 0, 1, 1)))
	bomb := append([]byte(nil), data...)
	// IHDR type and data span bytes 12-28 of a PNG stream, width and height
	// at 16-23, followed by the chunk CRC.
	binary.BigEndian.PutUint32(bomb[16:20], 20000)
	binary.BigEndian.PutUint32(bomb[20:24], 20000)
	binary.BigEndian.PutUint32(bomb[29:33], crc32.ChecksumIEEE(bomb[12:29]))

	_, err := DecodeImage(bomb)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestImagePNGIsCached(t *testing.T) {
	img := NewImage(image.NewGray(image.Rect(0, 0, 3, 3)))

	first, err := img.PNG()
	require.NoError(t, err)
	second, err := img.PNG()
	require.NoError(t, err)

	assert.Equal(t, []byte("\x89PNG"), first[:4])
	assert.Same(t, &first[0], &second[0])
}

func TestOCRErrorFormatting(t *testing.T) {
	err := NewOCRError("tesseract", "Recognize", ErrEngineFailed, "missing traineddata")
	assert.Equal(t, "ocr/tesseract: Recognize failed: missing traineddata: OCR engine failed", err.Error())
	assert.ErrorIs(t, err, ErrEngineFailed)

	plain := NewOCRError("", "DecodeImage", ErrNoImage, "")
	assert.Equal(t, "ocr: DecodeImage failed: no image supplied", plain.Error())

	assert.Same(t, err, WrapOCRError("other", "Op", err, "ignored"))
	assert.Nil(t, WrapOCRError("x", "Op", nil, ""))
}
