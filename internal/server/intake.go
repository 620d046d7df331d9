package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"ocrgate/internal/ocr"
)

const (
	// FileField is the multipart field carrying the image.
	FileField = "file"

	// multipartMemory is how much of a multipart body is kept in memory
	// before spilling to temporary files.
	multipartMemory = 10 << 20
)

var (
	errInvalidBase64  = errors.New("invalid base64 payload")
	errInvalidJSON    = errors.New("invalid JSON body")
	errTooLarge       = errors.New("request body too large")
	errAmbiguousImage = errors.New("both a file and image_base64 supplied")
)

// ocrRequest is the JSON form of POST /ocr.
type ocrRequest struct {
	ImageBase64 string `json:"image_base64"`
}

// readImage extracts the encoded image bytes from a multipart upload or a
// JSON body.
func readImage(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		return readMultipart(r)
	}
	return readJSON(r)
}

func readMultipart(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			return nil, errTooLarge
		}
		return nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	file, _, err := r.FormFile(FileField)
	if errors.Is(err, http.ErrMissingFile) {
		// A multipart form may still carry the base64 field as plain text.
		if encoded := r.FormValue("image_base64"); encoded != "" {
			return decodeBase64(encoded)
		}
		return nil, ocr.ErrNoImage
	}
	if err != nil {
		return nil, fmt.Errorf("read %q field: %w", FileField, err)
	}
	defer file.Close()

	if r.FormValue("image_base64") != "" {
		return nil, errAmbiguousImage
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %q field: %w", FileField, err)
	}
	if len(data) == 0 {
		return nil, ocr.ErrNoImage
	}
	return data, nil
}

func readJSON(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isTooLarge(err) {
			return nil, errTooLarge
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ocr.ErrNoImage
	}

	var req ocrRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errInvalidJSON
	}
	if strings.TrimSpace(req.ImageBase64) == "" {
		return nil, ocr.ErrNoImage
	}
	return decodeBase64(req.ImageBase64)
}

// decodeBase64 accepts standard base64 with or without padding, optionally
// wrapped in a data URL and broken across lines.
func decodeBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		_, payload, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, errInvalidBase64
		}
		encoded = payload
	}
	encoded = strings.Join(strings.Fields(encoded), "")

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	}
	if err != nil {
		return nil, errInvalidBase64
	}
	if len(data) == 0 {
		return nil, ocr.ErrNoImage
	}
	return data, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
