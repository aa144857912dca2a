// Package transcode normalizes uploaded photos into a bounded JPEG.
package transcode

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	MaxInputSize = 20 << 20
	MaxDimension = 1024
	JPEGQuality  = 80
	OutputType   = "image/jpeg"
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/tiff": true,
	"image/webp": true,
	"image/heic": true,
}

// Result describes a transcoded image.
type Result struct {
	Data          []byte
	ContentType   string
	OriginalSize  int
	ProcessedSize int
	Width         int
	Height        int
}

// Transcode decodes data, fits it inside MaxDimension x MaxDimension without
// upscaling, and re-encodes it as JPEG. Errors are plain descriptive values
// that the error classifier maps to a code.
func Transcode(data []byte, mimeType string) (*Result, error) {
	mimeType = strings.ToLower(mimeType)
	if !allowedTypes[mimeType] {
		return nil, fmt.Errorf("unsupported file format: %s", mimeType)
	}
	if len(data) > MaxInputSize {
		return nil, fmt.Errorf("file size exceeds %dMB limit", MaxInputSize>>20)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty")
	}
	if detected := mimetype.Detect(data); !strings.HasPrefix(detected.String(), "image/") {
		return nil, fmt.Errorf("invalid file content: detected %s", detected.String())
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	fitted := imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	bounds := fitted.Bounds()
	return &Result{
		Data:          buf.Bytes(),
		ContentType:   OutputType,
		OriginalSize:  len(data),
		ProcessedSize: buf.Len(),
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
	}, nil
}
