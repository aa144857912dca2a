// Package exif reads camera settings from uploaded photos.
package exif

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

var (
	ErrInvalidFile     = errors.New("invalid file: missing file name")
	ErrUnsupportedType = errors.New("unsupported format for EXIF extraction")
)

var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/tiff": true,
}

// Data is the formatted camera metadata attached to a critique.
type Data struct {
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	LensModel    string `json:"lensModel,omitempty"`
	FNumber      string `json:"fNumber,omitempty"`
	ExposureTime string `json:"exposureTime,omitempty"`
	ISO          string `json:"iso,omitempty"`
	FocalLength  string `json:"focalLength,omitempty"`
}

// IsEmpty reports whether no field was extracted.
func (d Data) IsEmpty() bool {
	return d == Data{}
}

// Map returns the non-empty fields keyed by their JSON names.
func (d Data) Map() map[string]string {
	m := make(map[string]string, 7)
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("make", d.Make)
	put("model", d.Model)
	put("lensModel", d.LensModel)
	put("fNumber", d.FNumber)
	put("exposureTime", d.ExposureTime)
	put("iso", d.ISO)
	put("focalLength", d.FocalLength)
	return m
}

// Supported reports whether EXIF extraction is attempted for mimeType.
func Supported(mimeType string) bool {
	return supportedTypes[strings.ToLower(mimeType)]
}

// Extract reads camera settings from data. A missing file name or a MIME
// type outside jpeg/png/tiff is an error; a corrupt or absent EXIF block is
// not, and yields empty Data.
func Extract(filename, mimeType string, data []byte) (Data, error) {
	if filename == "" {
		return Data{}, ErrInvalidFile
	}
	if !Supported(mimeType) {
		return Data{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	raw, err := readRaw(data)
	if err != nil {
		return Data{}, nil
	}
	return Format(raw, StyleServer), nil
}

func readRaw(data []byte) (Raw, error) {
	// A broken GPS or interop sub-IFD is reported as a non-critical error
	// alongside a usable result.
	x, err := goexif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || goexif.IsCriticalError(err)) {
		return Raw{}, err
	}

	raw := Raw{
		Make:      stringTag(x, goexif.Make),
		Model:     stringTag(x, goexif.Model),
		LensModel: stringTag(x, goexif.LensModel),
	}
	raw.FNumber = ratTag(x, goexif.FNumber)
	raw.ExposureTime = ratTag(x, goexif.ExposureTime)
	raw.FocalLength = ratTag(x, goexif.FocalLength)
	if tag, err := x.Get(goexif.ISOSpeedRatings); err == nil {
		if v, err := tag.Int(0); err == nil {
			raw.ISO = &v
		}
	}
	return raw, nil
}

func stringTag(x *goexif.Exif, name goexif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil || tag.Format() != tiff.StringVal {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(s, "\x00"))
}

func ratTag(x *goexif.Exif, name goexif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	r, err := tag.Rat(0)
	if err != nil {
		return nil
	}
	f, _ := r.Float64()
	return &f
}
