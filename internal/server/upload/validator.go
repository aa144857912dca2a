// Package upload validates image files submitted through multipart forms.
package upload

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"photocritique/internal/server/apperr"
)

const (
	FieldImage = "image"

	MaxUploadSize   int64 = 10 << 20
	MaxCritiqueSize int64 = 20 << 20
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
}

// Opener yields a fresh reader over the file contents.
type Opener interface {
	Open() (io.ReadCloser, error)
}

// File is a validated uploaded file. Its contents are read once through
// ReadAll and the resulting buffer is shared by every later stage.
type File struct {
	Name        string
	ContentType string
	Size        int64

	opener Opener
}

func NewFile(name, contentType string, size int64, opener Opener) *File {
	return &File{Name: name, ContentType: normalizeType(contentType), Size: size, opener: opener}
}

// ReadAll reads the whole file into memory.
func (f *File) ReadAll() ([]byte, error) {
	rc, err := f.opener.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, f.Size+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

type headerOpener struct {
	fh *multipart.FileHeader
}

func (h headerOpener) Open() (io.ReadCloser, error) {
	return h.fh.Open()
}

// ExtractFile pulls field out of form and validates it. Checks run in a
// fixed order: presence, file-ness, emptiness, size, then type. Every
// failure is an *apperr.AppError.
func ExtractFile(form *multipart.Form, field string, maxSize int64) (*File, error) {
	if form == nil {
		return nil, apperr.New(apperr.CodeFileNotSelected)
	}

	headers := form.File[field]
	if len(headers) == 0 {
		// An empty file input is submitted with filename="" and lands
		// among the plain values.
		if vals, ok := form.Value[field]; ok && !allEmpty(vals) {
			return nil, apperr.New(apperr.CodeInvalidFormData).
				WithDetails(fmt.Sprintf("field %q must be a file", field))
		}
		return nil, apperr.New(apperr.CodeFileNotSelected)
	}

	fh := headers[0]
	file := NewFile(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, headerOpener{fh: fh})
	if err := Validate(file, maxSize); err != nil {
		return nil, err
	}
	return file, nil
}

// Validate applies the size and type rules to an already extracted file.
func Validate(f *File, maxSize int64) error {
	if f.Size <= 0 {
		return apperr.New(apperr.CodeFileEmpty)
	}
	if f.Size > maxSize {
		return apperr.New(apperr.CodeFileTooLarge).
			WithDetails(fmt.Sprintf("file is %d bytes, limit is %d", f.Size, maxSize))
	}
	if !allowedTypes[f.ContentType] {
		return apperr.New(apperr.CodeUnsupportedFormat).
			WithDetails(fmt.Sprintf("content type %q", f.ContentType))
	}
	return nil
}

func allEmpty(vals []string) bool {
	for _, v := range vals {
		if v != "" {
			return false
		}
	}
	return true
}

func normalizeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
