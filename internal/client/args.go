package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
)

// ValidationError reports a rejected command-line argument.
type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// supportedTypes mirrors the server's upload allow-list.
var supportedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ImageFile is a local image accepted for upload.
type ImageFile struct {
	Path     string
	Name     string
	MimeType string
	Size     int64
}

// ParseArgs checks that exactly one readable image was given and detects its
// type from the file content.
func ParseArgs(args []string) (*ImageFile, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<image>", Cause: "no image provided"}
	}
	if len(args) > 1 {
		return nil, &ValidationError{Arg: args[1], Cause: "only one image can be critiqued at a time"}
	}

	raw := args[0]
	p := filepath.Clean(raw)
	info, err := os.Stat(p)
	if err != nil {
		return nil, &ValidationError{Arg: raw, Cause: "not found or not accessible"}
	}
	if info.IsDir() {
		return nil, &ValidationError{Arg: raw, Cause: "is a directory"}
	}
	if info.Size() == 0 {
		return nil, &ValidationError{Arg: raw, Cause: "file is empty"}
	}

	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return nil, &ValidationError{Arg: raw, Cause: "could not be read"}
	}
	if !supportedTypes[mt.String()] {
		return nil, &ValidationError{Arg: raw, Cause: "unsupported format " + mt.String()}
	}

	return &ImageFile{
		Path:     p,
		Name:     filepath.Base(p),
		MimeType: mt.String(),
		Size:     info.Size(),
	}, nil
}
