package client

import (
	"os"
	"path/filepath"
	"testing"
)

func assertValidationError(t *testing.T, err error, expectedArg string, expectedCause string) {
	t.Helper()
	validationErr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if expectedArg != "" && validationErr.Arg != expectedArg {
		t.Errorf("expected Arg to be %q, got %q", expectedArg, validationErr.Arg)
	}
	if expectedCause != "" && validationErr.Cause != expectedCause {
		t.Errorf("expected Cause to be %q, got %q", expectedCause, validationErr.Cause)
	}
}

func TestParseArgs(t *testing.T) {
	t.Run("empty args returns error", func(t *testing.T) {
		result, err := ParseArgs([]string{})
		if result != nil {
			t.Error("expected nil result for empty args")
		}
		assertValidationError(t, err, "<image>", "no image provided")
	})

	t.Run("png image", func(t *testing.T) {
		p := writePNG(t, t.TempDir())

		result, err := ParseArgs([]string{p})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.MimeType != "image/png" {
			t.Errorf("expected image/png, got %s", result.MimeType)
		}
		if result.Name != "photo.png" {
			t.Errorf("expected photo.png, got %s", result.Name)
		}
		if result.Size == 0 {
			t.Error("expected non-zero size")
		}
	})

	t.Run("more than one image", func(t *testing.T) {
		dir := t.TempDir()
		p := writePNG(t, dir)
		_, err := ParseArgs([]string{p, p})
		assertValidationError(t, err, p, "only one image can be critiqued at a time")
	})

	t.Run("missing file", func(t *testing.T) {
		missing := filepath.Join(t.TempDir(), "nope.jpg")
		_, err := ParseArgs([]string{missing})
		assertValidationError(t, err, missing, "not found or not accessible")
	})

	t.Run("directory", func(t *testing.T) {
		dir := t.TempDir()
		_, err := ParseArgs([]string{dir})
		assertValidationError(t, err, dir, "is a directory")
	})

	t.Run("empty file", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "empty.jpg")
		if err := os.WriteFile(p, nil, 0644); err != nil {
			t.Fatal(err)
		}
		_, err := ParseArgs([]string{p})
		assertValidationError(t, err, p, "file is empty")
	})

	t.Run("text file", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "notes.jpg")
		if err := os.WriteFile(p, []byte("just some text"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := ParseArgs([]string{p})
		assertValidationError(t, err, p, "unsupported format text/plain; charset=utf-8")
	})
}
