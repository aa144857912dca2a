package upload

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocritique/internal/server/apperr"
)

type part struct {
	field       string
	filename    string
	contentType string
	body        []byte
}

func buildForm(t *testing.T, parts []part, values map[string]string) *multipart.Form {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.body)
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	return form
}

func TestExtractFile(t *testing.T) {
	tests := []struct {
		name   string
		parts  []part
		values map[string]string
		max    int64
		code   apperr.Code
	}{
		{
			name: "missing field",
			max:  MaxUploadSize,
			code: apperr.CodeFileNotSelected,
		},
		{
			name:   "text instead of file",
			values: map[string]string{FieldImage: "hello"},
			max:    MaxUploadSize,
			code:   apperr.CodeInvalidFormData,
		},
		{
			name:  "empty file",
			parts: []part{{FieldImage, "a.jpg", "image/jpeg", nil}},
			max:   MaxUploadSize,
			code:  apperr.CodeFileEmpty,
		},
		{
			name:  "browser empty file input",
			parts: []part{{FieldImage, "", "application/octet-stream", nil}},
			max:   MaxUploadSize,
			code:  apperr.CodeFileNotSelected,
		},
		{
			name:  "too large",
			parts: []part{{FieldImage, "a.jpg", "image/jpeg", bytes.Repeat([]byte{1}, 2048)}},
			max:   1024,
			code:  apperr.CodeFileTooLarge,
		},
		{
			name:  "one byte over",
			parts: []part{{FieldImage, "a.jpg", "image/jpeg", bytes.Repeat([]byte{1}, 1025)}},
			max:   1024,
			code:  apperr.CodeFileTooLarge,
		},
		{
			name:  "unsupported type",
			parts: []part{{FieldImage, "a.gif", "image/gif", []byte("GIF89a")}},
			max:   MaxUploadSize,
			code:  apperr.CodeUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := buildForm(t, tt.parts, tt.values)
			_, err := ExtractFile(form, FieldImage, tt.max)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

func TestExtractFileNilForm(t *testing.T) {
	_, err := ExtractFile(nil, FieldImage, MaxUploadSize)
	assert.Equal(t, apperr.CodeFileNotSelected, apperr.CodeOf(err))
}

func TestExtractFileAccepts(t *testing.T) {
	for _, ct := range []string{"image/jpeg", "image/jpg", "image/png", "image/webp", "IMAGE/PNG; charset=binary"} {
		t.Run(ct, func(t *testing.T) {
			form := buildForm(t, []part{{FieldImage, "photo", ct, []byte("pixels")}}, nil)
			f, err := ExtractFile(form, FieldImage, MaxUploadSize)
			require.NoError(t, err)
			assert.Equal(t, "photo", f.Name)
			assert.Equal(t, int64(6), f.Size)

			data, err := f.ReadAll()
			require.NoError(t, err)
			assert.Equal(t, []byte("pixels"), data)
		})
	}
}

func TestExtractFileExactlyAtLimit(t *testing.T) {
	form := buildForm(t, []part{{FieldImage, "a.png", "image/png", bytes.Repeat([]byte{1}, 1024)}}, nil)
	_, err := ExtractFile(form, FieldImage, 1024)
	assert.NoError(t, err)
}

func TestValidateSizeBoundary(t *testing.T) {
	tests := []struct {
		name string
		size int64
		max  int64
		code apperr.Code
	}{
		{"upload at limit", MaxUploadSize, MaxUploadSize, ""},
		{"upload over limit", MaxUploadSize + 1, MaxUploadSize, apperr.CodeFileTooLarge},
		{"critique at limit", MaxCritiqueSize, MaxCritiqueSize, ""},
		{"critique over limit", MaxCritiqueSize + 1, MaxCritiqueSize, apperr.CodeFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFile("a.jpg", "image/jpeg", tt.size, &countingOpener{})
			err := Validate(f, tt.max)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.code, apperr.CodeOf(err))
		})
	}
}

type countingOpener struct {
	body  string
	opens int
}

func (c *countingOpener) Open() (io.ReadCloser, error) {
	c.opens++
	return io.NopCloser(strings.NewReader(c.body)), nil
}

func TestReadAllOpensOnce(t *testing.T) {
	o := &countingOpener{body: "jpeg bytes"}
	f := NewFile("a.jpg", "image/jpeg", int64(len(o.body)), o)

	require.NoError(t, Validate(f, MaxUploadSize))
	data, err := f.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, "jpeg bytes", string(data))
	assert.Equal(t, 1, o.opens)
}
