package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"photocritique/internal/server/ai"
	"photocritique/internal/server/config"
	"photocritique/internal/server/database"
	"photocritique/internal/server/kv"
)

var testNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

type fakeCritic struct {
	mu       sync.Mutex
	calls    int
	gotImage []byte
	gotMIME  string
	critique *ai.Critique
	err      error
	panicMsg string
}

func (f *fakeCritic) AnalyzeWithRetry(_ context.Context, image []byte, mimeType string, _ int) (*ai.Critique, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.gotImage = image
	f.gotMIME = mimeType
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.critique != nil {
		return f.critique, nil
	}
	return &ai.Critique{
		Technique:   "露出は適正です",
		Composition: "構図は安定しています",
		Color:       "色のバランスが良いです",
	}, nil
}

type fakeIndex struct {
	created []*database.Critique
	deleted []string
}

func (f *fakeIndex) Create(_ context.Context, c *database.Critique) error {
	f.created = append(f.created, c)
	return nil
}

func (f *fakeIndex) GetByID(_ context.Context, id string) (*database.Critique, error) {
	for _, d := range f.deleted {
		if d == id {
			return nil, database.ErrCritiqueNotFound
		}
	}
	for _, c := range f.created {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, database.ErrCritiqueNotFound
}

func (f *fakeIndex) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeIndex) GetStats(context.Context) (*database.Stats, error) {
	return &database.Stats{TotalCritiques: int64(len(f.created))}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:            "https://critique.test",
		MaxUploadSize:      10 << 20,
		MaxCritiqueSize:    20 << 20,
		CritiqueMaxRetries: 1,
		CritiqueTimeout:    5 * time.Second,
	}
}

func newTestService(t *testing.T, critic Critic, opts ...Option) (*CritiqueService, *kv.Store, *time.Time) {
	t.Helper()
	now := testNow
	store := kv.NewStore(kv.NewMemoryBackend())
	base := []Option{
		WithClock(func() time.Time { return now }),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}
	svc := NewCritiqueService(critic, store, testConfig(), append(base, opts...)...)
	return svc, store, &now
}

func buildForm(t *testing.T, field, filename, contentType string, body []byte, values map[string]string) *multipart.Form {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(body)
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

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}
