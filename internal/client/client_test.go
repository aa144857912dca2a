package client

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photocritique/internal/server/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func noSleep(delays *[]time.Duration) Option {
	return WithSleep(func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
}

func TestCritiqueRetriesQuota(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, `{"make":"Canon"}`, r.FormValue("exifData"))

		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"success": false, "error": "quota", "code": apperr.CodeGeminiQuotaExceeded,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"technique": "t", "composition": "c", "color": "k", "shareId": "abc"},
		})
	}))
	defer srv.Close()

	var delays []time.Duration
	c := New(srv.URL, noSleep(&delays))

	res, err := c.Critique(context.Background(), "a.jpg", "image/jpeg", []byte("x"), map[string]string{"make": "Canon"})
	require.NoError(t, err)
	assert.Equal(t, "abc", res.ShareID)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{5 * time.Second}, delays)
}

func TestCritiqueGivesUpAfterStrategyAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusGatewayTimeout, map[string]any{
			"success": false, "error": "timeout", "code": apperr.CodeGeminiTimeout,
		})
	}))
	defer srv.Close()

	var delays []time.Duration
	_, err := New(srv.URL, noSleep(&delays)).Critique(context.Background(), "a.jpg", "image/jpeg", []byte("x"), nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperr.CodeGeminiTimeout, apiErr.Code)
	assert.Equal(t, http.StatusGatewayTimeout, apiErr.Status)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, delays, 1)
}

func TestCritiqueDoesNotRetryValidation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{
			"success": false, "error": "unsupported", "code": apperr.CodeUnsupportedFormat,
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Critique(context.Background(), "a.gif", "image/gif", []byte("x"), nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetAndDelete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/critique/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "abc" {
			writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "code": apperr.CodeDataNotFound})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"id": "abc", "technique": "t"},
		})
	})
	mux.HandleFunc("DELETE /api/critique/{id}/{token}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("token") != "del_ok" {
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "code": apperr.CodeInvalidDeletionToken})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL + "/")
	ctx := context.Background()

	rec, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "t", rec.Technique)

	_, err = c.Get(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperr.CodeDataNotFound, apiErr.Code)

	assert.NoError(t, c.Delete(ctx, "abc", "del_ok"))
	err = c.Delete(ctx, "abc", "del_bad")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apperr.CodeInvalidDeletionToken, apiErr.Code)
}

func TestNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Get(context.Background(), "abc")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	p := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(p, buf.Bytes(), 0644))
	return p
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		f.Close()
		assert.Equal(t, "photo.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"exifData":       map[string]string{"iso": "100"},
				"processedImage": map[string]any{"dataUrl": "data:image/jpeg;base64,AA==", "width": 4, "height": 4},
			},
		})
	}))
	defer srv.Close()

	img, err := ParseArgs([]string{writePNG(t, t.TempDir())})
	require.NoError(t, err)

	res, err := New(srv.URL).Upload(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "100", res.ExifData["iso"])
	assert.Equal(t, 4, res.ProcessedImage.Width)
}
