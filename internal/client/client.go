// Package client talks to the photo critique API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"photocritique/internal/server/apperr"
	"photocritique/internal/server/kv"
	"photocritique/internal/server/service"
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	Status  int
	Code    apperr.Code
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	ShareData json.RawMessage `json:"shareData"`
	Error     string          `json:"error"`
	Code      apperr.Code     `json:"code"`
}

// Client calls the critique API at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
	sleep   func(context.Context, time.Duration) error
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSleep replaces the wait between retries.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload sends the image to the preview endpoint and returns its EXIF data
// and transcoded rendition.
func (c *Client) Upload(ctx context.Context, img *ImageFile) (*service.UploadResult, error) {
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	var result service.UploadResult
	if err := c.postImage(ctx, "/api/upload", img.Name, img.MimeType, data, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Critique requests a critique for data. exifData, when non-empty, is sent
// along so the server skips its own extraction. Retryable failures are
// retried as the error code's strategy allows.
func (c *Client) Critique(ctx context.Context, name, mimeType string, data []byte, exifData map[string]string) (*service.CritiqueResult, error) {
	fields := map[string]string{}
	if len(exifData) > 0 {
		raw, err := json.Marshal(exifData)
		if err != nil {
			return nil, fmt.Errorf("failed to encode exif data: %w", err)
		}
		fields["exifData"] = string(raw)
	}

	var result service.CritiqueResult
	attempt := 0
	for {
		attempt++
		err := c.postImage(ctx, "/api/critique", name, mimeType, data, fields, &result)
		if err == nil {
			return &result, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		strategy := apperr.StrategyFor(apiErr.Code)
		if !strategy.ShouldRetry || attempt >= strategy.MaxAttempts {
			return nil, err
		}
		if err := c.sleep(ctx, strategy.Delay); err != nil {
			return nil, err
		}
	}
}

// Get fetches a stored critique by share id.
func (c *Client) Get(ctx context.Context, shareID string) (*kv.CritiqueRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/critique/"+shareID, nil)
	if err != nil {
		return nil, err
	}
	var rec kv.CritiqueRecord
	if err := c.do(req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes a critique with its deletion token.
func (c *Client) Delete(ctx context.Context, shareID, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/critique/"+shareID+"/"+token, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) postImage(ctx context.Context, path, name, mimeType string, data []byte, fields map[string]string, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
