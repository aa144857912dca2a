package ai

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"photocritique/internal/server/apperr"
)

const sampleJSON = `{"technique":"露出は適正でピントも合っています","composition":"三分割法が効いています","color":"暖色のトーンが印象的です","overall":"完成度の高い一枚です"}`

func TestParseResponse(t *testing.T) {
	t.Run("tolerates surrounding prose", func(t *testing.T) {
		c, err := ParseResponse("講評です:\n```json\n" + sampleJSON + "\n```\n以上です。")
		require.NoError(t, err)
		assert.Equal(t, "三分割法が効いています", c.Composition)
		assert.Equal(t, "完成度の高い一枚です", c.Overall)
	})

	t.Run("overall is optional", func(t *testing.T) {
		c, err := ParseResponse(`{"technique":"a","composition":"b","color":"c"}`)
		require.NoError(t, err)
		assert.Empty(t, c.Overall)
	})

	t.Run("braces inside strings", func(t *testing.T) {
		c, err := ParseResponse(`x {"technique":"uses {curly}","composition":"b","color":"c"} {"other":1}`)
		require.NoError(t, err)
		assert.Equal(t, "uses {curly}", c.Technique)
	})

	t.Run("coerces non-string values", func(t *testing.T) {
		c, err := ParseResponse(`{"technique":42,"composition":true,"color":"c"}`)
		require.NoError(t, err)
		assert.Equal(t, "42", c.Technique)
		assert.Equal(t, "true", c.Composition)
	})

	failures := []struct {
		name string
		text string
		want error
	}{
		{"empty", "   ", ErrEmptyResponse},
		{"no object", "no json here", ErrNoJSON},
		{"unbalanced", `{"technique":"a"`, ErrNoJSON},
		{"malformed", `{technique: a}`, ErrMalformedJSON},
		{"missing color", `{"technique":"a","composition":"b"}`, ErrMissingField},
		{"blank field", `{"technique":"a","composition":"","color":"c"}`, ErrMissingField},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.text)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	return nil
}

func TestGovernorBlocksWhenWindowExhausted(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var slept []time.Duration

	g := NewGovernor(3, time.Minute)
	g.now = clock.Now
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return clock.Sleep(ctx, d)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Wait(context.Background()))
	}
	assert.Empty(t, slept)

	clock.Sleep(context.Background(), 20*time.Second)
	require.NoError(t, g.Wait(context.Background()))

	require.Len(t, slept, 1)
	assert.Equal(t, 40*time.Second, slept[0])
	assert.Equal(t, 1, g.count)
}

func TestGovernorHonorsCancellation(t *testing.T) {
	g := NewGovernor(1, time.Hour)
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.Canceled)
}

type fakeGenerator struct {
	calls    int
	text     string
	err      error
	lastMIME string
	lastCfg  *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.lastCfg = cfg
	if len(contents) == 1 && len(contents[0].Parts) == 2 && contents[0].Parts[1].InlineData != nil {
		f.lastMIME = contents[0].Parts[1].InlineData.MIMEType
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.text == "" {
		return &genai.GenerateContentResponse{}, nil
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestGeminiClientAnalyze(t *testing.T) {
	gen := &fakeGenerator{text: sampleJSON}
	c := newClient(gen, ClientConfig{}, discardLogger())

	got, err := c.Analyze(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "暖色のトーンが印象的です", got.Color)
	assert.Equal(t, "image/png", gen.lastMIME)
	require.NotNil(t, gen.lastCfg.Temperature)
	assert.Equal(t, DefaultTemperature, *gen.lastCfg.Temperature)
	assert.Equal(t, DefaultMaxTokens, gen.lastCfg.MaxOutputTokens)
}

func TestGeminiClientClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		text string
		want apperr.Code
	}{
		{"quota", errors.New("Error 429: RESOURCE_EXHAUSTED"), "", apperr.CodeGeminiQuotaExceeded},
		{"bad key", errors.New("Error 400: API key not valid"), "", apperr.CodeGeminiUnauthorized},
		{"timeout", context.DeadlineExceeded, "", apperr.CodeGeminiTimeout},
		{"network", errors.New("network is unreachable"), "", apperr.CodeNetworkError},
		{"generic", errors.New("Error 500: internal"), "", apperr.CodeGeminiAPIError},
		{"empty text", nil, "", apperr.CodeAIServiceError},
		{"missing field", nil, `{"technique":"a"}`, apperr.CodeAIServiceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(&fakeGenerator{err: tt.err, text: tt.text}, ClientConfig{}, discardLogger())
			_, err := c.Analyze(context.Background(), []byte("img"), "image/jpeg")
			assert.Equal(t, tt.want, apperr.CodeOf(err))
		})
	}
}

func TestGeminiClientCountsFailedAttempts(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	c := newClient(gen, ClientConfig{RequestsPerWindow: 5}, discardLogger())

	_, _ = c.Analyze(context.Background(), []byte("img"), "image/jpeg")
	_, _ = c.Analyze(context.Background(), []byte("img"), "image/jpeg")

	assert.Equal(t, 2, c.governor.count)
}

func TestGeminiClientWarnsOnLength(t *testing.T) {
	var buf bytes.Buffer
	c := newClient(&fakeGenerator{text: `{"technique":"短い","composition":"b","color":"c"}`}, ClientConfig{}, slog.New(slog.NewTextHandler(&buf, nil)))

	_, err := c.Analyze(context.Background(), []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "critique field length out of range")
}

type scriptedAnalyzer struct {
	results []error
	calls   int
}

func (s *scriptedAnalyzer) Analyze(context.Context, []byte, string) (*Critique, error) {
	i := s.calls
	s.calls++
	if i < len(s.results) && s.results[i] != nil {
		return nil, s.results[i]
	}
	return &Critique{Technique: "t", Composition: "c", Color: "k"}, nil
}

func TestRetrierSucceedsOnThirdAttempt(t *testing.T) {
	var logs bytes.Buffer
	var waits []time.Duration
	a := &scriptedAnalyzer{results: []error{
		apperr.New(apperr.CodeNetworkError),
		apperr.New(apperr.CodeNetworkError),
		nil,
	}}
	r := NewRetrier(a, slog.New(slog.NewTextHandler(&logs, nil)), WithSleep(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}))

	got, err := r.AnalyzeWithRetry(context.Background(), []byte("img"), "image/jpeg", 2)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, 3, a.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
	out := logs.String()
	assert.True(t, strings.Index(out, "wait_ms=1000") < strings.Index(out, "wait_ms=2000"))
}

func TestRetrierBackoffIsCapped(t *testing.T) {
	var waits []time.Duration
	a := &scriptedAnalyzer{results: []error{
		errors.New("x"), errors.New("x"), errors.New("x"), errors.New("x"), errors.New("x"), errors.New("x"),
	}}
	r := NewRetrier(a, discardLogger(), WithSleep(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}))

	_, err := r.AnalyzeWithRetry(context.Background(), nil, "image/jpeg", 5)
	require.Error(t, err)

	assert.Equal(t, 6, a.calls)
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, waits)
}

func TestRetrierReturnsLastFailure(t *testing.T) {
	a := &scriptedAnalyzer{results: []error{
		apperr.New(apperr.CodeGeminiTimeout),
		apperr.New(apperr.CodeGeminiQuotaExceeded),
	}}
	r := NewRetrier(a, discardLogger(), WithSleep(func(context.Context, time.Duration) error { return nil }))

	_, err := r.AnalyzeWithRetry(context.Background(), nil, "image/jpeg", 1)
	assert.Equal(t, apperr.CodeGeminiQuotaExceeded, apperr.CodeOf(err))
}

func TestRetrierConvertsPlainErrors(t *testing.T) {
	a := &scriptedAnalyzer{results: []error{errors.New("unexpected EOF")}}
	r := NewRetrier(a, discardLogger())

	_, err := r.AnalyzeWithRetry(context.Background(), nil, "image/jpeg", 0)

	var appErr *apperr.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.CodeProcessingError, appErr.Code)
	assert.Equal(t, 1, a.calls)
}

func TestRetrierStopsOnFirstSuccess(t *testing.T) {
	a := &scriptedAnalyzer{}
	r := NewRetrier(a, discardLogger())

	_, err := r.AnalyzeWithRetry(context.Background(), nil, "image/jpeg", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, a.calls)
}
