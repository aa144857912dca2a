// Package ai produces photo critiques from a generative model.
package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"

	"photocritique/internal/server/apperr"
)

var tracer = otel.Tracer("photocritique/ai")

const (
	DefaultModel       = "gemini-1.5-flash"
	DefaultTemperature = float32(0.7)
	DefaultMaxTokens   = int32(1000)
)

// Analyzer produces a critique for one image.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (*Critique, error)
}

// generator is the slice of the genai client this package calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type ClientConfig struct {
	Model             string
	Temperature       float32
	MaxOutputTokens   int32
	RequestsPerWindow int
	Window            time.Duration
}

// GeminiClient calls the Gemini API. One instance owns one Governor.
type GeminiClient struct {
	models   generator
	cfg      ClientConfig
	governor *Governor
	logger   *slog.Logger
}

// NewGeminiClient connects to the Gemini API with apiKey.
func NewGeminiClient(ctx context.Context, apiKey string, cfg ClientConfig, logger *slog.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newClient(client.Models, cfg, logger), nil
}

func newClient(models generator, cfg ClientConfig, logger *slog.Logger) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		models:   models,
		cfg:      cfg,
		governor: NewGovernor(cfg.RequestsPerWindow, cfg.Window),
		logger:   logger,
	}
}

// Analyze sends the critique prompt and the image to the model. Every call
// consumes one governor slot whether it succeeds or not. Failures are
// *apperr.AppError values.
func (c *GeminiClient) Analyze(ctx context.Context, image []byte, mimeType string) (*Critique, error) {
	ctx, span := tracer.Start(ctx, "gemini.analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("ai.model", c.cfg.Model),
		attribute.String("image.mime_type", mimeType),
		attribute.Int("image.size", len(image)),
	)

	if err := c.governor.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "governor wait")
		return nil, classifyCallError(err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(critiquePrompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
	resp, err := c.models.GenerateContent(ctx, c.cfg.Model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.cfg.Temperature),
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate content")
		return nil, classifyCallError(err)
	}

	critique, err := ParseResponse(resp.Text())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse response")
		return nil, apperr.Wrap(err, apperr.CodeAIServiceError, "")
	}

	c.checkLengths(critique)
	return critique, nil
}

func (c *GeminiClient) checkLengths(cr *Critique) {
	fields := []struct{ name, value string }{
		{"technique", cr.Technique},
		{"composition", cr.Composition},
		{"color", cr.Color},
	}
	if cr.Overall != "" {
		fields = append(fields, struct{ name, value string }{"overall", cr.Overall})
	}
	for _, f := range fields {
		n := utf8.RuneCountInString(f.value)
		if n < minFieldRunes || n > maxFieldRunes {
			c.logger.Warn("critique field length out of range",
				"field", f.name,
				"runes", n,
			)
		}
	}
}

func classifyCallError(err error) *apperr.AppError {
	code, ok := apperr.ClassifyAI(err)
	if !ok {
		code = apperr.CodeGeminiAPIError
	}
	return apperr.Wrap(err, code, "")
}
