// Package service holds the critique pipeline: validation, analysis,
// persistence, retrieval and deletion.
package service

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"photocritique/internal/server/ai"
	"photocritique/internal/server/config"
	"photocritique/internal/server/database"
	"photocritique/internal/server/kv"
	"photocritique/internal/server/storage"
)

var tracer = otel.Tracer("photocritique/service")

// Critic runs the AI critique with retries.
type Critic interface {
	AnalyzeWithRetry(ctx context.Context, image []byte, mimeType string, maxRetries int) (*ai.Critique, error)
}

// Index is the durable critique index. It is optional.
type Index interface {
	Create(ctx context.Context, c *database.Critique) error
	GetByID(ctx context.Context, id string) (*database.Critique, error)
	Delete(ctx context.Context, id string) error
	GetStats(ctx context.Context) (*database.Stats, error)
}

// CritiqueService contains the business logic for critiques.
type CritiqueService struct {
	critic Critic
	kv     *kv.Store
	images storage.Store
	index  Index
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*CritiqueService)

// WithImageStore stores images as blobs instead of inline data URLs.
func WithImageStore(store storage.Store) Option {
	return func(s *CritiqueService) { s.images = store }
}

// WithIndex records every critique in a durable index.
func WithIndex(index Index) Option {
	return func(s *CritiqueService) { s.index = index }
}

func WithClock(now func() time.Time) Option {
	return func(s *CritiqueService) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *CritiqueService) { s.logger = logger }
}

func NewCritiqueService(critic Critic, store *kv.Store, cfg *config.Config, opts ...Option) *CritiqueService {
	s := &CritiqueService{
		critic: critic,
		kv:     store,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasIndex reports whether a durable index is configured.
func (s *CritiqueService) HasIndex() bool {
	return s.index != nil
}

// Stats returns index totals.
func (s *CritiqueService) Stats(ctx context.Context) (*database.Stats, error) {
	return s.index.GetStats(ctx)
}

// Ping checks that the key-value backend accepts writes and reads.
func (s *CritiqueService) Ping(ctx context.Context) bool {
	return s.kv.TestConnection(ctx)
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
