package ai

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"photocritique/internal/server/apperr"
)

const (
	retryInitialInterval = time.Second
	retryMaxInterval     = 5 * time.Second
)

// Retrier re-runs an Analyzer with exponential backoff: 1s, 2s, 4s, then
// 5s for every later wait. Attempts are strictly sequential.
type Retrier struct {
	analyzer Analyzer
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

type RetrierOption func(*Retrier)

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(context.Context, time.Duration) error) RetrierOption {
	return func(r *Retrier) { r.sleep = fn }
}

func NewRetrier(analyzer Analyzer, logger *slog.Logger, opts ...RetrierOption) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Retrier{analyzer: analyzer, logger: logger, sleep: sleepContext}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryInitialInterval
	b.Multiplier = 2
	b.MaxInterval = retryMaxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// AnalyzeWithRetry makes up to maxRetries+1 attempts and returns the first
// success. When every attempt fails the last failure is returned as an
// *apperr.AppError.
func (r *Retrier) AnalyzeWithRetry(ctx context.Context, image []byte, mimeType string, maxRetries int) (*Critique, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	b := newBackOff()
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		critique, err := r.analyzer.Analyze(ctx, image, mimeType)
		if err == nil {
			return critique, nil
		}
		lastErr = err

		r.logger.Warn("critique attempt failed",
			"attempt", attempt+1,
			"max_attempts", maxRetries+1,
			"code", apperr.CodeOf(err),
			"error", err,
		)
		if attempt == maxRetries {
			break
		}

		wait := b.NextBackOff()
		r.logger.Info("retrying critique", "wait_ms", wait.Milliseconds())
		if err := r.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	return nil, apperr.From(lastErr)
}
