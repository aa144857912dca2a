package storage

import (
	"context"
	"log/slog"
	"time"

	"photocritique/internal/server/database"
)

// ExpiredIndex lists and removes indexed critiques past their expiry.
type ExpiredIndex interface {
	GetExpired(ctx context.Context) ([]*database.Critique, error)
	Delete(ctx context.Context, id string) error
}

// CleanupService periodically removes expired images and their index rows.
// The key-value records expire on their own.
type CleanupService struct {
	index    ExpiredIndex
	store    Store
	interval time.Duration
	logger   *slog.Logger
	done     chan struct{}
}

// NewCleanupService creates a cleanup service. store may be nil when images
// are kept inline.
func NewCleanupService(index ExpiredIndex, store Store, interval time.Duration, logger *slog.Logger) *CleanupService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupService{
		index:    index,
		store:    store,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (cs *CleanupService) Start(ctx context.Context) {
	cs.logger.Info("cleanup service started", "interval", cs.interval)

	go func() {
		ticker := time.NewTicker(cs.interval)
		defer ticker.Stop()

		cs.runCleanup(ctx)

		for {
			select {
			case <-ticker.C:
				cs.runCleanup(ctx)
			case <-ctx.Done():
				cs.logger.Info("cleanup service stopping")
				close(cs.done)
				return
			}
		}
	}()
}

// Wait blocks until the cleanup service has fully stopped.
func (cs *CleanupService) Wait() {
	<-cs.done
}

func (cs *CleanupService) runCleanup(ctx context.Context) (cleaned, failed int) {
	expired, err := cs.index.GetExpired(ctx)
	if err != nil {
		cs.logger.Error("failed to get expired critiques", "error", err)
		return 0, 0
	}
	if len(expired) == 0 {
		return 0, 0
	}

	for _, c := range expired {
		if c.ImageKey != "" && cs.store != nil {
			if err := cs.store.Delete(ctx, c.ImageKey); err != nil {
				cs.logger.Error("failed to delete image",
					"critique_id", c.ID,
					"error", err,
				)
				failed++
				continue
			}
		}

		if err := cs.index.Delete(ctx, c.ID); err != nil {
			cs.logger.Error("failed to delete index row",
				"critique_id", c.ID,
				"error", err,
			)
			failed++
			continue
		}

		cleaned++
	}

	cs.logger.Info("cleanup cycle complete",
		"cleaned", cleaned,
		"failed", failed,
		"total_expired", len(expired),
	)
	return cleaned, failed
}
