package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"photocritique/internal/server/apperr"
	"photocritique/internal/server/database"
	"photocritique/internal/server/kv"
)

type ShareConfirmation struct {
	ShareID string `json:"shareId"`
	URL     string `json:"url"`
}

// ConfirmShare checks that shareID names an existing critique and returns
// its public URL.
func (s *CritiqueService) ConfirmShare(ctx context.Context, shareID string) (*ShareConfirmation, error) {
	shareID = strings.TrimSpace(shareID)
	if shareID == "" {
		return nil, apperr.New(apperr.CodeInvalidRequest).WithDetails("shareId is required")
	}

	rec, err := s.kv.GetCritique(ctx, shareID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeKVConnectionError, "")
	}
	if rec == nil {
		return nil, apperr.New(apperr.CodeDataNotFound).WithDetails("share " + shareID)
	}
	return &ShareConfirmation{ShareID: shareID, URL: s.shareURL(shareID)}, nil
}

// DeleteCritique removes a critique, its share record, its stored image and
// its index row. token must match the deletion token issued at creation.
func (s *CritiqueService) DeleteCritique(ctx context.Context, id, token string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.New(apperr.CodeInvalidID)
	}

	rec, err := s.kv.GetCritique(ctx, id)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeKVConnectionError, "")
	}
	if rec == nil {
		return s.deleteIndexed(ctx, id, token)
	}
	if rec.DeletionTokenHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(rec.DeletionTokenHash), []byte(token)) != nil {
		return apperr.New(apperr.CodeInvalidDeletionToken)
	}

	for _, key := range []string{kv.CritiqueKey(id), kv.ShareKey(id)} {
		if err := s.kv.Delete(ctx, key); err != nil {
			return apperr.Wrap(err, apperr.CodeKVConnectionError, "")
		}
	}
	s.discardImage(ctx, rec)
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to delete index row", "id", id, "error", err)
		}
	}

	s.logger.Info("critique deleted", "id", id)
	return nil
}

// deleteIndexed removes the stored image and index row of a critique whose
// key-value record is gone, such as after a Redis flush.
func (s *CritiqueService) deleteIndexed(ctx context.Context, id, token string) error {
	if s.index == nil {
		return apperr.New(apperr.CodeDataNotFound).WithDetails("id " + id)
	}

	row, err := s.index.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrCritiqueNotFound) {
			return apperr.New(apperr.CodeDataNotFound).WithDetails("id " + id)
		}
		return apperr.Wrap(err, apperr.CodeStorageError, "")
	}
	if bcrypt.CompareHashAndPassword([]byte(row.DeletionTokenHash), []byte(token)) != nil {
		return apperr.New(apperr.CodeInvalidDeletionToken)
	}

	s.discardImage(ctx, &kv.CritiqueRecord{ID: row.ID, ImageKey: row.ImageKey})
	if err := s.index.Delete(ctx, id); err != nil {
		return apperr.Wrap(err, apperr.CodeStorageError, "")
	}

	s.logger.Info("indexed critique deleted", "id", id)
	return nil
}
