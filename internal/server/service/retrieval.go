package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"photocritique/internal/server/apperr"
	"photocritique/internal/server/kv"
	"photocritique/internal/server/storage"
)

// Display is what the share page renders.
type Display struct {
	Critique *kv.CritiqueRecord `json:"data"`
	Share    *kv.ShareRecord    `json:"shareData,omitempty"`
}

// FetchForDisplay resolves id to a live critique. The id is tried as a
// critique key and as a share key; a share record found without a direct
// critique redirects through its critiqueId. When a share record exists its
// expiry governs.
func (s *CritiqueService) FetchForDisplay(ctx context.Context, id string) (*Display, error) {
	rec, share, err := s.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Display{Critique: rec.Public(), Share: share}, nil
}

func (s *CritiqueService) resolve(ctx context.Context, id string) (*kv.CritiqueRecord, *kv.ShareRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, apperr.New(apperr.CodeInvalidID)
	}

	rec, err := s.kv.GetCritique(ctx, id)
	if err != nil {
		return nil, nil, apperr.Wrap(err, apperr.CodeKVConnectionError, "")
	}
	share, err := s.kv.GetShare(ctx, id)
	if err != nil {
		return nil, nil, apperr.Wrap(err, apperr.CodeKVConnectionError, "")
	}

	if rec == nil && share != nil && share.CritiqueID != "" {
		rec, err = s.kv.GetCritique(ctx, share.CritiqueID)
		if err != nil {
			return nil, nil, apperr.Wrap(err, apperr.CodeKVConnectionError, "")
		}
	}
	if rec == nil {
		return nil, nil, apperr.New(apperr.CodeDataNotFound).WithDetails("id " + id)
	}

	expiresAt := rec.ExpiresAt
	if share != nil {
		expiresAt = share.ExpiresAt
	}
	if s.now().After(expiresAt) {
		return nil, nil, apperr.New(apperr.CodeDataExpired).WithDetails("id " + id)
	}
	return rec, share, nil
}

// OpenImage returns the stored original image for a live critique.
func (s *CritiqueService) OpenImage(ctx context.Context, id string) (io.ReadCloser, string, error) {
	rec, _, err := s.resolve(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if rec.ImageKey != "" && s.images != nil {
		rc, err := s.images.Open(ctx, rec.ImageKey)
		if err != nil {
			if errors.Is(err, storage.ErrImageNotFound) {
				return nil, "", apperr.Wrap(err, apperr.CodeDataNotFound, "")
			}
			return nil, "", apperr.Wrap(err, apperr.CodeStorageError, "")
		}
		return rc, rec.MimeType, nil
	}

	mimeType, data, err := decodeDataURL(rec.ImageData)
	if err != nil {
		return nil, "", apperr.Wrap(err, apperr.CodeDataNotFound, "")
	}
	return io.NopCloser(bytes.NewReader(data)), mimeType, nil
}

func decodeDataURL(u string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return "", nil, errors.New("image is not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("malformed data URL")
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.New("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, err
	}
	return mimeType, data, nil
}
