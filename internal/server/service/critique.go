package service

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"

	"photocritique/internal/server/apperr"
	"photocritique/internal/server/database"
	"photocritique/internal/server/exif"
	"photocritique/internal/server/kv"
	"photocritique/internal/server/upload"
)

// CritiqueResult is returned after a successful critique.
type CritiqueResult struct {
	Technique     string    `json:"technique"`
	Composition   string    `json:"composition"`
	Color         string    `json:"color"`
	Overall       string    `json:"overall,omitempty"`
	ShareID       string    `json:"shareId"`
	ShareURL      string    `json:"shareUrl"`
	ExpiresAt     time.Time `json:"expiresAt"`
	DeletionToken string    `json:"deletionToken"`
}

// GenerateCritique validates the image in form, critiques it and persists
// the result under a fresh share id. precomputed, when non-nil, replaces
// server-side EXIF extraction. Every returned error is an *apperr.AppError.
func (s *CritiqueService) GenerateCritique(ctx context.Context, form *multipart.Form, precomputed *exif.Data) (*CritiqueResult, error) {
	file, err := upload.ExtractFile(form, upload.FieldImage, s.cfg.MaxCritiqueSize)
	if err != nil {
		s.logger.Info("critique rejected", "code", apperr.CodeOf(err))
		return nil, err
	}
	return s.critiqueFile(ctx, file, precomputed)
}

// critiqueFile runs the pipeline for an extracted file. The file contents
// are read exactly once.
func (s *CritiqueService) critiqueFile(ctx context.Context, file *upload.File, precomputed *exif.Data) (result *CritiqueResult, err error) {
	ctx, span := tracer.Start(ctx, "critique.generate")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = apperr.New(apperr.CodeUnknownError).WithDetails(fmt.Sprint(r))
		}
		if err != nil {
			appErr := apperr.From(err)
			span.SetStatus(codes.Error, string(appErr.Code))
			s.logger.Error("critique failed",
				"code", appErr.Code,
				"details", appErr.Details,
				"stack", appErr.Stack,
			)
			err = appErr
		}
	}()

	if !strings.HasPrefix(file.ContentType, "image/") {
		return nil, apperr.New(apperr.CodeInvalidFileType)
	}
	span.SetAttributes(
		attribute.String("image.mime_type", file.ContentType),
		attribute.Int64("image.size", file.Size),
	)

	data, err := file.ReadAll()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUploadFailed, "")
	}

	exifData := s.resolveExif(file, data, precomputed)

	aiCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.cfg.CritiqueTimeout > 0 {
		aiCtx, cancel = context.WithTimeout(ctx, s.cfg.CritiqueTimeout)
	}
	defer cancel()
	critique, err := s.critic.AnalyzeWithRetry(aiCtx, data, file.ContentType, s.cfg.CritiqueMaxRetries)
	if err != nil {
		return nil, err
	}

	id, err := s.kv.GenerateID()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeProcessingError, "")
	}
	deletionToken, tokenHash, err := newDeletionToken()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeProcessingError, "")
	}

	now := s.now().UTC()
	expiresAt := now.Add(kv.TTL)
	record := &kv.CritiqueRecord{
		ID:                id,
		Filename:          file.Name,
		MimeType:          file.ContentType,
		UploadedAt:        now,
		Technique:         critique.Technique,
		Composition:       critique.Composition,
		Color:             critique.Color,
		Overall:           critique.Overall,
		ExifData:          exifData.Map(),
		ExpiresAt:         expiresAt,
		DeletionTokenHash: tokenHash,
	}

	if s.images != nil {
		if _, err := s.images.Save(ctx, id, bytes.NewReader(data), int64(len(data)), file.ContentType); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeStorageError, "")
		}
		record.ImageKey = id
		record.ImageURL = fmt.Sprintf("%s/api/critique/%s/image", s.cfg.BaseURL, id)
	} else {
		record.ImageData = dataURL(file.ContentType, data)
	}

	if err := s.kv.SaveCritique(ctx, record); err != nil {
		s.discardImage(ctx, record)
		return nil, apperr.Wrap(err, apperr.CodeKVConnectionError, "")
	}
	share := &kv.ShareRecord{ID: id, CritiqueID: id, CreatedAt: now, ExpiresAt: expiresAt}
	if err := s.kv.SaveShare(ctx, share); err != nil {
		if derr := s.kv.Delete(ctx, kv.CritiqueKey(id)); derr != nil {
			s.logger.Warn("failed to discard critique record", "id", id, "error", derr)
		}
		s.discardImage(ctx, record)
		return nil, apperr.Wrap(err, apperr.CodeKVConnectionError, "")
	}

	s.indexCritique(ctx, record, int64(len(data)))

	s.logger.Info("critique generated",
		"id", id,
		"filename", file.Name,
		"size", len(data),
		"exif_fields", len(record.ExifData),
	)

	return &CritiqueResult{
		Technique:     critique.Technique,
		Composition:   critique.Composition,
		Color:         critique.Color,
		Overall:       critique.Overall,
		ShareID:       id,
		ShareURL:      s.shareURL(id),
		ExpiresAt:     expiresAt,
		DeletionToken: deletionToken,
	}, nil
}

func (s *CritiqueService) resolveExif(file *upload.File, data []byte, precomputed *exif.Data) exif.Data {
	if precomputed != nil {
		return *precomputed
	}
	d, err := exif.Extract(file.Name, file.ContentType, data)
	if err != nil {
		s.logger.Debug("exif extraction skipped", "filename", file.Name, "error", err)
		return exif.Data{}
	}
	return d
}

// indexCritique records the critique in the durable index. Failures are
// logged; the key-value record is authoritative.
func (s *CritiqueService) indexCritique(ctx context.Context, rec *kv.CritiqueRecord, size int64) {
	if s.index == nil {
		return
	}
	err := s.index.Create(ctx, &database.Critique{
		ID:                rec.ID,
		Filename:          rec.Filename,
		MimeType:          rec.MimeType,
		SizeBytes:         size,
		ImageKey:          rec.ImageKey,
		DeletionTokenHash: rec.DeletionTokenHash,
		CreatedAt:         rec.UploadedAt,
		ExpiresAt:         rec.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn("failed to index critique", "id", rec.ID, "error", err)
	}
}

func (s *CritiqueService) discardImage(ctx context.Context, rec *kv.CritiqueRecord) {
	if s.images == nil || rec.ImageKey == "" {
		return
	}
	if err := s.images.Delete(ctx, rec.ImageKey); err != nil {
		s.logger.Warn("failed to discard image", "id", rec.ID, "error", err)
	}
}

func (s *CritiqueService) shareURL(id string) string {
	return s.cfg.BaseURL + "/share/" + id
}

func newDeletionToken() (token, hash string, err error) {
	raw, err := kv.GenerateToken(24)
	if err != nil {
		return "", "", err
	}
	token = "del_" + raw
	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash deletion token: %w", err)
	}
	return token, string(h), nil
}
