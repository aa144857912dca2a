package service

import (
	"context"
	"mime/multipart"

	"golang.org/x/sync/errgroup"

	"photocritique/internal/server/apperr"
	"photocritique/internal/server/exif"
	"photocritique/internal/server/transcode"
	"photocritique/internal/server/upload"
)

// ProcessedImage describes the transcoded rendition returned to the client.
type ProcessedImage struct {
	DataURL       string `json:"dataUrl"`
	OriginalSize  int    `json:"originalSize"`
	ProcessedSize int    `json:"processedSize"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}

// UploadResult is returned by the upload preview endpoint.
type UploadResult struct {
	ExifData       map[string]string `json:"exifData"`
	ProcessedImage ProcessedImage    `json:"processedImage"`
}

// ProcessUpload validates the image in form, then extracts EXIF and
// transcodes it concurrently from the same buffer.
func (s *CritiqueService) ProcessUpload(ctx context.Context, form *multipart.Form) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "upload.process")
	defer span.End()

	file, err := upload.ExtractFile(form, upload.FieldImage, s.cfg.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	data, err := file.ReadAll()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeUploadFailed, "")
	}

	var (
		exifData  exif.Data
		processed *transcode.Result
	)
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		exifData = s.resolveExif(file, data, nil)
		return nil
	})
	g.Go(func() error {
		r, err := transcode.Transcode(data, file.ContentType)
		if err != nil {
			return err
		}
		processed = r
		return nil
	})
	if err := g.Wait(); err != nil {
		appErr := apperr.From(err)
		s.logger.Warn("upload processing failed", "code", appErr.Code, "details", appErr.Details)
		return nil, appErr
	}

	s.logger.Info("upload processed",
		"filename", file.Name,
		"original_size", processed.OriginalSize,
		"processed_size", processed.ProcessedSize,
	)

	return &UploadResult{
		ExifData: exifData.Map(),
		ProcessedImage: ProcessedImage{
			DataURL:       dataURL(processed.ContentType, processed.Data),
			OriginalSize:  processed.OriginalSize,
			ProcessedSize: processed.ProcessedSize,
			Width:         processed.Width,
			Height:        processed.Height,
		},
	}, nil
}
