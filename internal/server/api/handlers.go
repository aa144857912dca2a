package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"photocritique/internal/server/apperr"
	"photocritique/internal/server/exif"
	"photocritique/internal/server/service"
)

// HealthChecker is implemented by optional dependencies reported on /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler contains the HTTP handlers for the critique API.
type Handler struct {
	svc *service.CritiqueService
	db  HealthChecker
}

// NewHandler creates a handler. db may be nil when no index is configured.
func NewHandler(svc *service.CritiqueService, db HealthChecker) *Handler {
	return &Handler{svc: svc, db: db}
}

// HandleUpload handles POST /api/upload.
// Returns EXIF data and a transcoded preview for the "image" field.
func (h *Handler) HandleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, apperr.Wrap(err, apperr.CodeInvalidFormData, ""))
	}

	result, err := h.svc.ProcessUpload(c.Request().Context(), form)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, http.StatusOK, result)
}

// HandleCritique handles POST /api/critique.
// Accepts an "image" file and an optional "exifData" JSON field.
func (h *Handler) HandleCritique(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return respondError(c, apperr.Wrap(err, apperr.CodeInvalidFormData, ""))
	}

	var precomputed *exif.Data
	if vals := form.Value["exifData"]; len(vals) > 0 && vals[0] != "" {
		var d exif.Data
		if err := json.Unmarshal([]byte(vals[0]), &d); err != nil {
			slog.Debug("ignoring malformed exifData field", "error", err)
		} else {
			precomputed = &d
		}
	}

	result, err := h.svc.GenerateCritique(c.Request().Context(), form, precomputed)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, http.StatusOK, result)
}

// HandleGetCritique handles GET /api/critique/:id.
func (h *Handler) HandleGetCritique(c echo.Context) error {
	display, err := h.svc.FetchForDisplay(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}

	resp := envelope{Success: true, Data: display.Critique}
	if display.Share != nil {
		resp.ShareData = display.Share
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleGetImage handles GET /api/critique/:id/image.
func (h *Handler) HandleGetImage(c echo.Context) error {
	rc, mimeType, err := h.svc.OpenImage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	defer rc.Close()

	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	return c.Stream(http.StatusOK, mimeType, rc)
}

type shareRequest struct {
	Critique struct {
		ShareID string `json:"shareId" validate:"required,alphanum,max=64"`
	} `json:"critique"`
}

// HandleShare handles POST /api/share.
func (h *Handler) HandleShare(c echo.Context) error {
	var req shareRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperr.Wrap(err, apperr.CodeInvalidRequest, ""))
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, apperr.Wrap(err, apperr.CodeInvalidRequest, ""))
	}

	conf, err := h.svc.ConfirmShare(c.Request().Context(), req.Critique.ShareID)
	if err != nil {
		return respondError(c, err)
	}
	return respondOK(c, http.StatusOK, conf)
}

// HandleDelete handles DELETE /api/critique/:id/:token.
func (h *Handler) HandleDelete(c echo.Context) error {
	if err := h.svc.DeleteCritique(c.Request().Context(), c.Param("id"), c.Param("token")); err != nil {
		return respondError(c, err)
	}
	return respondOK(c, http.StatusOK, echo.Map{"message": "critique deleted"})
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	status := "healthy"

	kvStatus := "connected"
	if !h.svc.Ping(ctx) {
		status = "degraded"
		kvStatus = "unreachable"
	}

	resp := echo.Map{"status": status, "kv": kvStatus}
	if h.db != nil {
		dbStatus := "connected"
		if err := h.db.HealthCheck(ctx); err != nil {
			resp["status"] = "degraded"
			dbStatus = fmt.Sprintf("error: %v", err)
		}
		resp["database"] = dbStatus
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return respondError(c, apperr.Wrap(err, apperr.CodeStorageError, ""))
	}

	return respondOK(c, http.StatusOK, echo.Map{
		"total_critiques":    stats.TotalCritiques,
		"active_critiques":   stats.ActiveCritiques,
		"storage_used_bytes": stats.StorageUsed,
		"storage_used_human": humanizeBytes(stats.StorageUsed),
	})
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
