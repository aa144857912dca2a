package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"photocritique/internal/server/apperr"
)

// envelope is the JSON shape of every API response.
type envelope struct {
	Success   bool        `json:"success"`
	Data      any         `json:"data,omitempty"`
	ShareData any         `json:"shareData,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      apperr.Code `json:"code,omitempty"`
}

func respondOK(c echo.Context, status int, data any) error {
	return c.JSON(status, envelope{Success: true, Data: data})
}

// respondError writes err as a failure envelope. Only the code and its fixed
// message leave the server; details and stack are logged.
func respondError(c echo.Context, err error) error {
	appErr := apperr.From(err)

	attrs := []any{
		"code", appErr.Code,
		"status", appErr.Status,
		"details", appErr.Details,
		"path", c.Request().URL.Path,
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	}
	if appErr.Stack != "" {
		attrs = append(attrs, "stack", appErr.Stack)
	}
	if appErr.Status >= http.StatusInternalServerError {
		slog.Error("request failed", attrs...)
	} else {
		slog.Info("request rejected", attrs...)
	}

	if strategy := apperr.StrategyFor(appErr.Code); strategy.ShouldRetry {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(strategy.Delay.Seconds())))
	}

	return c.JSON(appErr.Status, envelope{
		Success: false,
		Error:   appErr.Message,
		Code:    appErr.Code,
	})
}

// errorHandler renders errors that escape handlers, including the ones echo
// itself produces for unknown routes and oversized bodies.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusRequestEntityTooLarge:
			err = apperr.Wrap(err, apperr.CodeFileTooLarge, "")
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			c.JSON(he.Code, envelope{Success: false, Error: http.StatusText(he.Code)})
			return
		default:
			if he.Code < http.StatusInternalServerError {
				err = apperr.Wrap(err, apperr.CodeInvalidRequest, "")
			} else {
				err = apperr.Wrap(err, apperr.CodeUnknownError, "")
			}
		}
	}

	if rerr := respondError(c, err); rerr != nil {
		slog.Error("failed to write error response", "error", rerr)
	}
}
