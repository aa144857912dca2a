package apperr

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ClassifyAI maps an error raised by the generative AI provider to a code.
// The second result is false when nothing matched; callers then fall back to
// GEMINI_API_ERROR.
func ClassifyAI(err error) (Code, bool) {
	if err == nil {
		return "", false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeGeminiTimeout, true
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "quota"):
		return CodeGeminiQuotaExceeded, true
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "api key"):
		return CodeGeminiUnauthorized, true
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return CodeGeminiTimeout, true
	case strings.Contains(msg, "network"):
		return CodeNetworkError, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeNetworkError, true
	}
	return "", false
}

// ClassifyFileValidation maps file validation and transcoding failures to a
// code. The second result is false when nothing matched.
func ClassifyFileValidation(err error) (Code, bool) {
	if err == nil {
		return "", false
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too large") || strings.Contains(msg, "file size"):
		return CodeFileTooLarge, true
	case strings.Contains(msg, "unsupported") || strings.Contains(msg, "format"):
		return CodeUnsupportedFormat, true
	case strings.Contains(msg, "empty"):
		return CodeFileEmpty, true
	case strings.Contains(msg, "invalid file"):
		return CodeInvalidFileType, true
	}
	return "", false
}

// From converts any error into an *AppError. Structured errors pass through
// unchanged; other errors go through the AI classifier, then the file
// classifier, and finally become PROCESSING_ERROR.
func From(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if code, ok := ClassifyAI(err); ok {
		return Wrap(err, code, "")
	}
	if code, ok := ClassifyFileValidation(err); ok {
		return Wrap(err, code, "")
	}
	return Wrap(err, CodeProcessingError, "")
}
