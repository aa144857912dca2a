package apperr

import "net/http"

// Code identifies one error category. The set is closed; every code has an
// entry in messages, statuses and categories.
type Code string

// Validation errors.
const (
	CodeFileNotSelected      Code = "FILE_NOT_SELECTED"
	CodeFileEmpty            Code = "FILE_EMPTY"
	CodeFileTooLarge         Code = "FILE_TOO_LARGE"
	CodeUnsupportedFormat    Code = "UNSUPPORTED_FORMAT"
	CodeInvalidFileType      Code = "INVALID_FILE_TYPE"
	CodeInvalidFormData      Code = "INVALID_FORM_DATA"
	CodeInvalidRequest       Code = "INVALID_REQUEST"
	CodeInvalidDeletionToken Code = "INVALID_DELETION_TOKEN"
)

// System errors.
const (
	CodeUploadFailed    Code = "UPLOAD_FAILED"
	CodeAIServiceError  Code = "AI_SERVICE_ERROR"
	CodeStorageError    Code = "STORAGE_ERROR"
	CodeNetworkError    Code = "NETWORK_ERROR"
	CodeProcessingError Code = "PROCESSING_ERROR"
	CodeUnknownError    Code = "UNKNOWN_ERROR"
)

// External service errors.
const (
	CodeGeminiAPIError      Code = "GEMINI_API_ERROR"
	CodeGeminiQuotaExceeded Code = "GEMINI_QUOTA_EXCEEDED"
	CodeGeminiUnauthorized  Code = "GEMINI_UNAUTHORIZED"
	CodeGeminiTimeout       Code = "GEMINI_TIMEOUT"
	CodeKVConnectionError   Code = "KV_CONNECTION_ERROR"
)

// Data access errors.
const (
	CodeDataNotFound Code = "DATA_NOT_FOUND"
	CodeDataExpired  Code = "DATA_EXPIRED"
	CodeInvalidID    Code = "INVALID_ID"
)

// Category groups codes for retry strategy selection.
type Category string

const (
	CategoryValidation Category = "validation"
	CategorySystem     Category = "system"
	CategoryExternal   Category = "external"
	CategoryData       Category = "data"
)

var messages = map[Code]string{
	CodeFileNotSelected:      "ファイルが選択されていません",
	CodeFileEmpty:            "ファイルが空です",
	CodeFileTooLarge:         "ファイルサイズが上限を超えています",
	CodeUnsupportedFormat:    "サポートされていないファイル形式です（JPEG、PNG、WebPのみ対応）",
	CodeInvalidFileType:      "画像ファイルを選択してください",
	CodeInvalidFormData:      "フォームデータが不正です",
	CodeInvalidRequest:       "リクエストが不正です",
	CodeInvalidDeletionToken: "削除トークンが正しくありません",

	CodeUploadFailed:    "アップロードに失敗しました",
	CodeAIServiceError:  "AI講評の生成に失敗しました",
	CodeStorageError:    "データの保存に失敗しました",
	CodeNetworkError:    "ネットワークエラーが発生しました",
	CodeProcessingError: "画像の処理中にエラーが発生しました",
	CodeUnknownError:    "予期しないエラーが発生しました",

	CodeGeminiAPIError:      "AIサービスでエラーが発生しました",
	CodeGeminiQuotaExceeded: "AIサービスの利用制限に達しました。しばらく待ってから再試行してください",
	CodeGeminiUnauthorized:  "AIサービスの認証に失敗しました",
	CodeGeminiTimeout:       "AIサービスの応答がタイムアウトしました",
	CodeKVConnectionError:   "データストアに接続できません",

	CodeDataNotFound: "指定された講評が見つかりません",
	CodeDataExpired:  "この講評の共有期限が切れています",
	CodeInvalidID:    "IDが不正です",
}

var statuses = map[Code]int{
	CodeFileNotSelected:      http.StatusBadRequest,
	CodeFileEmpty:            http.StatusBadRequest,
	CodeFileTooLarge:         http.StatusRequestEntityTooLarge,
	CodeUnsupportedFormat:    http.StatusUnsupportedMediaType,
	CodeInvalidFileType:      http.StatusUnsupportedMediaType,
	CodeInvalidFormData:      http.StatusBadRequest,
	CodeInvalidRequest:       http.StatusBadRequest,
	CodeInvalidDeletionToken: http.StatusForbidden,

	CodeUploadFailed:    http.StatusInternalServerError,
	CodeAIServiceError:  http.StatusInternalServerError,
	CodeStorageError:    http.StatusInternalServerError,
	CodeNetworkError:    http.StatusInternalServerError,
	CodeProcessingError: http.StatusInternalServerError,
	CodeUnknownError:    http.StatusInternalServerError,

	CodeGeminiAPIError:      http.StatusInternalServerError,
	CodeGeminiQuotaExceeded: http.StatusTooManyRequests,
	CodeGeminiUnauthorized:  http.StatusUnauthorized,
	CodeGeminiTimeout:       http.StatusGatewayTimeout,
	CodeKVConnectionError:   http.StatusInternalServerError,

	CodeDataNotFound: http.StatusNotFound,
	CodeDataExpired:  http.StatusGone,
	CodeInvalidID:    http.StatusBadRequest,
}

var categories = map[Code]Category{
	CodeFileNotSelected:      CategoryValidation,
	CodeFileEmpty:            CategoryValidation,
	CodeFileTooLarge:         CategoryValidation,
	CodeUnsupportedFormat:    CategoryValidation,
	CodeInvalidFileType:      CategoryValidation,
	CodeInvalidFormData:      CategoryValidation,
	CodeInvalidRequest:       CategoryValidation,
	CodeInvalidDeletionToken: CategoryValidation,

	CodeUploadFailed:    CategorySystem,
	CodeAIServiceError:  CategorySystem,
	CodeStorageError:    CategorySystem,
	CodeNetworkError:    CategorySystem,
	CodeProcessingError: CategorySystem,
	CodeUnknownError:    CategorySystem,

	CodeGeminiAPIError:      CategoryExternal,
	CodeGeminiQuotaExceeded: CategoryExternal,
	CodeGeminiUnauthorized:  CategoryExternal,
	CodeGeminiTimeout:       CategoryExternal,
	CodeKVConnectionError:   CategoryExternal,

	CodeDataNotFound: CategoryData,
	CodeDataExpired:  CategoryData,
	CodeInvalidID:    CategoryData,
}

// Message returns the user-facing message for code. Unknown codes fall back
// to the UNKNOWN_ERROR message.
func (c Code) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[CodeUnknownError]
}

// Status returns the HTTP status for code.
func (c Code) Status() int {
	if s, ok := statuses[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Category returns the group the code belongs to.
func (c Code) Category() Category {
	if cat, ok := categories[c]; ok {
		return cat
	}
	return CategorySystem
}

// Retryable reports whether a failure with this code may succeed on retry.
func (c Code) Retryable() bool {
	switch c {
	case CodeNetworkError, CodeGeminiTimeout, CodeKVConnectionError, CodeGeminiQuotaExceeded:
		return true
	default:
		return false
	}
}

// Codes lists every code in the taxonomy.
func Codes() []Code {
	out := make([]Code, 0, len(messages))
	for c := range messages {
		out = append(out, c)
	}
	return out
}
