package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authman/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Category string            `json:"category"`
	Action   string            `json:"action"`
	Field    string            `json:"field,omitempty"`
	Details  map[string]string `json:"details,omitempty"`
}

// StatusForKind はエラー種別をHTTPステータスコードに対応付ける。
// 未知の種別は500を返す。
func StatusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalidCredentials,
		model.KindTokenExpired,
		model.KindInvalidToken,
		model.KindInvalidPasswordConfirmation:
		return http.StatusUnauthorized
	case model.KindInactiveUser, model.KindInsufficientPermissions:
		return http.StatusForbidden
	case model.KindAlreadyExists:
		return http.StatusConflict
	case model.KindInvalidConfirmationText:
		return http.StatusBadRequest
	case model.KindValidationFailed:
		return http.StatusUnprocessableEntity
	case model.KindUserNotFound:
		return http.StatusNotFound
	case model.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	if statusCode == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     string(apiErr.Code),
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Field:    apiErr.Field,
		Details:  apiErr.Details,
	})
}

// WriteError はエラーを種別に応じたステータスで書き込む。
// APIErrorを含まないエラーは内部エラーとしてログに記録し、500を返す。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForKind(apiErr.Code), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
