// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind はユーザー向けエラーの種別を表す。
// 種別は閉じた列挙で、各種別は外部に見えるステータスとメッセージに一意に対応する。
type ErrorKind string

// 定義済みエラー種別
const (
	KindInvalidCredentials          ErrorKind = "INVALID_CREDENTIALS"
	KindInactiveUser                ErrorKind = "INACTIVE_USER"
	KindInsufficientPermissions     ErrorKind = "INSUFFICIENT_PERMISSIONS"
	KindAlreadyExists               ErrorKind = "ALREADY_EXISTS"
	KindTokenExpired                ErrorKind = "TOKEN_EXPIRED"
	KindInvalidToken                ErrorKind = "INVALID_TOKEN"
	KindInvalidPasswordConfirmation ErrorKind = "INVALID_PASSWORD_CONFIRMATION"
	KindInvalidConfirmationText     ErrorKind = "INVALID_CONFIRMATION_TEXT"

	// 以下はトランスポート層で使用する種別
	KindValidationFailed ErrorKind = "VALIDATION_FAILED"
	KindUserNotFound     ErrorKind = "USER_NOT_FOUND"
	KindRateLimited      ErrorKind = "RATE_LIMITED"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     ErrorKind         // エラー種別
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, system
	Action   string            // ユーザー向け対処方法
	Field    string            // ALREADY_EXISTS の場合の重複フィールド
	Details  map[string]string // VALIDATION_FAILED の場合のフィールド別エラー
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is は同じ種別のAPIErrorと一致する。
// errors.Is(err, model.ErrInvalidToken) のように種別で比較できる。
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// KindOf はエラーチェーンからエラー種別を取り出す。
// APIErrorを含まない場合は空文字を返す（内部エラー扱い）。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// 種別比較用のセンチネル
var (
	ErrInvalidCredentials          = &APIError{Code: KindInvalidCredentials}
	ErrInactiveUser                = &APIError{Code: KindInactiveUser}
	ErrInsufficientPermissions     = &APIError{Code: KindInsufficientPermissions}
	ErrAlreadyExists               = &APIError{Code: KindAlreadyExists}
	ErrTokenExpired                = &APIError{Code: KindTokenExpired}
	ErrInvalidToken                = &APIError{Code: KindInvalidToken}
	ErrInvalidPasswordConfirmation = &APIError{Code: KindInvalidPasswordConfirmation}
	ErrInvalidConfirmationText     = &APIError{Code: KindInvalidConfirmationText}
)

// NewInvalidCredentialsError は認証情報不正エラーを生成する。
// ユーザー不在とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     KindInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewNotAuthenticatedError は認証情報が提示されなかった場合のエラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     KindInvalidCredentials,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Authorization: Bearer ヘッダーにアクセストークンを指定してください。",
	}
}

// NewInactiveUserError は無効化ユーザーエラーを生成する。
func NewInactiveUserError() *APIError {
	return &APIError{
		Code:     KindInactiveUser,
		Message:  "このアカウントは無効化されています。",
		Category: "auth",
		Action:   "サポートにお問い合わせください。",
	}
}

// NewInsufficientPermissionsError は権限不足エラーを生成する。
func NewInsufficientPermissionsError(allowed []Role) *APIError {
	names := make([]string, len(allowed))
	for i, r := range allowed {
		names[i] = string(r)
	}
	return &APIError{
		Code:     KindInsufficientPermissions,
		Message:  fmt.Sprintf("この操作には次のいずれかのロールが必要です: %s", strings.Join(names, ", ")),
		Category: "auth",
		Action:   "権限を持つアカウントで操作してください。",
	}
}

// NewAlreadyExistsError は一意キー重複エラーを生成する。
// fieldには "username" または "email" を指定する。
func NewAlreadyExistsError(field string) *APIError {
	return &APIError{
		Code:     KindAlreadyExists,
		Message:  fmt.Sprintf("%s は既に登録されています。", field),
		Category: "validation",
		Action:   "別の値を指定してください。",
		Field:    field,
	}
}

// NewTokenExpiredError はトークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     KindTokenExpired,
		Message:  "トークンの有効期限が切れています。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidTokenError は不正トークンエラーを生成する。
// 署名不正の理由は外部に漏らさないため、メッセージは常に同一。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     KindInvalidToken,
		Message:  "トークンが不正です。",
		Category: "auth",
		Action:   "正しいトークンを指定してください。",
	}
}

// NewInvalidPasswordConfirmationError はパスワード再確認失敗エラーを生成する。
func NewInvalidPasswordConfirmationError() *APIError {
	return &APIError{
		Code:     KindInvalidPasswordConfirmation,
		Message:  "パスワードが正しくありません。",
		Category: "auth",
		Action:   "現在のパスワードを入力してください。",
	}
}

// NewInvalidConfirmationTextError は確認文字列不一致エラーを生成する。
func NewInvalidConfirmationTextError(expected string) *APIError {
	return &APIError{
		Code:     KindInvalidConfirmationText,
		Message:  "確認文字列が一致しません。",
		Category: "validation",
		Action:   fmt.Sprintf("確認文字列には %q を正確に入力してください。", expected),
	}
}

// NewValidationError はリクエスト検証エラーを生成する。
func NewValidationError(details map[string]string) *APIError {
	return &APIError{
		Code:     KindValidationFailed,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各項目の入力内容を確認してください。",
		Details:  details,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     KindUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ユーザー名を確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     KindRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-After ヘッダーの秒数だけ待ってから再試行してください。",
	}
}
