package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/hitoshi/authman/internal/model"
)

// maxRequestBodyBytes はリクエストボディの上限サイズ。
const maxRequestBodyBytes = 1 << 20

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// usernameRules はユーザー名の入力規則。
var usernameRules = []validation.Rule{
	validation.Length(3, 50),
	validation.Match(usernamePattern).Error("英数字と _ . - のみ使用できます"),
}

// emailRules はメールアドレスの入力規則。
var emailRules = []validation.Rule{
	validation.Length(0, 255),
	is.Email,
}

// passwordRules はパスワードの入力規則。
var passwordRules = []validation.Rule{
	validation.Length(8, 128),
	validation.By(passwordComposition),
}

// passwordComposition は数字・大文字・小文字をそれぞれ1文字以上含むことを検証する。
func passwordComposition(value interface{}) error {
	v, isNil := validation.Indirect(value)
	if isNil {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}

	var hasDigit, hasUpper, hasLower bool
	for _, c := range s {
		switch {
		case unicode.IsDigit(c):
			hasDigit = true
		case unicode.IsUpper(c):
			hasUpper = true
		case unicode.IsLower(c):
			hasLower = true
		}
	}

	switch {
	case !hasDigit:
		return errors.New("数字を1文字以上含めてください")
	case !hasUpper:
		return errors.New("大文字を1文字以上含めてください")
	case !hasLower:
		return errors.New("小文字を1文字以上含めてください")
	}
	return nil
}

func withRequired(rules []validation.Rule) []validation.Rule {
	return append([]validation.Rule{validation.Required}, rules...)
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate は登録リクエストを検証する。
func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, withRequired(usernameRules)...),
		validation.Field(&r.Email, withRequired(emailRules)...),
		validation.Field(&r.Password, withRequired(passwordRules)...),
	)
}

// loginRequest はログインリクエスト。フォームとJSONの両方を受け付ける。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate はログインリクエストを検証する。
// 形式の誤りで資格情報の存在を推測させないため、必須チェックのみ行う。
func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// refreshRequest はトークンリフレッシュリクエストのボディ。
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate はリフレッシュリクエストを検証する。
func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

// updateProfileRequest はプロフィール部分更新リクエストのボディ。
// nilのフィールドは変更しない。
type updateProfileRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// Validate はプロフィール更新リクエストを検証する。
func (r updateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, append([]validation.Rule{validation.NilOrNotEmpty}, usernameRules...)...),
		validation.Field(&r.Email, append([]validation.Rule{validation.NilOrNotEmpty}, emailRules...)...),
		validation.Field(&r.Password, append([]validation.Rule{validation.NilOrNotEmpty}, passwordRules...)...),
	)
}

// deleteAccountRequest は退会リクエストのボディ。
// passwordは必須、confirm_textは指定された場合のみ検証する。
type deleteAccountRequest struct {
	Password    *string `json:"password"`
	ConfirmText *string `json:"confirm_text"`
}

// Validate は退会リクエストを検証する。空文字のパスワードはサービス層で確認失敗となる。
func (r deleteAccountRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.NotNil),
	)
}

// adminUpdateUserRequest は管理者によるロール・有効状態変更リクエストのボディ。
type adminUpdateUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"is_active"`
}

// Validate は管理者更新リクエストを検証する。
func (r adminUpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.In(
			string(model.RoleAdmin), string(model.RoleModerator), string(model.RoleUser),
		)),
	)
}

// decodeJSON はリクエストボディをJSONとしてdstに読み込む。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// decodeLoginRequest はOAuth2パスワードフォームまたはJSONからログインリクエストを読み込む。
func decodeLoginRequest(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("parse login form: %w", err)
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		return req, nil
	}
	err := decodeJSON(w, r, &req)
	return req, err
}

// validationDetails はozzo-validationのエラーをフィールド名→メッセージの対応に変換する。
func validationDetails(err error) map[string]string {
	details := map[string]string{}
	var errs validation.Errors
	if errors.As(err, &errs) {
		for field, fieldErr := range errs {
			details[field] = fieldErr.Error()
		}
		return details
	}
	details["body"] = err.Error()
	return details
}

// writeValidationError は422 VALIDATION_FAILEDを書き込む。
func writeValidationError(w http.ResponseWriter, err error) {
	writeError(w, model.NewValidationError(validationDetails(err)))
}

// writeInvalidBody はボディの解析失敗を422で書き込む。
func writeInvalidBody(w http.ResponseWriter) {
	writeError(w, model.NewValidationError(map[string]string{
		"body": "リクエストボディの解析に失敗しました",
	}))
}
