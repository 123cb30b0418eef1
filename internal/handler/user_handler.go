package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/authman/internal/middleware"
	"github.com/hitoshi/authman/internal/model"
	"github.com/hitoshi/authman/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// UpdateProfile はユーザー名・メールアドレス・パスワードを部分更新する。
	UpdateProfile(ctx context.Context, current *model.User, in user.ProfileUpdate) (*model.User, error)
	// DeleteAccount はパスワード再確認の上でアカウントを削除する。
	DeleteAccount(ctx context.Context, current *model.User, password string, confirmText *string) error
	// SetRoleAndStatus は管理者によるロール・有効状態の変更を行う。
	SetRoleAndStatus(ctx context.Context, username string, role *model.Role, active *bool) (*model.User, error)
}

// UserHandler はユーザー自身のプロフィール管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// GetMe は認証済みユーザーのプロフィールを返す。
// GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(current))
}

// UpdateMe はプロフィールを部分更新する。
// PATCH /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), current, user.ProfileUpdate{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// DeleteMe はパスワード再確認の上で退会処理を実行する。
// DELETE /api/v1/users/me
func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req deleteAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), current, *req.Password, req.ConfirmText); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// currentUser はコンテキストから認証済みユーザーを取り出す。
// 取り出せない場合は401を書き込みfalseを返す。
func currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeError(w, model.NewNotAuthenticatedError())
		return nil, false
	}
	return u, true
}
