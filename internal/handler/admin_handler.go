package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/authman/internal/model"
)

// AdminHandler はロール制限付きエンドポイントのHTTPハンドラー。
type AdminHandler struct {
	service UserServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service UserServiceInterface) *AdminHandler {
	return &AdminHandler{
		service: service,
	}
}

// greetingResponse はロール制限付きエンドポイントの応答。
type greetingResponse struct {
	Message     string `json:"message"`
	Role        string `json:"role"`
	AccessLevel string `json:"access_level"`
}

// ModeratorPanel はモデレーター以上がアクセスできるパネル。
// GET /api/v1/moderator/moderator-panel
func (h *AdminHandler) ModeratorPanel(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, greetingResponse{
		Message:     fmt.Sprintf("Welcome to moderator panel, %s!", current.Username),
		Role:        string(current.Role),
		AccessLevel: "moderator or higher",
	})
}

// AdminDashboard は管理者のみがアクセスできるダッシュボード。
// GET /api/v1/admin/admin-dashboard
func (h *AdminHandler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	current, ok := currentUser(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, greetingResponse{
		Message:     fmt.Sprintf("Welcome to admin dashboard, %s!", current.Username),
		Role:        string(current.Role),
		AccessLevel: "administrator",
	})
}

// UpdateUser は指定ユーザーのロールまたは有効状態を変更する。
// PATCH /api/v1/admin/users/{username}
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req adminUpdateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w)
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	var role *model.Role
	if req.Role != nil {
		v := model.Role(*req.Role)
		role = &v
	}

	updated, err := h.service.SetRoleAndStatus(r.Context(), username, role, req.IsActive)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}
