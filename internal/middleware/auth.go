// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/authman/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var userContextKey = contextKey("user")

// Authorizer はベアラートークンによる本人確認と認可判定のインターフェース。
// auth.Gateが実装する。
type Authorizer interface {
	Authenticate(ctx context.Context, bearer string) (*model.User, error)
	RequireActive(user *model.User) (*model.User, error)
	RequireRole(user *model.User, allowed ...model.Role) (*model.User, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのアクセストークンを検証し、
// 有効なユーザーをリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない場合は401、無効化ユーザーは403を返す。
func NewAuthMiddleware(authz Authorizer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := BearerToken(r)
			if !ok {
				WriteError(w, model.NewNotAuthenticatedError())
				return
			}

			user, err := authz.Authenticate(r.Context(), bearer)
			if err != nil {
				WriteError(w, err)
				return
			}
			if user, err = authz.RequireActive(user); err != nil {
				WriteError(w, err)
				return
			}

			setRequestUserID(r.Context(), user.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// RequireRoles は認証済みユーザーのロールがrolesのいずれかでなければ403を返すミドルウェアを返す。
// NewAuthMiddlewareの後に配置する。
func RequireRoles(authz Authorizer, roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r.Context())
			if err != nil {
				WriteError(w, model.NewNotAuthenticatedError())
				return
			}
			if _, err := authz.RequireRole(user, roles...); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken はAuthorizationヘッダーからベアラートークンを取り出す。
// スキーム名は大文字小文字を区別しない。
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, error) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, fmt.Errorf("user not found in context")
	}
	return user, nil
}

// ContextWithUser はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserIDFromContext はリクエストコンテキストから認証済みユーザーのIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user, err := UserFromContext(ctx)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}
