package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/authman/internal/model"
)

// TestMiddlewareChain_Auth_GETRequest は
// 認証ミドルウェアでGETリクエストが通りユーザーIDが取得できることを検証する。
func TestMiddlewareChain_Auth_GETRequest(t *testing.T) {
	authz := authorizerFor(map[string]*model.User{
		"chain-token": {ID: "user-chain-test", Username: "chainuser", Role: model.RoleUser, IsActive: true},
	})

	var capturedUserID string
	handler := NewAuthMiddleware(authz)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		capturedUserID = userID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer chain-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-chain-test" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-chain-test")
	}
}

// TestMiddlewareChain_FullStack は
// CORS -> SecurityHeaders -> Auth -> RateLimit の順でヘッダーと認証が両立することを検証する。
func TestMiddlewareChain_FullStack(t *testing.T) {
	authz := authorizerFor(map[string]*model.User{
		"chain-token": {ID: "user-1", Username: "chainuser", Role: model.RoleUser, IsActive: true},
	})
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := NewCORSMiddleware("http://localhost:3000")(
		NewSecurityHeadersMiddleware()(
			NewAuthMiddleware(authz)(
				rl.GeneralMiddleware()(okHandler),
			),
		),
	)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer chain-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rl.GeneralLimiterCount(); got != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", got)
	}
}

// TestMiddlewareChain_NoToken_Returns401 は
// トークンがない場合にレート制限へ到達する前に401が返されることを検証する。
func TestMiddlewareChain_NoToken_Returns401(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := NewAuthMiddleware(&mockAuthorizer{})(rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/me", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
	if got := w.Result().Header.Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}
	if rl.GeneralLimiterCount() != 0 {
		t.Error("rate limiter should not track unauthenticated requests")
	}
}

// TestRecoveryMiddleware_PanicReturnsUnified500 はpanicが統一フォーマットの500に変換されることを検証する。
func TestRecoveryMiddleware_PanicReturnsUnified500(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if code := decodeErrorCode(t, w); code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", code)
	}
}
