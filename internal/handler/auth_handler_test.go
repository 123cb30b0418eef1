package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/authman/internal/auth"
	"github.com/hitoshi/authman/internal/middleware"
	"github.com/hitoshi/authman/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn    func(ctx context.Context, username, password string) (*model.TokenPair, error)
	refreshFn  func(ctx context.Context, refreshToken string) (*model.TokenPair, error)
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.TokenPair, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return nil, model.NewInvalidTokenError()
}

// --- compile-time interface checks ---
var _ AuthServiceInterface = (*mockAuthService)(nil)
var _ AuthServiceInterface = (*auth.Service)(nil)

// --- テストヘルパー ---

// parseAPIErrorResponse はレスポンスボディから統一エラーレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func testPair() *model.TokenPair {
	return &model.TokenPair{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    model.TokenTypeBearer,
		ExpiresIn:    1800,
	}
}

// --- POST /api/v1/auth/register テスト ---

func TestAuthHandler_Register_Success(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
			if in.Username != "testuser" || in.Email != "test@example.com" || in.Password != "Test1234" {
				t.Errorf("unexpected input: %+v", in)
			}
			return &model.User{
				ID:             "user-1",
				Username:       in.Username,
				Email:          in.Email,
				Role:           model.RoleUser,
				HashedPassword: "$pbkdf2-sha256$secret",
				IsActive:       true,
				CreatedAt:      created,
				UpdatedAt:      created,
			}, nil
		},
	}
	h := NewAuthHandler(svc)

	req := jsonRequest(http.MethodPost, "/api/v1/auth/register",
		`{"username":"testuser","email":"test@example.com","password":"Test1234"}`)
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if strings.Contains(w.Body.String(), "pbkdf2") || strings.Contains(w.Body.String(), "password") {
		t.Errorf("response must not echo password data: %s", w.Body.String())
	}

	var body userResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.ID != "user-1" || body.Role != "user" || !body.IsActive {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAuthHandler_Register_ValidationFailed(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"short username", `{"username":"ab","email":"a@example.com","password":"Test1234"}`, "username"},
		{"bad username chars", `{"username":"bad user","email":"a@example.com","password":"Test1234"}`, "username"},
		{"bad email", `{"username":"testuser","email":"not-an-email","password":"Test1234"}`, "email"},
		{"password without digit", `{"username":"testuser","email":"a@example.com","password":"Testtest"}`, "password"},
		{"password without upper", `{"username":"testuser","email":"a@example.com","password":"test1234"}`, "password"},
		{"password too short", `{"username":"testuser","email":"a@example.com","password":"Te1"}`, "password"},
		{"missing password", `{"username":"testuser","email":"a@example.com"}`, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
					t.Fatal("service should not be called on invalid input")
					return nil, nil
				},
			}
			w := httptest.NewRecorder()

			NewAuthHandler(svc).Register(w, jsonRequest(http.MethodPost, "/api/v1/auth/register", tt.body))

			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
			}
			body := parseAPIErrorResponse(t, w)
			if body.Code != string(model.KindValidationFailed) {
				t.Errorf("code = %q, want %q", body.Code, model.KindValidationFailed)
			}
			if _, ok := body.Details[tt.field]; !ok {
				t.Errorf("details = %v, want entry for %q", body.Details, tt.field)
			}
		})
	}
}

func TestAuthHandler_Register_MalformedJSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewAuthHandler(&mockAuthService{}).Register(w, jsonRequest(http.MethodPost, "/api/v1/auth/register", `{invalid`))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

func TestAuthHandler_Register_AlreadyExists(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
			return nil, model.NewAlreadyExistsError("email")
		},
	}
	w := httptest.NewRecorder()

	NewAuthHandler(svc).Register(w, jsonRequest(http.MethodPost, "/api/v1/auth/register",
		`{"username":"testuser","email":"test@example.com","password":"Test1234"}`))

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	body := parseAPIErrorResponse(t, w)
	if body.Code != string(model.KindAlreadyExists) || body.Field != "email" {
		t.Errorf("body = %+v, want ALREADY_EXISTS on email", body)
	}
}

// --- POST /api/v1/auth/login テスト ---

func TestAuthHandler_Login_FormEncoded(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.TokenPair, error) {
			if username != "testuser" || password != "Test1234" {
				t.Errorf("credentials = %q/%q", username, password)
			}
			return testPair(), nil
		},
	}

	form := url.Values{"grant_type": {"password"}, "username": {"testuser"}, "password": {"Test1234"}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	NewAuthHandler(svc).Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body tokenResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.TokenType != "bearer" {
		t.Errorf("token_type = %q, want bearer", body.TokenType)
	}
	if body.AccessToken != "access-1" || body.RefreshToken != "refresh-1" || body.ExpiresIn != 1800 {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAuthHandler_Login_JSON(t *testing.T) {
	called := false
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.TokenPair, error) {
			called = true
			return testPair(), nil
		},
	}
	w := httptest.NewRecorder()

	NewAuthHandler(svc).Login(w, jsonRequest(http.MethodPost, "/api/v1/auth/login",
		`{"username":"testuser","password":"Test1234"}`))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !called {
		t.Error("service should have been called")
	}
}

func TestAuthHandler_Login_Failures(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		status        int
		code          model.ErrorKind
		wantChallenge bool
	}{
		{"invalid credentials", model.NewInvalidCredentialsError(), http.StatusUnauthorized, model.KindInvalidCredentials, true},
		{"inactive user", model.NewInactiveUserError(), http.StatusForbidden, model.KindInactiveUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				loginFn: func(ctx context.Context, username, password string) (*model.TokenPair, error) {
					return nil, tt.err
				},
			}
			w := httptest.NewRecorder()

			NewAuthHandler(svc).Login(w, jsonRequest(http.MethodPost, "/api/v1/auth/login",
				`{"username":"testuser","password":"wrong"}`))

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			hasChallenge := w.Header().Get("WWW-Authenticate") == "Bearer"
			if hasChallenge != tt.wantChallenge {
				t.Errorf("WWW-Authenticate present = %v, want %v", hasChallenge, tt.wantChallenge)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != string(tt.code) {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}
}

func TestAuthHandler_Login_MissingFields(t *testing.T) {
	w := httptest.NewRecorder()

	NewAuthHandler(&mockAuthService{}).Login(w, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"username":"testuser"}`))

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
}

// --- POST /api/v1/auth/refresh テスト ---

func TestAuthHandler_Refresh_Success(t *testing.T) {
	svc := &mockAuthService{
		refreshFn: func(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
			if refreshToken != "refresh-1" {
				t.Errorf("refreshToken = %q, want refresh-1", refreshToken)
			}
			pair := testPair()
			pair.AccessToken = "access-2"
			return pair, nil
		},
	}
	w := httptest.NewRecorder()

	NewAuthHandler(svc).Refresh(w, jsonRequest(http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"refresh-1"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body tokenResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.AccessToken != "access-2" || body.RefreshToken != "refresh-1" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAuthHandler_Refresh_ErrorKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{model.NewTokenExpiredError(), http.StatusUnauthorized},
		{model.NewInvalidTokenError(), http.StatusUnauthorized},
		{model.NewInvalidCredentialsError(), http.StatusUnauthorized},
		{model.NewInactiveUserError(), http.StatusForbidden},
	}

	for _, tt := range tests {
		kind := model.KindOf(tt.err)
		t.Run(string(kind), func(t *testing.T) {
			svc := &mockAuthService{
				refreshFn: func(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
					return nil, tt.err
				},
			}
			w := httptest.NewRecorder()

			NewAuthHandler(svc).Refresh(w, jsonRequest(http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"r"}`))

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if body := parseAPIErrorResponse(t, w); body.Code != string(kind) {
				t.Errorf("code = %q, want %q", body.Code, kind)
			}
		})
	}
}

func TestAuthHandler_Refresh_InternalErrorHidesDetails(t *testing.T) {
	svc := &mockAuthService{
		refreshFn: func(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
			return nil, context.DeadlineExceeded
		},
	}
	w := httptest.NewRecorder()

	NewAuthHandler(svc).Refresh(w, jsonRequest(http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"r"}`))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if body := parseAPIErrorResponse(t, w); body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
	}
}
