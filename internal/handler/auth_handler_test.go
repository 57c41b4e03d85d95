package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/middleware"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/session"
)

// --- モック定義 ---

// mockSessionService はSessionServiceのモック実装。
type mockSessionService struct {
	loginFn  func(ctx context.Context, email, password string) (*session.Workspace, error)
	logoutFn func(ctx context.Context, id string) error
}

func (m *mockSessionService) Login(ctx context.Context, email, password string) (*session.Workspace, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSessionService) Logout(ctx context.Context, id string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, id)
	}
	return nil
}

func newAuthTest(t *testing.T, svc SessionService) *AuthHandler {
	t.Helper()
	return NewAuthHandler(svc, AuthHandlerConfig{SessionMaxAge: 86400}, testRenderer(t))
}

func postLogin(h *AuthHandler, email, password string) *httptest.ResponseRecorder {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.Login(w, req)
	return w
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// --- GET /login ---

func TestAuthHandler_LoginPage(t *testing.T) {
	h := newAuthTest(t, &mockSessionService{})

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req = req.WithContext(middleware.ContextWithCSRFToken(req.Context(), "token-abc"))
	w := httptest.NewRecorder()
	h.LoginPage(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `name="csrf_token" value="token-abc"`) {
		t.Error("csrf field not rendered")
	}
	if strings.Contains(body, "ログアウト") {
		t.Error("navigation should not be rendered for anonymous user")
	}
}

// --- POST /login ---

func TestAuthHandler_Login_Success(t *testing.T) {
	ws := newTestWorkspace(&fakeUpstream{}, dashboard.Options{})
	svc := &mockSessionService{
		loginFn: func(_ context.Context, email, password string) (*session.Workspace, error) {
			if email != "admin@example.com" || password != "secret" {
				t.Errorf("Login(%q, %q)", email, password)
			}
			return ws, nil
		},
	}
	h := newAuthTest(t, svc)

	w := postLogin(h, "  admin@example.com ", "secret")

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
		t.Fatalf("response = %d %q, want redirect to /", w.Code, w.Header().Get("Location"))
	}
	c := findCookie(w, middleware.SessionCookieName)
	if c == nil || c.Value != ws.ID || c.MaxAge != 86400 || !c.HttpOnly {
		t.Errorf("session cookie = %+v", c)
	}
	if success, _ := noticesOf(ws); len(success) != 1 {
		t.Errorf("success notices = %v, want 1", success)
	}
}

func TestAuthHandler_Login_Errors(t *testing.T) {
	tests := []struct {
		name       string
		email      string
		password   string
		err        error
		wantStatus int
		contains   string
	}{
		{
			name:       "missing password",
			email:      "admin@example.com",
			wantStatus: http.StatusBadRequest,
			contains:   "メールアドレスとパスワードを入力してください。",
		},
		{
			name:       "rejected credentials",
			email:      "admin@example.com",
			password:   "wrong",
			err:        model.NewLoginFailedError("invalid password"),
			wantStatus: http.StatusUnauthorized,
			contains:   "invalid password",
		},
		{
			name:       "upstream down",
			email:      "admin@example.com",
			password:   "secret",
			err:        model.NewUpstreamFailedError("login"),
			wantStatus: http.StatusBadGateway,
			contains:   "サーバーとの通信に失敗しました",
		},
		{
			name:       "session store failure",
			email:      "admin@example.com",
			password:   "secret",
			err:        errors.New("failed to save session: connection reset"),
			wantStatus: http.StatusInternalServerError,
			contains:   "通信に失敗しました",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockSessionService{
				loginFn: func(context.Context, string, string) (*session.Workspace, error) {
					called = true
					return nil, tt.err
				},
			}
			h := newAuthTest(t, svc)

			w := postLogin(h, tt.email, tt.password)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.contains) {
				t.Errorf("body missing %q", tt.contains)
			}
			// 入力済みのメールアドレスは残す
			if !strings.Contains(body, `value="admin@example.com"`) {
				t.Error("email not kept in form")
			}
			if findCookie(w, middleware.SessionCookieName) != nil {
				t.Error("session cookie should not be set")
			}
			if tt.err == nil && called {
				t.Error("service should not be called for incomplete input")
			}
		})
	}
}

// --- POST /logout ---

func TestAuthHandler_Logout(t *testing.T) {
	tests := []struct {
		name      string
		logoutErr error
	}{
		{"success", nil},
		{"upstream failure still clears cookie", errors.New("upstream unreachable")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotID string
			svc := &mockSessionService{
				logoutFn: func(_ context.Context, id string) error {
					gotID = id
					return tt.logoutErr
				},
			}
			h := newAuthTest(t, svc)

			req := httptest.NewRequest(http.MethodPost, "/logout", nil)
			req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-123"})
			w := httptest.NewRecorder()
			h.Logout(w, req)

			if gotID != "session-123" {
				t.Errorf("Logout id = %q, want session-123", gotID)
			}
			if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
				t.Errorf("response = %d %q, want redirect to /login", w.Code, w.Header().Get("Location"))
			}
			c := findCookie(w, middleware.SessionCookieName)
			if c == nil || c.MaxAge >= 0 {
				t.Errorf("session cookie = %+v, want cleared", c)
			}
		})
	}
}
