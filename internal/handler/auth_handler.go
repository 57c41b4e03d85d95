package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/vouchdesk/internal/middleware"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/session"
)

// SessionService は認証ハンドラーが必要とするセッション管理のインターフェース。
type SessionService interface {
	Login(ctx context.Context, email, password string) (*session.Workspace, error)
	Logout(ctx context.Context, id string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service  SessionService
	config   AuthHandlerConfig
	renderer *Renderer
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service SessionService, config AuthHandlerConfig, renderer *Renderer) *AuthHandler {
	return &AuthHandler{
		service:  service,
		config:   config,
		renderer: renderer,
	}
}

// loginView はログイン画面の表示内容。
type loginView struct {
	Email string
	Error string
}

// LoginPage はログイン画面を表示する。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.render(w, http.StatusOK, "login", newPageData(r, nil, "ログイン", "", loginView{}))
}

// Login はメールアドレスとパスワードで上流APIにログインし、セッションCookieを発行する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	if email == "" || password == "" {
		h.renderLoginError(w, r, http.StatusBadRequest, email, "メールアドレスとパスワードを入力してください。")
		return
	}

	ws, err := h.service.Login(r.Context(), email, password)
	if err != nil {
		status := http.StatusUnauthorized
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			if apiErr.Category == "upstream" {
				status = http.StatusBadGateway
			}
			slog.Info("login rejected",
				slog.String("code", apiErr.Code),
				slog.String("error", err.Error()),
			)
		} else {
			status = http.StatusInternalServerError
			slog.Error("failed to login", slog.String("error", err.Error()))
		}
		h.renderLoginError(w, r, status, email, userMessage(err))
		return
	}

	middleware.SetSessionCookie(w, ws.ID, h.config.SessionMaxAge, h.config.CookieSecure, h.config.CookieDomain)
	ws.AddNotice(session.NoticeSuccess, "ログインしました。")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout はセッションを破棄してログイン画面に戻す。
// 上流APIのログアウトに失敗してもCookieはクリアする。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
		}
	}

	middleware.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *AuthHandler) renderLoginError(w http.ResponseWriter, r *http.Request, status int, email, msg string) {
	h.renderer.render(w, status, "login", newPageData(r, nil, "ログイン", "", loginView{Email: email, Error: msg}))
}
