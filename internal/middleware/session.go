// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/vouchdesk/internal/session"
)

// SessionCookieName はダッシュボードのセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// workspaceContextKey はリクエストコンテキストにWorkspaceを格納するためのキー。
	workspaceContextKey = contextKey("workspace")
)

// WorkspaceFinder はセッションIDからWorkspaceを取得する。session.Managerが実装する。
type WorkspaceFinder interface {
	Get(ctx context.Context, id string) (*session.Workspace, error)
}

// NewSessionMiddleware はHTTP Only CookieからセッションIDを読み取り、
// ログイン中のWorkspaceをリクエストコンテキストに注入するミドルウェアを返す。
// 未ログインのリクエストはloginPathへリダイレクトする。
func NewSessionMiddleware(finder WorkspaceFinder, loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}

			ws, err := finder.Get(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to restore session",
					slog.String("error", err.Error()),
				)
				http.Error(w, "サーバーとの通信に失敗しました。しばらく待ってから再度お試しください。", http.StatusBadGateway)
				return
			}
			if ws == nil || !ws.Store.Authenticated() {
				ClearSessionCookie(w)
				http.Redirect(w, r, loginPath, http.StatusSeeOther)
				return
			}

			user := ws.User()
			annotateUserID(r.Context(), user.ID)

			ctx := ContextWithWorkspace(r.Context(), ws)
			ctx = ContextWithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SetSessionCookie はセッションIDのCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, id string, maxAge int, secure bool, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		Domain:   domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie はセッションIDのCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// WorkspaceFromContext はリクエストコンテキストからWorkspaceを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func WorkspaceFromContext(ctx context.Context) (*session.Workspace, bool) {
	ws, ok := ctx.Value(workspaceContextKey).(*session.Workspace)
	return ws, ok && ws != nil
}

// ContextWithWorkspace はコンテキストにWorkspaceを注入する。
func ContextWithWorkspace(ctx context.Context, ws *session.Workspace) context.Context {
	return context.WithValue(ctx, workspaceContextKey, ws)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
