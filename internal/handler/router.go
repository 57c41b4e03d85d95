package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/vouchdesk/internal/middleware"
	"github.com/hitoshi/vouchdesk/internal/session"
)

// healthCheckTimeout はヘルスチェックでDBへの疎通を確認する際のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はヘルスチェックで疎通を確認する依存先。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// CookieSyncer はリクエスト後に上流APIのCookieを永続化する。session.Managerが実装する。
type CookieSyncer interface {
	Sync(ctx context.Context, ws *session.Workspace) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger          *slog.Logger
	WorkspaceFinder middleware.WorkspaceFinder
	CookieSyncer    CookieSyncer
	RateLimiter     *middleware.RateLimiter
	CSRFConfig      middleware.CSRFConfig

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	SessionService SessionService
	AuthConfig     AuthHandlerConfig

	// 画面
	Renderer    *Renderer
	Audit       AuditRecorder
	LogoMaxSize int64
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Session → CSRF → RateLimit(General)
//
// ログイン画面はセッションミドルウェアの外に置き、クライアントIPごとのレート制限を掛ける。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.SessionService, deps.AuthConfig, deps.Renderer)
	overviewHandler := NewOverviewHandler(deps.Renderer)
	establishmentHandler := NewEstablishmentHandler(deps.Renderer, deps.Audit, deps.LogoMaxSize)
	voucherHandler := NewVoucherHandler(deps.Renderer, deps.Audit)

	// --- ログ・認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewLoggingMiddleware(logger))

		// ログイン（CSRF → ログイン専用レート制限）
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
			r.Use(deps.RateLimiter.LoginMiddleware())
			r.Get("/login", authHandler.LoginPage)
			r.Post("/login", authHandler.Login)
		})

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Session → CSRF → RateLimit(General) → CookieSync
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.WorkspaceFinder, "/login"))
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(cookieSyncMiddleware(deps.CookieSyncer))

			r.Post("/logout", authHandler.Logout)
			r.Get("/", overviewHandler.Overview)

			r.Route("/establishments", func(r chi.Router) {
				r.Get("/", establishmentHandler.List)
				r.Get("/new", establishmentHandler.New)
				r.Get("/{id}/edit", establishmentHandler.Edit)
				r.Post("/form", establishmentHandler.Submit)
				r.Post("/form/cancel", establishmentHandler.Cancel)
			})

			r.Route("/vouchers", func(r chi.Router) {
				r.Get("/", voucherHandler.List)
				r.Get("/new", voucherHandler.New)
				r.Get("/{id}/edit", voucherHandler.Edit)
				r.Post("/form", voucherHandler.Submit)
				r.Post("/form/cancel", voucherHandler.Cancel)
			})
		})
	})

	return r
}

// healthHandler はDBへの疎通を確認して結果をJSONで返す。
// GET /health
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				status = http.StatusServiceUnavailable
				body = map[string]string{"status": "unavailable"}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

// cookieSyncMiddleware はハンドラーの処理後、上流APIのCookieが変わっていれば永続化する。
// 永続化に失敗してもレスポンスには影響させない。
func cookieSyncMiddleware(syncer CookieSyncer) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if syncer == nil {
				return
			}
			ws, ok := middleware.WorkspaceFromContext(r.Context())
			if !ok || !ws.Store.Authenticated() {
				return
			}
			if err := syncer.Sync(context.WithoutCancel(r.Context()), ws); err != nil {
				slog.Warn("failed to sync upstream cookies",
					slog.String("error", err.Error()),
				)
			}
		})
	}
}
