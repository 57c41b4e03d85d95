package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/hitoshi/vouchdesk/internal/middleware"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/session"
)

// recentEstablishmentsLimit は概要画面に並べる最近の店舗の件数。
const recentEstablishmentsLimit = 5

// AuditRecorder はフォーム送信の成功を監査イベントとして記録する。audit.Recorderが実装する。
type AuditRecorder interface {
	Submitted(ctx context.Context, userID, entity, action, entityID string)
}

// OverviewHandler はダッシュボードの概要画面のHTTPハンドラー。
type OverviewHandler struct {
	renderer *Renderer
}

// NewOverviewHandler はOverviewHandlerを生成する。
func NewOverviewHandler(renderer *Renderer) *OverviewHandler {
	return &OverviewHandler{renderer: renderer}
}

// overviewView は概要画面の表示内容。
type overviewView struct {
	EstablishmentTotal int
	VoucherTotal       int
	Paid               int
	Free               int
	Recent             []model.Establishment
}

// Overview は店舗・バウチャーの件数と最近の店舗を表示する。
// 一覧が未取得の場合だけ上流APIから取得する。
// GET /
func (h *OverviewHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if !ws.Establishments.List.State().Loaded {
		if err := ws.Establishments.Load(ctx); err != nil {
			flashError(ws, "failed to load establishments", err)
		}
	}
	if !ws.Vouchers.List.State().Loaded {
		if err := ws.Vouchers.Load(ctx); err != nil {
			flashError(ws, "failed to load vouchers", err)
		}
	}

	paid, free := ws.Vouchers.PaidSplit()
	view := overviewView{
		EstablishmentTotal: ws.Establishments.List.State().TotalCount,
		VoucherTotal:       ws.Vouchers.List.State().TotalCount,
		Paid:               paid,
		Free:               free,
		Recent:             recentEstablishments(ws.Establishments.List.Rows(), recentEstablishmentsLimit),
	}
	h.renderer.render(w, http.StatusOK, "overview", newPageData(r, ws, "概要", "overview", view))
}

// recentEstablishments は登録日時の新しい順に最大n件を返す。
func recentEstablishments(rows []model.Establishment, n int) []model.Establishment {
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b model.Establishment) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// workspaceFrom はセッションミドルウェアが注入したWorkspaceを取り出す。
// 見つからない場合はログイン画面にリダイレクトしてfalseを返す。
func workspaceFrom(w http.ResponseWriter, r *http.Request) (*session.Workspace, bool) {
	ws, ok := middleware.WorkspaceFromContext(r.Context())
	if !ok {
		slog.Warn("workspace not found in context", slog.String("path", r.URL.Path))
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	return ws, true
}

func userIDOf(ws *session.Workspace) string {
	if u := ws.User(); u != nil {
		return u.ID
	}
	return ""
}
