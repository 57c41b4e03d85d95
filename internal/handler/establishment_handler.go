package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/logo"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/session"
)

const (
	establishmentsPath = "/establishments"

	// multipartMaxMemory はロゴアップロードを含むフォームを解析する際のメモリ上限。
	multipartMaxMemory = 8 << 20
)

// EstablishmentHandler は店舗一覧画面とフォームのHTTPハンドラー。
type EstablishmentHandler struct {
	renderer    *Renderer
	audit       AuditRecorder
	logoMaxSize int64
}

// NewEstablishmentHandler はEstablishmentHandlerを生成する。
// logoMaxSizeが0以下の場合はlogo.DefaultMaxSizeを使う。
func NewEstablishmentHandler(renderer *Renderer, audit AuditRecorder, logoMaxSize int64) *EstablishmentHandler {
	if logoMaxSize <= 0 {
		logoMaxSize = logo.DefaultMaxSize
	}
	return &EstablishmentHandler{
		renderer:    renderer,
		audit:       audit,
		logoMaxSize: logoMaxSize,
	}
}

// establishmentListView は店舗一覧画面の表示内容。
type establishmentListView struct {
	Rows       []model.Establishment
	Categories []string
	Category   string // 絞り込み中のカテゴリ。全件なら空
	Search     string
	TotalCount int
	Pagination paginationView
	Form       *establishmentFormView
}

// establishmentFormView は店舗フォームの表示内容。
type establishmentFormView struct {
	Editing       bool
	Name          string
	Category      string
	NewCategory   bool
	Categories    []string
	LogoURL       string
	LogoPending   string
	LogoImportURL string
}

// List は店舗一覧を表示する。
// ページ・カテゴリが表示中の内容と異なる場合、またはrefresh=1の場合だけ上流APIから取得する。
// GET /establishments?page=&category=&q=&refresh=
func (h *EstablishmentHandler) List(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	screen := ws.Establishments
	q := r.URL.Query()

	if q.Has("q") {
		screen.SetSearch(q.Get("q"))
	}

	state := screen.List.State()
	filter := state.Filter
	if q.Has("category") {
		filter = q.Get("category")
	}
	page := parsePage(q.Get("page"), state.Page)
	refresh := q.Get("refresh") == "1"

	if refresh || !state.Loaded || !screen.List.Matches(page, filter) {
		if err := screen.Navigate(ctx, page, filter); err != nil {
			flashError(ws, "failed to load establishments", err)
		}
	}

	var categories []string
	var err error
	if refresh {
		categories, err = screen.RefreshCategories(ctx)
	} else {
		categories, err = screen.Categories(ctx)
	}
	if err != nil {
		flashError(ws, "failed to load categories", err)
	}

	h.renderList(w, r, ws, categories)
}

func (h *EstablishmentHandler) renderList(w http.ResponseWriter, r *http.Request, ws *session.Workspace, categories []string) {
	screen := ws.Establishments
	state := screen.List.State()
	category := dashboard.CategoryFilter(state.Filter)
	search := screen.Search()

	view := establishmentListView{
		Rows:       screen.Visible(),
		Categories: categories,
		Category:   category,
		Search:     search,
		TotalCount: state.TotalCount,
		Pagination: newPaginationView(
			dashboard.Pagination{Current: state.Page, Total: state.TotalPages},
			func(p int) string { return listURL(establishmentsPath, p, "category", category, "q", search) },
		),
	}
	if screen.Form.IsOpen() {
		view.Form = newEstablishmentFormView(screen, categories)
	}

	h.renderer.render(w, http.StatusOK, "establishments", newPageData(r, ws, "店舗", "establishments", view))
}

func newEstablishmentFormView(screen *dashboard.EstablishmentScreen, categories []string) *establishmentFormView {
	d := screen.Form.Draft()
	_, editing := screen.Form.Editing()
	v := &establishmentFormView{
		Editing:       editing,
		Name:          d.Name,
		Category:      d.Category.Value,
		NewCategory:   d.Category.Kind == model.CategoryNew,
		Categories:    categories,
		LogoURL:       d.Logo.URL,
		LogoImportURL: d.LogoImportURL,
	}
	// 取得済みのカテゴリ一覧に無い既存カテゴリも選択肢に出す
	if !v.NewCategory && v.Category != "" && !slices.Contains(categories, v.Category) {
		v.Categories = append(slices.Clone(categories), v.Category)
	}
	if d.Logo.File != nil {
		v.LogoPending = d.Logo.File.Filename
	}
	return v
}

// New は新規作成フォームを開く。
// GET /establishments/new
func (h *EstablishmentHandler) New(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	ws.Establishments.OpenForCreate()
	http.Redirect(w, r, establishmentsPath+"#form", http.StatusSeeOther)
}

// Edit は表示中の一覧から店舗を選んで編集フォームを開く。
// GET /establishments/{id}/edit
func (h *EstablishmentHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := ws.Establishments.OpenForEdit(id); err != nil {
		flashError(ws, "failed to open establishment form", err)
		http.Redirect(w, r, establishmentsPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, establishmentsPath+"#form", http.StatusSeeOther)
}

// Cancel はフォームを閉じて下書きを破棄する。
// POST /establishments/form/cancel
func (h *EstablishmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	ws.Establishments.Form.Close()
	http.Redirect(w, r, establishmentsPath, http.StatusSeeOther)
}

// Submit はフォームの入力を下書きに反映して作成または更新を送信する。
// 失敗した場合はフォームを開いたまま下書きを残し、通知でエラーを伝える。
// POST /establishments/form (multipart/form-data)
func (h *EstablishmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	screen := ws.Establishments

	if !screen.Form.IsOpen() {
		ws.AddNotice(session.NoticeError, "フォームが開かれていません。もう一度操作してください。")
		http.Redirect(w, r, establishmentsPath, http.StatusSeeOther)
		return
	}

	if err := r.ParseMultipartForm(multipartMaxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	d := screen.Form.Draft()
	d.Name = r.FormValue("name")
	if model.CategoryKind(r.FormValue("category_kind")) == model.CategoryNew {
		d.Category = model.NewCategory(r.FormValue("new_category"))
	} else {
		d.Category = model.ExistingCategory(r.FormValue("category"))
	}
	d.LogoImportURL = strings.TrimSpace(r.FormValue("logo_url"))

	file, header, err := r.FormFile("logo")
	switch {
	case err == nil:
		defer file.Close()
		uploaded, readErr := logo.ReadUpload(file, header.Filename, header.Header.Get("Content-Type"), h.logoMaxSize)
		if readErr != nil {
			screen.Form.SetDraft(d)
			flashError(ws, "invalid logo upload", readErr)
			http.Redirect(w, r, establishmentsPath+"#form", http.StatusSeeOther)
			return
		}
		d.Logo = model.Logo{File: uploaded}
		d.LogoImportURL = ""
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		slog.Warn("failed to read logo upload", slog.String("error", err.Error()))
	}
	screen.Form.SetDraft(d)

	res, err := screen.Submit(ctx)
	if err != nil {
		flashError(ws, "failed to submit establishment", err)
		http.Redirect(w, r, establishmentsPath+"#form", http.StatusSeeOther)
		return
	}

	h.audit.Submitted(ctx, userIDOf(ws), "establishment", string(res.Mode), res.Row.ID)
	if res.Mode == dashboard.ModeUpdate {
		ws.AddNotice(session.NoticeSuccess, "店舗「"+res.Row.Name+"」を更新しました。")
	} else {
		ws.AddNotice(session.NoticeSuccess, "店舗「"+res.Row.Name+"」を作成しました。")
	}
	http.Redirect(w, r, establishmentsPath, http.StatusSeeOther)
}
