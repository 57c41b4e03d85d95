package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/session"
)

const vouchersPath = "/vouchers"

// VoucherHandler はバウチャー一覧画面とフォームのHTTPハンドラー。
type VoucherHandler struct {
	renderer *Renderer
	audit    AuditRecorder
}

// NewVoucherHandler はVoucherHandlerを生成する。
func NewVoucherHandler(renderer *Renderer, audit AuditRecorder) *VoucherHandler {
	return &VoucherHandler{renderer: renderer, audit: audit}
}

// voucherRow はバウチャー一覧の1行。店舗名は解決済みの値を持つ。
type voucherRow struct {
	model.Voucher
	EstablishmentName string
}

// voucherListView はバウチャー一覧画面の表示内容。
type voucherListView struct {
	Rows            []voucherRow
	Establishments  []model.Establishment
	EstablishmentID string // 絞り込み中の店舗ID。全件なら空
	Search          string
	TotalCount      int
	Paid            int
	Free            int
	Pagination      paginationView
	Form            *voucherFormView
}

// voucherFormView はバウチャーフォームの表示内容。
type voucherFormView struct {
	Editing         bool
	Title           string
	Description     string
	Code            string
	Rules           string
	Value           string
	Quantity        int
	IsPaid          bool
	EstablishmentID string
}

// List はバウチャー一覧を表示する。
// GET /vouchers?page=&establishment=&q=&refresh=
func (h *VoucherHandler) List(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	screen := ws.Vouchers
	q := r.URL.Query()

	if q.Has("q") {
		screen.SetSearch(q.Get("q"))
	}

	state := screen.List.State()
	filter := state.Filter
	if q.Has("establishment") {
		filter = q.Get("establishment")
	}
	page := parsePage(q.Get("page"), state.Page)
	refresh := q.Get("refresh") == "1"

	if refresh || !state.Loaded || !screen.List.Matches(page, filter) {
		if err := screen.Navigate(ctx, page, filter); err != nil {
			flashError(ws, "failed to load vouchers", err)
		}
	}

	var establishments []model.Establishment
	var err error
	if refresh {
		establishments, err = screen.RefreshEstablishments(ctx)
	} else {
		establishments, err = screen.Establishments(ctx)
	}
	if err != nil {
		flashError(ws, "failed to load establishment options", err)
	}

	h.renderList(w, r, ws, establishments)
}

func (h *VoucherHandler) renderList(w http.ResponseWriter, r *http.Request, ws *session.Workspace, establishments []model.Establishment) {
	screen := ws.Vouchers
	state := screen.List.State()
	establishmentID := dashboard.CategoryFilter(state.Filter)
	search := screen.Search()

	visible := screen.Visible()
	rows := make([]voucherRow, 0, len(visible))
	for _, v := range visible {
		rows = append(rows, voucherRow{Voucher: v, EstablishmentName: screen.EstablishmentName(v)})
	}
	paid, free := screen.PaidSplit()

	view := voucherListView{
		Rows:            rows,
		Establishments:  establishments,
		EstablishmentID: establishmentID,
		Search:          search,
		TotalCount:      state.TotalCount,
		Paid:            paid,
		Free:            free,
		Pagination: newPaginationView(
			dashboard.Pagination{Current: state.Page, Total: state.TotalPages},
			func(p int) string { return listURL(vouchersPath, p, "establishment", establishmentID, "q", search) },
		),
	}
	if screen.Form.IsOpen() {
		d := screen.Form.Draft()
		_, editing := screen.Form.Editing()
		view.Form = &voucherFormView{
			Editing:         editing,
			Title:           d.Title,
			Description:     d.Description,
			Code:            d.Code,
			Rules:           d.Rules,
			Value:           d.Value,
			Quantity:        d.Quantity,
			IsPaid:          d.IsPaid,
			EstablishmentID: d.EstablishmentID,
		}
	}

	h.renderer.render(w, http.StatusOK, "vouchers", newPageData(r, ws, "バウチャー", "vouchers", view))
}

// New は新規作成フォームを開く。コードは生成済みの候補で埋め、
// 店舗で絞り込み中ならその店舗を選択しておく。
// GET /vouchers/new
func (h *VoucherHandler) New(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	screen := ws.Vouchers
	screen.OpenForCreate()
	if id := dashboard.CategoryFilter(screen.List.Filter()); id != "" {
		d := screen.Form.Draft()
		d.EstablishmentID = id
		screen.Form.SetDraft(d)
	}
	http.Redirect(w, r, vouchersPath+"#form", http.StatusSeeOther)
}

// Edit は表示中の一覧からバウチャーを選んで編集フォームを開く。
// GET /vouchers/{id}/edit
func (h *VoucherHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := ws.Vouchers.OpenForEdit(id); err != nil {
		flashError(ws, "failed to open voucher form", err)
		http.Redirect(w, r, vouchersPath, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, vouchersPath+"#form", http.StatusSeeOther)
}

// Cancel はフォームを閉じて下書きを破棄する。
// POST /vouchers/form/cancel
func (h *VoucherHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	ws.Vouchers.Form.Close()
	http.Redirect(w, r, vouchersPath, http.StatusSeeOther)
}

// Submit はフォームの入力を下書きに反映して作成または更新を送信する。
// POST /vouchers/form
func (h *VoucherHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	screen := ws.Vouchers

	if !screen.Form.IsOpen() {
		ws.AddNotice(session.NoticeError, "フォームが開かれていません。もう一度操作してください。")
		http.Redirect(w, r, vouchersPath, http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	d := screen.Form.Draft()
	d.Title = r.PostForm.Get("title")
	d.Description = r.PostForm.Get("description")
	d.Code = r.PostForm.Get("code")
	d.Rules = r.PostForm.Get("rules")
	d.Value = r.PostForm.Get("value")
	d.IsPaid = r.PostForm.Get("is_paid") == "true"
	d.EstablishmentID = r.PostForm.Get("establishment_id")
	// 数値として読めない枚数は0として扱い、送信時の検証でエラーにする
	quantity, err := strconv.Atoi(strings.TrimSpace(r.PostForm.Get("quantity")))
	if err != nil {
		quantity = 0
	}
	d.Quantity = quantity
	screen.Form.SetDraft(d)

	res, err := screen.Submit(ctx)
	if err != nil {
		flashError(ws, "failed to submit voucher", err)
		http.Redirect(w, r, vouchersPath+"#form", http.StatusSeeOther)
		return
	}

	h.audit.Submitted(ctx, userIDOf(ws), "voucher", string(res.Mode), res.Row.ID)
	if res.Mode == dashboard.ModeUpdate {
		ws.AddNotice(session.NoticeSuccess, "バウチャー「"+res.Row.Title+"」を更新しました。")
	} else {
		ws.AddNotice(session.NoticeSuccess, "バウチャー「"+res.Row.Title+"」を作成しました。")
	}
	http.Redirect(w, r, vouchersPath, http.StatusSeeOther)
}
