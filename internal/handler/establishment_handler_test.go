package handler

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/model"
)

// pngHeader はPNGとして判定される最小のバイト列。
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newEstablishmentTest(t *testing.T) (*EstablishmentHandler, *recordingAudit) {
	t.Helper()
	audit := &recordingAudit{}
	return NewEstablishmentHandler(testRenderer(t), audit, 0), audit
}

func TestEstablishmentHandler_List_FetchesOnlyWhenNeeded(t *testing.T) {
	up := &fakeUpstream{establishments: establishmentFixtures(5), categories: []string{"Food", "Retail"}}
	ws := newTestWorkspace(up, dashboard.Options{PageSize: 2})
	h, _ := newEstablishmentTest(t)

	do := func(target string) *httptest.ResponseRecorder {
		req := withWorkspace(httptest.NewRequest(http.MethodGet, target, nil), ws)
		w := httptest.NewRecorder()
		h.List(w, req)
		return w
	}

	w := do("/establishments")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if up.establishmentQueryCount() != 1 {
		t.Fatalf("queries = %d, want 1 on first view", up.establishmentQueryCount())
	}
	body := w.Body.String()
	if !strings.Contains(body, "Shop A") || !strings.Contains(body, "Shop B") {
		t.Errorf("first page rows missing from body")
	}
	if strings.Contains(body, "Shop C") {
		t.Errorf("second page row rendered on first page")
	}

	// 同じページ・同じ絞り込みでは再取得しない
	do("/establishments")
	if up.establishmentQueryCount() != 1 {
		t.Errorf("queries = %d, want 1 after revisit", up.establishmentQueryCount())
	}

	do("/establishments?page=2")
	if up.establishmentQueryCount() != 2 {
		t.Fatalf("queries = %d, want 2 after page change", up.establishmentQueryCount())
	}
	if q := up.lastEstablishmentQuery(); q.Page != 2 || q.Limit != 2 {
		t.Errorf("query = %+v, want page 2 limit 2", q)
	}

	do("/establishments?refresh=1")
	if up.establishmentQueryCount() != 3 {
		t.Errorf("queries = %d, want 3 after refresh", up.establishmentQueryCount())
	}
	if up.categoryCalls != 2 {
		t.Errorf("category calls = %d, want 2 (initial + refresh)", up.categoryCalls)
	}
}

func TestEstablishmentHandler_List_CategoryChangeResetsPage(t *testing.T) {
	up := &fakeUpstream{establishments: establishmentFixtures(8)}
	ws := newTestWorkspace(up, dashboard.Options{PageSize: 2})
	h, _ := newEstablishmentTest(t)

	for _, target := range []string{"/establishments?page=2", "/establishments?category=Food&page=2"} {
		req := withWorkspace(httptest.NewRequest(http.MethodGet, target, nil), ws)
		h.List(httptest.NewRecorder(), req)
	}

	q := up.lastEstablishmentQuery()
	if q.Filter != "Food" || q.Page != 1 {
		t.Errorf("query = %+v, want Food page 1", q)
	}

	// "all" は絞り込みなし
	req := withWorkspace(httptest.NewRequest(http.MethodGet, "/establishments?category=all", nil), ws)
	h.List(httptest.NewRecorder(), req)
	if q := up.lastEstablishmentQuery(); q.Filter != model.CategoryAll {
		t.Errorf("Filter = %q, want %q", q.Filter, model.CategoryAll)
	}
}

func TestEstablishmentHandler_List_SearchFiltersLoadedRows(t *testing.T) {
	up := &fakeUpstream{establishments: []model.Establishment{
		{ID: "1", Name: "Sushi Bar", Category: "Food"},
		{ID: "2", Name: "Book Store", Category: "Retail"},
	}}
	ws := newTestWorkspace(up, dashboard.Options{})
	h, _ := newEstablishmentTest(t)

	req := withWorkspace(httptest.NewRequest(http.MethodGet, "/establishments?q=sushi", nil), ws)
	w := httptest.NewRecorder()
	h.List(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "Sushi Bar") {
		t.Error("matching row missing")
	}
	if strings.Contains(body, "Book Store") {
		t.Error("non-matching row rendered")
	}
	if ws.Establishments.Search() != "sushi" {
		t.Errorf("Search() = %q, want sushi", ws.Establishments.Search())
	}
}

func TestEstablishmentHandler_List_FetchErrorIsFlashed(t *testing.T) {
	up := &fakeUpstream{listEstablishmentsErr: errors.New("connection refused")}
	ws := newTestWorkspace(up, dashboard.Options{})
	h, _ := newEstablishmentTest(t)

	req := withWorkspace(httptest.NewRequest(http.MethodGet, "/establishments", nil), ws)
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "通信に失敗しました") {
		t.Error("fetch error notice not rendered")
	}
}

func TestEstablishmentHandler_New_OpensForm(t *testing.T) {
	up := &fakeUpstream{}
	ws := newTestWorkspace(up, dashboard.Options{})
	h, _ := newEstablishmentTest(t)

	req := withWorkspace(httptest.NewRequest(http.MethodGet, "/establishments/new", nil), ws)
	w := httptest.NewRecorder()
	h.New(w, req)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/establishments#form" {
		t.Errorf("Location = %q", loc)
	}
	if !ws.Establishments.Form.IsOpen() || ws.Establishments.Form.Mode() != dashboard.ModeCreate {
		t.Error("form should be open in create mode")
	}
}

func TestEstablishmentHandler_Edit(t *testing.T) {
	up := &fakeUpstream{establishments: establishmentFixtures(2)}
	ws := newTestWorkspace(up, dashboard.Options{})
	h, _ := newEstablishmentTest(t)
	if err := ws.Establishments.Load(t.Context()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	t.Run("unknown id flashes error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/establishments/missing/edit", nil)
		req = withChiURLParam(withWorkspace(req, ws), "id", "missing")
		w := httptest.NewRecorder()
		h.Edit(w, req)

		if loc := w.Header().Get("Location"); loc != "/establishments" {
			t.Errorf("Location = %q, want /establishments", loc)
		}
		if ws.Establishments.Form.IsOpen() {
			t.Error("form should stay closed")
		}
		if _, failure := noticesOf(ws); len(failure) != 1 {
			t.Errorf("error notices = %v, want 1", failure)
		}
	})

	t.Run("loaded row opens edit form", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/establishments/est-b/edit", nil)
		req = withChiURLParam(withWorkspace(req, ws), "id", "est-b")
		w := httptest.NewRecorder()
		h.Edit(w, req)

		if ws.Establishments.Form.Mode() != dashboard.ModeUpdate {
			t.Fatal("form should be in update mode")
		}
		if d := ws.Establishments.Form.Draft(); d.Name != "Shop B" || d.Category.Value != "Retail" {
			t.Errorf("draft = %+v", d)
		}

		// 編集フォームが一覧画面に描画される
		list := withWorkspace(httptest.NewRequest(http.MethodGet, "/establishments", nil), ws)
		lw := httptest.NewRecorder()
		h.List(lw, list)
		if !strings.Contains(lw.Body.String(), "店舗を編集") {
			t.Error("edit form not rendered")
		}
	})
}

func TestEstablishmentHandler_Submit_ValidationKeepsDraft(t *testing.T) {
	up := &fakeUpstream{}
	ws := newTestWorkspace(up, dashboard.Options{})
	h, audit := newEstablishmentTest(t)
	ws.Establishments.OpenForCreate()

	form := strings.NewReader("name=Cafe&category_kind=existing&category=")
	req := httptest.NewRequest(http.MethodPost, "/establishments/form", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.Submit(w, withWorkspace(req, ws))

	if loc := w.Header().Get("Location"); loc != "/establishments#form" {
		t.Errorf("Location = %q, want /establishments#form", loc)
	}
	if !ws.Establishments.Form.IsOpen() {
		t.Fatal("form should remain open")
	}
	if d := ws.Establishments.Form.Draft(); d.Name != "Cafe" {
		t.Errorf("draft name = %q, want Cafe", d.Name)
	}
	_, failure := noticesOf(ws)
	if len(failure) != 1 || !strings.Contains(failure[0], "category") {
		t.Errorf("error notices = %v, want missing category", failure)
	}
	if up.createdEstablishment != nil {
		t.Error("upstream should not be called on validation error")
	}
	if len(audit.events) != 0 {
		t.Errorf("audit events = %v, want none", audit.events)
	}
}

func TestEstablishmentHandler_Submit_CreatesWithUploadedLogo(t *testing.T) {
	up := &fakeUpstream{categories: []string{"Food"}}
	ws := newTestWorkspace(up, dashboard.Options{})
	h, audit := newEstablishmentTest(t)
	if _, err := ws.Establishments.Categories(t.Context()); err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	ws.Establishments.OpenForCreate()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("name", "Ramen House")
	mw.WriteField("category_kind", "new")
	mw.WriteField("new_category", "Noodles")
	fw, err := mw.CreateFormFile("logo", "ramen.png")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	fw.Write(pngHeader)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/establishments/form", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.Submit(w, withWorkspace(req, ws))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/establishments" {
		t.Fatalf("response = %d %q", w.Code, w.Header().Get("Location"))
	}
	created := up.createdEstablishment
	if created == nil {
		t.Fatal("CreateEstablishment not called")
	}
	if created.Name != "Ramen House" || created.Category != "Noodles" {
		t.Errorf("created = %+v", created)
	}
	if created.Logo.File == nil || created.Logo.File.ContentType != "image/png" || created.Logo.File.Filename != "ramen.png" {
		t.Errorf("logo = %+v, want pending png upload", created.Logo.File)
	}
	if ws.Establishments.Form.IsOpen() {
		t.Error("form should close after success")
	}

	categories, _ := ws.Establishments.Categories(t.Context())
	if len(categories) != 2 || categories[1] != "Noodles" {
		t.Errorf("categories = %v, want new category appended", categories)
	}
	if len(audit.events) != 1 || audit.events[0] != "user-1/establishment/create/est-new" {
		t.Errorf("audit events = %v", audit.events)
	}
	success, _ := noticesOf(ws)
	if len(success) != 1 || !strings.Contains(success[0], "Ramen House") {
		t.Errorf("success notices = %v", success)
	}
}

func TestEstablishmentHandler_Submit_RejectsNonImageUpload(t *testing.T) {
	up := &fakeUpstream{}
	ws := newTestWorkspace(up, dashboard.Options{})
	h, _ := newEstablishmentTest(t)
	ws.Establishments.OpenForCreate()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("name", "Cafe")
	mw.WriteField("category_kind", "existing")
	mw.WriteField("category", "Food")
	fw, _ := mw.CreateFormFile("logo", "notes.txt")
	fw.Write([]byte("just some text"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/establishments/form", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.Submit(w, withWorkspace(req, ws))

	if up.createdEstablishment != nil {
		t.Error("upstream should not be called for invalid logo")
	}
	if d := ws.Establishments.Form.Draft(); d.Name != "Cafe" || d.Category.Value != "Food" {
		t.Errorf("draft = %+v, want inputs kept", d)
	}
	if _, failure := noticesOf(ws); len(failure) != 1 || !strings.Contains(failure[0], "ロゴ画像が不正です") {
		t.Errorf("error notices = %v", failure)
	}
}

func TestEstablishmentHandler_Submit_FormClosed(t *testing.T) {
	up := &fakeUpstream{}
	ws := newTestWorkspace(up, dashboard.Options{})
	h, _ := newEstablishmentTest(t)

	req := httptest.NewRequest(http.MethodPost, "/establishments/form", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.Submit(w, withWorkspace(req, ws))

	if w.Header().Get("Location") != "/establishments" {
		t.Errorf("Location = %q", w.Header().Get("Location"))
	}
	if up.createdEstablishment != nil {
		t.Error("upstream should not be called")
	}
}

func TestEstablishmentHandler_Cancel(t *testing.T) {
	up := &fakeUpstream{}
	ws := newTestWorkspace(up, dashboard.Options{})
	h, _ := newEstablishmentTest(t)
	ws.Establishments.OpenForCreate()

	req := httptest.NewRequest(http.MethodPost, "/establishments/form/cancel", nil)
	w := httptest.NewRecorder()
	h.Cancel(w, withWorkspace(req, ws))

	if ws.Establishments.Form.IsOpen() {
		t.Error("form should be closed")
	}
}

func TestEstablishmentHandler_NoWorkspaceRedirectsToLogin(t *testing.T) {
	h, _ := newEstablishmentTest(t)

	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/establishments", nil))

	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login" {
		t.Errorf("response = %d %q, want redirect to /login", w.Code, w.Header().Get("Location"))
	}
}
