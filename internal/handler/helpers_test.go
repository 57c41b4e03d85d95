package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/middleware"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/session"
)

// --- モック定義 ---

// fakeUpstream はメモリ上のデータで上流APIを模倣する。
type fakeUpstream struct {
	mu sync.Mutex

	establishments []model.Establishment
	vouchers       []model.Voucher
	categories     []string

	establishmentQueries []model.ListQuery
	voucherQueries       []model.ListQuery
	categoryCalls        int

	createdEstablishment *model.Establishment
	updatedEstablishment *model.Establishment
	createdVoucher       *model.Voucher

	listEstablishmentsErr error
	listVouchersErr       error
	cookies               []model.UpstreamCookie
}

func (f *fakeUpstream) Login(context.Context, string, string) (*model.User, error) {
	return &model.User{ID: "user-1"}, nil
}
func (f *fakeUpstream) Logout(context.Context) error { return nil }
func (f *fakeUpstream) VerifyToken(context.Context) (*model.User, error) {
	return &model.User{ID: "user-1"}, nil
}

func (f *fakeUpstream) ListEstablishments(_ context.Context, q model.ListQuery) (model.Page[model.Establishment], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.establishmentQueries = append(f.establishmentQueries, q)
	if f.listEstablishmentsErr != nil {
		return model.Page[model.Establishment]{}, f.listEstablishmentsErr
	}
	var rows []model.Establishment
	for _, e := range f.establishments {
		if model.IsFilterAll(q.Filter) || e.Category == q.Filter {
			rows = append(rows, e)
		}
	}
	return model.Page[model.Establishment]{Rows: pageOf(rows, q), TotalCount: len(rows)}, nil
}

func (f *fakeUpstream) ListCategories(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categoryCalls++
	return append([]string(nil), f.categories...), nil
}

func (f *fakeUpstream) CreateEstablishment(_ context.Context, e model.Establishment) (model.Establishment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdEstablishment = &e
	created := e
	created.ID = "est-new"
	created.CreatedAt = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if e.Logo.File != nil {
		created.Logo = model.Logo{URL: "https://cdn.example.com/" + e.Logo.File.Filename}
	}
	return created, nil
}

func (f *fakeUpstream) UpdateEstablishment(_ context.Context, e model.Establishment) (model.Establishment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedEstablishment = &e
	return e, nil
}

func (f *fakeUpstream) ListVouchers(_ context.Context, q model.ListQuery) (model.Page[model.Voucher], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.voucherQueries = append(f.voucherQueries, q)
	if f.listVouchersErr != nil {
		return model.Page[model.Voucher]{}, f.listVouchersErr
	}
	var rows []model.Voucher
	for _, v := range f.vouchers {
		if model.IsFilterAll(q.Filter) || v.EstablishmentID == q.Filter {
			rows = append(rows, v)
		}
	}
	return model.Page[model.Voucher]{Rows: pageOf(rows, q), TotalCount: len(rows)}, nil
}

func (f *fakeUpstream) CreateVoucher(_ context.Context, v model.Voucher) (model.Voucher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdVoucher = &v
	created := v
	created.ID = "v-new"
	return created, nil
}

func (f *fakeUpstream) UpdateVoucher(_ context.Context, v model.Voucher) (model.Voucher, error) {
	return v, nil
}

func (f *fakeUpstream) Cookies() []model.UpstreamCookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.UpstreamCookie(nil), f.cookies...)
}

func (f *fakeUpstream) SetCookies(cookies []model.UpstreamCookie) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = cookies
}

func (f *fakeUpstream) establishmentQueryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.establishmentQueries)
}

func (f *fakeUpstream) lastEstablishmentQuery() model.ListQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.establishmentQueries[len(f.establishmentQueries)-1]
}

func pageOf[T any](rows []T, q model.ListQuery) []T {
	start := (q.Page - 1) * q.Limit
	if start < 0 || start >= len(rows) {
		return nil
	}
	end := min(start+q.Limit, len(rows))
	return rows[start:end]
}

// recordingAudit はAuditRecorderの呼び出しを記録する。
type recordingAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *recordingAudit) Submitted(_ context.Context, userID, entity, action, entityID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, strings.Join([]string{userID, entity, action, entityID}, "/"))
}

// --- テストヘルパー ---

// newTestWorkspace はfakeUpstreamを使うログイン済みのWorkspaceを生成する。
func newTestWorkspace(up *fakeUpstream, opts dashboard.Options) *session.Workspace {
	ws := session.NewWorkspace("ws-test-1234", up, opts, time.Now().Add(time.Hour))
	ws.Store.Restore(&model.User{ID: "user-1", Email: "admin@example.com", Name: "管理者"})
	return ws
}

// withWorkspace はテスト用にリクエストコンテキストにWorkspaceを注入する。
func withWorkspace(r *http.Request, ws *session.Workspace) *http.Request {
	ctx := middleware.ContextWithWorkspace(r.Context(), ws)
	ctx = middleware.ContextWithUserID(ctx, "user-1")
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

func testRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

// noticesOf はWorkspaceに溜まった通知を種類ごとのメッセージに分けて返す。
func noticesOf(ws *session.Workspace) (success, failure []string) {
	for _, n := range ws.TakeNotices() {
		if n.Kind == session.NoticeSuccess {
			success = append(success, n.Message)
		} else {
			failure = append(failure, n.Message)
		}
	}
	return success, failure
}

func establishmentFixtures(n int) []model.Establishment {
	categories := []string{"Food", "Retail"}
	rows := make([]model.Establishment, 0, n)
	for i := range n {
		rows = append(rows, model.Establishment{
			ID:        "est-" + string(rune('a'+i)),
			Name:      "Shop " + string(rune('A'+i)),
			Category:  categories[i%2],
			CreatedAt: time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}
	return rows
}
