package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/model"
)

func TestOverviewHandler_Overview(t *testing.T) {
	up := &fakeUpstream{
		establishments: establishmentFixtures(7),
		vouchers: []model.Voucher{
			{ID: "v1", Title: "Paid", Code: "P", Quantity: 1, IsPaid: true, EstablishmentID: "est-a"},
			{ID: "v2", Title: "Free 1", Code: "F1", Quantity: 1, EstablishmentID: "est-a"},
			{ID: "v3", Title: "Free 2", Code: "F2", Quantity: 1, EstablishmentID: "est-b"},
		},
	}
	ws := newTestWorkspace(up, dashboard.Options{})
	h := NewOverviewHandler(testRenderer(t))

	req := withWorkspace(httptest.NewRequest(http.MethodGet, "/", nil), ws)
	w := httptest.NewRecorder()
	h.Overview(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{
		`data-testid="establishment-total">7<`,
		`data-testid="voucher-total">3<`,
		`data-testid="paid-split">1 / 2<`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
	// 最近の店舗は新しい順に5件
	if !strings.Contains(body, "Shop G") || strings.Contains(body, "Shop A") {
		t.Error("recent establishments not limited to newest five")
	}

	// 取得済みなら再取得しない
	h.Overview(httptest.NewRecorder(), req)
	if got := up.establishmentQueryCount(); got != 1 {
		t.Errorf("establishment queries = %d, want 1", got)
	}
}

func TestOverviewHandler_FetchErrorsAreFlashed(t *testing.T) {
	up := &fakeUpstream{
		listEstablishmentsErr: errors.New("timeout"),
		listVouchersErr:       errors.New("timeout"),
	}
	ws := newTestWorkspace(up, dashboard.Options{})
	h := NewOverviewHandler(testRenderer(t))

	req := withWorkspace(httptest.NewRequest(http.MethodGet, "/", nil), ws)
	w := httptest.NewRecorder()
	h.Overview(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := strings.Count(w.Body.String(), `class="notice notice-error"`); got != 2 {
		t.Errorf("error notices rendered = %d, want 2", got)
	}
}

func TestRecentEstablishments(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.Establishment{
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(48 * time.Hour)},
		{ID: "mid", CreatedAt: base.Add(24 * time.Hour)},
	}

	got := recentEstablishments(rows, 2)
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Errorf("recentEstablishments() = %+v", got)
	}
	if rows[0].ID != "old" {
		t.Error("input slice should not be reordered")
	}
}
