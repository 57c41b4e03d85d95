package middleware

import (
	"context"
	"time"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/session"
)

// --- モック定義 ---

type stubUpstream struct{}

func (stubUpstream) Login(context.Context, string, string) (*model.User, error) { return nil, nil }
func (stubUpstream) Logout(context.Context) error                               { return nil }
func (stubUpstream) VerifyToken(context.Context) (*model.User, error)           { return nil, nil }
func (stubUpstream) ListEstablishments(context.Context, model.ListQuery) (model.Page[model.Establishment], error) {
	return model.Page[model.Establishment]{}, nil
}
func (stubUpstream) ListCategories(context.Context) ([]string, error) { return nil, nil }
func (stubUpstream) CreateEstablishment(_ context.Context, e model.Establishment) (model.Establishment, error) {
	return e, nil
}
func (stubUpstream) UpdateEstablishment(_ context.Context, e model.Establishment) (model.Establishment, error) {
	return e, nil
}
func (stubUpstream) ListVouchers(context.Context, model.ListQuery) (model.Page[model.Voucher], error) {
	return model.Page[model.Voucher]{}, nil
}
func (stubUpstream) CreateVoucher(_ context.Context, v model.Voucher) (model.Voucher, error) {
	return v, nil
}
func (stubUpstream) UpdateVoucher(_ context.Context, v model.Voucher) (model.Voucher, error) {
	return v, nil
}
func (stubUpstream) Cookies() []model.UpstreamCookie     { return nil }
func (stubUpstream) SetCookies([]model.UpstreamCookie) {}

// newTestWorkspace はログイン済みのWorkspaceを生成する。
func newTestWorkspace(id, userID string) *session.Workspace {
	ws := session.NewWorkspace(id, stubUpstream{}, dashboard.Options{}, time.Now().Add(time.Hour))
	ws.Store.Restore(&model.User{ID: userID, Email: userID + "@example.com"})
	return ws
}

type mockWorkspaceFinder struct {
	getFn func(ctx context.Context, id string) (*session.Workspace, error)
}

func (m *mockWorkspaceFinder) Get(ctx context.Context, id string) (*session.Workspace, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

// finderFor は指定IDに対してのみwsを返すfinderを作る。
func finderFor(id string, ws *session.Workspace) *mockWorkspaceFinder {
	return &mockWorkspaceFinder{
		getFn: func(_ context.Context, got string) (*session.Workspace, error) {
			if got == id {
				return ws, nil
			}
			return nil, nil
		},
	}
}
