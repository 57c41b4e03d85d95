package session

import (
	"context"
	"sync"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// --- モック定義 ---

type mockUpstream struct {
	loginFn  func(ctx context.Context, email, password string) (*model.User, error)
	logoutFn func(ctx context.Context) error
	verifyFn func(ctx context.Context) (*model.User, error)

	mu      sync.Mutex
	cookies []model.UpstreamCookie
}

func (m *mockUpstream) Login(ctx context.Context, email, password string) (*model.User, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return &model.User{ID: "u1", Email: email, Name: "管理者"}, nil
}

func (m *mockUpstream) Logout(ctx context.Context) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return nil
}

func (m *mockUpstream) VerifyToken(ctx context.Context) (*model.User, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx)
	}
	return &model.User{ID: "u1", Email: "admin@example.com", Name: "管理者"}, nil
}

func (m *mockUpstream) ListEstablishments(context.Context, model.ListQuery) (model.Page[model.Establishment], error) {
	return model.Page[model.Establishment]{}, nil
}

func (m *mockUpstream) ListCategories(context.Context) ([]string, error) {
	return nil, nil
}

func (m *mockUpstream) CreateEstablishment(_ context.Context, e model.Establishment) (model.Establishment, error) {
	return e, nil
}

func (m *mockUpstream) UpdateEstablishment(_ context.Context, e model.Establishment) (model.Establishment, error) {
	return e, nil
}

func (m *mockUpstream) ListVouchers(context.Context, model.ListQuery) (model.Page[model.Voucher], error) {
	return model.Page[model.Voucher]{}, nil
}

func (m *mockUpstream) CreateVoucher(_ context.Context, v model.Voucher) (model.Voucher, error) {
	return v, nil
}

func (m *mockUpstream) UpdateVoucher(_ context.Context, v model.Voucher) (model.Voucher, error) {
	return v, nil
}

func (m *mockUpstream) Cookies() []model.UpstreamCookie {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.UpstreamCookie(nil), m.cookies...)
}

func (m *mockUpstream) SetCookies(cookies []model.UpstreamCookie) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies = append([]model.UpstreamCookie(nil), cookies...)
}

type mockSessionRepo struct {
	mu            sync.Mutex
	sessions      map[string]*model.Session
	createFn      func(ctx context.Context, session *model.Session) error
	deleted       []string
	cookieUpdates int
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.Session)}
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, session); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *session
	m.sessions[session.ID] = &s
	return nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (m *mockSessionRepo) UpdateCookies(_ context.Context, id string, cookies []model.UpstreamCookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookieUpdates++
	if s, ok := m.sessions[id]; ok {
		s.UpstreamCookies = cookies
	}
	return nil
}

func (m *mockSessionRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	delete(m.sessions, id)
	return nil
}

type recordingGauge struct {
	last int
}

func (g *recordingGauge) SetActiveSessions(n int) { g.last = n }
