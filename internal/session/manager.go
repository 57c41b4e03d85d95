package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/repository"
)

// ClientFactory はログインセッションごとの上流APIクライアントを生成する。
type ClientFactory func() (Upstream, error)

// Gauge はアクティブセッション数の記録先。metrics.Collectorが実装する。
type Gauge interface {
	SetActiveSessions(n int)
}

// Config はManagerの設定。
type Config struct {
	// MaxAge はセッション有効期間。
	MaxAge time.Duration
	// Screens は各画面の生成オプション。
	Screens dashboard.Options
}

// Manager はセッションIDごとのWorkspaceを保持し、PostgreSQLへ永続化する。
// プロセス再起動後は保存済みのCookieからWorkspaceを復元し、上流APIで再検証する。
type Manager struct {
	repo      repository.SessionRepository
	newClient ClientFactory
	config    Config
	gauge     Gauge
	now       func() time.Time

	mu   sync.Mutex
	live map[string]*Workspace
}

// NewManager はManagerを生成する。gaugeがnilの場合は記録しない。
func NewManager(repo repository.SessionRepository, newClient ClientFactory, config Config, gauge Gauge) *Manager {
	if config.MaxAge <= 0 {
		config.MaxAge = 24 * time.Hour
	}
	return &Manager{
		repo:      repo,
		newClient: newClient,
		config:    config,
		gauge:     gauge,
		now:       time.Now,
		live:      make(map[string]*Workspace),
	}
}

// Login は上流APIにログインし、新しいWorkspaceを作成して永続化する。
func (m *Manager) Login(ctx context.Context, email, password string) (*Workspace, error) {
	client, err := m.newClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := m.now()
	ws := NewWorkspace(id, client, m.config.Screens, now.Add(m.config.MaxAge))
	user, err := ws.Store.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	cookies := client.Cookies()
	if err := m.repo.Create(ctx, &model.Session{
		ID:              id,
		UserID:          user.ID,
		Email:           user.Email,
		Name:            user.Name,
		UpstreamCookies: cookies,
		ExpiresAt:       ws.expiresAt,
		CreatedAt:       now,
	}); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	ws.markSynced(cookies)

	m.mu.Lock()
	m.live[id] = ws
	m.mu.Unlock()
	m.reportActive()

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return ws, nil
}

// Get は指定IDのWorkspaceを返す。存在しない・期限切れ・再検証で未認証の場合はnilを返す。
func (m *Manager) Get(ctx context.Context, id string) (*Workspace, error) {
	if id == "" {
		return nil, nil
	}

	m.mu.Lock()
	ws, ok := m.live[id]
	if ok && ws.Expired(m.now()) {
		delete(m.live, id)
		ws, ok = nil, false
	}
	m.mu.Unlock()
	if ok {
		return ws, nil
	}

	return m.restore(ctx, id)
}

// restore は永続化されたセッションからWorkspaceを復元し、上流APIで再検証する。
func (m *Manager) restore(ctx context.Context, id string) (*Workspace, error) {
	stored, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if stored == nil {
		return nil, nil
	}

	client, err := m.newClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}
	client.SetCookies(stored.UpstreamCookies)

	ws := NewWorkspace(id, client, m.config.Screens, stored.ExpiresAt)
	if err := ws.Store.Init(ctx); err != nil {
		return nil, err
	}
	if !ws.Store.Authenticated() {
		slog.Info("stored session is no longer valid upstream",
			slog.String("user_id", stored.UserID),
		)
		if err := m.repo.DeleteByID(ctx, id); err != nil {
			slog.Error("failed to delete stale session",
				slog.String("error", err.Error()),
			)
		}
		return nil, nil
	}

	m.mu.Lock()
	if existing, ok := m.live[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.live[id] = ws
	m.mu.Unlock()
	m.reportActive()

	return ws, nil
}

// Logout は上流APIからログアウトし、Workspaceと永続化されたセッションを破棄する。
// 上流のログアウトに失敗してもローカルのセッションは破棄する。
func (m *Manager) Logout(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("session ID is required")
	}

	m.mu.Lock()
	ws := m.live[id]
	delete(m.live, id)
	m.mu.Unlock()
	m.reportActive()

	var upstreamErr error
	if ws != nil {
		upstreamErr = ws.logout(ctx)
	}

	if err := m.repo.DeleteByID(ctx, id); err != nil {
		return errors.Join(upstreamErr, fmt.Errorf("failed to delete session: %w", err))
	}

	slog.Info("user logged out", slog.String("session_id_prefix", id[:min(8, len(id))]))
	return upstreamErr
}

// Sync は上流APIのCookieが変わっていれば永続化する。
func (m *Manager) Sync(ctx context.Context, ws *Workspace) error {
	cookies, changed := ws.changedCookies()
	if !changed {
		return nil
	}
	if err := m.repo.UpdateCookies(ctx, ws.ID, cookies); err != nil {
		return fmt.Errorf("failed to update session cookies: %w", err)
	}
	ws.markSynced(cookies)
	return nil
}

// PurgeExpired はメモリ上の期限切れWorkspaceを破棄し、破棄した件数を返す。
func (m *Manager) PurgeExpired() int {
	now := m.now()
	m.mu.Lock()
	purged := 0
	for id, ws := range m.live {
		if ws.Expired(now) {
			delete(m.live, id)
			purged++
		}
	}
	m.mu.Unlock()
	if purged > 0 {
		m.reportActive()
	}
	return purged
}

// Active はメモリ上のWorkspace数を返す。
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Manager) reportActive() {
	if m.gauge != nil {
		m.gauge.SetActiveSessions(m.Active())
	}
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
