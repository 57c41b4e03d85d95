package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/model"
)

// Upstream は1つのログインセッションが使う上流APIクライアント。
// 認証・店舗・バウチャーの各操作とCookieの入出力を持つ。
type Upstream interface {
	Client
	dashboard.EstablishmentAPI
	dashboard.VoucherAPI
	Cookies() []model.UpstreamCookie
	SetCookies(cookies []model.UpstreamCookie)
}

// NoticeKind は通知の種類。
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice は次の画面表示で一度だけ表示される通知。
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Workspace はログイン中の1ユーザー分の状態。
// 認証状態と各画面（一覧・検索・フォーム）の状態を持ち、他のユーザーとは共有しない。
type Workspace struct {
	ID             string
	Store          *Store
	Establishments *dashboard.EstablishmentScreen
	Vouchers       *dashboard.VoucherScreen

	client    Upstream
	expiresAt time.Time

	mu      sync.Mutex
	notices []Notice
	synced  []model.UpstreamCookie
}

// NewWorkspace はWorkspaceを生成する。生成直後のStoreは未ログイン状態。
func NewWorkspace(id string, client Upstream, opts dashboard.Options, expiresAt time.Time) *Workspace {
	return &Workspace{
		ID:             id,
		Store:          NewStore(client),
		Establishments: dashboard.NewEstablishmentScreen(client, opts),
		Vouchers:       dashboard.NewVoucherScreen(client, opts),
		client:         client,
		expiresAt:      expiresAt,
		synced:         client.Cookies(),
	}
}

// User はログイン中のユーザーを返す。
func (w *Workspace) User() *model.User {
	return w.Store.User()
}

// ExpiresAt はセッションの有効期限を返す。
func (w *Workspace) ExpiresAt() time.Time {
	return w.expiresAt
}

// Expired は指定時刻の時点で期限切れかを返す。
func (w *Workspace) Expired(now time.Time) bool {
	return !now.Before(w.expiresAt)
}

// AddNotice は通知を追加する。
func (w *Workspace) AddNotice(kind NoticeKind, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notices = append(w.notices, Notice{Kind: kind, Message: message})
}

// TakeNotices は溜まっている通知を返し、空にする。
func (w *Workspace) TakeNotices() []Notice {
	w.mu.Lock()
	defer w.mu.Unlock()
	notices := w.notices
	w.notices = nil
	return notices
}

// changedCookies は前回保存した時点からCookieが変わっていれば新しいCookieを返す。
func (w *Workspace) changedCookies() ([]model.UpstreamCookie, bool) {
	current := w.client.Cookies()
	w.mu.Lock()
	defer w.mu.Unlock()
	if slices.Equal(current, w.synced) {
		return nil, false
	}
	return current, true
}

func (w *Workspace) markSynced(cookies []model.UpstreamCookie) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.synced = cookies
}

// logout は上流APIからログアウトする。
func (w *Workspace) logout(ctx context.Context) error {
	return w.Store.Logout(ctx)
}
