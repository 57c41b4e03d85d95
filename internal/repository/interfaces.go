// Package repository はデータ永続化層のインターフェースと実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// SessionRepository はダッシュボードセッションの永続化インターフェース。
// 上流APIのセッションCookieを保存し、再起動後にセッションを復元できるようにする。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れ・存在しない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateCookies は上流APIのCookieを更新する。
	UpdateCookies(ctx context.Context, id string, cookies []model.UpstreamCookie) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}
