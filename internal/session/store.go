// Package session はダッシュボードのログイン状態と、ログインごとの画面状態を管理する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/vouchdesk/internal/apiclient"
	"github.com/hitoshi/vouchdesk/internal/model"
)

// Client はStoreが使う上流APIの認証操作。apiclient.Clientが実装する。
type Client interface {
	Login(ctx context.Context, email, password string) (*model.User, error)
	Logout(ctx context.Context) error
	VerifyToken(ctx context.Context) (*model.User, error)
}

// Store は1つのログインについて現在のユーザーを保持する。
// プロセス全体で共有せず、ログインセッションごとに生成して明示的に渡す。
type Store struct {
	client Client

	mu   sync.RWMutex
	user *model.User
}

// NewStore はStoreを生成する。生成直後は未ログイン状態。
func NewStore(client Client) *Store {
	return &Store{client: client}
}

// Init は上流APIのトークンを検証してユーザーを設定する。
// 検証に失敗した場合はユーザーをクリアし、未ログインとして扱う。
// 認証エラー以外の失敗はエラーとして返す。
func (s *Store) Init(ctx context.Context) error {
	user, err := s.client.VerifyToken(ctx)
	if err != nil {
		s.setUser(nil)
		if errors.Is(err, apiclient.ErrUnauthorized) {
			return nil
		}
		return fmt.Errorf("failed to verify token: %w", err)
	}
	s.setUser(user)
	return nil
}

// Login はメールアドレスとパスワードでログインする。
// ログイン応答にユーザーが含まれない場合はトークン検証で補う。
func (s *Store) Login(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.client.Login(ctx, email, password)
	if err != nil {
		var statusErr *apiclient.StatusError
		if errors.As(err, &statusErr) {
			if statusErr.StatusCode >= 500 {
				return nil, model.NewUpstreamFailedError("login")
			}
			return nil, model.NewLoginFailedError(statusErr.Message)
		}
		if errors.Is(err, apiclient.ErrRejected) || errors.Is(err, apiclient.ErrUnauthorized) {
			return nil, model.NewLoginFailedError("")
		}
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	if user == nil {
		user, err = s.client.VerifyToken(ctx)
		if err != nil {
			return nil, model.NewLoginFailedError("")
		}
	}

	s.setUser(user)
	return user, nil
}

// Logout は上流APIからログアウトし、ユーザーをクリアする。
// 上流の呼び出しに失敗してもローカルのユーザーはクリアする。
func (s *Store) Logout(ctx context.Context) error {
	err := s.client.Logout(ctx)
	s.setUser(nil)
	if err != nil {
		slog.Warn("upstream logout failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// User は現在のユーザーを返す。未ログインならnil。
func (s *Store) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Authenticated はログイン済みかを返す。
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// Restore は永続化されていたユーザーを検証なしで設定する。
func (s *Store) Restore(user *model.User) {
	s.setUser(user)
}

func (s *Store) setUser(user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}
