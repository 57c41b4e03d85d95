package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	cookies, err := encodeCookies(session.UpstreamCookies)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO dashboard_sessions
		   (id, user_id, email, name, upstream_cookies, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		session.ID, session.UserID, session.Email, session.Name, cookies, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var cookies []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, email, name, upstream_cookies, expires_at, created_at, updated_at
		 FROM dashboard_sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.UserID, &session.Email, &session.Name, &cookies,
		&session.ExpiresAt, &session.CreatedAt, &session.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	session.UpstreamCookies, err = decodeCookies(cookies)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateCookies は上流APIのCookieを更新する。
func (r *PostgresSessionRepo) UpdateCookies(ctx context.Context, id string, cookies []model.UpstreamCookie) error {
	encoded, err := encodeCookies(cookies)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE dashboard_sessions SET upstream_cookies = $2, updated_at = now() WHERE id = $1`,
		id, encoded,
	)
	if err != nil {
		return fmt.Errorf("failed to update session cookies: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM dashboard_sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// encodeCookies はCookieをJSONB列に保存する形式に変換する。nilは空配列として保存する。
func encodeCookies(cookies []model.UpstreamCookie) ([]byte, error) {
	if cookies == nil {
		cookies = []model.UpstreamCookie{}
	}
	b, err := json.Marshal(cookies)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upstream cookies: %w", err)
	}
	return b, nil
}

func decodeCookies(b []byte) ([]model.UpstreamCookie, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var cookies []model.UpstreamCookie
	if err := json.Unmarshal(b, &cookies); err != nil {
		return nil, fmt.Errorf("failed to decode upstream cookies: %w", err)
	}
	return cookies, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
