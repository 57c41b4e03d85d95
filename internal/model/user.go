// Package model はドメインモデルを定義する。
package model

import "time"

// User はダッシュボードにログインしている管理者を表す。
// 上流APIの /user/verify-token の応答から生成される。
type User struct {
	ID    string
	Email string
	Name  string
}

// UpstreamCookie は上流APIが発行したCookieの永続化用表現。
type UpstreamCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Session はダッシュボードのログインセッションを表す。
// 上流APIのセッションCookieを保持し、再起動後も復元できるようにする。
type Session struct {
	ID              string
	UserID          string
	Email           string
	Name            string
	UpstreamCookies []UpstreamCookie
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// User はセッションに保存されたユーザー情報を返す。
func (s *Session) User() *User {
	return &User{ID: s.UserID, Email: s.Email, Name: s.Name}
}
