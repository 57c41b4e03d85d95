package model

import (
	"strings"
	"time"
)

// LogoFile はアップロード待ちのロゴ画像を表す。
type LogoFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Logo は保存済みロゴのURLまたはアップロード待ちのファイルのどちらかを保持する。
// Fileが設定されている場合はFileが優先される。
type Logo struct {
	URL  string
	File *LogoFile
}

// Pending はアップロード待ちのファイルがあるかを返す。
func (l Logo) Pending() bool {
	return l.File != nil
}

// IsZero はロゴが未設定かを返す。
func (l Logo) IsZero() bool {
	return l.File == nil && l.URL == ""
}

// Establishment はバウチャーを発行する店舗を表す。
type Establishment struct {
	ID        string
	Name      string
	Category  string
	Logo      Logo
	CreatedAt time.Time
}

// MissingEstablishmentFields は送信時に必須となる項目のうち未入力のものを返す。
func MissingEstablishmentFields(e Establishment) []string {
	var missing []string
	if strings.TrimSpace(e.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(e.Category) == "" {
		missing = append(missing, "category")
	}
	return missing
}
