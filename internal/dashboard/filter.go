package dashboard

import (
	"strings"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// CategoryFilter はカテゴリ選択値からサーバーに送る絞り込み値を返す。
// "all"または空の場合は絞り込みなし（空文字列）。
func CategoryFilter(category string) string {
	if model.IsFilterAll(category) {
		return ""
	}
	return strings.TrimSpace(category)
}

// containsFold はfieldsのいずれかがtermを大文字小文字を区別せずに含むかを返す。
func containsFold(term string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

// SearchEstablishments は読み込み済みの店舗を名前またはカテゴリで検索する。
// 検索語が空なら全件を返す。サーバーには問い合わせない。
func SearchEstablishments(rows []model.Establishment, term string) []model.Establishment {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return rows
	}
	out := make([]model.Establishment, 0, len(rows))
	for _, e := range rows {
		if containsFold(term, e.Name, e.Category) {
			out = append(out, e)
		}
	}
	return out
}

// SearchVouchers は読み込み済みのバウチャーをタイトル・コード・店舗名で検索する。
// 店舗名はestablishmentNameで解決する。
func SearchVouchers(rows []model.Voucher, term string, establishmentName func(model.Voucher) string) []model.Voucher {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return rows
	}
	out := make([]model.Voucher, 0, len(rows))
	for _, v := range rows {
		name := ""
		if establishmentName != nil {
			name = establishmentName(v)
		}
		if containsFold(term, v.Title, v.Code, name) {
			out = append(out, v)
		}
	}
	return out
}
