package model

// DefaultPageSize は一覧画面の1ページあたりの件数。
const DefaultPageSize = 9

// ListQuery は一覧取得のパラメータ。
// Filterはサーバー側で絞り込むキー（店舗ならカテゴリ、バウチャーなら店舗ID）。
type ListQuery struct {
	Page   int
	Limit  int
	Filter string
}

// Page は一覧APIが返す1ページ分の結果。
type Page[T any] struct {
	Rows       []T
	TotalCount int
}

// TotalPages は総件数とページサイズから総ページ数を求める（切り上げ）。
func TotalPages(totalCount, pageSize int) int {
	if totalCount <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}
