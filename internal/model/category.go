package model

import "strings"

// CategoryAll はカテゴリ絞り込みなしを表す値。
const CategoryAll = "all"

// CategoryKind はフォームで選ばれたカテゴリの種別。
type CategoryKind string

const (
	// CategoryExisting は既存カテゴリから選択されたことを示す。
	CategoryExisting CategoryKind = "existing"
	// CategoryNew は新しいカテゴリ名が入力されたことを示す。
	CategoryNew CategoryKind = "new"
)

// CategoryChoice はフォームでのカテゴリ選択を表すタグ付きユニオン。
// 既存カテゴリ名と「新規作成」の指定が衝突しないよう種別を明示する。
type CategoryChoice struct {
	Kind  CategoryKind
	Value string
}

// ExistingCategory は既存カテゴリの選択を生成する。
func ExistingCategory(name string) CategoryChoice {
	return CategoryChoice{Kind: CategoryExisting, Value: name}
}

// NewCategory は新規カテゴリの入力を生成する。
func NewCategory(name string) CategoryChoice {
	return CategoryChoice{Kind: CategoryNew, Value: name}
}

// Name は送信に使うカテゴリ名を返す。
func (c CategoryChoice) Name() string {
	return strings.TrimSpace(c.Value)
}

// IsFilterAll はカテゴリ絞り込みが無効（全件）かを判定する。
func IsFilterAll(category string) bool {
	c := strings.TrimSpace(category)
	return c == "" || c == CategoryAll
}
