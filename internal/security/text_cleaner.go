package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextCleaner は管理者が入力したテキストからHTMLマークアップを取り除く。
// バウチャーの説明・利用規約のようなプレーンテキスト項目に使用する。
type TextCleaner interface {
	Clean(s string) string
}

// textCleaner はbluemondayのStrictPolicyによるTextCleanerの実装。
// Policyはスレッドセーフなので共有してよい。
type textCleaner struct {
	policy *bluemonday.Policy
}

// NewTextCleaner はTextCleanerの新しいインスタンスを生成する。
func NewTextCleaner() *textCleaner {
	return &textCleaner{policy: bluemonday.StrictPolicy()}
}

// Clean は全てのタグを除去し、エスケープされた文字を元に戻して前後の空白を削る。
// テンプレート出力時に改めてエスケープされる。
func (c *textCleaner) Clean(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(c.policy.Sanitize(s)))
}

var _ TextCleaner = (*textCleaner)(nil)
