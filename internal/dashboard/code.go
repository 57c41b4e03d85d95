package dashboard

import (
	"fmt"

	"github.com/jaevor/go-nanoid"
)

const (
	// codeAlphabet はバウチャーコードに使う文字。読み間違えやすい0/O/1/Iを除く。
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// DefaultCodeLength はバウチャーコードの既定の長さ。
	DefaultCodeLength = 8
)

// NewCodeGenerator は大文字英数字のバウチャーコードを生成する関数を返す。
func NewCodeGenerator(length int) (func() string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	gen, err := nanoid.CustomASCII(codeAlphabet, length)
	if err != nil {
		return nil, fmt.Errorf("コード生成器の作成に失敗しました: %w", err)
	}
	return gen, nil
}
