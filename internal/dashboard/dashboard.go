// Package dashboard は管理画面の中核となる一覧取得・検索・フォーム・ページネーションを提供する。
// Webダッシュボードと端末UIの両方から同じ画面ロジックを使う。
package dashboard

import (
	"context"
	"strings"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// Observer は画面操作の計測先。metrics.Collectorが実装する。
type Observer interface {
	RecordFormSubmission(entity, mode, result string)
	RecordStaleFetch(entity string)
}

// LogoImporter はロゴ画像URLを取り込む。logo.Fetcherが実装する。
type LogoImporter interface {
	Import(ctx context.Context, rawURL string) (*model.LogoFile, error)
}

// Options は画面の生成オプション。
type Options struct {
	// PageSize は1ページあたりの件数（デフォルト: 9）。
	PageSize int
	// CleanText は自由入力テキストからマークアップを除去する。nilならそのまま。
	CleanText func(string) string
	// NewCode は新規バウチャーのコード候補を返す。nilなら空欄で開く。
	NewCode func() string
	// Logos はロゴURLの取り込みに使う。nilならURLをそのまま送る。
	Logos LogoImporter
	// Observer はnilなら計測しない。
	Observer Observer
}

func (o Options) cleanText(s string) string {
	if o.CleanText == nil {
		return strings.TrimSpace(s)
	}
	return o.CleanText(s)
}

func (o Options) recordSubmission(entity string, mode FormMode, err error) {
	if o.Observer == nil {
		return
	}
	result := "success"
	switch {
	case err == nil:
	case model.IsValidation(err):
		result = "validation_error"
	default:
		result = "error"
	}
	o.Observer.RecordFormSubmission(entity, string(mode), result)
}

func (o Options) staleRecorder(entity string) func() {
	return func() {
		if o.Observer != nil {
			o.Observer.RecordStaleFetch(entity)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
