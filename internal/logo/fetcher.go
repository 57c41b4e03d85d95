// Package logo は店舗ロゴ画像の取り込みを提供する。
// 管理者が指定した画像URLをサーバー側で取得し、アップロード用のファイルに変換する。
package logo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/security"
)

const (
	// DefaultMaxSize はロゴ画像の最大サイズ（2MB）。
	DefaultMaxSize = 2 * 1024 * 1024
	// DefaultTimeout はロゴ取得のタイムアウト。
	DefaultTimeout = 5 * time.Second

	// スクリプトを含められるので受け付けない
	svgMimeType = "image/svg+xml"
)

// Importer はURLからロゴ画像を取得するインターフェース。
type Importer interface {
	// Import は画像URLを取得してアップロード待ちのファイルを返す。
	// 取得失敗・画像以外・サイズ超過はバリデーションエラー（*model.APIError）を返す。
	Import(ctx context.Context, rawURL string) (*model.LogoFile, error)
}

// Fetcher はImporterの実装。SSRF防止付きクライアントで取得する。
type Fetcher struct {
	guard   security.URLGuard
	timeout time.Duration
	maxSize int64
	logger  *slog.Logger
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(guard security.URLGuard, timeout time.Duration, maxSize int64, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{guard: guard, timeout: timeout, maxSize: maxSize, logger: logger}
}

// Import はrawURLの画像を取得する。
func (f *Fetcher) Import(ctx context.Context, rawURL string) (*model.LogoFile, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := f.guard.ValidateURL(rawURL); err != nil {
		f.logger.Warn("ロゴ取得: URLがブロックされました", slog.String("url", rawURL), slog.String("error", err.Error()))
		return nil, model.NewLogoFetchFailedError("このURLからは取得できません")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewLogoFetchFailedError("URLの形式が不正です")
	}
	req.Header.Set("User-Agent", "Vouchdesk/1.0 LogoImporter")
	req.Header.Set("Accept", "image/*")

	resp, err := f.guard.NewSafeClient(f.timeout).Do(req)
	if err != nil {
		f.logger.Warn("ロゴ取得: HTTPリクエスト失敗", slog.String("url", rawURL), slog.String("error", err.Error()))
		return nil, model.NewLogoFetchFailedError("接続できませんでした")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("ロゴ取得: HTTPステータス異常", slog.String("url", rawURL), slog.Int("status", resp.StatusCode))
		return nil, model.NewLogoFetchFailedError(fmt.Sprintf("ステータス %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		f.logger.Warn("ロゴ取得: レスポンス読み取り失敗", slog.String("url", rawURL), slog.String("error", err.Error()))
		return nil, model.NewLogoFetchFailedError("読み取りに失敗しました")
	}
	if int64(len(body)) > f.maxSize {
		return nil, model.NewLogoFetchFailedError("画像サイズが大きすぎます")
	}

	mimeType := imageMimeType(resp.Header.Get("Content-Type"), body)
	if mimeType == "" {
		f.logger.Warn("ロゴ取得: 画像以外のContent-Type",
			slog.String("url", rawURL),
			slog.String("content_type", resp.Header.Get("Content-Type")),
		)
		return nil, model.NewLogoFetchFailedError("画像ではありません")
	}

	return &model.LogoFile{
		Filename:    filenameFromURL(rawURL, mimeType),
		ContentType: mimeType,
		Data:        body,
	}, nil
}

// ReadUpload はフォームでアップロードされたロゴを読み込み、画像であることを検証する。
func ReadUpload(r io.Reader, filename, declaredType string, maxSize int64) (*model.LogoFile, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, model.NewInvalidLogoError("読み取りに失敗しました")
	}
	if len(data) == 0 {
		return nil, model.NewInvalidLogoError("ファイルが空です")
	}
	if int64(len(data)) > maxSize {
		return nil, model.NewInvalidLogoError("ファイルサイズが大きすぎます")
	}

	mimeType := imageMimeType(declaredType, data)
	if mimeType == "" {
		return nil, model.NewInvalidLogoError("画像ファイルではありません")
	}
	if filename == "" {
		filename = filenameFromURL("", mimeType)
	}
	return &model.LogoFile{Filename: path.Base(filename), ContentType: mimeType, Data: data}, nil
}

// imageMimeType は中身から画像のMIMEタイプを判定する。宣言されたContent-Typeは信用しない。
// 画像と判定できない場合とSVGの場合は空文字列を返す。
func imageMimeType(declared string, data []byte) string {
	switch mt := extractMimeType(declared); {
	case mt == svgMimeType:
		return ""
	case mt == "", mt == "application/octet-stream", mt == "binary/octet-stream":
	case !strings.HasPrefix(mt, "image/"):
		return ""
	}
	sniffed := extractMimeType(http.DetectContentType(data))
	if !strings.HasPrefix(sniffed, "image/") || sniffed == svgMimeType {
		return ""
	}
	return sniffed
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		parts := strings.SplitN(contentType, ";", 2)
		return strings.TrimSpace(strings.ToLower(parts[0]))
	}
	return mt
}

// filenameFromURL はURLのパス末尾からファイル名を決める。拡張子がなければMIMEから補う。
func filenameFromURL(rawURL, mimeType string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		name = "logo"
	}
	if path.Ext(name) == "" {
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return name
}

// compile-time interface check
var _ Importer = (*Fetcher)(nil)
