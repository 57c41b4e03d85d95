// Package apiclient はバウチャー管理APIのHTTPクライアントを提供する。
// ダッシュボードのログインセッションごとに1つ生成し、上流のセッションCookieを保持する。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/vouchdesk/internal/model"
)

const (
	// defaultTimeout は1リクエストあたりのデフォルトタイムアウト。
	defaultTimeout = 10 * time.Second
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（4MB）。
	maxResponseSize = 4 * 1024 * 1024
	// userAgent は上流APIへのリクエストに付与するUser-Agent。
	userAgent = "Vouchdesk/1.0"
)

var (
	// ErrUnauthorized は上流APIが401/403を返した場合のエラー。
	ErrUnauthorized = errors.New("上流APIの認証に失敗しました")
	// ErrNotFound は上流APIが404を返した場合のエラー。
	ErrNotFound = errors.New("上流APIのリソースが見つかりません")
	// ErrRejected は上流APIが200以外、または{error}を含む応答でリクエストを拒否した場合のエラー。
	ErrRejected = errors.New("上流APIがリクエストを拒否しました")
)

// StatusError は上流APIが2xx以外のステータスを返した場合のエラー。
type StatusError struct {
	Endpoint   string
	StatusCode int
	Message    string // 上流の {error} または {message}
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: 上流APIがステータス %d を返しました: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: 上流APIがステータス %d を返しました", e.Endpoint, e.StatusCode)
}

// Is はステータスコードに応じて定義済みエラーとの一致を判定する。
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRejected:
		return true
	}
	return false
}

// Observer は上流APIリクエストの計測先。metrics.Collectorが実装する。
type Observer interface {
	RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) RecordUpstreamRequest(string, int, time.Duration) {}

// Config はClientの設定パラメータ。
type Config struct {
	// BaseURL は上流APIのベースURL（例: https://api.example.com）。
	BaseURL string
	// Timeout は1リクエストあたりのタイムアウト（デフォルト: 10秒）。
	Timeout time.Duration
	// Transport はテスト時に差し替えるRoundTripper。nilの場合はhttp.DefaultTransport。
	Transport http.RoundTripper
}

// Client はバウチャー管理APIのクライアント。
// 自前のCookieJarを持ち、ログインで発行されたセッションCookieを以降の呼び出しに付与する。
// リトライは行わない。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	jar        http.CookieJar
	logger     *slog.Logger
	observer   Observer
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, logger *slog.Logger, observer Observer) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("APIベースURLのパースに失敗しました: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("APIベースURLのスキームが不正です: %q", cfg.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("CookieJarの作成に失敗しました: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Transport: cfg.Transport,
			Timeout:   timeout,
			Jar:       jar,
		},
		jar:      jar,
		logger:   logger,
		observer: observer,
	}, nil
}

// Cookies は上流APIのセッションCookieを永続化用に書き出す。
func (c *Client) Cookies() []model.UpstreamCookie {
	cookies := c.jar.Cookies(c.baseURL)
	out := make([]model.UpstreamCookie, 0, len(cookies))
	for _, ck := range cookies {
		out = append(out, model.UpstreamCookie{Name: ck.Name, Value: ck.Value})
	}
	return out
}

// SetCookies は永続化されていた上流APIのCookieを復元する。
func (c *Client) SetCookies(cookies []model.UpstreamCookie) {
	if len(cookies) == 0 {
		return
	}
	hc := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		hc = append(hc, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: "/"})
	}
	c.jar.SetCookies(c.baseURL, hc)
}

// request は1回の上流API呼び出しの内容。
type request struct {
	endpoint    string // メトリクス・ログ用のラベル（例: establishment.list）
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
}

// jsonBody はvをJSONエンコードしたリクエストボディを返す。
func jsonBody(v any) (io.Reader, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("リクエストJSONのエンコードに失敗しました: %w", err)
	}
	return bytes.NewReader(b), nil
}

// do はリクエストを実行し、2xxの場合にレスポンスボディを返す。
// 2xx以外は*StatusErrorを返す。
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	u := c.baseURL.JoinPath(r.path)
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observer.RecordUpstreamRequest(r.endpoint, 0, time.Since(start))
		c.logger.Error("上流APIの呼び出しに失敗しました",
			slog.String("endpoint", r.endpoint),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s: 上流APIの呼び出しに失敗しました: %w", r.endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	c.observer.RecordUpstreamRequest(r.endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("endpoint", r.endpoint),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s: レスポンスボディの読み取りに失敗しました: %w", r.endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{
			Endpoint:   r.endpoint,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
		}
		level := slog.LevelError
		if resp.StatusCode < 500 {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "上流APIがエラーステータスを返しました",
			slog.String("endpoint", r.endpoint),
			slog.Int("http_status", resp.StatusCode),
			slog.String("request_id", requestID),
			slog.String("message", statusErr.Message),
		)
		return nil, statusErr
	}

	return body, nil
}

// errorBody は上流APIのエラー応答。
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// errorMessage はレスポンスボディから {error} または {message} を取り出す。
func errorMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if eb.Error != "" {
		return eb.Error
	}
	return eb.Message
}

// decodeEntity はkeyでラップされた、または素のオブジェクトとして返された1件をデコードする。
func decodeEntity(body []byte, key string, dst any) error {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if raw, ok := wrapper[key]; ok && len(raw) > 0 && raw[0] == '{' {
		body = raw
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
