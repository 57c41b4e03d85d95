// Package handler はダッシュボードのHTTPハンドラーを提供する。
package handler

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/vouchdesk/internal/apiclient"
	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/middleware"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

const layoutTemplate = "templates/layout.html"

// pageTemplates はレイアウトと組み合わせて描画する画面テンプレート。
var pageTemplates = []string{"login", "overview", "establishments", "vouchers"}

// Renderer は埋め込みテンプレートを画面ごとに解析して保持する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer は全画面のテンプレートを解析する。解析に失敗した場合はエラーを返す。
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"formatDate":  formatDate,
		"formatValue": formatValue,
	}
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, layoutTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout template: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageTemplates))
	for _, name := range pageTemplates {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout template: %w", err)
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

// MustNewRenderer はNewRendererと同じだが、失敗した場合はpanicする。
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// pageData はレイアウトに渡す共通データ。
type pageData struct {
	Title     string
	Nav       string
	User      *model.User
	CSRFField string
	CSRFToken string
	Notices   []session.Notice
	Content   any
}

// newPageData はリクエストとWorkspaceから共通データを組み立てる。
// Workspaceに溜まった通知はここで取り出され、一度だけ表示される。
func newPageData(r *http.Request, ws *session.Workspace, title, nav string, content any) pageData {
	data := pageData{
		Title:     title,
		Nav:       nav,
		CSRFField: middleware.CSRFFieldName,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Content:   content,
	}
	if ws != nil {
		data.User = ws.User()
		data.Notices = ws.TakeNotices()
	}
	return data
}

// render はテンプレートをバッファに描画してからレスポンスに書き込む。
// 描画途中で失敗した場合に中途半端なHTMLを返さない。
func (rr *Renderer) render(w http.ResponseWriter, status int, name string, data pageData) {
	t, ok := rr.pages[name]
	if !ok {
		slog.Error("unknown template", slog.String("template", name))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// pageLink はページネーションの1要素。
type pageLink struct {
	Number   int
	URL      string
	Current  bool
	Ellipsis bool
}

// paginationView はページネーションの表示内容。
type paginationView struct {
	Visible      bool
	PrevURL      string
	NextURL      string
	PrevDisabled bool
	NextDisabled bool
	Links        []pageLink
}

// newPaginationView はPaginationからリンク付きの表示内容を作る。
func newPaginationView(p dashboard.Pagination, urlFor func(page int) string) paginationView {
	v := paginationView{
		Visible:      p.Visible(),
		PrevDisabled: p.PrevDisabled(),
		NextDisabled: p.NextDisabled(),
	}
	if !v.Visible {
		return v
	}
	if !v.PrevDisabled {
		v.PrevURL = urlFor(p.PrevPage())
	}
	if !v.NextDisabled {
		v.NextURL = urlFor(p.NextPage())
	}
	for _, l := range p.Labels() {
		link := pageLink{Number: l.Number, Ellipsis: l.Ellipsis}
		if !l.Ellipsis {
			link.URL = urlFor(l.Number)
			link.Current = l.Number == p.Current
		}
		v.Links = append(v.Links, link)
	}
	return v
}

// listURL は一覧画面のURLを組み立てる。空の値はクエリに含めない。
func listURL(path string, page int, params ...string) string {
	q := url.Values{}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	for i := 0; i+1 < len(params); i += 2 {
		if params[i+1] != "" {
			q.Set(params[i], params[i+1])
		}
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// parsePage はクエリのページ番号を解釈する。未指定や不正な値の場合はfallbackを返す。
func parsePage(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// userMessage はエラーを画面に表示する文言に変換する。
func userMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Action != "" {
			return apiErr.Message + " " + apiErr.Action
		}
		return apiErr.Message
	}
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return "認証の有効期限が切れました。再度ログインしてください。"
	}
	var statusErr *apiclient.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return "サーバーがリクエストを拒否しました: " + statusErr.Message
	}
	return "サーバーとの通信に失敗しました。しばらく待ってから再度お試しください。"
}

// flashError はエラーをログに記録し、次の画面で表示する通知として積む。
func flashError(ws *session.Workspace, msg string, err error) {
	slog.Warn(msg,
		slog.String("session_id_prefix", shortID(ws.ID)),
		slog.String("error", err.Error()),
	)
	ws.AddNotice(session.NoticeError, userMessage(err))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}

func formatValue(d decimal.Decimal) string {
	return d.String() + "%"
}

// templateNames は埋め込まれたテンプレートのファイル一覧を返す。
func templateNames() ([]string, error) {
	return fs.Glob(templateFS, "templates/*.html")
}
