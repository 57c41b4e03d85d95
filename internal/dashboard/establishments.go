package dashboard

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// EstablishmentAPI は店舗画面が使う上流APIの操作。
type EstablishmentAPI interface {
	ListEstablishments(ctx context.Context, q model.ListQuery) (model.Page[model.Establishment], error)
	ListCategories(ctx context.Context) ([]string, error)
	CreateEstablishment(ctx context.Context, e model.Establishment) (model.Establishment, error)
	UpdateEstablishment(ctx context.Context, e model.Establishment) (model.Establishment, error)
}

// EstablishmentDraft は店舗フォームの入力内容。
type EstablishmentDraft struct {
	ID       string
	Name     string
	Category model.CategoryChoice
	// Logo は保存済みのURL、またはアップロードされたファイル。
	Logo model.Logo
	// LogoImportURL が指定されていれば送信時にその画像を取り込んでアップロードする。
	LogoImportURL string
}

// EstablishmentScreen は店舗一覧画面の状態。ログインセッションごとに1つ持つ。
type EstablishmentScreen struct {
	List *ListController[model.Establishment]
	Form *FormSession[EstablishmentDraft, model.Establishment]

	api  EstablishmentAPI
	opts Options

	mu               sync.Mutex
	search           string
	categories       []string
	categoriesLoaded bool
}

// NewEstablishmentScreen はEstablishmentScreenを生成する。
func NewEstablishmentScreen(api EstablishmentAPI, opts Options) *EstablishmentScreen {
	s := &EstablishmentScreen{api: api, opts: opts}
	s.List = NewListController(api.ListEstablishments, opts.PageSize)
	s.List.OnStale(opts.staleRecorder("establishment"))
	s.Form = NewFormSession(s.List, FormHooks[EstablishmentDraft, model.Establishment]{
		Blank: func() EstablishmentDraft {
			return EstablishmentDraft{Category: model.ExistingCategory("")}
		},
		FromRow: func(e model.Establishment) EstablishmentDraft {
			return EstablishmentDraft{
				ID:       e.ID,
				Name:     e.Name,
				Category: model.ExistingCategory(e.Category),
				Logo:     model.Logo{URL: e.Logo.URL},
			}
		},
		Prepare: s.prepare,
		Create:  api.CreateEstablishment,
		Update:  api.UpdateEstablishment,
		Merge:   mergeEstablishment,
		ID:      func(e model.Establishment) string { return e.ID },
	})
	return s
}

// prepare は必須項目を検証し、ロゴURLの取り込みを行って送信用の店舗を作る。
func (s *EstablishmentScreen) prepare(ctx context.Context, d EstablishmentDraft, editing *model.Establishment) (model.Establishment, error) {
	e := model.Establishment{
		Name:     strings.TrimSpace(d.Name),
		Category: d.Category.Name(),
		Logo:     d.Logo,
	}
	if editing != nil {
		e.ID = editing.ID
		e.CreatedAt = editing.CreatedAt
	}
	if missing := model.MissingEstablishmentFields(e); len(missing) > 0 {
		return model.Establishment{}, model.NewRequiredFieldsError(missing...)
	}

	if u := strings.TrimSpace(d.LogoImportURL); u != "" && e.Logo.File == nil {
		if s.opts.Logos == nil {
			e.Logo = model.Logo{URL: u}
		} else {
			file, err := s.opts.Logos.Import(ctx, u)
			if err != nil {
				return model.Establishment{}, err
			}
			e.Logo = model.Logo{File: file}
		}
	}
	return e, nil
}

// mergeEstablishment は送信内容にサーバーが返した項目を重ねて既存行を更新する。
// サーバーがロゴURLを返さない場合は既存のURLを残す。
func mergeEstablishment(existing, submitted, server model.Establishment) model.Establishment {
	merged := existing
	merged.Name = firstNonEmpty(server.Name, submitted.Name)
	merged.Category = firstNonEmpty(server.Category, submitted.Category)
	submittedURL := ""
	if submitted.Logo.File == nil {
		submittedURL = submitted.Logo.URL
	}
	merged.Logo = model.Logo{URL: firstNonEmpty(server.Logo.URL, submittedURL, existing.Logo.URL)}
	if !server.CreatedAt.IsZero() {
		merged.CreatedAt = server.CreatedAt
	}
	return merged
}

// Load は現在のページと絞り込み条件で一覧を取得する。
func (s *EstablishmentScreen) Load(ctx context.Context) error {
	return s.List.Load(ctx)
}

// Navigate はページとカテゴリを指定して一覧を取得する。カテゴリが変わると1ページ目に戻る。
func (s *EstablishmentScreen) Navigate(ctx context.Context, page int, category string) error {
	return s.List.Navigate(ctx, page, category)
}

// Categories はカテゴリ一覧を返す。初回のみ上流APIから取得し、以降は画面内で保持する。
func (s *EstablishmentScreen) Categories(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if s.categoriesLoaded {
		out := slices.Clone(s.categories)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()
	return s.RefreshCategories(ctx)
}

// RefreshCategories はカテゴリ一覧を上流APIから取得し直す。
func (s *EstablishmentScreen) RefreshCategories(ctx context.Context) ([]string, error) {
	categories, err := s.api.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = categories
	s.categoriesLoaded = true
	return slices.Clone(categories), nil
}

// SetSearch は検索語を設定する。
func (s *EstablishmentScreen) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = strings.TrimSpace(term)
}

// Search は現在の検索語を返す。
func (s *EstablishmentScreen) Search() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.search
}

// Visible は読み込み済みのページを検索語で絞り込んだ行を返す。
func (s *EstablishmentScreen) Visible() []model.Establishment {
	return SearchEstablishments(s.List.Rows(), s.Search())
}

// OpenForCreate は新規作成フォームを開く。
func (s *EstablishmentScreen) OpenForCreate() {
	s.Form.OpenForCreate()
}

// OpenForEdit は読み込み済みの一覧からIDで店舗を探して編集フォームを開く。
func (s *EstablishmentScreen) OpenForEdit(id string) error {
	e, ok := s.List.Find(func(e model.Establishment) bool { return e.ID == id })
	if !ok {
		return model.NewEstablishmentNotFoundError(id)
	}
	s.Form.OpenForEdit(e)
	return nil
}

// Submit はフォームを送信する。新しいカテゴリで作成・更新した場合はカテゴリ一覧にも追加する。
func (s *EstablishmentScreen) Submit(ctx context.Context) (SubmitResult[model.Establishment], error) {
	mode := s.Form.Mode()
	res, err := s.Form.Submit(ctx)
	s.opts.recordSubmission("establishment", mode, err)
	if err != nil {
		return res, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoriesLoaded && res.Row.Category != "" && !slices.Contains(s.categories, res.Row.Category) {
		s.categories = append(s.categories, res.Row.Category)
	}
	return res, nil
}
