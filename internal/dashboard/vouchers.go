package dashboard

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/vouchdesk/internal/model"
)

const (
	// establishmentPageLimit は店舗一覧を全件読み込むときの1回あたりの取得件数。
	establishmentPageLimit = 100
	// UnknownEstablishmentName は店舗を解決できなかったバウチャーに表示する名前。
	UnknownEstablishmentName = "店舗が見つかりません"
)

// VoucherAPI はバウチャー画面が使う上流APIの操作。
type VoucherAPI interface {
	ListVouchers(ctx context.Context, q model.ListQuery) (model.Page[model.Voucher], error)
	CreateVoucher(ctx context.Context, v model.Voucher) (model.Voucher, error)
	UpdateVoucher(ctx context.Context, v model.Voucher) (model.Voucher, error)
	ListEstablishments(ctx context.Context, q model.ListQuery) (model.Page[model.Establishment], error)
}

// VoucherDraft はバウチャーフォームの入力内容。割引率は入力された文字列のまま保持する。
type VoucherDraft struct {
	ID              string
	Title           string
	Description     string
	Code            string
	Rules           string
	Value           string
	Quantity        int
	IsPaid          bool
	EstablishmentID string
}

// VoucherScreen はバウチャー一覧画面の状態。ログインセッションごとに1つ持つ。
type VoucherScreen struct {
	List *ListController[model.Voucher]
	Form *FormSession[VoucherDraft, model.Voucher]

	api  VoucherAPI
	opts Options

	mu                   sync.Mutex
	search               string
	establishments       []model.Establishment
	establishmentsByID   map[string]model.Establishment
	establishmentsLoaded bool
}

// NewVoucherScreen はVoucherScreenを生成する。
func NewVoucherScreen(api VoucherAPI, opts Options) *VoucherScreen {
	s := &VoucherScreen{api: api, opts: opts}
	s.List = NewListController(api.ListVouchers, opts.PageSize)
	s.List.OnStale(opts.staleRecorder("voucher"))
	s.Form = NewFormSession(s.List, FormHooks[VoucherDraft, model.Voucher]{
		Blank: func() VoucherDraft {
			return VoucherDraft{Value: "0", Quantity: 1}
		},
		FromRow: func(v model.Voucher) VoucherDraft {
			return VoucherDraft{
				ID:              v.ID,
				Title:           v.Title,
				Description:     v.Description,
				Code:            v.Code,
				Rules:           v.Rules,
				Value:           v.Value.String(),
				Quantity:        v.Quantity,
				IsPaid:          v.IsPaid,
				EstablishmentID: v.EstablishmentID,
			}
		},
		Prepare: s.prepare,
		Create:  api.CreateVoucher,
		Update:  api.UpdateVoucher,
		Merge:   mergeVoucher,
		ID:      func(v model.Voucher) string { return v.ID },
	})
	return s
}

// NormalizeCode はバウチャーコードを前後の空白を除いた大文字にする。
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ParseValue は割引率の入力を解析する。空欄は0として扱う。
func ParseValue(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if raw == "" {
		return decimal.Zero, nil
	}
	raw = strings.ReplaceAll(raw, ",", ".")
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, model.NewInvalidValueError(raw)
	}
	return v, nil
}

// prepare は必須項目・割引率・枚数・店舗の存在を検証し、送信用のバウチャーを作る。
func (s *VoucherScreen) prepare(ctx context.Context, d VoucherDraft, editing *model.Voucher) (model.Voucher, error) {
	v := model.Voucher{
		Title:           strings.TrimSpace(d.Title),
		Description:     s.opts.cleanText(d.Description),
		Code:            NormalizeCode(d.Code),
		Rules:           s.opts.cleanText(d.Rules),
		Quantity:        d.Quantity,
		IsPaid:          d.IsPaid,
		EstablishmentID: strings.TrimSpace(d.EstablishmentID),
	}
	if editing != nil {
		v.ID = editing.ID
		v.CreatedAt = editing.CreatedAt
	}

	if missing := model.MissingVoucherFields(v); len(missing) > 0 {
		return model.Voucher{}, model.NewRequiredFieldsError(missing...)
	}

	value, err := ParseValue(d.Value)
	if err != nil {
		return model.Voucher{}, err
	}
	v.Value = value
	if !v.ValueInRange() {
		return model.Voucher{}, model.NewInvalidValueError(value.String())
	}
	if v.Quantity < 1 {
		return model.Voucher{}, model.NewInvalidQuantityError(v.Quantity)
	}

	est, ok, err := s.lookupEstablishment(ctx, v.EstablishmentID)
	if err != nil {
		return model.Voucher{}, err
	}
	if !ok {
		return model.Voucher{}, model.NewUnknownEstablishmentError(v.EstablishmentID)
	}
	v.Establishment = &est
	return v, nil
}

// mergeVoucher は送信内容にサーバーが返した項目を重ねて既存行を更新する。
func mergeVoucher(existing, submitted, server model.Voucher) model.Voucher {
	merged := submitted
	merged.ID = existing.ID
	merged.Title = firstNonEmpty(server.Title, submitted.Title)
	merged.Description = firstNonEmpty(server.Description, submitted.Description)
	merged.Code = firstNonEmpty(server.Code, submitted.Code)
	merged.Rules = firstNonEmpty(server.Rules, submitted.Rules)
	merged.EstablishmentID = firstNonEmpty(server.EstablishmentID, submitted.EstablishmentID)
	if server.ID != "" {
		// サーバーが行全体を返した場合は数値項目も応答に従う
		merged.Value = server.Value
		merged.Quantity = server.Quantity
		merged.IsPaid = server.IsPaid
	}
	if server.Establishment != nil {
		merged.Establishment = server.Establishment
	}
	if merged.Establishment != nil && merged.Establishment.ID != "" && merged.Establishment.ID != merged.EstablishmentID {
		merged.Establishment = nil
	}
	merged.CreatedAt = existing.CreatedAt
	if !server.CreatedAt.IsZero() {
		merged.CreatedAt = server.CreatedAt
	}
	return merged
}

// Load は現在のページと絞り込み条件で一覧を取得する。
func (s *VoucherScreen) Load(ctx context.Context) error {
	return s.List.Load(ctx)
}

// Navigate はページと店舗の絞り込みを指定して一覧を取得する。絞り込みが変わると1ページ目に戻る。
func (s *VoucherScreen) Navigate(ctx context.Context, page int, establishmentID string) error {
	return s.List.Navigate(ctx, page, establishmentID)
}

// Establishments はフォームの選択肢と店舗名の解決に使う店舗一覧を返す。
// 初回のみ上流APIから取得する。
func (s *VoucherScreen) Establishments(ctx context.Context) ([]model.Establishment, error) {
	s.mu.Lock()
	if s.establishmentsLoaded {
		out := make([]model.Establishment, len(s.establishments))
		copy(out, s.establishments)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()
	return s.RefreshEstablishments(ctx)
}

// RefreshEstablishments は店舗一覧を上流APIから全ページ取得し直す。
// 途中のページで失敗した場合は保持している一覧を変えずにエラーを返す。
func (s *VoucherScreen) RefreshEstablishments(ctx context.Context) ([]model.Establishment, error) {
	var all []model.Establishment
	for n := 1; ; n++ {
		page, err := s.api.ListEstablishments(ctx, model.ListQuery{
			Page:   n,
			Limit:  establishmentPageLimit,
			Filter: model.CategoryAll,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page.Rows...)
		if len(page.Rows) == 0 || n >= model.TotalPages(page.TotalCount, establishmentPageLimit) {
			break
		}
	}

	byID := make(map[string]model.Establishment, len(all))
	for _, e := range all {
		byID[e.ID] = e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.establishments = all
	s.establishmentsByID = byID
	s.establishmentsLoaded = true
	out := make([]model.Establishment, len(all))
	copy(out, all)
	return out, nil
}

// lookupEstablishment はIDで店舗を探す。保持している一覧に無ければ一度だけ取得し直す。
func (s *VoucherScreen) lookupEstablishment(ctx context.Context, id string) (model.Establishment, bool, error) {
	s.mu.Lock()
	e, ok := s.establishmentsByID[id]
	loaded := s.establishmentsLoaded
	s.mu.Unlock()
	if ok {
		return e, true, nil
	}
	if _, err := s.RefreshEstablishments(ctx); err != nil {
		if loaded {
			return model.Establishment{}, false, nil
		}
		return model.Establishment{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok = s.establishmentsByID[id]
	return e, ok, nil
}

// EstablishmentName はバウチャーの店舗名を返す。解決できない場合はUnknownEstablishmentName。
func (s *VoucherScreen) EstablishmentName(v model.Voucher) string {
	if name, ok := s.resolveName(v); ok {
		return name
	}
	return UnknownEstablishmentName
}

// resolveName は応答に埋め込まれた店舗を優先し、無ければ保持している店舗一覧から店舗名を探す。
func (s *VoucherScreen) resolveName(v model.Voucher) (string, bool) {
	if v.Establishment != nil && v.Establishment.Name != "" {
		return v.Establishment.Name, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.establishmentsByID[v.EstablishmentID]; ok {
		return e.Name, true
	}
	return "", false
}

// searchName は検索対象にする店舗名。解決できない店舗は表示用の文言で一致させない。
func (s *VoucherScreen) searchName(v model.Voucher) string {
	name, _ := s.resolveName(v)
	return name
}

// SetSearch は検索語を設定する。
func (s *VoucherScreen) SetSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.search = strings.TrimSpace(term)
}

// Search は現在の検索語を返す。
func (s *VoucherScreen) Search() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.search
}

// Visible は読み込み済みのページを検索語で絞り込んだ行を返す。
func (s *VoucherScreen) Visible() []model.Voucher {
	return SearchVouchers(s.List.Rows(), s.Search(), s.searchName)
}

// OpenForCreate は新規作成フォームを開き、コード候補があれば入力しておく。
func (s *VoucherScreen) OpenForCreate() {
	s.Form.OpenForCreate()
	if s.opts.NewCode != nil {
		d := s.Form.Draft()
		d.Code = s.opts.NewCode()
		s.Form.SetDraft(d)
	}
}

// OpenForEdit は読み込み済みの一覧からIDでバウチャーを探して編集フォームを開く。
func (s *VoucherScreen) OpenForEdit(id string) error {
	v, ok := s.List.Find(func(v model.Voucher) bool { return v.ID == id })
	if !ok {
		return model.NewVoucherNotFoundError(id)
	}
	s.Form.OpenForEdit(v)
	return nil
}

// Submit はフォームを送信する。
func (s *VoucherScreen) Submit(ctx context.Context) (SubmitResult[model.Voucher], error) {
	mode := s.Form.Mode()
	res, err := s.Form.Submit(ctx)
	s.opts.recordSubmission("voucher", mode, err)
	return res, err
}

// PaidSplit は読み込み済みのページの有料・無料の件数を返す。
func (s *VoucherScreen) PaidSplit() (paid, free int) {
	for _, v := range s.List.Rows() {
		if v.IsPaid {
			paid++
		} else {
			free++
		}
	}
	return paid, free
}
