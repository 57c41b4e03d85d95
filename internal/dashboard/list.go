package dashboard

import (
	"context"
	"sync"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// FetchFunc は一覧の1ページ分を取得する関数。
type FetchFunc[T any] func(ctx context.Context, q model.ListQuery) (model.Page[T], error)

// Ticket は一覧取得1回分の受付番号と取得条件。
// 後から発行されたチケットがあれば、古いチケットの結果は反映されない。
type Ticket struct {
	seq   uint64
	Query model.ListQuery
}

// ListState はListControllerの状態のスナップショット。
type ListState[T any] struct {
	Rows       []T
	Page       int
	TotalPages int
	TotalCount int
	Filter     string
	Loaded     bool
}

// ListController は1種類のエンティティの一覧を、ページとサーバー側絞り込み条件に従って取得・保持する。
//
// 取得のたびに単調増加するチケットを発行し、最新のチケット以外の結果は破棄する。
// 取得に失敗した場合は直前の一覧とページ数をそのまま残す。
type ListController[T any] struct {
	mu         sync.Mutex
	fetch      FetchFunc[T]
	pageSize   int
	page       int
	filter     string
	rows       []T
	totalCount int
	loaded     bool
	seq        uint64
	onStale    func()
}

// NewListController はListControllerを生成する。pageSizeが0以下の場合は9件。
func NewListController[T any](fetch FetchFunc[T], pageSize int) *ListController[T] {
	if pageSize <= 0 {
		pageSize = model.DefaultPageSize
	}
	return &ListController[T]{
		fetch:    fetch,
		pageSize: pageSize,
		page:     1,
		filter:   model.CategoryAll,
	}
}

// OnStale は古い取得結果を破棄したときに呼ばれる関数を設定する。
func (c *ListController[T]) OnStale(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStale = fn
}

// Begin は現在のページと絞り込み条件で新しいチケットを発行する。
// 非同期に取得する呼び出し元（TUI）は、取得結果をCommitに渡す。
func (c *ListController[T]) Begin() Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.beginLocked()
}

func (c *ListController[T]) beginLocked() Ticket {
	c.seq++
	return Ticket{
		seq: c.seq,
		Query: model.ListQuery{
			Page:   c.page,
			Limit:  c.pageSize,
			Filter: c.filter,
		},
	}
}

// Commit はチケットの取得結果を反映する。
// 最新のチケットでなければ破棄してfalseを返す。errが非nilの場合は状態を変えずにerrを返す。
// 要求したページが総ページ数を超えていた場合は最終ページに丸める。
// その場合Page()はチケットのページと異なるので、呼び出し元は取得し直す。
func (c *ListController[T]) Commit(t Ticket, page model.Page[T], err error) (bool, error) {
	c.mu.Lock()
	if t.seq != c.seq {
		onStale := c.onStale
		c.mu.Unlock()
		if onStale != nil {
			onStale()
		}
		return false, nil
	}
	defer c.mu.Unlock()

	if err != nil {
		return false, err
	}

	rows := page.Rows
	if rows == nil {
		rows = []T{}
	}
	c.rows = rows
	c.totalCount = page.TotalCount
	c.loaded = true
	c.page = c.clampLocked(c.page)
	if c.totalCount == 0 {
		c.page = 1
	}
	return true, nil
}

// Clamped は適用済みのチケットのページが丸められたかを返す。
func (c *ListController[T]) Clamped(t Ticket) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.seq == c.seq && c.page != t.Query.Page
}

// run はチケットの条件で取得して反映する。ページが丸められた場合は丸めたページで1回だけ取得し直す。
func (c *ListController[T]) run(ctx context.Context, t Ticket) error {
	res, err := c.Fetch(ctx, t)
	if _, err := c.Commit(t, res, err); err != nil {
		return err
	}
	if !c.Clamped(t) {
		return nil
	}
	t = c.Begin()
	res, err = c.Fetch(ctx, t)
	_, err = c.Commit(t, res, err)
	return err
}

// Load は現在のページと絞り込み条件で一覧を取得する。
func (c *ListController[T]) Load(ctx context.Context) error {
	return c.run(ctx, c.Begin())
}

// SetPage はページを変更して再取得する。
// 1未満は1に、総ページ数を超える場合は最終ページに丸める。
func (c *ListController[T]) SetPage(ctx context.Context, page int) error {
	c.mu.Lock()
	c.page = c.clampLocked(page)
	c.mu.Unlock()
	return c.Load(ctx)
}

// SetFilter はサーバー側の絞り込み条件を変更し、1ページ目から再取得する。
func (c *ListController[T]) SetFilter(ctx context.Context, filter string) error {
	c.mu.Lock()
	c.filter = normalizeFilter(filter)
	c.page = 1
	c.mu.Unlock()
	return c.Load(ctx)
}

// Navigate はページと絞り込み条件を同時に指定して取得する。
// 絞り込み条件が変わった場合は指定ページに関係なく1ページ目になる。
func (c *ListController[T]) Navigate(ctx context.Context, page int, filter string) error {
	return c.run(ctx, c.BeginNavigate(page, filter))
}

// BeginNavigate はNavigateと同じ規則でページと絞り込み条件を更新し、取得せずにチケットを発行する。
func (c *ListController[T]) BeginNavigate(page int, filter string) Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	filter = normalizeFilter(filter)
	if filter != c.filter {
		c.filter = filter
		c.page = 1
	} else {
		c.page = c.clampLocked(page)
	}
	return c.beginLocked()
}

// Fetch はチケットの条件で1ページ分を取得する。状態は変えないので、結果はCommitに渡す。
func (c *ListController[T]) Fetch(ctx context.Context, t Ticket) (model.Page[T], error) {
	return c.fetch(ctx, t.Query)
}

// Matches はページと絞り込み条件が現在の状態と同じで、取得済みかを返す。
func (c *ListController[T]) Matches(page int, filter string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded && c.page == page && c.filter == normalizeFilter(filter)
}

// State は現在の状態のコピーを返す。
func (c *ListController[T]) State() ListState[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows := make([]T, len(c.rows))
	copy(rows, c.rows)
	return ListState[T]{
		Rows:       rows,
		Page:       c.page,
		TotalPages: model.TotalPages(c.totalCount, c.pageSize),
		TotalCount: c.totalCount,
		Filter:     c.filter,
		Loaded:     c.loaded,
	}
}

// Rows は現在の一覧のコピーを返す。
func (c *ListController[T]) Rows() []T {
	return c.State().Rows
}

// Page は現在のページ番号を返す。
func (c *ListController[T]) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Filter は現在の絞り込み条件を返す。
func (c *ListController[T]) Filter() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// TotalPages は総ページ数を返す。
func (c *ListController[T]) TotalPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.TotalPages(c.totalCount, c.pageSize)
}

// Find は条件に一致する最初の行を返す。
func (c *ListController[T]) Find(match func(T) bool) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.rows {
		if match(r) {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// Append は作成された行を一覧の末尾に追加する。
func (c *ListController[T]) Append(row T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, row)
}

// Replace は条件に一致する最初の行をmergeの結果で置き換える。一致する行がなければfalseを返す。
func (c *ListController[T]) Replace(match func(T) bool, merge func(existing T) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.rows {
		if match(r) {
			c.rows[i] = merge(r)
			return true
		}
	}
	return false
}

// clampLocked はページ番号を有効範囲に丸める。未取得の場合は上限を設けない。
func (c *ListController[T]) clampLocked(page int) int {
	if page < 1 {
		return 1
	}
	if total := model.TotalPages(c.totalCount, c.pageSize); c.loaded && total > 0 && page > total {
		return total
	}
	return page
}

func normalizeFilter(filter string) string {
	if model.IsFilterAll(filter) {
		return model.CategoryAll
	}
	return filter
}
