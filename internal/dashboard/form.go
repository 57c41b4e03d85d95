package dashboard

import (
	"context"
	"sync"
)

// FormMode は送信が新規作成か更新かを表す。
type FormMode string

const (
	ModeCreate FormMode = "create"
	ModeUpdate FormMode = "update"
)

// FormHooks はFormSessionがエンティティごとに必要とする処理。
// Dはフォームの下書き、Tは一覧の行の型。
type FormHooks[D, T any] struct {
	// Blank は新規作成フォームの初期値を返す。
	Blank func() D
	// FromRow は編集対象の行から下書きを作る。
	FromRow func(row T) D
	// Prepare は下書きを検証し、送信するエンティティに変換する。
	// 検証エラーの場合は一覧に触れずに送信を中止する。
	Prepare func(ctx context.Context, draft D, editing *T) (T, error)
	Create  func(ctx context.Context, row T) (T, error)
	Update  func(ctx context.Context, row T) (T, error)
	// Merge は更新時に、既存行・送信内容・サーバー応答から一覧に残す行を作る。
	Merge func(existing, submitted, server T) T
	ID    func(row T) string
}

// SubmitResult は送信成功時の結果。
type SubmitResult[T any] struct {
	Mode FormMode
	Row  T
}

// FormSession は1画面分の作成・編集フォームの状態を保持する。
type FormSession[D, T any] struct {
	mu      sync.Mutex
	hooks   FormHooks[D, T]
	list    *ListController[T]
	open    bool
	editing *T
	draft   D
}

// NewFormSession はFormSessionを生成する。送信結果はlistに反映される。
func NewFormSession[D, T any](list *ListController[T], hooks FormHooks[D, T]) *FormSession[D, T] {
	return &FormSession[D, T]{
		hooks: hooks,
		list:  list,
		draft: hooks.Blank(),
	}
}

// OpenForCreate は下書きを初期化して新規作成モードで開く。
func (f *FormSession[D, T]) OpenForCreate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	f.editing = nil
	f.draft = f.hooks.Blank()
}

// OpenForEdit は行の内容を下書きに写して編集モードで開く。
func (f *FormSession[D, T]) OpenForEdit(row T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	editing := row
	f.editing = &editing
	f.draft = f.hooks.FromRow(row)
}

// Close はフォームを閉じて下書きを初期化する。
func (f *FormSession[D, T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *FormSession[D, T]) closeLocked() {
	f.open = false
	f.editing = nil
	f.draft = f.hooks.Blank()
}

// IsOpen はフォームが開いているかを返す。
func (f *FormSession[D, T]) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Draft は現在の下書きを返す。
func (f *FormSession[D, T]) Draft() D {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// SetDraft は下書きを置き換える。
func (f *FormSession[D, T]) SetDraft(d D) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft = d
}

// Editing は編集中の行を返す。新規作成モードならfalse。
func (f *FormSession[D, T]) Editing() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editing == nil {
		var zero T
		return zero, false
	}
	return *f.editing, true
}

// Mode は現在のフォームのモードを返す。
func (f *FormSession[D, T]) Mode() FormMode {
	if _, ok := f.Editing(); ok {
		return ModeUpdate
	}
	return ModeCreate
}

// Submit は下書きを検証して作成または更新を送信し、結果を一覧に反映する。
//
// 検証エラー・送信エラーの場合はフォームを開いたまま下書きを残す。
// 更新時はサーバーの応答を同じIDの行にマージし、作成時はサーバーが返した行を末尾に追加する。
// 成功するとフォームを閉じて下書きを初期化する。
func (f *FormSession[D, T]) Submit(ctx context.Context) (SubmitResult[T], error) {
	f.mu.Lock()
	draft := f.draft
	var editing *T
	if f.editing != nil {
		e := *f.editing
		editing = &e
	}
	f.mu.Unlock()

	row, err := f.hooks.Prepare(ctx, draft, editing)
	if err != nil {
		return SubmitResult[T]{}, err
	}

	var result SubmitResult[T]
	if editing != nil {
		server, err := f.hooks.Update(ctx, row)
		if err != nil {
			return SubmitResult[T]{}, err
		}
		id := f.hooks.ID(*editing)
		merged := f.hooks.Merge(*editing, row, server)
		f.list.Replace(func(r T) bool { return f.hooks.ID(r) == id }, func(existing T) T {
			merged = f.hooks.Merge(existing, row, server)
			return merged
		})
		result = SubmitResult[T]{Mode: ModeUpdate, Row: merged}
	} else {
		created, err := f.hooks.Create(ctx, row)
		if err != nil {
			return SubmitResult[T]{}, err
		}
		f.list.Append(created)
		result = SubmitResult[T]{Mode: ModeCreate, Row: created}
	}

	f.mu.Lock()
	f.closeLocked()
	f.mu.Unlock()
	return result, nil
}
