// Package tui はターミナルで店舗とバウチャーの一覧を閲覧するBubble Teaアプリケーションを提供する。
//
// 一覧の取得はtea.Cmdとして非同期に実行し、dashboard.ListControllerのチケットを付けて
// 結果を返す。後から発行されたチケットがある場合、古い結果は画面に反映されない。
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/model"
)

// Upstream はTUIが使う上流APIの操作。apiclient.Clientが実装する。
type Upstream interface {
	dashboard.EstablishmentAPI
	dashboard.VoucherAPI
}

type tab int

const (
	tabEstablishments tab = iota
	tabVouchers
)

const defaultTableHeight = 12

// メッセージ
type establishmentsMsg struct {
	ticket dashboard.Ticket
	page   model.Page[model.Establishment]
	err    error
}

type vouchersMsg struct {
	ticket dashboard.Ticket
	page   model.Page[model.Voucher]
	err    error
}

type categoriesMsg struct {
	categories []string
	err        error
}

type establishmentOptionsMsg struct {
	rows []model.Establishment
	err  error
}

// Model は一覧ブラウザの状態。
type Model struct {
	ctx            context.Context
	establishments *dashboard.EstablishmentScreen
	vouchers       *dashboard.VoucherScreen

	active    tab
	table     table.Model
	search    textinput.Model
	searching bool
	keys      keyMap
	help      help.Model

	// categoryIdx は0が「すべて」、iがcategories[i-1]。
	categories  []string
	categoryIdx int
	// establishmentIdx は0が「すべて」、iがestablishmentOptions[i-1]。
	establishmentOptions []model.Establishment
	establishmentIdx     int

	loading bool
	err     error
	width   int
}

// New は新しいModelを生成する。取得はInitで始まる。
func New(ctx context.Context, up Upstream, opts dashboard.Options) Model {
	search := textinput.New()
	search.Prompt = "検索: "
	search.Placeholder = "名前・カテゴリ・コード"

	t := table.New(
		table.WithFocused(true),
		table.WithHeight(defaultTableHeight),
	)

	m := Model{
		ctx:            ctx,
		establishments: dashboard.NewEstablishmentScreen(up, opts),
		vouchers:       dashboard.NewVoucherScreen(up, opts),
		table:          t,
		search:         search,
		keys:           defaultKeyMap(),
		help:           help.New(),
		loading:        true,
	}
	m.refreshTable()
	return m
}

// Init は店舗一覧とカテゴリ、バウチャー画面用の店舗一覧の取得を始める。
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchEstablishments(m.ctx, m.establishments.List, m.establishments.List.Begin()),
		loadCategories(m.ctx, m.establishments, false),
		loadEstablishmentOptions(m.ctx, m.vouchers, false),
	)
}

func fetchEstablishments(ctx context.Context, list *dashboard.ListController[model.Establishment], t dashboard.Ticket) tea.Cmd {
	return func() tea.Msg {
		page, err := list.Fetch(ctx, t)
		return establishmentsMsg{ticket: t, page: page, err: err}
	}
}

func fetchVouchers(ctx context.Context, list *dashboard.ListController[model.Voucher], t dashboard.Ticket) tea.Cmd {
	return func() tea.Msg {
		page, err := list.Fetch(ctx, t)
		return vouchersMsg{ticket: t, page: page, err: err}
	}
}

func loadCategories(ctx context.Context, screen *dashboard.EstablishmentScreen, refresh bool) tea.Cmd {
	return func() tea.Msg {
		var categories []string
		var err error
		if refresh {
			categories, err = screen.RefreshCategories(ctx)
		} else {
			categories, err = screen.Categories(ctx)
		}
		return categoriesMsg{categories: categories, err: err}
	}
}

func loadEstablishmentOptions(ctx context.Context, screen *dashboard.VoucherScreen, refresh bool) tea.Cmd {
	return func() tea.Msg {
		var rows []model.Establishment
		var err error
		if refresh {
			rows, err = screen.RefreshEstablishments(ctx)
		} else {
			rows, err = screen.Establishments(ctx)
		}
		return establishmentOptionsMsg{rows: rows, err: err}
	}
}

// Update はメッセージを処理する。
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(max(3, msg.Height-10))
		return m, nil

	case establishmentsMsg:
		list := m.establishments.List
		applied, err := list.Commit(msg.ticket, msg.page, msg.err)
		if applied && list.Clamped(msg.ticket) {
			// 範囲外のページだったので丸めたページを取得し直す
			return m, fetchEstablishments(m.ctx, list, list.Begin())
		}
		m.settle(applied, err)
		if m.active == tabEstablishments {
			m.refreshTable()
		}
		return m, nil

	case vouchersMsg:
		list := m.vouchers.List
		applied, err := list.Commit(msg.ticket, msg.page, msg.err)
		if applied && list.Clamped(msg.ticket) {
			return m, fetchVouchers(m.ctx, list, list.Begin())
		}
		m.settle(applied, err)
		if m.active == tabVouchers {
			m.refreshTable()
		}
		return m, nil

	case categoriesMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.categories = msg.categories
		if m.categoryIdx > len(m.categories) {
			m.categoryIdx = 0
		}
		return m, nil

	case establishmentOptionsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.establishmentOptions = msg.rows
		if m.establishmentIdx > len(m.establishmentOptions) {
			m.establishmentIdx = 0
		}
		if m.active == tabVouchers {
			m.refreshTable()
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}

	return m, nil
}

// settle は最新のチケットの結果が届いたら読み込み中を解除する。古い結果では何もしない。
func (m *Model) settle(applied bool, err error) {
	switch {
	case err != nil:
		m.loading = false
		m.err = err
	case applied:
		m.loading = false
		m.err = nil
	}
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.searching = false
		m.search.Blur()
		m.setSearch(m.search.Value())
		m.refreshTable()
		return m, nil
	case tea.KeyEsc:
		m.searching = false
		m.search.Blur()
		m.search.SetValue(m.currentSearch())
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Tab):
		if m.active == tabEstablishments {
			m.active = tabVouchers
		} else {
			m.active = tabEstablishments
		}
		m.search.SetValue(m.currentSearch())
		m.refreshTable()
		if m.active == tabVouchers && !m.vouchers.List.State().Loaded {
			return m.navigate(1, m.vouchers.List.Filter())
		}
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		page, total := m.pageState()
		p := dashboard.Pagination{Current: page, Total: total}
		if p.PrevDisabled() {
			return m, nil
		}
		return m.navigate(p.PrevPage(), m.currentFilter())

	case key.Matches(msg, m.keys.Next):
		page, total := m.pageState()
		p := dashboard.Pagination{Current: page, Total: total}
		if p.NextDisabled() {
			return m, nil
		}
		return m.navigate(p.NextPage(), m.currentFilter())

	case key.Matches(msg, m.keys.Filter):
		filter := m.cycleFilter()
		return m.navigate(1, filter)

	case key.Matches(msg, m.keys.Search):
		m.searching = true
		cmd := m.search.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Refresh):
		page, _ := m.pageState()
		next, cmd := m.navigate(page, m.currentFilter())
		if m.active == tabVouchers {
			return next, tea.Batch(cmd, loadEstablishmentOptions(m.ctx, m.vouchers, true))
		}
		return next, tea.Batch(cmd, loadCategories(m.ctx, m.establishments, true))
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// navigate は表示中の一覧のページと絞り込みを更新し、取得コマンドを返す。
func (m Model) navigate(page int, filter string) (tea.Model, tea.Cmd) {
	m.loading = true
	if m.active == tabVouchers {
		t := m.vouchers.List.BeginNavigate(page, filter)
		return m, fetchVouchers(m.ctx, m.vouchers.List, t)
	}
	t := m.establishments.List.BeginNavigate(page, filter)
	return m, fetchEstablishments(m.ctx, m.establishments.List, t)
}

// cycleFilter は絞り込みを次の選択肢に進め、その絞り込み条件を返す。
func (m *Model) cycleFilter() string {
	if m.active == tabVouchers {
		m.establishmentIdx = (m.establishmentIdx + 1) % (len(m.establishmentOptions) + 1)
		if m.establishmentIdx == 0 {
			return model.CategoryAll
		}
		return m.establishmentOptions[m.establishmentIdx-1].ID
	}
	m.categoryIdx = (m.categoryIdx + 1) % (len(m.categories) + 1)
	if m.categoryIdx == 0 {
		return model.CategoryAll
	}
	return m.categories[m.categoryIdx-1]
}

func (m Model) pageState() (page, total int) {
	if m.active == tabVouchers {
		st := m.vouchers.List.State()
		return st.Page, st.TotalPages
	}
	st := m.establishments.List.State()
	return st.Page, st.TotalPages
}

func (m Model) currentFilter() string {
	if m.active == tabVouchers {
		return m.vouchers.List.Filter()
	}
	return m.establishments.List.Filter()
}

func (m Model) currentSearch() string {
	if m.active == tabVouchers {
		return m.vouchers.Search()
	}
	return m.establishments.Search()
}

func (m Model) setSearch(term string) {
	if m.active == tabVouchers {
		m.vouchers.SetSearch(term)
		return
	}
	m.establishments.SetSearch(term)
}

// filterLabel は絞り込み中の条件を表示用に返す。
func (m Model) filterLabel() string {
	filter := dashboard.CategoryFilter(m.currentFilter())
	if m.active == tabVouchers {
		if filter == "" {
			return "店舗: すべて"
		}
		return "店舗: " + m.vouchers.EstablishmentName(model.Voucher{EstablishmentID: filter})
	}
	if filter == "" {
		return "カテゴリ: すべて"
	}
	return "カテゴリ: " + filter
}

// refreshTable は表示中の画面に合わせて表の列と行を作り直す。
func (m *Model) refreshTable() {
	// 列数の異なる行が残っていると描画時に範囲外参照になるため先に空にする
	m.table.SetRows(nil)

	if m.active == tabVouchers {
		m.table.SetColumns([]table.Column{
			{Title: "タイトル", Width: 24},
			{Title: "コード", Width: 10},
			{Title: "店舗", Width: 20},
			{Title: "割引率", Width: 8},
			{Title: "枚数", Width: 6},
			{Title: "有料", Width: 4},
		})
		visible := m.vouchers.Visible()
		rows := make([]table.Row, 0, len(visible))
		for _, v := range visible {
			paid := ""
			if v.IsPaid {
				paid = "✓"
			}
			rows = append(rows, table.Row{
				v.Title,
				v.Code,
				m.vouchers.EstablishmentName(v),
				v.Value.String() + "%",
				fmt.Sprintf("%d", v.Quantity),
				paid,
			})
		}
		m.table.SetRows(rows)
		return
	}

	m.table.SetColumns([]table.Column{
		{Title: "名前", Width: 28},
		{Title: "カテゴリ", Width: 16},
		{Title: "作成日", Width: 12},
	})
	visible := m.establishments.Visible()
	rows := make([]table.Row, 0, len(visible))
	for _, e := range visible {
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.Format("2006-01-02")
		}
		rows = append(rows, table.Row{e.Name, e.Category, created})
	}
	m.table.SetRows(rows)
}

// View は画面を描画する。
func (m Model) View() string {
	var b strings.Builder

	tabs := []string{inactiveTabStyle.Render("店舗"), inactiveTabStyle.Render("バウチャー")}
	tabs[m.active] = activeTabStyle.Render([]string{"店舗", "バウチャー"}[m.active])
	b.WriteString(titleStyle.Render("vouchdesk") + "  " + lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + "\n\n")

	status := m.filterLabel()
	if term := m.currentSearch(); term != "" {
		status += "  検索: " + term
	}
	if m.loading {
		status += "  " + mutedStyle.Render("読み込み中…")
	}
	b.WriteString(status + "\n")
	if m.searching {
		b.WriteString(m.search.View() + "\n")
	}
	b.WriteString("\n" + m.table.View() + "\n\n")

	page, total := m.pageState()
	summary := renderPagination(page, total)
	if m.active == tabVouchers {
		st := m.vouchers.List.State()
		paid, free := m.vouchers.PaidSplit()
		summary += fmt.Sprintf("  全%d件  ", st.TotalCount) + paidStyle.Render(fmt.Sprintf("有料 %d", paid)) + fmt.Sprintf(" / 無料 %d", free)
	} else {
		summary += fmt.Sprintf("  全%d件", m.establishments.List.State().TotalCount)
	}
	b.WriteString(summary + "\n")

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("エラー: "+m.err.Error()) + "\n")
	}

	b.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

// Run はTUIを起動し、終了するまでブロックする。
func Run(ctx context.Context, up Upstream, opts dashboard.Options) error {
	p := tea.NewProgram(New(ctx, up, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
