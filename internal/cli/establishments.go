package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/logo"
	"github.com/hitoshi/vouchdesk/internal/model"
)

type establishmentJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	LogoURL   string    `json:"logoUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toEstablishmentJSON(e model.Establishment) establishmentJSON {
	return establishmentJSON{
		ID:        e.ID,
		Name:      e.Name,
		Category:  e.Category,
		LogoURL:   e.Logo.URL,
		CreatedAt: e.CreatedAt,
	}
}

// establishmentFlags は作成・更新で共通の入力フラグ。
type establishmentFlags struct {
	name        string
	category    string
	newCategory string
	logoURL     string
	logoFile    string
}

func (f *establishmentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "店舗名")
	cmd.Flags().StringVar(&f.category, "category", "", "既存のカテゴリ")
	cmd.Flags().StringVar(&f.newCategory, "new-category", "", "新しく追加するカテゴリ")
	cmd.Flags().StringVar(&f.logoURL, "logo-url", "", "取り込むロゴ画像のURL")
	cmd.Flags().StringVar(&f.logoFile, "logo-file", "", "アップロードするロゴ画像のパス")
	cmd.MarkFlagsMutuallyExclusive("category", "new-category")
	cmd.MarkFlagsMutuallyExclusive("logo-url", "logo-file")
}

// apply は指定されたフラグだけを下書きに反映する。
func (f *establishmentFlags) apply(cmd *cobra.Command, d *dashboard.EstablishmentDraft, maxSize int64) error {
	flags := cmd.Flags()
	if flags.Changed("name") {
		d.Name = f.name
	}
	switch {
	case flags.Changed("new-category"):
		d.Category = model.NewCategory(f.newCategory)
	case flags.Changed("category"):
		d.Category = model.ExistingCategory(f.category)
	}
	if flags.Changed("logo-url") {
		d.LogoImportURL = f.logoURL
	}
	if flags.Changed("logo-file") {
		file, err := os.Open(f.logoFile)
		if err != nil {
			return fmt.Errorf("failed to open logo file: %w", err)
		}
		defer file.Close()
		uploaded, err := logo.ReadUpload(file, filepath.Base(f.logoFile), "", maxSize)
		if err != nil {
			return err
		}
		d.Logo = model.Logo{File: uploaded}
		d.LogoImportURL = ""
	}
	return nil
}

func newEstablishmentsCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "establishments",
		Aliases: []string{"est"},
		Short:   "店舗を操作する",
	}
	cmd.AddCommand(
		newEstablishmentsListCommand(st),
		newEstablishmentsCategoriesCommand(st),
		newEstablishmentsCreateCommand(st),
		newEstablishmentsUpdateCommand(st),
	)
	return cmd
}

func newEstablishmentsListCommand(st *state) *cobra.Command {
	var (
		page     int
		category string
		search   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "店舗を一覧表示する",
		Long: `店舗を1ページ分取得して表示します。

Examples:
  vouchctl establishments list --page 2
  vouchctl establishments list --category Food --search cafe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, func(ctx context.Context, ws *workspace) error {
				screen := ws.establishments
				if err := navigateTo(ctx, screen.List, page, category); err != nil {
					return err
				}
				screen.SetSearch(search)
				rows := screen.Visible()

				out := cmd.OutOrStdout()
				if st.jsonOutput {
					items := make([]establishmentJSON, 0, len(rows))
					for _, e := range rows {
						items = append(items, toEstablishmentJSON(e))
					}
					return writeJSON(out, items)
				}

				table := make([][]string, 0, len(rows))
				for _, e := range rows {
					table = append(table, []string{e.ID, e.Name, e.Category, formatDate(e.CreatedAt)})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "名前", "カテゴリ", "作成日"}, table))
				snapshot := screen.List.State()
				fmt.Fprintln(out, formatPages(snapshot.Page, snapshot.TotalPages, snapshot.TotalCount))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "ページ番号")
	cmd.Flags().StringVar(&category, "category", model.CategoryAll, "カテゴリで絞り込む（allで全件）")
	cmd.Flags().StringVar(&search, "search", "", "取得したページを名前・カテゴリで検索する")
	return cmd
}

func newEstablishmentsCategoriesCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "店舗のカテゴリを一覧表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, func(ctx context.Context, ws *workspace) error {
				categories, err := ws.establishments.Categories(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if st.jsonOutput {
					return writeJSON(out, categories)
				}
				if len(categories) == 0 {
					printWarning(out, "カテゴリはまだありません")
					return nil
				}
				for _, c := range categories {
					fmt.Fprintln(out, c)
				}
				return nil
			})
		},
	}
}

func newEstablishmentsCreateCommand(st *state) *cobra.Command {
	var f establishmentFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "店舗を作成する",
		Long: `店舗を作成します。カテゴリは既存のものを --category、新しいものを --new-category で指定します。

Examples:
  vouchctl establishments create --name "Cafe Mori" --category Food
  vouchctl establishments create --name "Books" --new-category Bookstore --logo-file ./logo.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, func(ctx context.Context, ws *workspace) error {
				screen := ws.establishments
				screen.OpenForCreate()
				return submitEstablishment(ctx, cmd, st, ws, &f)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newEstablishmentsUpdateCommand(st *state) *cobra.Command {
	var f establishmentFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "店舗を更新する",
		Long: `指定したIDの店舗を更新します。指定しなかった項目は現在の値のままです。

Examples:
  vouchctl establishments update est-123 --name "Cafe Mori Annex"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, func(ctx context.Context, ws *workspace) error {
				screen := ws.establishments
				if err := openForEdit(ctx, screen.List, screen.OpenForEdit, args[0]); err != nil {
					return err
				}
				return submitEstablishment(ctx, cmd, st, ws, &f)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func submitEstablishment(ctx context.Context, cmd *cobra.Command, st *state, ws *workspace, f *establishmentFlags) error {
	screen := ws.establishments
	d := screen.Form.Draft()
	if err := f.apply(cmd, &d, ws.cfg.LogoMaxSize); err != nil {
		return err
	}
	screen.Form.SetDraft(d)

	res, err := screen.Submit(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if st.jsonOutput {
		return writeJSON(out, toEstablishmentJSON(res.Row))
	}
	verb := "作成"
	if res.Mode == dashboard.ModeUpdate {
		verb = "更新"
	}
	printSuccess(out, "店舗「%s」を%sしました (ID: %s)", res.Row.Name, verb, res.Row.ID)
	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
