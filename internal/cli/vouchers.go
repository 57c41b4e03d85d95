package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/model"
)

type voucherJSON struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Code              string    `json:"code"`
	Rules             string    `json:"rules,omitempty"`
	Value             string    `json:"value"`
	Quantity          int       `json:"quantity"`
	IsPaid            bool      `json:"isPaid"`
	EstablishmentID   string    `json:"establishmentId"`
	EstablishmentName string    `json:"establishmentName,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

func toVoucherJSON(v model.Voucher, establishmentName string) voucherJSON {
	return voucherJSON{
		ID:                v.ID,
		Title:             v.Title,
		Description:       v.Description,
		Code:              v.Code,
		Rules:             v.Rules,
		Value:             v.Value.String(),
		Quantity:          v.Quantity,
		IsPaid:            v.IsPaid,
		EstablishmentID:   v.EstablishmentID,
		EstablishmentName: establishmentName,
		CreatedAt:         v.CreatedAt,
	}
}

type voucherFlags struct {
	title           string
	code            string
	establishmentID string
	value           string
	quantity        int
	paid            bool
	description     string
	rules           string
}

func (f *voucherFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "タイトル")
	cmd.Flags().StringVar(&f.code, "code", "", "バウチャーコード（作成時は省略すると自動生成）")
	cmd.Flags().StringVar(&f.establishmentID, "establishment", "", "店舗ID")
	cmd.Flags().StringVar(&f.value, "value", "", "割引率（0〜100）")
	cmd.Flags().IntVar(&f.quantity, "quantity", 1, "利用可能枚数")
	cmd.Flags().BoolVar(&f.paid, "paid", false, "有料のバウチャーにする")
	cmd.Flags().StringVar(&f.description, "description", "", "説明")
	cmd.Flags().StringVar(&f.rules, "rules", "", "利用条件")
}

// apply は指定されたフラグだけを下書きに反映する。
func (f *voucherFlags) apply(cmd *cobra.Command, d *dashboard.VoucherDraft) {
	flags := cmd.Flags()
	if flags.Changed("title") {
		d.Title = f.title
	}
	if flags.Changed("code") {
		d.Code = f.code
	}
	if flags.Changed("establishment") {
		d.EstablishmentID = f.establishmentID
	}
	if flags.Changed("value") {
		d.Value = f.value
	}
	if flags.Changed("quantity") {
		d.Quantity = f.quantity
	}
	if flags.Changed("paid") {
		d.IsPaid = f.paid
	}
	if flags.Changed("description") {
		d.Description = f.description
	}
	if flags.Changed("rules") {
		d.Rules = f.rules
	}
}

func newVouchersCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vouchers",
		Aliases: []string{"v"},
		Short:   "バウチャーを操作する",
	}
	cmd.AddCommand(
		newVouchersListCommand(st),
		newVouchersCreateCommand(st),
		newVouchersUpdateCommand(st),
		newGenCodeCommand(),
	)
	return cmd
}

func newVouchersListCommand(st *state) *cobra.Command {
	var (
		page            int
		establishmentID string
		search          string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "バウチャーを一覧表示する",
		Long: `バウチャーを1ページ分取得して表示します。

Examples:
  vouchctl vouchers list --establishment est-123
  vouchctl vouchers list --page 3 --search summer`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, func(ctx context.Context, ws *workspace) error {
				screen := ws.vouchers
				// 店舗名の解決に使う。取得できなくても一覧は表示する
				if _, err := screen.Establishments(ctx); err != nil {
					printWarning(cmd.ErrOrStderr(), "店舗一覧を取得できませんでした: %v", err)
				}
				if err := navigateTo(ctx, screen.List, page, establishmentID); err != nil {
					return err
				}
				screen.SetSearch(search)
				rows := screen.Visible()

				out := cmd.OutOrStdout()
				if st.jsonOutput {
					items := make([]voucherJSON, 0, len(rows))
					for _, v := range rows {
						items = append(items, toVoucherJSON(v, screen.EstablishmentName(v)))
					}
					return writeJSON(out, items)
				}

				table := make([][]string, 0, len(rows))
				for _, v := range rows {
					paid := "無料"
					if v.IsPaid {
						paid = "有料"
					}
					table = append(table, []string{
						v.ID,
						v.Title,
						v.Code,
						screen.EstablishmentName(v),
						v.Value.String() + "%",
						strconv.Itoa(v.Quantity),
						paid,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "タイトル", "コード", "店舗", "割引率", "枚数", "有料"}, table))
				snapshot := screen.List.State()
				fmt.Fprintln(out, formatPages(snapshot.Page, snapshot.TotalPages, snapshot.TotalCount))
				paidCount, freeCount := screen.PaidSplit()
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("有料 %d / 無料 %d", paidCount, freeCount)))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "ページ番号")
	cmd.Flags().StringVar(&establishmentID, "establishment", model.CategoryAll, "店舗IDで絞り込む（allで全件）")
	cmd.Flags().StringVar(&search, "search", "", "取得したページをタイトル・コード・店舗名で検索する")
	return cmd
}

func newVouchersCreateCommand(st *state) *cobra.Command {
	var f voucherFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "バウチャーを作成する",
		Long: `バウチャーを作成します。--code を省略した場合はランダムなコードを使います。

Examples:
  vouchctl vouchers create --title "Summer Sale" --establishment est-123 --value 12.5 --quantity 50
  vouchctl vouchers create --title "VIP" --establishment est-123 --value 30 --paid --code VIP2026`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, func(ctx context.Context, ws *workspace) error {
				ws.vouchers.OpenForCreate()
				return submitVoucher(ctx, cmd, st, ws, &f)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newVouchersUpdateCommand(st *state) *cobra.Command {
	var f voucherFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "バウチャーを更新する",
		Long: `指定したIDのバウチャーを更新します。指定しなかった項目は現在の値のままです。

Examples:
  vouchctl vouchers update v-123 --quantity 100 --paid=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, func(ctx context.Context, ws *workspace) error {
				screen := ws.vouchers
				if err := openForEdit(ctx, screen.List, screen.OpenForEdit, args[0]); err != nil {
					return err
				}
				return submitVoucher(ctx, cmd, st, ws, &f)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func submitVoucher(ctx context.Context, cmd *cobra.Command, st *state, ws *workspace, f *voucherFlags) error {
	screen := ws.vouchers
	d := screen.Form.Draft()
	f.apply(cmd, &d)
	screen.Form.SetDraft(d)

	res, err := screen.Submit(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if st.jsonOutput {
		return writeJSON(out, toVoucherJSON(res.Row, screen.EstablishmentName(res.Row)))
	}
	verb := "作成"
	if res.Mode == dashboard.ModeUpdate {
		verb = "更新"
	}
	printSuccess(out, "バウチャー「%s」を%sしました (コード: %s, ID: %s)", res.Row.Title, verb, res.Row.Code, res.Row.ID)
	return nil
}

func newGenCodeCommand() *cobra.Command {
	var (
		count  int
		length int
	)
	cmd := &cobra.Command{
		Use:   "gen-code",
		Short: "バウチャーコードを生成する",
		Long: `上流APIに接続せずにバウチャーコードの候補を生成します。

Examples:
  vouchctl vouchers gen-code --count 5 --length 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count < 1 {
				return fmt.Errorf("count must be positive: %d", count)
			}
			newCode, err := dashboard.NewCodeGenerator(length)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for range count {
				fmt.Fprintln(out, newCode())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1, "生成する個数")
	cmd.Flags().IntVar(&length, "length", dashboard.DefaultCodeLength, "コードの長さ")
	return cmd
}
