// Package cli はvouchctlのコマンドを提供する。
// ダッシュボードと同じ画面コントローラーを使い、店舗とバウチャーを端末から一覧・作成・更新する。
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hitoshi/vouchdesk/internal/apiclient"
	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/logger"
	"github.com/hitoshi/vouchdesk/internal/logo"
	"github.com/hitoshi/vouchdesk/internal/model"
	"github.com/hitoshi/vouchdesk/internal/security"
	"github.com/hitoshi/vouchdesk/internal/session"
	"github.com/hitoshi/vouchdesk/internal/tui"
)

// Backend はログイン済みの上流APIクライアント。apiclient.Clientが実装する。
type Backend interface {
	tui.Upstream
	Logout(ctx context.Context) error
}

// Connector は設定に従って上流APIにログインしたBackendを返す。
type Connector func(ctx context.Context, cfg *Config) (Backend, error)

// Connect は上流APIクライアントを生成し、設定のメールアドレスとパスワードでログインする。
func Connect(ctx context.Context, cfg *Config) (Backend, error) {
	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.Timeout,
	}, logger.Component(slog.Default(), "apiclient"), nil)
	if err != nil {
		return nil, err
	}
	if _, err := session.NewStore(client).Login(ctx, cfg.Email, cfg.Password); err != nil {
		return nil, err
	}
	return client, nil
}

// App はvouchctlの依存関係。
type App struct {
	Connect Connector
}

// state はコマンド実行中の共通フラグと接続を保持する。
type state struct {
	app        App
	configPath string
	jsonOutput bool
	verbose    bool
}

// workspace は1回のコマンド実行で使う画面コントローラー。
type workspace struct {
	cfg            *Config
	backend        Backend
	opts           dashboard.Options
	establishments *dashboard.EstablishmentScreen
	vouchers       *dashboard.VoucherScreen
}

// NewRootCommand はvouchctlのルートコマンドを生成する。
func NewRootCommand(app App) *cobra.Command {
	st := &state{app: app}

	root := &cobra.Command{
		Use:   "vouchctl",
		Short: "バウチャー管理APIの店舗とバウチャーを操作する",
		Long: `vouchctl はバウチャー管理APIに管理者としてログインし、店舗とバウチャーを一覧・作成・更新します。

接続先と認証情報は環境変数、または --config で指定したYAMLファイルから読み込みます。
` + ConfigUsage(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if st.verbose {
				level = slog.LevelDebug
			}
			logger.SetupDefault(cmd.ErrOrStderr(), level)
		},
	}

	root.PersistentFlags().StringVar(&st.configPath, "config", "", "設定ファイル（YAML）のパス")
	root.PersistentFlags().BoolVar(&st.jsonOutput, "json", false, "JSON形式で出力する")
	root.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "詳細なログを出力する")

	root.AddCommand(
		newEstablishmentsCommand(st),
		newVouchersCommand(st),
		newBrowseCommand(st),
	)
	return root
}

// run は設定を読み込んでログインし、fnの終了後にログアウトする。
func (st *state) run(cmd *cobra.Command, fn func(ctx context.Context, ws *workspace) error) error {
	cfg, err := LoadConfig(st.configPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backend, err := st.app.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Logout(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to logout", slog.String("error", err.Error()))
		}
	}()

	opts, err := screenOptions(cfg)
	if err != nil {
		return err
	}
	ws := &workspace{
		cfg:            cfg,
		backend:        backend,
		opts:           opts,
		establishments: dashboard.NewEstablishmentScreen(backend, opts),
		vouchers:       dashboard.NewVoucherScreen(backend, opts),
	}
	return fn(ctx, ws)
}

func screenOptions(cfg *Config) (dashboard.Options, error) {
	newCode, err := dashboard.NewCodeGenerator(dashboard.DefaultCodeLength)
	if err != nil {
		return dashboard.Options{}, err
	}
	return dashboard.Options{
		PageSize:  cfg.PageSize,
		CleanText: security.NewTextCleaner().Clean,
		NewCode:   newCode,
		Logos:     logo.NewFetcher(security.NewSSRFGuard(), cfg.Timeout, cfg.LogoMaxSize, logger.Component(slog.Default(), "logo")),
	}, nil
}

// navigateTo は絞り込みとページを指定して一覧を取得する。
func navigateTo[T any](ctx context.Context, list *dashboard.ListController[T], page int, filter string) error {
	// 絞り込みが変わると1ページ目に戻るため、先に絞り込みだけ合わせる
	list.BeginNavigate(1, filter)
	return list.Navigate(ctx, page, filter)
}

// openForEdit は一覧を先頭ページから順に取得し、idの行が見つかったページで編集フォームを開く。
func openForEdit[T any](ctx context.Context, list *dashboard.ListController[T], open func(id string) error, id string) error {
	for page := 1; ; page++ {
		if err := list.Navigate(ctx, page, model.CategoryAll); err != nil {
			return err
		}
		err := open(id)
		if err == nil {
			return nil
		}
		if page >= list.TotalPages() {
			return err
		}
	}
}

func newBrowseCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "店舗とバウチャーの一覧を対話的に閲覧する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.run(cmd, func(ctx context.Context, ws *workspace) error {
				if err := tui.Run(ctx, ws.backend, ws.opts); err != nil {
					return fmt.Errorf("failed to run browser: %w", err)
				}
				return nil
			})
		},
	}
}
