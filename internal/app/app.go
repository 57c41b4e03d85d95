package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/vouchdesk/internal/apiclient"
	"github.com/hitoshi/vouchdesk/internal/audit"
	"github.com/hitoshi/vouchdesk/internal/config"
	"github.com/hitoshi/vouchdesk/internal/dashboard"
	"github.com/hitoshi/vouchdesk/internal/database"
	"github.com/hitoshi/vouchdesk/internal/handler"
	"github.com/hitoshi/vouchdesk/internal/logger"
	"github.com/hitoshi/vouchdesk/internal/logo"
	"github.com/hitoshi/vouchdesk/internal/metrics"
	"github.com/hitoshi/vouchdesk/internal/middleware"
	"github.com/hitoshi/vouchdesk/internal/repository"
	"github.com/hitoshi/vouchdesk/internal/security"
	"github.com/hitoshi/vouchdesk/internal/session"
	"github.com/hitoshi/vouchdesk/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 設定読み込み前でもログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .env（任意）と環境変数から設定を読み込む
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("api_base_url", cfg.APIBaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開いて疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newAuditPublisher はKAFKA_BROKERSが設定されていればKafkaへ、なければどこにも配信しないPublisherを返す。
func newAuditPublisher(cfg *config.Config) audit.Publisher {
	if !cfg.AuditEnabled() {
		return audit.NopPublisher{}
	}
	return audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic)
}

// newClientFactory はログインごとに独立したCookieJarを持つ上流APIクライアントを生成する関数を返す。
func newClientFactory(cfg *config.Config, log *slog.Logger, observer apiclient.Observer) session.ClientFactory {
	return func() (session.Upstream, error) {
		client, err := apiclient.NewClient(apiclient.Config{
			BaseURL: cfg.APIBaseURL,
			Timeout: cfg.APITimeout,
		}, log, observer)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// newScreenOptions は画面コントローラーの共通オプションを組み立てる。
func newScreenOptions(cfg *config.Config, log *slog.Logger, observer dashboard.Observer) (dashboard.Options, error) {
	newCode, err := dashboard.NewCodeGenerator(dashboard.DefaultCodeLength)
	if err != nil {
		return dashboard.Options{}, err
	}
	return dashboard.Options{
		PageSize:  cfg.PageSize,
		CleanText: security.NewTextCleaner().Clean,
		NewCode:   newCode,
		Logos:     logo.NewFetcher(security.NewSSRFGuard(), cfg.LogoFetchTimeout, cfg.LogoMaxSize, logger.Component(log, "logo")),
		Observer:  observer,
	}, nil
}

// runServe はダッシュボードサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. セッション管理
	screens, err := newScreenOptions(cfg, log, collector)
	if err != nil {
		return err
	}
	sessionRepo := repository.NewPostgresSessionRepo(db)
	manager := session.NewManager(
		sessionRepo,
		newClientFactory(cfg, logger.Component(log, "apiclient"), collector),
		session.Config{MaxAge: cfg.SessionTTL(), Screens: screens},
		collector,
	)

	// 4. 監査ログ
	publisher := newAuditPublisher(cfg)
	defer publisher.Close()
	recorder := audit.NewRecorder(publisher, logger.Component(log, "audit"))

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin))
	defer rateLimiter.Stop()

	renderer, err := handler.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}

	deps := &handler.RouterDeps{
		Logger:          log,
		WorkspaceFinder: manager,
		CookieSyncer:    manager,
		RateLimiter:     rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(registry),
		SessionService: manager,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Renderer:    renderer,
		Audit:       recorder,
		LogoMaxSize: cfg.LogoMaxSize,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 期限切れセッションをDBとメモリの両方から掃除する
	cleanupJob := cleanup.NewSessionCleanupJob(db, manager, logger.Component(log, "cleanup"))
	go cleanupJob.Start(ctx, cfg.CleanupInterval)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("dashboard server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down dashboard server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("dashboard server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 複数のserveプロセスで共有するDBの期限切れセッションを定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := cleanup.NewSessionCleanupJob(db, nil, logger.Component(slog.Default(), "cleanup"))

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// 起動直後に1回実行
	if err := job.Run(ctx); err != nil {
		slog.Error("session cleanup failed", slog.String("error", err.Error()))
	}
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// パースできない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
