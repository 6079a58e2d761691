// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/jokecentral/internal/aievent"
	"github.com/hitoshi/jokecentral/internal/auth"
	"github.com/hitoshi/jokecentral/internal/config"
	"github.com/hitoshi/jokecentral/internal/database"
	"github.com/hitoshi/jokecentral/internal/handler"
	"github.com/hitoshi/jokecentral/internal/joke"
	"github.com/hitoshi/jokecentral/internal/logger"
	"github.com/hitoshi/jokecentral/internal/metrics"
	"github.com/hitoshi/jokecentral/internal/middleware"
	"github.com/hitoshi/jokecentral/internal/repository"
	"github.com/hitoshi/jokecentral/internal/security"
	"github.com/hitoshi/jokecentral/internal/view"
	"github.com/hitoshi/jokecentral/internal/worker/cleanup"
	"github.com/hitoshi/jokecentral/internal/workspace"
)

// errDatabaseRequired はDATABASE_URLが必須のサブコマンドで未設定の場合のエラー。
var errDatabaseRequired = errors.New("DATABASE_URL is required for this command")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
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
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.Ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// server はserveモードで組み立てた依存関係をまとめたもの。
type server struct {
	handler     http.Handler
	workspaces  *workspace.Manager
	rateLimiter *middleware.RateLimiter
	scheduler   *cleanup.Scheduler
	sweepEvery  time.Duration
}

// close はワークスペースとバックグラウンド処理を解放する。
func (s *server) close() {
	s.rateLimiter.Stop()
	s.workspaces.CloseAll()
}

// buildServer は全依存関係をワイヤリングする。
// dbがnilの場合はブラウザセッションをメモリ上に保持し、プロセスの再起動で失われる。
func buildServer(cfg *config.Config, db *sql.DB) (*server, error) {
	// 1. ブラウザセッションの保存先
	var storage repository.BrowserSessionRepository
	var health handler.HealthChecker
	if db != nil {
		storage = repository.NewPostgresBrowserSessionRepo(db)
		health = db
	} else {
		slog.Warn("DATABASE_URL is not set; browser sessions are kept in memory")
		storage = repository.NewMemoryBrowserSessionRepo()
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 3. 外部APIクライアント（全ブラウザで共有）
	upstream := &http.Client{Timeout: cfg.UpstreamTimeout}
	goTrue := auth.NewGoTrue(auth.GoTrueConfig{
		BaseURL:    cfg.AuthURL,
		AnonKey:    cfg.AuthAnonKey,
		HTTPClient: upstream,
	})
	jokes := joke.NewClient(cfg.JokesAPIURL, upstream, slog.Default(), collector)

	// 4. ブラウザごとのワークスペース
	factory := func(browserID string) workspace.Components {
		provider := auth.NewClient(goTrue, storage, browserID, slog.Default(), collector)
		dispatcher := aievent.NewHTTPDispatcher(aievent.HTTPConfig{
			Endpoint:   cfg.AIEventURL,
			AppID:      cfg.AIAppID,
			HTTPClient: upstream,
			Metrics:    collector,
		}, workspace.SessionCredential(provider))
		return workspace.Components{
			Provider:   provider,
			Jokes:      jokes,
			Dispatcher: dispatcher,
		}
	}
	manager := workspace.NewManager(factory, slog.Default(), collector)

	// 5. 画面
	renderer, err := view.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	ssrfGuard := security.NewSSRFGuard()

	// 6. ルーター
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitActions))
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:     slog.Default(),
		Workspaces: manager,
		BrowserSession: middleware.BrowserSessionConfig{
			CookieSecure:  cfg.CookieSecure,
			CookieDomain:  cfg.CookieDomain,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		AuthGateway: goTrue,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.BaseURL,
			CookieSecure: cfg.CookieSecure,
		},

		Renderer: renderer,
		Markdown: view.NewMarkdown(security.NewMarkdownSanitizer()),
		Static:   view.StaticHandler(),
		Media:    security.NewMediaFetcher(ssrfGuard, cfg.MediaFetchTimeout, cfg.MediaMaxSize),

		Health:  health,
		Metrics: metrics.Handler(registry),
	})

	// 7. アイドル状態のワークスペースの解放。DB無しの場合は保存行の削除もここで行う
	jobs := []cleanup.Job{cleanup.NewWorkspaceSweepJob(manager, cfg.WorkspaceIdleTimeout, slog.Default())}
	if db == nil {
		jobs = append(jobs, newSessionCleanupJob(cfg, storage))
	}

	return &server{
		handler:     router,
		workspaces:  manager,
		rateLimiter: rateLimiter,
		scheduler:   cleanup.NewScheduler(slog.Default(), jobs...),
		sweepEvery:  sweepInterval(cfg),
	}, nil
}

// newSessionCleanupJob はCookieの有効期間を過ぎた保存行を削除するジョブを生成する。
func newSessionCleanupJob(cfg *config.Config, storage cleanup.SessionDeleter) *cleanup.SessionCleanupJob {
	job := cleanup.NewSessionCleanupJob(storage, slog.Default())
	job.Retention = time.Duration(cfg.SessionMaxAge) * time.Second
	return job
}

// sweepInterval はワークスペース掃除の間隔を返す。
// アイドル判定の半分の間隔で回し、CLEANUP_INTERVALを上限とする。
func sweepInterval(cfg *config.Config) time.Duration {
	every := cfg.WorkspaceIdleTimeout / 2
	if every <= 0 || every > cfg.CleanupInterval {
		every = cfg.CleanupInterval
	}
	if every < time.Second {
		every = time.Second
	}
	return every
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き（設定されている場合）、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	var db *sql.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = openDatabase(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database connection established")
	}

	// 2. ワイヤリング
	srv, err := buildServer(cfg, db)
	if err != nil {
		return err
	}
	defer srv.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.scheduler.Start(ctx, srv.sweepEvery)

	// 3. HTTPサーバーの起動
	// AI生成の応答を待つため書き込みタイムアウトは長めにとる
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-listenErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、保存済みブラウザセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errDatabaseRequired
	}

	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. ジョブの初期化
	repo := repository.NewPostgresBrowserSessionRepo(db)
	scheduler := cleanup.NewScheduler(slog.Default(), newSessionCleanupJob(cfg, repo))

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errDatabaseRequired
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
