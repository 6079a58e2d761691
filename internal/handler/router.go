package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jokecentral/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Workspaces        middleware.WorkspaceGetter
	BrowserSession    middleware.BrowserSessionConfig
	CSRF              middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 認証
	AuthGateway AuthGateway
	AuthConfig  AuthHandlerConfig

	// 画面
	Renderer Renderer
	Markdown MarkdownRenderer
	Static   http.Handler

	// 生成結果の中継
	Media MediaFetcher

	// 運用
	Health  HealthChecker
	Metrics http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → BrowserSession → CSRF → RateLimit(/actions のみ)
//
// ヘルスチェック、メトリクス、静的ファイルはブラウザセッションの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))

	authHandler := NewAuthHandler(deps.AuthGateway, deps.AuthConfig)
	pageHandler := NewPageHandler(deps.Renderer, deps.Markdown)
	actionHandler := NewActionHandler(deps.Media)

	// --- ブラウザセッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.Health))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	if deps.Static != nil {
		r.Handle("/static/*", deps.Static)
	}

	// --- ブラウザセッションが必要なルート ---
	// ミドルウェアスタック: BrowserSession → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBrowserSessionMiddleware(deps.Workspaces, deps.BrowserSession))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/", pageHandler.Index)
		r.Post("/jokes", pageHandler.SaveJoke)
		r.Get("/profile", pageHandler.Profile)
		r.Post("/profile", pageHandler.UpdateProfile)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/magic-link", authHandler.MagicLink)
			r.Get("/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.Get("/{provider}/login", authHandler.ProviderLogin)
		})

		// AI生成（ブラウザセッションごとのレート制限を追加）
		r.With(deps.RateLimiter.ActionsMiddleware()).Post("/actions/{capability}", actionHandler.Run)
		r.Get("/media/{capability}", actionHandler.Media)

		// 別オリジンのフロントエンド向け
		r.Group(func(r chi.Router) {
			if deps.CORSAllowedOrigin != "" {
				r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
			}
			r.Options("/api/*", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
			r.Get("/api/state", State)
			r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
		})
	})

	return r
}
