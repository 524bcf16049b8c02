package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	StatusRecorder middleware.StatusRecorder

	// ミドルウェア依存
	Workspaces        middleware.WorkspaceProvider
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	CookieConfig      middleware.CookieConfig

	// 認証
	AuthConfig AuthHandlerConfig

	// タスク
	Sanitizer        security.TextSanitizer
	ReminderLocation *time.Location

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Metrics → Recovery → SecurityHeaders → CORS
//	  → Workspace → CSRF → (RequirePrincipal → RateLimit(General))
//
// /health と /metrics はワークスペースの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthConfig)
	taskHandler := NewTaskHandler(deps.Sanitizer, deps.ReminderLocation)
	pageHandler := NewPageHandler(deps.Sanitizer, deps.ReminderLocation)
	userHandler := NewUserHandler(deps.UserService, deps.CookieConfig)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- ワークスペースを使うルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewWorkspaceMiddleware(deps.Workspaces, deps.CookieConfig, deps.RateLimiter))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 認証ルート（OAuthフロー）
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google/login", authHandler.Login)
			r.Get("/google/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// 画面
		r.Get("/", pageHandler.Index)
		r.Post("/detail/close", pageHandler.CloseDetail)
		r.Group(func(r chi.Router) {
			r.Use(redirectSignedOut)
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.With(deps.RateLimiter.TaskCreateMiddleware()).Post("/tasks", pageHandler.CreateTask)
			r.Get("/tasks/{id}", pageHandler.OpenDetail)
			r.Post("/tasks/{id}/toggle", pageHandler.ToggleTask)
			r.Post("/tasks/{id}/delete", pageHandler.DeleteTask)
		})

		// JSON API（サインイン必須）
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequirePrincipalMiddleware())
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Route("/api/tasks", func(r chi.Router) {
				r.Get("/", taskHandler.ListTasks)
				r.With(deps.RateLimiter.TaskCreateMiddleware()).Post("/", taskHandler.CreateTask)
				r.Post("/reload", taskHandler.ReloadTasks)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", taskHandler.GetTask)
					r.Delete("/", taskHandler.DeleteTask)
					r.Post("/toggle", taskHandler.ToggleTask)
				})
			})

			r.Delete("/api/users/me", userHandler.Withdraw)
		})
	})

	return r
}

// redirectSignedOut は未サインインのリクエストをトップ画面へリダイレクトする。
// 画面のフォーム送信用。NewWorkspaceMiddlewareの後に配置する。
func redirectSignedOut(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
			redirectHome(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
