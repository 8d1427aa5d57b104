package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/notesapp/internal/auth"
	"github.com/hitoshi/notesapp/internal/metrics"
	"github.com/hitoshi/notesapp/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	TokenParser       middleware.TokenParser
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	EnableHSTS        bool

	// 監視
	HealthChecker    HealthChecker
	MetricsCollector metrics.MetricsCollector
	MetricsHandler   http.Handler // nilの場合は/metricsを公開しない

	// 認証
	AuthService   AuthServiceInterface
	OAuthProvider auth.OAuthProvider // nilの場合はリダイレクトフローを無効にする
	AuthConfig    AuthHandlerConfig

	// ノート
	NoteService NoteServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → (BearerAuth)
//
// /api/auth/me と /api/notes のみBearerトークンを要求する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.MetricsCollector != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.MetricsCollector))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.EnableHSTS))
	// CORS ミドルウェアはプリフライトを認証より前に処理する
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.OAuthProvider, deps.AuthConfig)
	noteHandler := NewNoteHandler(deps.NoteService)
	requireAuth := middleware.NewBearerAuthMiddleware(deps.TokenParser, deps.UserFinder)

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/send-otp", authHandler.SendOTP)
		r.Post("/verify-otp", authHandler.VerifyOTP)
		r.Post("/google", authHandler.Google)

		// OAuthリダイレクトフロー
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)

		r.With(requireAuth).Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Route("/api/notes", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/", noteHandler.List)
		r.Post("/", noteHandler.Create)
		r.Delete("/{id}", noteHandler.Delete)
	})

	return r
}
