package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/notesapp/internal/auth"
	"github.com/hitoshi/notesapp/internal/config"
	"github.com/hitoshi/notesapp/internal/database"
	"github.com/hitoshi/notesapp/internal/handler"
	"github.com/hitoshi/notesapp/internal/logger"
	"github.com/hitoshi/notesapp/internal/mailer"
	"github.com/hitoshi/notesapp/internal/metrics"
	"github.com/hitoshi/notesapp/internal/note"
	"github.com/hitoshi/notesapp/internal/repository"
	"github.com/hitoshi/notesapp/internal/worker/cleanup"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// dotEnvFile はローカル開発用の環境変数ファイル。
const dotEnvFile = ".env"

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envがあれば読み込む（既存の環境変数は上書きしない）
	if err := loadDotEnv(dotEnvFile); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// loadDotEnv は指定されたファイルを環境変数として読み込む。
// ファイルが存在しない場合は何もしない。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	slog.Info("loaded environment file", slog.String("path", path))
	return nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "4000"
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
		slog.String("app_env", cfg.AppEnv),
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

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// 期限切れワンタイムコードのクリーンアップもバックグラウンドで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	otpRepo := repository.NewPostgresOTPRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 外部サービスの初期化
	otpMailer, err := newMailer(cfg)
	if err != nil {
		return err
	}

	verifier, err := auth.NewGoogleIDTokenVerifier(ctx, cfg.GoogleClientID, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to create google id token verifier: %w", err)
	}

	oauthProvider := newOAuthProvider(cfg)

	// 5. ドメインサービスの初期化
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)
	authService := auth.NewService(
		userRepo, otpRepo, otpMailer, verifier, tokens, collector,
		auth.ServiceConfig{
			OTPExpiry:      cfg.OTPExpiry,
			ExposeDebugOTP: !cfg.IsProduction(),
		},
	)
	noteService := note.NewService(noteRepo)

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenParser:       tokens,
		UserFinder:        userRepo,
		CORSAllowedOrigin: cfg.FrontendOrigin,
		EnableHSTS:        cfg.IsProduction(),

		HealthChecker:    db,
		MetricsCollector: collector,
		MetricsHandler:   metrics.Handler(registry),

		AuthService:   authService,
		OAuthProvider: oauthProvider,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendOrigin: cfg.FrontendOrigin,
			CookieSecure:   cfg.IsProduction(),
		},

		NoteService: noteService,
	})

	// 7. クリーンアップジョブをバックグラウンドで起動
	cleanupJob := cleanup.NewOTPCleanupJob(db, slog.Default(), collector)
	go cleanupJob.Start(ctx, cfg.OTPCleanupInterval)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Bool("google_redirect_flow", oauthProvider != nil),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れワンタイムコードのクリーンアップのみを実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewOTPCleanupJob(db, slog.Default(), nil)

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
		slog.Duration("otp_cleanup_interval", cfg.OTPCleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.OTPCleanupInterval)

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

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
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

// newMailer はSMTP_HOSTの有無に応じてOTPメールの送信手段を選ぶ。
// SMTP_HOSTが空の場合はメールを送らずログに出力する。
// ログにはコードが含まれるため、本番環境ではSMTP_HOSTを必須とする。
func newMailer(cfg *config.Config) (auth.OTPMailer, error) {
	if cfg.SMTPHost == "" {
		if cfg.IsProduction() {
			return nil, errors.New("SMTP_HOST is required when APP_ENV=production")
		}
		slog.Warn("SMTP_HOST is not set; OTP emails will be logged instead of sent")
		return mailer.LogMailer{}, nil
	}

	m, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mailer: %w", err)
	}
	return m, nil
}

// newOAuthProvider はGoogleリダイレクトフロー用のプロバイダーを生成する。
// GOOGLE_CLIENT_SECRETが未設定の場合はnilを返し、リダイレクトフローを無効にする。
func newOAuthProvider(cfg *config.Config) auth.OAuthProvider {
	if cfg.GoogleClientSecret == "" {
		return nil
	}
	return auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
