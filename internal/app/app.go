package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/wakr/internal/auth"
	"github.com/hitoshi/wakr/internal/config"
	"github.com/hitoshi/wakr/internal/database"
	"github.com/hitoshi/wakr/internal/geocode"
	"github.com/hitoshi/wakr/internal/habit"
	"github.com/hitoshi/wakr/internal/handler"
	"github.com/hitoshi/wakr/internal/logger"
	"github.com/hitoshi/wakr/internal/metrics"
	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/repository"
	"github.com/hitoshi/wakr/internal/security"
	"github.com/hitoshi/wakr/internal/session"
	"github.com/hitoshi/wakr/internal/subscription"
	"github.com/hitoshi/wakr/internal/user"
	"github.com/hitoshi/wakr/internal/view"
	"github.com/hitoshi/wakr/internal/webhook"
	"github.com/hitoshi/wakr/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envの読み込み。既に設定済みの環境変数は上書きしない
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。ctxがキャンセルされるとserveとworkerは停止する。
func Run(ctx context.Context, w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		PrintUsage(w)
		return nil
	}

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
		slog.String("env", cfg.AppEnv),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, 10*time.Second)
	if err != nil {
		return nil, err
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Int("max_open_conns", cfg.DBMaxOpenConns),
	)
	return db, nil
}

// newRegistry はプロセスとランタイムのメトリクスを含むレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newRateLimiter はREDIS_URLが設定されていればRedis、なければプロセス内のリミッターを返す。
// 戻り値のclose関数はシャットダウン時に呼び出す。
func newRateLimiter(ctx context.Context, cfg *config.Config) (middleware.Limiter, func(), error) {
	limiterCfg := middleware.DefaultRateLimiterConfig()
	limiterCfg.GeneralPerMinute = cfg.RateLimitGeneral
	limiterCfg.SubscriptionPerMinute = cfg.RateLimitSubscription

	if cfg.RedisURL == "" {
		rl := middleware.NewRateLimiter(limiterCfg)
		slog.Info("using in-memory rate limiter")
		return rl, rl.Stop, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// リミッターはリクエスト単位でフェイルオープンするため起動は続ける
		slog.Warn("redis is unreachable; rate limiting is disabled until it recovers",
			slog.String("error", err.Error()),
		)
	} else {
		slog.Info("using redis rate limiter")
	}

	return middleware.NewRedisRateLimiter(client, "wakr:ratelimit", limiterCfg), func() { client.Close() }, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	registry := newRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	prefsRepo := repository.NewPostgresPreferencesRepo(db)
	subRepo := repository.NewPostgresSubscriptionRepo(db)
	habitRepo := repository.NewPostgresHabitRepo(db)
	callEventRepo := repository.NewPostgresCallEventRepo(db)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 5. セッション
	sessionMaxAge := time.Duration(cfg.SessionMaxAge) * time.Second
	resolver := session.NewResolver(session.Config{
		CookieName:    session.DefaultCookieName,
		MaxAge:        sessionMaxAge,
		RefreshWindow: cfg.SessionRefreshWindow,
		Secure:        cfg.CookieSecure,
		Domain:        cfg.CookieDomain,
	}, sessionRepo, userRepo, session.NewCookieCodec(cfg.SessionSecret, cfg.SessionMaxAge))

	// 6. ドメインサービスの初期化
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo, sanitizer, collector,
		auth.ServiceConfig{SessionMaxAge: sessionMaxAge},
	)

	habitService := habit.NewService(habitRepo, prefsRepo, sanitizer, collector, cfg.DefaultTimezone)
	userService := user.NewService(userRepo, sessionRepo, prefsRepo, habitService, sanitizer, cfg.DefaultTimezone)
	subService := subscription.NewService(subRepo, sanitizer, collector, cfg.DefaultTimezone)

	if cfg.WebhookSecret == "" {
		slog.Warn("WEBHOOK_SECRET is not set; all webhook deliveries will be rejected")
	}
	webhookService := webhook.NewService(cfg.WebhookSecret, callEventRepo, collector)

	geoCfg := geocode.DefaultConfig()
	geoCfg.Endpoint = cfg.GeocodingURL
	geoClient := geocode.NewClient(ssrfGuard.NewSafeClient(cfg.GeocodingTimeout), geoCfg, collector, slog.Default())

	renderer, err := view.New()
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// 7. レート制限
	limiter, closeLimiter, err := newRateLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// 8. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Collector:         collector,
		SessionResolver:   resolver,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		SecurityHeaders: middleware.SecurityHeadersConfig{HSTS: !cfg.IsDevelopment()},
		RateLimiter:     limiter,

		HealthChecker:   db,
		MetricsGatherer: registry,

		AuthService:    authService,
		StateIssuer:    auth.NewStateSigner(cfg.SessionSecret),
		SessionCookies: resolver,
		AuthConfig: handler.AuthHandlerConfig{
			Development:  cfg.IsDevelopment(),
			CookieSecure: cfg.CookieSecure,
		},

		UserService:         userService,
		SubscriptionService: subService,
		HabitService:        habitService,
		CitySearcher:        geoClient,
		WebhookService:      webhookService,

		Renderer:      renderer,
		UserDirectory: userRepo,
	})

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return serve(ctx, server, "API server")
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、メンテナンススケジューラを起動する。
// /metricsと/healthは同じポートで公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := newRegistry()
	collector := metrics.NewCollector(registry)

	// 2. クリーンアップジョブとスケジューラの初期化
	job := cleanup.NewJob(
		repository.NewPostgresSessionRepo(db),
		repository.NewPostgresUserRepo(db),
		collector,
		slog.Default(),
	)
	scheduler, err := cleanup.NewScheduler(job, cfg.CleanupSchedule, slog.Default())
	if err != nil {
		return err
	}

	// 3. 運用エンドポイント
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.NewOpsMux(registry, handler.NewHealthHandler(db)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("worker starting", slog.String("schedule", cfg.CleanupSchedule))

	err = runUntilFailure(ctx,
		func(ctx context.Context) error { return serve(ctx, server, "worker ops server") },
		scheduler.Start,
	)
	if err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// runUntilFailure はサーバーとジョブを並行に動かす。
// サーバーがエラーで終了した場合はジョブも止めてそのエラーを返す。
func runUntilFailure(ctx context.Context, serveFn func(context.Context) error, run func(context.Context)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- serveFn(ctx) }()

	done := make(chan struct{})
	go func() {
		run(ctx)
		close(done)
	}()

	select {
	case err := <-errCh:
		cancel()
		<-done
		return err
	case <-done:
		cancel()
		return <-errCh
	}
}

// serve はctxがキャンセルされるまでサーバーを動かし、その後グレースフルシャットダウンする。
func serve(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(status.Version)),
		slog.Bool("applied", status.Applied),
	)
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
