package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/wakr/internal/geocode"
	"github.com/hitoshi/wakr/internal/metrics"
	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/view"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Collector         metrics.MetricsCollector
	SessionResolver   middleware.SessionResolver
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	SecurityHeaders   middleware.SecurityHeadersConfig
	RateLimiter       middleware.Limiter

	// 運用
	HealthChecker   HealthChecker
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService    AuthServiceInterface
	StateIssuer    StateIssuer
	SessionCookies SessionCookieIssuer
	AuthConfig     AuthHandlerConfig

	// ドメイン
	UserService         UserServiceInterface
	SubscriptionService SubscriptionServiceInterface
	HabitService        HabitServiceInterface
	CitySearcher        geocode.Searcher
	WebhookService      WebhookServiceInterface

	// ページ
	Renderer      PageRenderer
	UserDirectory UserDirectory
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → AccessGate
//
// CSRF検証はWebhook、/health、/metrics、/static/を除く全ルートに適用する。
// /dashboard配下はオンボーディング確認、/adminは管理者ロール確認を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	collector := deps.Collector
	if collector == nil {
		collector = metrics.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.SecurityHeaders))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
	r.Use(middleware.NewAccessGateMiddleware(collector))

	authHandler := NewAuthHandler(deps.AuthService, deps.StateIssuer, deps.SessionCookies, collector, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	habitHandler := NewHabitHandler(deps.HabitService)
	cityHandler := NewCityHandler(deps.CitySearcher)
	webhookHandler := NewWebhookHandler(deps.WebhookService)
	pageHandler := NewPageHandler(deps.Renderer, deps.UserService, deps.HabitService, deps.UserDirectory)

	general := middleware.NewRateLimitMiddleware(deps.RateLimiter, middleware.BucketGeneral)
	subscriptionLimit := middleware.NewRateLimitMiddleware(deps.RateLimiter, middleware.BucketSubscription)

	// --- CSRF対象外 ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Handle("/static/*", view.StaticHandler())
	// 署名で検証するため、CSRFトークンは要求しない
	r.With(general).Post("/api/webhooks/calls", webhookHandler.CallStatus)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		// ページ
		r.Get("/", pageHandler.Static(view.PageHome, "Wakr"))
		r.Get("/login", pageHandler.Login)
		r.Get("/register", pageHandler.Static(view.PageRegister, "Create account"))
		r.Get("/pricing", pageHandler.Static(view.PagePricing, "Plans"))
		r.Get("/subscription", pageHandler.Static(view.PagePricing, "Plans"))
		r.Get("/privacy", pageHandler.Static(view.PagePrivacy, "Privacy"))
		r.Get("/terms", pageHandler.Static(view.PageTerms, "Terms"))
		r.Get("/onboarding", pageHandler.Static(view.PageOnboarding, "Welcome"))
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(middleware.NewOnboardingMiddleware())
			r.Get("/", pageHandler.Dashboard)
			r.Get("/habits", pageHandler.Habits)
		})
		r.With(middleware.NewAdminMiddleware()).Get("/admin", pageHandler.Admin)

		// 認証ルート（OAuthフロー）
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google/login", authHandler.Login)
			r.Get("/callback", authHandler.Callback)
			r.Get("/auth-code-error", pageHandler.AuthError)
			r.With(general).Post("/register", authHandler.Register)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// API
		r.Group(func(r chi.Router) {
			r.Use(general)

			r.Get("/api/cities/search", cityHandler.Search)
			r.With(subscriptionLimit).Post("/api/subscription/select", subHandler.Select)

			r.Post("/api/onboarding", userHandler.CompleteOnboarding)
			r.Get("/api/preferences", userHandler.GetPreferences)
			r.Put("/api/preferences", userHandler.UpdatePreferences)
			r.Delete("/api/users/me", userHandler.Withdraw)

			r.Route("/api/habits", func(r chi.Router) {
				r.Get("/", habitHandler.List)
				r.Post("/", habitHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Patch("/", habitHandler.Update)
					r.Delete("/", habitHandler.Delete)
					r.Post("/check-ins", habitHandler.CheckIn)
				})
			})
		})
	})

	return r
}
