package middleware

import (
	"net/http"

	"github.com/hitoshi/wakr/internal/access"
	"github.com/hitoshi/wakr/internal/metrics"
)

// NewAccessGateMiddleware はパスを分類し、認証状態に応じて通過またはリダイレクトする
// ミドルウェアを返す。セッションミドルウェアの後に配置する。
func NewAccessGateMiddleware(collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			class := access.Classify(path)
			_, present := IdentityFromContext(r.Context())

			d := access.Decide(present, class, path)
			collector.RecordAccessDecision(string(class), string(d.Action))

			if d.Action == access.ActionRedirect {
				Redirect(w, r, d.Location())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewOnboardingMiddleware は/dashboard配下でオンボーディング未完了のユーザーを
// /onboardingへリダイレクトするミドルウェアを返す。アクセスゲートの後に配置する。
func NewOnboardingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := IdentityFromContext(r.Context())
			d := access.CheckOnboarding(u, r.URL.Path)
			if d.Action == access.ActionRedirect {
				Redirect(w, r, d.Location())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewAdminMiddleware は管理者ロールを持たないユーザーを/dashboardへリダイレクトする
// ミドルウェアを返す。
func NewAdminMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := IdentityFromContext(r.Context())
			if !ok || !u.Metadata.IsAdmin() {
				Redirect(w, r, access.DashboardPath)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Redirect はメソッドを保持すべきGET/HEADには307、それ以外には303でリダイレクトする。
func Redirect(w http.ResponseWriter, r *http.Request, location string) {
	status := http.StatusSeeOther
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		status = http.StatusTemporaryRedirect
	}
	http.Redirect(w, r, location, status)
}
