package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wakr/internal/auth"
	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/view"
)

// adminUserLimit は管理画面に表示するユーザーの最大件数。
const adminUserLimit = 50

// PageRenderer はページを描画する。
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, page string, data view.PageData) error
}

// DashboardLoader はダッシュボードに表示するデータを読み込む。
type DashboardLoader interface {
	GetPreferences(ctx context.Context, userID string) (*model.Preferences, error)
}

// HabitLister は達成状況付きの習慣一覧を返す。
type HabitLister interface {
	List(ctx context.Context, userID string) ([]model.HabitWithStatus, error)
}

// UserDirectory は管理画面向けのユーザー一覧を返す。
type UserDirectory interface {
	ListRecent(ctx context.Context, limit int) ([]*model.User, error)
	Count(ctx context.Context) (int, error)
}

// PageHandler はサーバー描画ページのHTTPハンドラー。
type PageHandler struct {
	renderer PageRenderer
	prefs    DashboardLoader
	habits   HabitLister
	users    UserDirectory
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(renderer PageRenderer, prefs DashboardLoader, habits HabitLister, users UserDirectory) *PageHandler {
	return &PageHandler{
		renderer: renderer,
		prefs:    prefs,
		habits:   habits,
		users:    users,
	}
}

// Static は追加データを持たないページを描画するハンドラーを返す。
func (h *PageHandler) Static(page, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, r, http.StatusOK, page, title, nil)
	}
}

// Login はログインページを描画する。
// GET /login?redirect_to=/dashboard/habits
func (h *PageHandler) Login(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{}
	if target, ok := auth.SafeRedirectPath(r.URL.Query().Get("redirect_to")); ok {
		data["RedirectTo"] = target
	}
	h.render(w, r, http.StatusOK, view.PageLogin, "Log in", data)
}

// AuthError はOAuth失敗時のページを描画する。
// GET /auth/auth-code-error
func (h *PageHandler) AuthError(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusUnauthorized, view.PageAuthError, "Sign-in failed", nil)
}

// Dashboard はダッシュボードを描画する。
// GET /dashboard
func (h *PageHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.Redirect(w, r, "/login")
		return
	}

	prefs, err := h.prefs.GetPreferences(r.Context(), userID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	habits, err := h.habits.List(r.Context(), userID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, view.PageDashboard, "Dashboard", map[string]any{
		"Preferences": prefs,
		"Habits":      habits,
	})
}

// Habits は習慣管理ページを描画する。
// GET /dashboard/habits
func (h *PageHandler) Habits(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.Redirect(w, r, "/login")
		return
	}

	habits, err := h.habits.List(r.Context(), userID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, view.PageHabits, "Habits", map[string]any{"Habits": habits})
}

// Admin は管理画面を描画する。
// GET /admin
func (h *PageHandler) Admin(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListRecent(r.Context(), adminUserLimit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	count, err := h.users.Count(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, view.PageAdmin, "Admin", map[string]any{
		"Users":     users,
		"UserCount": count,
	})
}

func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data map[string]any) {
	u, _ := middleware.IdentityFromContext(r.Context())
	pd := view.PageData{
		Title:     title,
		User:      u,
		CSRFToken: csrfTokenFromRequest(r),
		Data:      data,
	}
	if pd.Data == nil {
		pd.Data = map[string]any{}
	}
	if err := h.renderer.Render(w, status, page, pd); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *PageHandler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("failed to load page data",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// csrfTokenFromRequest はリクエストのCSRF Cookieの値を返す。
// 初回アクセスではCookieがまだないため空文字列になり、クライアントはCookieから読み直す。
func csrfTokenFromRequest(r *http.Request) string {
	c, err := r.Cookie(middleware.CSRFCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
