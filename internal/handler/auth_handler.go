// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/wakr/internal/auth"
	"github.com/hitoshi/wakr/internal/metrics"
	"github.com/hitoshi/wakr/internal/middleware"
	"github.com/hitoshi/wakr/internal/model"
)

// AuthErrorPath はOAuthコールバック失敗時の誘導先。
const AuthErrorPath = "/auth/auth-code-error"

// OAuthコールバックの結果ラベル。
const (
	callbackSuccess        = "success"
	callbackMissingCode    = "missing_code"
	callbackInvalidState   = "invalid_state"
	callbackUnverified     = "unverified_email"
	callbackExchangeFailed = "exchange_failed"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*auth.CallbackResult, error)
	Register(ctx context.Context, in auth.RegisterInput) (string, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// StateIssuer はOAuth stateの発行と検証を行う。
type StateIssuer interface {
	Sign(redirectTo string) (string, error)
	Verify(state string) (*auth.StateClaims, error)
}

// SessionCookieIssuer はセッションCookieの発行と削除を行う。
type SessionCookieIssuer interface {
	IssueCookie(sessionID string) (*http.Cookie, error)
	ClearCookie() *http.Cookie
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	Development  bool
	CookieSecure bool
}

// AuthHandler はOAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	states    StateIssuer
	cookies   SessionCookieIssuer
	collector metrics.MetricsCollector
	config    AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(
	service AuthServiceInterface,
	states StateIssuer,
	cookies SessionCookieIssuer,
	collector metrics.MetricsCollector,
	config AuthHandlerConfig,
) *AuthHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &AuthHandler{
		service:   service,
		states:    states,
		cookies:   cookies,
		collector: collector,
		config:    config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login?redirect_to=/dashboard
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	redirectTo, _ := auth.SafeRedirectPath(r.URL.Query().Get("redirect_to"))

	state, err := h.states.Sign(redirectTo)
	if err != nil {
		slog.Error("failed to sign oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	http.SetCookie(w, h.stateCookie(state, int(auth.StateTTL/time.Second)))
	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/callback?code=xxx&state=yyy&redirect_to=/path
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// 1. 認可コードがなければ交換を試みない
	code := q.Get("code")
	if code == "" {
		h.fail(w, r, callbackMissingCode)
		return
	}

	// 2. stateの検証（Cookieとの一致と署名）
	state := q.Get("state")
	stateCookie, err := r.Cookie(auth.StateCookieName)
	if state == "" || err != nil || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		h.fail(w, r, callbackInvalidState)
		return
	}
	claims, err := h.states.Verify(state)
	if err != nil {
		slog.Warn("oauth state verification failed", slog.String("error", err.Error()))
		h.fail(w, r, callbackInvalidState)
		return
	}

	// 3-5. 交換、ユーザー特定、仮登録データの統合
	result, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		label := callbackExchangeFailed
		if errors.Is(err, auth.ErrUnverifiedEmail) {
			label = callbackUnverified
		}
		h.fail(w, r, label)
		return
	}

	// 6. セッションCookieを設定し、stateCookieを削除
	cookie, err := h.cookies.IssueCookie(result.Session.ID)
	if err != nil {
		slog.Error("failed to issue session cookie", slog.String("error", err.Error()))
		h.fail(w, r, callbackExchangeFailed)
		return
	}
	http.SetCookie(w, cookie)
	http.SetCookie(w, h.stateCookie("", -1))

	// 7. 戻り先へリダイレクト
	target := auth.ResolveTarget(q.Get("redirect_to"), claims.RedirectTo)
	h.collector.RecordOAuthCallback(callbackSuccess)
	slog.Info("oauth callback completed",
		slog.String("user_id", result.UserID),
		slog.Bool("created", result.Created),
		slog.Bool("merged", result.Merged),
	)
	http.Redirect(w, r, auth.ResolveOrigin(r, h.config.Development)+target, http.StatusTemporaryRedirect)
}

// fail はstateCookieを削除してエラーページへリダイレクトする。
// プロバイダーのエラー内容はログにのみ残す。
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, label string) {
	h.collector.RecordOAuthCallback(label)
	http.SetCookie(w, h.stateCookie("", -1))
	http.Redirect(w, r, AuthErrorPath, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) stateCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     auth.StateCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// registerResponse は仮登録のレスポンス。
type registerResponse struct {
	LoginURL string `json:"login_url"`
}

// Register はメール確認前のプロフィールを仮登録する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		handleServiceError(w, err)
		return
	}

	if _, err := h.service.Register(r.Context(), in); err != nil {
		handleServiceError(w, err)
		return
	}

	loginURL := "/auth/google/login?" + url.Values{"redirect_to": {auth.DefaultRedirectPath}}.Encode()
	middleware.WriteJSON(w, http.StatusOK, registerResponse{LoginURL: loginURL})
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromContext(r.Context()); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	http.SetCookie(w, h.cookies.ClearCookie())

	// JavaScriptを使わないフォーム送信はトップページへ戻す
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// meResponse はログインユーザー情報のレスポンス。
type meResponse struct {
	ID                  string               `json:"id"`
	Email               string               `json:"email"`
	Name                string               `json:"name"`
	FirstName           string               `json:"first_name"`
	Phone               string               `json:"phone"`
	FullName            string               `json:"full_name"`
	OnboardingCompleted bool                 `json:"onboarding_completed"`
	IsAdmin             bool                 `json:"is_admin"`
	Subscription        subscriptionResponse `json:"subscription"`
}

type subscriptionResponse struct {
	Tier           string     `json:"tier,omitempty"`
	Status         string     `json:"status,omitempty"`
	TrialExpiresAt *time.Time `json:"trial_expires_at,omitempty"`
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	p := user.Metadata.Profile()
	s := user.Metadata.Subscription()
	middleware.WriteJSON(w, http.StatusOK, meResponse{
		ID:                  user.ID,
		Email:               user.Email,
		Name:                user.Name,
		FirstName:           p.FirstName,
		Phone:               p.Phone,
		FullName:            p.FullName,
		OnboardingCompleted: user.Metadata.OnboardingCompleted(),
		IsAdmin:             user.Metadata.IsAdmin(),
		Subscription: subscriptionResponse{
			Tier:           s.Tier,
			Status:         s.Status,
			TrialExpiresAt: s.TrialExpiresAt,
		},
	})
}
