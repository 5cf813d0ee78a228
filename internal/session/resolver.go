// Package session はリクエストからログイン中のユーザーを解決する。
package session

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/wakr/internal/model"
)

// DefaultCookieName はセッションCookieのデフォルト名。
const DefaultCookieName = "wakr_session"

// Config はResolverの設定。起動時に1回構築し、以降変更しない。
type Config struct {
	CookieName    string
	MaxAge        time.Duration
	RefreshWindow time.Duration
	Secure        bool
	Domain        string
}

// Store はセッションの取得と延長を行う。
// repository.SessionRepositoryの部分集合として定義する。
type Store interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	Extend(ctx context.Context, id string, expiresAt time.Time) error
}

// UserLoader はセッションの所有ユーザーを取得する。
type UserLoader interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Resolution はセッション解決の結果。
// Userがnilの場合は未認証として扱う。
// Cookieがnilでない場合、呼び出し側はレスポンスに必ず書き込む。
type Resolution struct {
	User      *model.User
	SessionID string
	Cookie    *http.Cookie
}

// Resolver はCookieからセッションとユーザーを解決する。
type Resolver struct {
	cfg   Config
	store Store
	users UserLoader
	codec Codec
	now   func() time.Time
}

// NewResolver はResolverを生成する。
func NewResolver(cfg Config, store Store, users UserLoader, codec Codec) *Resolver {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &Resolver{
		cfg:   cfg,
		store: store,
		users: users,
		codec: codec,
		now:   time.Now,
	}
}

// Config はResolverの設定を返す。
func (r *Resolver) Config() Config {
	return r.cfg
}

// Resolve はリクエストのセッションCookieを検証し、ログイン中のユーザーを返す。
// セッションが存在しない・無効・期限切れの場合もエラーにはせず、Userがnilの結果を返す。
// 有効期限がRefreshWindow以内に迫っている場合は期限を延長し、再発行したCookieを返す。
func (r *Resolver) Resolve(req *http.Request) Resolution {
	c, err := req.Cookie(r.cfg.CookieName)
	if err != nil || c.Value == "" {
		return Resolution{}
	}

	sessionID, err := r.codec.Decode(r.cfg.CookieName, c.Value)
	if err != nil {
		slog.Debug("invalid session cookie", slog.String("error", err.Error()))
		return Resolution{Cookie: r.ClearCookie()}
	}

	ctx := req.Context()
	sess, err := r.store.FindByID(ctx, sessionID)
	if err != nil {
		slog.Error("failed to find session",
			slog.String("error", err.Error()),
		)
		return Resolution{}
	}
	now := r.now()
	if sess == nil || sess.Expired(now) {
		return Resolution{Cookie: r.ClearCookie()}
	}

	user, err := r.users.FindByID(ctx, sess.UserID)
	if err != nil {
		slog.Error("failed to load session user",
			slog.String("user_id", sess.UserID),
			slog.String("error", err.Error()),
		)
		return Resolution{}
	}
	if user == nil {
		return Resolution{Cookie: r.ClearCookie()}
	}

	res := Resolution{User: user, SessionID: sess.ID}

	if sess.NeedsRefresh(now, r.cfg.RefreshWindow) {
		expiresAt := now.Add(r.cfg.MaxAge)
		if err := r.store.Extend(ctx, sess.ID, expiresAt); err != nil {
			slog.Warn("failed to extend session",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
			return res
		}
		cookie, err := r.IssueCookie(sess.ID)
		if err != nil {
			slog.Error("failed to reissue session cookie", slog.String("error", err.Error()))
			return res
		}
		res.Cookie = cookie
	}

	return res
}

// IssueCookie はセッションIDを署名済みCookieにして返す。
func (r *Resolver) IssueCookie(sessionID string) (*http.Cookie, error) {
	value, err := r.codec.Encode(r.cfg.CookieName, sessionID)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     r.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   r.cfg.Domain,
		MaxAge:   int(r.cfg.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   r.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// ClearCookie はセッションCookieを削除するCookieを返す。
func (r *Resolver) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     r.cfg.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   r.cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
