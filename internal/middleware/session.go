// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/wakr/internal/model"
	"github.com/hitoshi/wakr/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// identityContextKey はリクエストコンテキストにログイン中のユーザーを格納するためのキー。
	identityContextKey = contextKey("identity")
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// sessionIDContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
	sessionIDContextKey = contextKey("session_id")
)

// SessionResolver はリクエストからセッションを解決する。
// session.Resolverが実装する。
type SessionResolver interface {
	Resolve(r *http.Request) session.Resolution
}

// NewSessionMiddleware はセッションCookieからログイン中のユーザーを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未認証でもリクエストは拒否せず、判定はアクセスゲートに任せる。
// 再発行・削除用のCookieはGETを含むすべてのレスポンスに書き込む。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := resolver.Resolve(r)

			if res.Cookie != nil {
				http.SetCookie(w, res.Cookie)
			}

			if res.User == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := ContextWithIdentity(r.Context(), res.User)
			if res.SessionID != "" {
				ctx = ContextWithSessionID(ctx, res.SessionID)
			}
			setLogUserID(ctx, res.User.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext はリクエストコンテキストからログイン中のユーザーを取得する。
func IdentityFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(identityContextKey).(*model.User)
	return u, ok && u != nil
}

// ContextWithIdentity はコンテキストにログイン中のユーザーとそのIDを注入する。
func ContextWithIdentity(ctx context.Context, u *model.User) context.Context {
	ctx = context.WithValue(ctx, identityContextKey, u)
	return context.WithValue(ctx, userIDContextKey, u.ID)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアで認証済みと判定されたリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}
