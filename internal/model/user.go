package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザー（認証済みアイデンティティ）を表す。
// プロフィール、オンボーディング状態、購読プランはMetadataに保持する。
type User struct {
	ID        string
	Email     string
	Name      string
	Metadata  Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName は画面表示用の名前を返す。
// オンボーディングで入力した名、IdPの表示名、メールアドレスのローカル部の順に使う。
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if first := u.Metadata.Profile().FirstName; first != "" {
		return first
	}
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// Identity は外部IdPとの紐付け情報を表す。
// (Provider, ProviderUserID) の組は一意。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はサーバー側で管理するログインセッション。
// CookieにはセッションIDのみを署名付きで保存する。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はnow時点でセッションが失効しているかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NeedsRefresh は残り有効期間がwindow以下になっているかを返す。
func (s *Session) NeedsRefresh(now time.Time, window time.Duration) bool {
	return s.ExpiresAt.Sub(now) <= window
}
