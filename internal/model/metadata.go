package model

import (
	"strings"
	"time"
)

// メタデータキー。機能ごとに使用するキーをここで固定し、衝突を避ける。
const (
	MetaFirstName            = "first_name"
	MetaPhone                = "phone"
	MetaFullName             = "full_name"
	MetaRole                 = "role"
	MetaOnboardingCompleted  = "onboarding_completed"
	MetaTempRegistrationData = "temp_registration_data"
	MetaEmailVerifiedAt      = "email_verified_at"

	MetaSubscriptionTier      = "subscription_tier"
	MetaSubscriptionStatus    = "subscription_status"
	MetaSubscriptionUpdatedAt = "subscription_updated_at"
	MetaTrialExpiresAt        = "trial_expires_at"
)

// RoleAdmin は管理画面へのアクセスを許可するロール。
const RoleAdmin = "admin"

// Metadata はユーザーメタデータ（JSONB）を表す。
// 任意のキーを保持できるが、読み取りは型付きアクセサ経由で行う。
type Metadata map[string]any

// Profile はオンボーディングに関わるプロフィール項目の型付きビュー。
type Profile struct {
	FirstName string
	Phone     string
	FullName  string
}

// SubscriptionView は購読プラン関連項目の型付きビュー。
type SubscriptionView struct {
	Tier           string
	Status         string
	TrialExpiresAt *time.Time
}

// String はキーの文字列値を返す。存在しない、または文字列でない場合は空文字列。
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	s, ok := m[key].(string)
	if !ok {
		return ""
	}
	return s
}

// Bool はキーの真偽値を返す。存在しない、または真偽値でない場合はfalse。
func (m Metadata) Bool(key string) bool {
	if m == nil {
		return false
	}
	b, ok := m[key].(bool)
	return ok && b
}

// Has はキーが存在するかを返す。
func (m Metadata) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// OnboardingCompleted はオンボーディング完了フラグを返す。
func (m Metadata) OnboardingCompleted() bool {
	return m.Bool(MetaOnboardingCompleted)
}

// Profile はプロフィール項目を返す。
func (m Metadata) Profile() Profile {
	return Profile{
		FirstName: strings.TrimSpace(m.String(MetaFirstName)),
		Phone:     strings.TrimSpace(m.String(MetaPhone)),
		FullName:  strings.TrimSpace(m.String(MetaFullName)),
	}
}

// TempRegistration は仮登録データを返す。存在しない場合はnil。
func (m Metadata) TempRegistration() map[string]any {
	if m == nil {
		return nil
	}
	temp, ok := m[MetaTempRegistrationData].(map[string]any)
	if !ok {
		return nil
	}
	return temp
}

// Subscription は購読プラン項目を返す。
func (m Metadata) Subscription() SubscriptionView {
	v := SubscriptionView{
		Tier:   m.String(MetaSubscriptionTier),
		Status: m.String(MetaSubscriptionStatus),
	}
	if raw := m.String(MetaTrialExpiresAt); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			v.TrialExpiresAt = &t
		}
	}
	return v
}

// IsAdmin は管理者ロールかどうかを返す。
func (m Metadata) IsAdmin() bool {
	return m.String(MetaRole) == RoleAdmin
}
