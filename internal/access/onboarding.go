package access

import (
	"strings"

	"github.com/hitoshi/wakr/internal/model"
)

// IsOnboarded はユーザーが保護領域を利用できるだけのプロフィールを持つかを返す。
// onboarding_completedがtrueで、phoneとfirst_nameが空白以外の値を持つ場合のみtrue。
func IsOnboarded(u *model.User) bool {
	if u == nil {
		return false
	}
	if !u.Metadata.OnboardingCompleted() {
		return false
	}
	p := u.Metadata.Profile()
	return p.Phone != "" && p.FirstName != ""
}

// RequiresOnboarding はパスがオンボーディング検査の対象（/dashboard配下）かを返す。
func RequiresOnboarding(path string) bool {
	return path == DashboardPath || strings.HasPrefix(path, DashboardPath+"/")
}

// CheckOnboarding は認証済みユーザーのオンボーディング状態から判定する。
// 未認証や対象外のパスは通過させる（未認証はDecideで既に処理済み）。
func CheckOnboarding(u *model.User, path string) Decision {
	if u == nil || !RequiresOnboarding(path) {
		return Allow()
	}
	if !IsOnboarded(u) {
		return RedirectTo(OnboardingPath)
	}
	return Allow()
}
