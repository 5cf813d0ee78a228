package access

import "net/url"

const (
	// LoginPath は未認証ユーザーの誘導先。
	LoginPath = "/login"
	// DashboardPath は保護領域のデフォルトページ。
	DashboardPath = "/dashboard"
	// OnboardingPath はオンボーディング未完了ユーザーの誘導先。
	OnboardingPath = "/onboarding"
	// RedirectParam はログイン後の戻り先を運ぶクエリパラメータ名。
	RedirectParam = "redirect_to"
)

// Action はゲートの判定結果。
type Action string

const (
	ActionAllow    Action = "allow"
	ActionRedirect Action = "redirect"
)

// Decision はゲートの判定。ActionがRedirectの場合のみTargetとQueryが意味を持つ。
type Decision struct {
	Action Action
	Target string
	Query  url.Values
}

// Location はリダイレクト先のURL（パスとクエリ）を返す。
func (d Decision) Location() string {
	if len(d.Query) == 0 {
		return d.Target
	}
	return d.Target + "?" + d.Query.Encode()
}

// Allow は通過の判定。
func Allow() Decision {
	return Decision{Action: ActionAllow}
}

// RedirectTo はクエリなしのリダイレクト判定。
func RedirectTo(target string) Decision {
	return Decision{Action: ActionRedirect, Target: target}
}

// Decide は認証有無とルート区分からアクセス可否を判定する。
//
//	未認証 + protected  → /login?redirect_to=<path>
//	未認証 + admin      → /dashboard
//	認証済 + auth-page  → /dashboard
//	それ以外            → allow
func Decide(identityPresent bool, class RouteClass, path string) Decision {
	switch {
	case !identityPresent && class == ClassProtected:
		return Decision{
			Action: ActionRedirect,
			Target: LoginPath,
			Query:  url.Values{RedirectParam: []string{path}},
		}
	case !identityPresent && class == ClassAdmin:
		return RedirectTo(DashboardPath)
	case identityPresent && class == ClassAuthPage:
		return RedirectTo(DashboardPath)
	default:
		return Allow()
	}
}
