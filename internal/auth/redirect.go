package auth

import (
	"net/http"
	"net/url"
	"strings"
)

// DefaultRedirectPath はログイン後の既定の戻り先。
const DefaultRedirectPath = "/dashboard"

// SafeRedirectPath は同一サイト内の相対パスのみを受け付ける。
// "/"で始まり、"//"や"/\"で始まらず、スキームとホストを持たないこと。
func SafeRedirectPath(p string) (string, bool) {
	if p == "" || p[0] != '/' {
		return "", false
	}
	if strings.HasPrefix(p, "//") || strings.HasPrefix(p, `/\`) {
		return "", false
	}
	if strings.ContainsAny(p, "\r\n") {
		return "", false
	}
	u, err := url.Parse(p)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	return p, true
}

// ResolveTarget はクエリ、stateクレームの順に安全な戻り先を探し、なければ既定値を返す。
func ResolveTarget(candidates ...string) string {
	for _, c := range candidates {
		if p, ok := SafeRedirectPath(c); ok {
			return p
		}
	}
	return DefaultRedirectPath
}

// ResolveOrigin はリダイレクト先のオリジンを決める。
// 開発環境ではリクエストのオリジン、それ以外はX-Forwarded-Hostがあれば
// https://<転送元ホスト>、なければリクエストのオリジンを使う。
func ResolveOrigin(r *http.Request, development bool) string {
	if !development {
		if fwd := forwardedHost(r); fwd != "" {
			return "https://" + fwd
		}
	}
	return requestOrigin(r)
}

func forwardedHost(r *http.Request) string {
	v := r.Header.Get("X-Forwarded-Host")
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSpace(v)
	if v == "" || strings.ContainsAny(v, "/\\@ ") {
		return ""
	}
	return v
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
