// Package view はサーバーサイドレンダリングするHTMLページを提供する。
// テンプレートと静的ファイルはバイナリに埋め込む。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/hitoshi/wakr/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// ページ名。templates/<name>.html に対応する。
const (
	PageHome       = "home"
	PageLogin      = "login"
	PageRegister   = "register"
	PagePricing    = "pricing"
	PagePrivacy    = "privacy"
	PageTerms      = "terms"
	PageOnboarding = "onboarding"
	PageDashboard  = "dashboard"
	PageHabits     = "habits"
	PageAdmin      = "admin"
	PageAuthError  = "auth_error"
)

var pages = []string{
	PageHome, PageLogin, PageRegister, PagePricing, PagePrivacy, PageTerms,
	PageOnboarding, PageDashboard, PageHabits, PageAdmin, PageAuthError,
}

// PageData はすべてのページに渡すデータ。
type PageData struct {
	Title     string
	User      *model.User
	CSRFToken string
	Data      map[string]any
}

// Renderer はページ名ごとに事前パースしたテンプレートを保持する。
type Renderer struct {
	pages map[string]*template.Template
}

// New は埋め込みテンプレートをすべてパースしてRendererを生成する。
func New() (*Renderer, error) {
	funcs := template.FuncMap{
		"year": func() int { return time.Now().Year() },
		"profile": func(u *model.User) model.Profile {
			if u == nil {
				return model.Profile{}
			}
			return u.Metadata.Profile()
		},
		"subscription": func(u *model.User) model.SubscriptionView {
			if u == nil {
				return model.SubscriptionView{}
			}
			return u.Metadata.Subscription()
		},
		"isAdmin": func(u *model.User) bool {
			return u != nil && u.Metadata.IsAdmin()
		},
		"date": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04") },
	}

	layout, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("レイアウトのパースに失敗しました: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.ParseFS(templateFS, "templates/"+name+".html"); err != nil {
			return nil, fmt.Errorf("テンプレート %s のパースに失敗しました: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render はページをバッファに描画してからステータスとともに書き出す。
// 描画に失敗した場合は何も書き込まずエラーを返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data PageData) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("未定義のページです: %s", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return fmt.Errorf("ページ %s の描画に失敗しました: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler は/static/配下の埋め込みファイルを配信するハンドラーを返す。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
