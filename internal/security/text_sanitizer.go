// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力のプレーンテキストからマークアップを取り除く。
// 氏名、電話番号、習慣名の保存前に使用する。
type TextSanitizer interface {
	// SanitizeText はタグと制御文字を除去し、前後の空白を落とした文字列を返す。
	// エンティティは元の文字に戻す。出力時のエスケープはテンプレート側で行う。
	SanitizeText(s string) string
}

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyでTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *textSanitizer) SanitizeText(in string) string {
	if in == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(in))
	stripped = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, stripped)
	return strings.TrimSpace(stripped)
}
