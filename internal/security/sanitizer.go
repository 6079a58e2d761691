// Package security は生成コンテンツを表示・中継する際の安全対策を提供する。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer はHTMLを許可リストに沿って無害化する。
type HTMLSanitizer interface {
	// Sanitize は許可されたタグと属性のみを残したHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// markdownSanitizer はMarkdownから変換したHTML向けのHTMLSanitizer。
type markdownSanitizer struct {
	policy *bluemonday.Policy
}

// NewMarkdownSanitizer はMarkdownの出力に現れるタグのみを許可するサニタイザを生成する。
//   - 見出し、段落、リスト、引用、コード、強調、表、水平線を許可
//   - script, iframe, style と全てのon*属性は除去
//   - aはhrefのみ許可し、target="_blank" と rel="noopener noreferrer" を付与
//   - imgのsrcはhttpsのみ許可
func NewMarkdownSanitizer() *markdownSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6",
		"p", "br", "hr",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	// 生成された物語に相対リンクが含まれても意味を持たない
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &markdownSanitizer{policy: p}
}

// Sanitize はHTMLを無害化する。
func (s *markdownSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ HTMLSanitizer = (*markdownSanitizer)(nil)
