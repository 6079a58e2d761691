package view

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hitoshi/jokecentral/internal/security"
)

// Markdown は生成された物語をHTMLに変換する。
// goldmarkの出力はそのまま信用せず、必ずサニタイザを通してから返す。
type Markdown struct {
	md        goldmark.Markdown
	sanitizer security.HTMLSanitizer
}

// NewMarkdown はMarkdownを生成する。表と取り消し線はGFM拡張で扱う。
func NewMarkdown(sanitizer security.HTMLSanitizer) *Markdown {
	return &Markdown{
		md:        goldmark.New(goldmark.WithExtensions(extension.Table, extension.Strikethrough)),
		sanitizer: sanitizer,
	}
}

// Render はMarkdownをサニタイズ済みのHTMLに変換する。
func (m *Markdown) Render(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return template.HTML(m.sanitizer.Sanitize(buf.String())), nil
}
