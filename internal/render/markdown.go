// Package render turns post bodies into sanitised HTML.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts a post body to HTML.
type Renderer interface {
	Render(ctx context.Context, body []byte) (template.HTML, error)
}

// Markdown renders GitHub-flavoured Markdown and strips anything outside the
// user-generated-content policy.
type Markdown struct {
	engine goldmark.Markdown
	policy *bluemonday.Policy
}

// NewMarkdown builds the renderer. The engine is stateless and safe to share.
func NewMarkdown() *Markdown {
	policy := bluemonday.UGCPolicy()
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &Markdown{
		engine: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				extension.Linkify,
				extension.TaskList,
			),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithHardWraps(), html.WithUnsafe()),
		),
		policy: policy,
	}
}

// Render converts body to HTML.
func (m *Markdown) Render(ctx context.Context, body []byte) (template.HTML, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := m.engine.Convert(body, &buf); err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	return template.HTML(m.policy.SanitizeBytes(buf.Bytes())), nil //nolint:gosec // sanitised above
}
