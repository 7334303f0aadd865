package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"

	"github.com/starford/echochamber/internal/settings"
	"github.com/starford/echochamber/internal/timeline"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages renders the HTML views. Fragments produced here are what the SSE
// stream carries, so the page and the live patches share one markup.
type Pages struct {
	tmpl *template.Template
}

// NewPages parses the embedded templates. A non-empty token is appended to
// every link the pages render, since browsers follow plain links without
// the Authorization header.
func NewPages(token string) (*Pages, error) {
	authURL := func(u string) string {
		if token == "" {
			return u
		}
		return u + "?token=" + url.QueryEscape(token)
	}
	funcs := template.FuncMap{
		"authURL": authURL,
		"postURL": func(path string) string {
			segments := strings.Split(path, "/")
			for i, s := range segments {
				segments[i] = url.PathEscape(s)
			}
			return authURL("/api/posts/" + strings.Join(segments, "/"))
		},
	}
	tmpl, err := template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("api: parse templates: %w", err)
	}
	return &Pages{tmpl: tmpl}, nil
}

type feedPage struct {
	View timeline.View
}

type settingsField struct {
	settings.Field
	Value string
}

type settingsPage struct {
	Fields []settingsField
}

// Entry renders one timeline entry.
func (p *Pages) Entry(e timeline.Entry) (string, error) {
	return p.fragment("entry", e)
}

// List renders the body of the timeline for a view: the entries or the
// state message.
func (p *Pages) List(v timeline.View) (string, error) {
	return p.fragment("list", v)
}

func (p *Pages) fragment(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("api: render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (p *Pages) feed(w io.Writer, data feedPage) error {
	return p.tmpl.ExecuteTemplate(w, "feed.html", data)
}

func (p *Pages) settings(w io.Writer, data settingsPage) error {
	return p.tmpl.ExecuteTemplate(w, "settings.html", data)
}
