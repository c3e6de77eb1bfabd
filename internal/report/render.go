// ABOUTME: Renders Markdown reports for the terminal and as standalone HTML
// ABOUTME: Export writes .md verbatim or .html through goldmark

package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// RenderTerminal renders markdown for a terminal of the given width. An
// empty style picks one from the terminal background.
func RenderTerminal(markdown string, width int, style string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(width-4, 20))}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return strings.TrimSpace(out), nil
}

var markdownHTML = goldmark.New(goldmark.WithExtensions(extension.GFM))

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { max-width: 48rem; margin: 2rem auto; padding: 0 1rem; font-family: system-ui, sans-serif; line-height: 1.6; }
pre, code { background: #f4f4f5; border-radius: 4px; }
pre { padding: 1rem; overflow-x: auto; }
table { border-collapse: collapse; }
th, td { border: 1px solid #d4d4d8; padding: 0.25rem 0.5rem; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// RenderHTML converts markdown into a standalone HTML document.
func RenderHTML(markdown, title string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdownHTML.Convert([]byte(markdown), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	if title == "" {
		title = "Research report"
	}

	var page bytes.Buffer
	err := pageTemplate.Execute(&page, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("rendering report page: %w", err)
	}
	return page.Bytes(), nil
}

// Export writes markdown to path. Paths ending in .html or .htm are rendered
// with RenderHTML; anything else is written verbatim. Parent directories are
// created as needed.
func Export(path, markdown, title string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	data := []byte(markdown)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		var err error
		data, err = RenderHTML(markdown, title)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
