package render

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var markdownTemplate = template.Must(
	template.New("newsletter.md.tmpl").
		Funcs(template.FuncMap{
			"title":      titleCase,
			"join":       strings.Join,
			"escape":     escapeMarkdown,
			"formatDate": formatDate,
			"formatTime": formatTime,
		}).
		ParseFS(templatesFS, "templates/newsletter.md.tmpl"),
)

// Markdown formats the document as markdown.
func Markdown(doc Document) (string, error) {
	var buf bytes.Buffer
	if err := markdownTemplate.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("execute markdown template: %w", err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	`[`, `\[`,
	`]`, `\]`,
	`*`, `\*`,
	`_`, `\_`,
	"`", "\\`",
	`<`, `\<`,
	`>`, `\>`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func formatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("Jan 2, 2006")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format("Jan 2, 2006")
	}
	return ""
}

func formatTime(t time.Time) string {
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}
