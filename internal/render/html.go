package render

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var htmlLayout = htmltemplate.Must(
	htmltemplate.New("layout.html.tmpl").ParseFS(templatesFS, "templates/layout.html.tmpl"),
)

var markdownEngine = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))

// Inline styles per element. Mail clients drop <style> blocks.
var inlineStyles = map[string]string{
	"h1":         "font-size:24px;line-height:1.3;margin:0 0 8px;color:#111827;",
	"h2":         "font-size:20px;margin:28px 0 12px;padding-bottom:6px;border-bottom:2px solid #e4e7eb;color:#111827;",
	"h3":         "font-size:17px;margin:18px 0 6px;",
	"p":          "margin:0 0 10px;",
	"a":          "color:#2563eb;text-decoration:none;",
	"ul":         "margin:0 0 12px;padding-left:20px;",
	"li":         "margin:0 0 4px;",
	"hr":         "border:none;border-top:1px solid #e4e7eb;margin:28px 0;",
	"em":         "color:#616e7c;font-size:13px;",
	"blockquote": "margin:0 0 10px;padding-left:12px;border-left:3px solid #e4e7eb;color:#52606d;",
}

// HTML renders the document into an email-safe page: markdown converted with
// goldmark, inline styles applied, wrapped in a 600px container.
func (r *Renderer) HTML(doc Document) (string, error) {
	md, err := Markdown(doc)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	if err := markdownEngine.Convert([]byte(md), &body); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	styled, err := applyInlineStyles(body.String())
	if err != nil {
		return "", err
	}

	var out bytes.Buffer
	err = htmlLayout.Execute(&out, map[string]any{
		"Title":          doc.Title,
		"AppName":        r.config.AppName,
		"PreferencesURL": r.config.BaseURL + "/preferences",
		// goldmark runs with raw HTML disabled, so the body holds only generated markup.
		"Body":           htmltemplate.HTML(styled),
	})
	if err != nil {
		return "", fmt.Errorf("execute html layout: %w", err)
	}
	return out.String(), nil
}

func applyInlineStyles(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	for tag, style := range inlineStyles {
		doc.Find(tag).SetAttr("style", style)
	}
	html, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("serialize html: %w", err)
	}
	return strings.TrimSpace(html), nil
}
