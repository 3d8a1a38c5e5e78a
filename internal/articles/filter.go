package articles

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/bissquit/sendly/internal/domain"
)

var (
	lowValuePattern = regexp.MustCompile(`(?i)(\bv?\d+\.\d+(\.\d+)*\s+(is\s+)?(out|released|available)\b|\brelease notes?\b|\bchangelog\b|\breleases?\s+v?\d+\.\d+|\bversion\s+\d+\.\d+)`)
	truncatedSuffix = regexp.MustCompile(`\s*\[\+\d+ chars\]$`)
	htmlTag         = regexp.MustCompile(`<[a-zA-Z/][^>]*>`)
)

var markdownConverter = md.NewConverter("", true, nil)

// isPlaceholder reports values providers use for removed or missing fields.
func isPlaceholder(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "[removed]", "null", "undefined":
		return true
	}
	return false
}

// IsLowValue reports whether the article is a version or release announcement.
func IsLowValue(a domain.Article) bool {
	return lowValuePattern.MatchString(a.Title)
}

// Clean normalizes provider output: markup is removed from titles, description
// HTML becomes markdown, and placeholder entries are dropped.
func Clean(items []domain.Article, filterLowValue bool) []domain.Article {
	result := make([]domain.Article, 0, len(items))
	for _, a := range items {
		a.Title = plainText(a.Title)
		a.Description = describe(a.Description)
		a.Content = truncatedSuffix.ReplaceAllString(a.Content, "")
		a.URL = strings.TrimSpace(a.URL)

		if isPlaceholder(a.Title) || isPlaceholder(a.Description) || isPlaceholder(a.URL) {
			continue
		}
		if filterLowValue && IsLowValue(a) {
			continue
		}
		result = append(result, a)
	}
	return result
}

// Dedupe removes repeated articles by normalized URL, then by title.
// The first occurrence wins.
func Dedupe(items []domain.Article) []domain.Article {
	seenURL := make(map[string]struct{}, len(items))
	seenTitle := make(map[string]struct{}, len(items))

	result := make([]domain.Article, 0, len(items))
	for _, a := range items {
		u := normalizeURL(a.URL)
		t := strings.ToLower(strings.Join(strings.Fields(a.Title), " "))

		if _, ok := seenURL[u]; ok {
			continue
		}
		if _, ok := seenTitle[t]; ok && t != "" {
			continue
		}
		seenURL[u] = struct{}{}
		seenTitle[t] = struct{}{}
		result = append(result, a)
	}
	return result
}

func normalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

func plainText(s string) string {
	s = strings.TrimSpace(s)
	if !htmlTag.MatchString(s) && !strings.Contains(s, "&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func describe(s string) string {
	s = strings.TrimSpace(truncatedSuffix.ReplaceAllString(s, ""))
	if !htmlTag.MatchString(s) {
		return s
	}
	out, err := markdownConverter.ConvertString(s)
	if err != nil {
		slog.Debug("convert description to markdown", "error", err)
		return plainText(s)
	}
	return strings.TrimSpace(out)
}
