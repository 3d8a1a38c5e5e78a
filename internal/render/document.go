// Package render turns fetched articles into newsletter documents, markdown and email HTML.
package render

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bissquit/sendly/internal/domain"
)

const (
	defaultAppName     = "Sendly"
	defaultMaxPerTopic = 5
	defaultSearchURL   = "https://news.google.com/search?q="
	moreHeadlines      = "More headlines"
)

// Config tunes rendering.
type Config struct {
	AppName     string
	BaseURL     string // used for the manage-preferences link
	SearchURL   string // topic is appended query-escaped
	MaxPerTopic int
}

// Document is the structured newsletter before formatting.
type Document struct {
	Title       string
	Frequency   domain.Frequency
	GeneratedAt time.Time
	Sections    []Section
	Summary     Summary
	QuickLinks  []Link
}

// Section groups the articles of one topic.
type Section struct {
	Topic    string
	Heading  string
	Articles []Item
}

// Item is an article as shown in the newsletter.
type Item struct {
	Title       string
	URL         string
	Description string
	Source      string
	PublishedAt *time.Time
}

// Summary is the recap block at the end of the newsletter.
type Summary struct {
	Topics       []string
	ArticleCount int
	Frequency    domain.Frequency
	GeneratedAt  time.Time
}

// Link is a labelled URL.
type Link struct {
	Label string
	URL   string
}

// Renderer builds newsletter documents. It holds no mutable state.
type Renderer struct {
	config Config
}

// NewRenderer creates a renderer. MaxPerTopic is clamped to 2..5.
func NewRenderer(config Config) *Renderer {
	if config.AppName == "" {
		config.AppName = defaultAppName
	}
	if config.SearchURL == "" {
		config.SearchURL = defaultSearchURL
	}
	switch {
	case config.MaxPerTopic == 0:
		config.MaxPerTopic = defaultMaxPerTopic
	case config.MaxPerTopic < 2:
		config.MaxPerTopic = 2
	case config.MaxPerTopic > 5:
		config.MaxPerTopic = 5
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Renderer{config: config}
}

// titleCase builds a fresh caser per call; cases.Caser is not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// Render groups articles by topic and assembles the document.
// The output depends only on the arguments.
func (r *Renderer) Render(articles []domain.Article, topics []string, frequency domain.Frequency, generatedAt time.Time) Document {
	frequency = frequency.OrDefault()

	byTopic := make(map[string][]Item, len(topics))
	var rest []Item
	for _, a := range articles {
		item := Item{
			Title:       a.Title,
			URL:         a.URL,
			Description: a.Description,
			Source:      a.Source,
			PublishedAt: a.PublishedAt,
		}
		topic, ok := matchTopic(a, topics)
		if !ok {
			if len(rest) < r.config.MaxPerTopic {
				rest = append(rest, item)
			}
			continue
		}
		if len(byTopic[topic]) < r.config.MaxPerTopic {
			byTopic[topic] = append(byTopic[topic], item)
		}
	}

	doc := Document{
		Title:       fmt.Sprintf("%s %s Digest", r.config.AppName, titleCase(string(frequency))),
		Frequency:   frequency,
		GeneratedAt: generatedAt,
	}

	count := 0
	for _, topic := range topics {
		items := byTopic[topic]
		if len(items) == 0 {
			continue
		}
		doc.Sections = append(doc.Sections, Section{Topic: topic, Heading: topic, Articles: items})
		count += len(items)
	}
	if len(rest) > 0 {
		doc.Sections = append(doc.Sections, Section{Heading: moreHeadlines, Articles: rest})
		count += len(rest)
	}

	doc.Summary = Summary{
		Topics:       append([]string(nil), topics...),
		ArticleCount: count,
		Frequency:    frequency,
		GeneratedAt:  generatedAt,
	}

	for _, topic := range topics {
		doc.QuickLinks = append(doc.QuickLinks, Link{
			Label: fmt.Sprintf("Latest %s news", topic),
			URL:   r.searchLink(topic),
		})
	}
	doc.QuickLinks = append(doc.QuickLinks, Link{
		Label: "Manage your preferences",
		URL:   r.config.BaseURL + "/preferences",
	})

	return doc
}

// Placeholder returns one deterministic article per topic, used when a run
// found nothing to send.
func (r *Renderer) Placeholder(topics []string) []domain.Article {
	result := make([]domain.Article, 0, len(topics))
	for _, topic := range topics {
		result = append(result, domain.Article{
			Title:       fmt.Sprintf("No new %s stories this time", topic),
			URL:         r.searchLink(topic),
			Description: fmt.Sprintf("We could not find fresh articles about %s in the last few days. Follow the link to browse the latest coverage.", topic),
			Source:      r.config.AppName,
			Topic:       topic,
		})
	}
	return result
}

func (r *Renderer) searchLink(topic string) string {
	return r.config.SearchURL + url.QueryEscape(topic)
}

// matchTopic picks the requested topic an article belongs to: its own search
// topic first, then the first topic mentioned in its title or description.
func matchTopic(a domain.Article, topics []string) (string, bool) {
	for _, t := range topics {
		if a.Topic != "" && strings.EqualFold(a.Topic, t) {
			return t, true
		}
	}

	text := strings.ToLower(a.Title + " " + a.Description)
	for _, t := range topics {
		if t != "" && strings.Contains(text, strings.ToLower(t)) {
			return t, true
		}
	}
	return "", false
}
