package render

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/sendly/internal/domain"
)

var generatedAt = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleArticles() []domain.Article {
	published := time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC)

	var result []domain.Article
	for i := 1; i <= 7; i++ {
		result = append(result, domain.Article{
			Title:       fmt.Sprintf("AI story %d", i),
			URL:         fmt.Sprintf("https://example.com/ai/%d", i),
			Description: "Models keep improving",
			Source:      "Tech Daily",
			PublishedAt: &published,
			Topic:       "AI",
		})
	}
	result = append(result,
		domain.Article{
			Title:       "Blockchain adoption grows",
			URL:         "https://example.com/chain",
			Description: "Banks experiment",
			Source:      "Fin News",
		},
		domain.Article{
			Title:       "Weather turns warm",
			URL:         "https://example.com/weather",
			Description: "Spring is early",
		},
	)
	return result
}

func TestNewRenderer_ClampsMaxPerTopic(t *testing.T) {
	assert.Equal(t, 5, NewRenderer(Config{}).config.MaxPerTopic)
	assert.Equal(t, 2, NewRenderer(Config{MaxPerTopic: 1}).config.MaxPerTopic)
	assert.Equal(t, 5, NewRenderer(Config{MaxPerTopic: 9}).config.MaxPerTopic)
	assert.Equal(t, 3, NewRenderer(Config{MaxPerTopic: 3}).config.MaxPerTopic)
}

func TestRenderer_Render_GroupsByTopic(t *testing.T) {
	r := NewRenderer(Config{BaseURL: "https://sendly.app/"})

	doc := r.Render(sampleArticles(), []string{"Blockchain", "AI"}, domain.FrequencyWeekly, generatedAt)

	assert.Equal(t, "Sendly Weekly Digest", doc.Title)
	require.Len(t, doc.Sections, 3)

	assert.Equal(t, "Blockchain", doc.Sections[0].Heading)
	require.Len(t, doc.Sections[0].Articles, 1)
	assert.Equal(t, "Blockchain adoption grows", doc.Sections[0].Articles[0].Title)

	assert.Equal(t, "AI", doc.Sections[1].Heading)
	require.Len(t, doc.Sections[1].Articles, 5)
	assert.Equal(t, "AI story 1", doc.Sections[1].Articles[0].Title)
	assert.Equal(t, "AI story 5", doc.Sections[1].Articles[4].Title)

	assert.Equal(t, "More headlines", doc.Sections[2].Heading)
	assert.Equal(t, "Weather turns warm", doc.Sections[2].Articles[0].Title)

	assert.Equal(t, 7, doc.Summary.ArticleCount)
	assert.Equal(t, []string{"Blockchain", "AI"}, doc.Summary.Topics)

	require.Len(t, doc.QuickLinks, 3)
	assert.Equal(t, "https://news.google.com/search?q=Blockchain", doc.QuickLinks[0].URL)
	assert.Equal(t, "https://sendly.app/preferences", doc.QuickLinks[2].URL)
}

func TestRenderer_Render_UnknownFrequencyFallsBackToWeekly(t *testing.T) {
	r := NewRenderer(Config{})

	doc := r.Render(nil, []string{"AI"}, domain.Frequency("monthly"), generatedAt)

	assert.Equal(t, domain.FrequencyWeekly, doc.Frequency)
	assert.Empty(t, doc.Sections)
}

func TestMarkdown(t *testing.T) {
	r := NewRenderer(Config{BaseURL: "https://sendly.app"})
	doc := r.Render(sampleArticles(), []string{"AI", "Blockchain"}, domain.FrequencyDaily, generatedAt)

	md, err := Markdown(doc)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(md, "# Sendly Daily Digest\n"))
	assert.Contains(t, md, "### [AI story 1](https://example.com/ai/1)")
	assert.Contains(t, md, "*Tech Daily · Feb 28, 2025*")
	assert.Contains(t, md, "**Articles:** 7")
	assert.Contains(t, md, "**Frequency:** Daily")
	assert.Contains(t, md, "**Generated:** Mar 1, 2025 09:00 UTC")
	assert.Contains(t, md, "- [Manage your preferences](https://sendly.app/preferences)")

	ai := strings.Index(md, "## AI")
	chain := strings.Index(md, "## Blockchain")
	more := strings.Index(md, "## More headlines")
	assert.True(t, ai < chain && chain < more, "sections must follow topic order")
}

func TestMarkdown_EscapesTitles(t *testing.T) {
	r := NewRenderer(Config{})
	articles := []domain.Article{{Title: "[Breaking] AI_news", URL: "https://x.test", Description: "d", Topic: "AI"}}

	md, err := Markdown(r.Render(articles, []string{"AI"}, domain.FrequencyWeekly, generatedAt))

	require.NoError(t, err)
	assert.Contains(t, md, `### [\[Breaking\] AI\_news](https://x.test)`)
}

func TestRenderer_HTML_KeepsAngleBracketText(t *testing.T) {
	r := NewRenderer(Config{})
	articles := []domain.Article{{
		Title:       "Why Vec<T> beats List<T>",
		URL:         "https://x.test",
		Description: "Generics <in> practice",
		Topic:       "rust<lang>",
	}}
	doc := r.Render(articles, []string{"rust<lang>"}, domain.FrequencyWeekly, generatedAt)

	md, err := Markdown(doc)
	require.NoError(t, err)
	assert.Contains(t, md, `Why Vec\<T\> beats List\<T\>`)

	html, err := r.HTML(doc)
	require.NoError(t, err)
	assert.Contains(t, html, "Why Vec&lt;T&gt; beats List&lt;T&gt;")
	assert.Contains(t, html, "Generics &lt;in&gt; practice")
	assert.Contains(t, html, "rust&lt;lang&gt;")
	assert.NotContains(t, html, "<T>")
}

func TestRender_IsDeterministic(t *testing.T) {
	r := NewRenderer(Config{})

	first, err := r.Build(sampleArticles(), []string{"AI", "Blockchain"}, domain.FrequencyWeekly, generatedAt)
	require.NoError(t, err)
	second, err := r.Build(sampleArticles(), []string{"AI", "Blockchain"}, domain.FrequencyWeekly, generatedAt)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRenderer_HTML(t *testing.T) {
	r := NewRenderer(Config{BaseURL: "https://sendly.app"})
	doc := r.Render(sampleArticles(), []string{"AI", "Blockchain"}, domain.FrequencyWeekly, generatedAt)

	html, err := r.HTML(doc)
	require.NoError(t, err)

	assert.Contains(t, html, "max-width:600px")
	assert.Contains(t, html, `<h1 style="`)
	assert.Contains(t, html, `<h2 style="`)
	assert.Contains(t, html, `href="https://example.com/ai/1"`)
	assert.Contains(t, html, "AI story 1")
	assert.Contains(t, html, "https://sendly.app/preferences")
	assert.NotContains(t, html, "<style")

	assert.Less(t, strings.Index(html, "AI story 1"), strings.Index(html, "Blockchain adoption grows"))
}

func TestRenderer_HTML_DropsRawHTML(t *testing.T) {
	r := NewRenderer(Config{})
	articles := []domain.Article{{
		Title:       "Safe",
		URL:         "https://x.test",
		Description: "<script>alert(1)</script>",
		Topic:       "AI",
	}}

	html, err := r.HTML(r.Render(articles, []string{"AI"}, domain.FrequencyWeekly, generatedAt))

	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
}

func TestRenderer_Build_Placeholder(t *testing.T) {
	r := NewRenderer(Config{})

	nl, err := r.Build(nil, []string{"AI", "Blockchain"}, domain.FrequencyWeekly, generatedAt)

	require.NoError(t, err)
	assert.True(t, nl.Placeholder)
	assert.Equal(t, 0, nl.ArticleCount)
	assert.Contains(t, nl.Markdown, "No new AI stories this time")
	assert.Contains(t, nl.Markdown, "No new Blockchain stories this time")
	assert.NotEmpty(t, nl.HTML)
}

func TestRenderer_Placeholder_IsDeterministic(t *testing.T) {
	r := NewRenderer(Config{})

	first := r.Placeholder([]string{"AI", "Rust"})
	second := r.Placeholder([]string{"AI", "Rust"})

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, "Rust", first[1].Topic)
	assert.Equal(t, "https://news.google.com/search?q=Rust", first[1].URL)
}
