package articles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Topic search</title>
  <item>
    <title>Older story</title>
    <link>https://news.example/older</link>
    <description>older</description>
    <pubDate>Mon, 24 Feb 2025 08:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Newest story</title>
    <link>https://news.example/newest</link>
    <description>&lt;p&gt;newest&lt;/p&gt;</description>
    <pubDate>Fri, 28 Feb 2025 08:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Ancient story</title>
    <link>https://news.example/ancient</link>
    <description>ancient</description>
    <pubDate>Wed, 01 Jan 2025 08:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func TestRSSClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "blockchain", r.URL.Query().Get("q"))
		assert.Equal(t, "en", r.URL.Query().Get("hl"))
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer server.Close()

	client := NewRSSClient(RSSConfig{SearchURL: server.URL})

	result, err := client.Search(context.Background(), Query{
		Topic:    "blockchain",
		Limit:    5,
		From:     time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC),
		Language: "en",
	})

	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "Newest story", result[0].Title)
	assert.Equal(t, "Older story", result[1].Title)
	assert.Equal(t, "Topic search", result[0].Source)
	assert.Equal(t, "blockchain", result[0].Topic)
}

func TestRSSClient_Search_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewRSSClient(RSSConfig{SearchURL: server.URL})

	_, err := client.Search(context.Background(), Query{Topic: "ai", Limit: 1})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}
