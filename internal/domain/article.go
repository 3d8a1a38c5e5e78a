package domain

import "time"

// Article is a normalized search result. Articles live only for one run.
type Article struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Description string     `json:"description"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Author      string     `json:"author,omitempty"`
	Source      string     `json:"source,omitempty"`
	URLToImage  string     `json:"urlToImage,omitempty"`
	Content     string     `json:"content,omitempty"`
	// Topic is the search topic that produced the article.
	Topic string `json:"topic,omitempty"`
}
