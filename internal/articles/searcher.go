// Package articles fetches recent articles per topic from a news provider.
package articles

import (
	"context"
	"time"

	"github.com/bissquit/sendly/internal/domain"
)

// Query describes a single topic search.
type Query struct {
	Topic    string
	Limit    int
	From     time.Time
	Language string
}

// Searcher is one article provider.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]domain.Article, error)
	Name() string
}
