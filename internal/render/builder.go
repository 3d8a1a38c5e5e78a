package render

import (
	"time"

	"github.com/bissquit/sendly/internal/domain"
)

// Build renders the complete newsletter. With no articles, placeholder
// articles are used so the subscriber still gets a useful email.
func (r *Renderer) Build(articles []domain.Article, topics []string, frequency domain.Frequency, generatedAt time.Time) (domain.Newsletter, error) {
	placeholder := len(articles) == 0
	if placeholder {
		articles = r.Placeholder(topics)
	}

	doc := r.Render(articles, topics, frequency, generatedAt)

	md, err := Markdown(doc)
	if err != nil {
		return domain.Newsletter{}, err
	}
	html, err := r.HTML(doc)
	if err != nil {
		return domain.Newsletter{}, err
	}

	count := doc.Summary.ArticleCount
	if placeholder {
		count = 0
	}
	return domain.Newsletter{
		Title:        doc.Title,
		Markdown:     md,
		HTML:         html,
		ArticleCount: count,
		Placeholder:  placeholder,
	}, nil
}
