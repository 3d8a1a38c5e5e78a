package domain

// Newsletter is the rendered content of one run.
type Newsletter struct {
	Title        string `json:"title"`
	Markdown     string `json:"markdown"`
	HTML         string `json:"html"`
	ArticleCount int    `json:"articleCount"`
	Placeholder  bool   `json:"placeholder,omitempty"`
}
