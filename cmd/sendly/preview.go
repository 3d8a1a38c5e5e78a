package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/bissquit/sendly/internal/app"
	"github.com/bissquit/sendly/internal/config"
	"github.com/bissquit/sendly/internal/domain"
)

var previewOpts struct {
	topics    []string
	frequency string
	format    string
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Fetch articles and render a newsletter without sending it",
	Example: `  sendly preview --topics ai,climate
  sendly preview --topics rust --frequency daily --format html > digest.html`,
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringSliceVarP(&previewOpts.topics, "topics", "t", nil, "comma separated topics")
	previewCmd.Flags().StringVarP(&previewOpts.frequency, "frequency", "f", string(domain.FrequencyWeekly), "daily, weekly or biweekly")
	previewCmd.Flags().StringVar(&previewOpts.format, "format", "terminal", "terminal, markdown or html")
	_ = previewCmd.MarkFlagRequired("topics")
}

func runPreview(cmd *cobra.Command, _ []string) error {
	topics := domain.NormalizeCategories(previewOpts.topics)
	if len(topics) == 0 {
		return errors.New("at least one topic is required")
	}
	frequency := domain.Frequency(previewOpts.frequency)
	if !frequency.IsValid() {
		return fmt.Errorf("unknown frequency %q", previewOpts.frequency)
	}

	cfg, err := config.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Format = "text"
	cfg.Log.Level = "warn"
	app.InitLogger(cfg.Log)

	fetcher, err := app.NewArticleFetcher(cfg.Articles)
	if err != nil {
		return err
	}

	found, err := fetcher.Fetch(cmd.Context(), topics, cfg.Articles.PerTopic, cfg.Articles.MaxConcurrent)
	if err != nil {
		return fmt.Errorf("fetch articles: %w", err)
	}

	newsletter, err := app.NewRenderer(cfg.Newsletter).Build(found, topics, frequency, time.Now())
	if err != nil {
		return fmt.Errorf("render newsletter: %w", err)
	}

	out := cmd.OutOrStdout()
	switch previewOpts.format {
	case "markdown":
		_, err = fmt.Fprint(out, newsletter.Markdown)
	case "html":
		_, err = fmt.Fprint(out, newsletter.HTML)
	case "terminal":
		var renderer *glamour.TermRenderer
		renderer, err = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("create terminal renderer: %w", err)
		}
		var rendered string
		rendered, err = renderer.Render(newsletter.Markdown)
		if err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		_, err = fmt.Fprint(out, rendered)
	default:
		return fmt.Errorf("unknown format %q", previewOpts.format)
	}
	return err
}
