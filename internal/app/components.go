package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/sendly/internal/articles"
	"github.com/bissquit/sendly/internal/config"
	"github.com/bissquit/sendly/internal/delivery"
	"github.com/bissquit/sendly/internal/delivery/resend"
	"github.com/bissquit/sendly/internal/delivery/smtp"
	"github.com/bissquit/sendly/internal/newsletter"
	newsletterpostgres "github.com/bissquit/sendly/internal/newsletter/postgres"
	"github.com/bissquit/sendly/internal/preferences"
	preferencespostgres "github.com/bissquit/sendly/internal/preferences/postgres"
	"github.com/bissquit/sendly/internal/render"
)

// Pipeline holds the newsletter components shared by the server and the CLI.
type Pipeline struct {
	Queue       *newsletterpostgres.Repository
	Scheduler   *newsletter.Scheduler
	Engine      *newsletter.Engine
	Preferences *preferences.Service
}

// NewPipeline wires the preference service and the run engine on top of db.
func NewPipeline(cfg *config.Config, db *pgxpool.Pool) (*Pipeline, error) {
	fetcher, err := NewArticleFetcher(cfg.Articles)
	if err != nil {
		return nil, err
	}

	sender, err := NewSender(cfg.Email)
	if err != nil {
		return nil, err
	}

	queue := newsletterpostgres.NewRepository(db)
	schedule := newsletter.ScheduleConfig{
		Location:          cfg.Newsletter.Location(),
		SendHour:          cfg.Newsletter.SendHour,
		ReactivationDelay: cfg.Newsletter.ReactivationDelay,
		MaxAttempts:       cfg.Worker.MaxAttempts,
	}
	scheduler := newsletter.NewScheduler(queue, schedule)

	preferencesRepo := preferencespostgres.NewRepository(db)
	engine := newsletter.NewEngine(
		newsletter.NewGate(preferencesRepo),
		fetcher,
		NewRenderer(cfg.Newsletter),
		sender,
		queue,
		queue,
		newsletter.EngineConfig{
			PerTopic:      cfg.Articles.PerTopic,
			MaxConcurrent: cfg.Articles.MaxConcurrent,
			Schedule:      schedule,
		},
	)

	return &Pipeline{
		Queue:       queue,
		Scheduler:   scheduler,
		Engine:      engine,
		Preferences: preferences.NewService(preferencesRepo, scheduler),
	}, nil
}

// NewWorker creates the queue worker for the pipeline.
func (p *Pipeline) NewWorker(cfg config.WorkerConfig) *newsletter.Worker {
	return newsletter.NewWorker(newsletter.WorkerConfig{
		BatchSize:         cfg.BatchSize,
		PollInterval:      cfg.PollInterval,
		MaxAttempts:       cfg.MaxAttempts,
		InitialBackoff:    cfg.InitialBackoff,
		MaxBackoff:        cfg.MaxBackoff,
		BackoffMultiplier: cfg.BackoffMultiplier,
		NumWorkers:        cfg.NumWorkers,
		StuckTimeout:      cfg.StuckTimeout,
		CheckpointTTL:     cfg.CheckpointTTL,
		ReseedBatch:       cfg.ReseedBatch,
	}, p.Queue, p.Engine, p.Queue, p.Queue).WithReseeder(p.Scheduler)
}

// NewArticleFetcher builds the configured article provider behind the shared
// fetcher (cache, pacing, cleaning).
func NewArticleFetcher(cfg config.ArticlesConfig) (*articles.Fetcher, error) {
	var searcher articles.Searcher
	switch cfg.Provider {
	case "newsapi":
		client, err := articles.NewNewsAPIClient(articles.NewsAPIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("create newsapi client: %w", err)
		}
		searcher = client
	case "rss":
		searcher = articles.NewRSSClient(articles.RSSConfig{
			SearchURL: cfg.RSSSearchURL,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported article provider %q", cfg.Provider)
	}

	slog.Info("article provider configured", "provider", cfg.Provider)

	return articles.NewFetcher(searcher, articles.Config{
		Language:         cfg.Language,
		Window:           cfg.Window,
		RequestSpacing:   cfg.RequestSpacing,
		RateLimitBackoff: cfg.RateLimitBackoff,
		CacheTTL:         cfg.CacheTTL,
		FilterLowValue:   cfg.FilterLowValue,
	}), nil
}

// NewRenderer builds the newsletter renderer.
func NewRenderer(cfg config.NewsletterConfig) *render.Renderer {
	return render.NewRenderer(render.Config{
		AppName:     cfg.AppName,
		BaseURL:     cfg.BaseURL,
		MaxPerTopic: cfg.MaxPerTopic,
	})
}

// NewSender builds the configured email provider.
func NewSender(cfg config.EmailConfig) (delivery.Sender, error) {
	switch cfg.Provider {
	case "resend":
		sender, err := resend.NewSender(resend.Config{
			APIKey:      cfg.ResendAPIKey,
			FromAddress: cfg.FromAddress,
			BaseURL:     cfg.ResendURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create resend sender: %w", err)
		}
		return sender, nil
	case "smtp":
		sender, err := smtp.NewSender(smtp.Config{
			SMTPHost:     cfg.SMTPHost,
			SMTPPort:     cfg.SMTPPort,
			SMTPUser:     cfg.SMTPUser,
			SMTPPassword: cfg.SMTPPassword,
			FromAddress:  cfg.FromAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("create smtp sender: %w", err)
		}
		return sender, nil
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.Provider)
	}
}

// InitLogger builds the process logger from config and installs it as the slog default.
func InitLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
