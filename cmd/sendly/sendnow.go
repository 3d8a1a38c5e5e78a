package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bissquit/sendly/internal/app"
	"github.com/bissquit/sendly/internal/config"
	"github.com/bissquit/sendly/internal/domain"
)

var sendNowOpts struct {
	userID string
	direct bool
}

var sendNowCmd = &cobra.Command{
	Use:   "send-now",
	Short: "Send a newsletter to one subscriber outside the regular schedule",
	Long: `Queues an immediate newsletter run for the subscriber. The running worker
picks it up on its next poll. With --direct the run executes in this
process and its result is printed as JSON.`,
	RunE: runSendNow,
}

func init() {
	sendNowCmd.Flags().StringVarP(&sendNowOpts.userID, "user", "u", "", "subscriber user id")
	sendNowCmd.Flags().BoolVar(&sendNowOpts.direct, "direct", false, "run the pipeline in this process instead of queueing")
	_ = sendNowCmd.MarkFlagRequired("user")
}

func runSendNow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app.InitLogger(cfg.Log)

	ctx := cmd.Context()
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
	defer cancel()

	db, err := app.Connect(connectCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := app.NewPipeline(cfg, db)
	if err != nil {
		return err
	}

	if !sendNowOpts.direct {
		if err := pipeline.Preferences.SendNow(ctx, sendNowOpts.userID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "newsletter queued for %s\n", sendNowOpts.userID)
		return nil
	}

	pref, err := pipeline.Preferences.Get(ctx, sendNowOpts.userID)
	if err != nil {
		return err
	}

	result, err := pipeline.Engine.Run(ctx, uuid.NewString(), domain.NewScheduleEvent(pref, time.Now(), true))
	if err != nil {
		return fmt.Errorf("run newsletter: %w", err)
	}
	if result.Skipped {
		return errors.New("newsletter skipped: " + result.Reason)
	}

	// The rendered bodies are large and already delivered.
	result.Newsletter = nil
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
