package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/supportops/zendesk-sync/internal/application"
	"github.com/supportops/zendesk-sync/internal/config"
	"github.com/supportops/zendesk-sync/internal/database"
	"github.com/supportops/zendesk-sync/internal/logger"
	"github.com/supportops/zendesk-sync/internal/store"
)

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Re-reconcile every locally known ticket from Zendesk, publishing change notifications",
	RunE:  runResync,
}

func runResync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	proc, events, kafka := application.BuildPipeline(cfg, db, log)
	if kafka != nil {
		defer kafka.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	tickets, err := store.AllTickets(ctx, db)
	if err != nil {
		return fmt.Errorf("list tickets: %w", err)
	}
	log.Info("resync starting", "tickets", len(tickets))

	failed := 0
	for i, t := range tickets {
		// Each resync goes through the event store so it leaves the same
		// audit trail as a webhook delivery.
		ev, err := events.Store(ctx, []byte(fmt.Sprintf(`{"id": %d}`, t.ZendeskID)))
		if err != nil {
			return fmt.Errorf("store resync event for ticket %d: %w", t.ZendeskID, err)
		}
		if err := proc.Process(ctx, ev); err != nil {
			failed++
			log.Warn("resync failed", "zendesk_id", t.ZendeskID, "error", err)
		}
		if (i+1)%50 == 0 || i == len(tickets)-1 {
			log.Info("resync progress", "done", i+1, "total", len(tickets))
		}
	}

	if failed > 0 {
		return fmt.Errorf("resync: %d of %d tickets failed", failed, len(tickets))
	}
	log.Info("resync complete", "tickets", len(tickets))
	return nil
}
