package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/config"
	"github.com/supportops/zendesk-sync/internal/database"
	"github.com/supportops/zendesk-sync/internal/identity"
	"github.com/supportops/zendesk-sync/internal/logger"
	"github.com/supportops/zendesk-sync/internal/model"
	syncpkg "github.com/supportops/zendesk-sync/internal/sync"
	"github.com/supportops/zendesk-sync/internal/zendesk"
)

var syncCmd = &cobra.Command{
	Use:   "sync <ticket-id>",
	Short: "Sync one Zendesk ticket into the local store, without publishing notifications",
	Args:  cobra.ExactArgs(1),
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ticketID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid ticket id %q", args[0])
	}

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

	zdClient := zendesk.NewClient(cfg.ZendeskBaseURL(), cfg.Zendesk.Email, cfg.Zendesk.Token, 30*time.Second)
	resolver := identity.NewResolver(zdClient, identity.NewDirectory(db), log)
	syncer := syncpkg.NewTicketSynchronizer(zdClient, resolver, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var ticket *model.Ticket
	var created bool
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticket, created, err = syncer.Sync(ctx, tx, ticketID)
		return err
	})
	if err != nil {
		return fmt.Errorf("sync ticket %d: %w", ticketID, err)
	}

	log.Info("ticket synced", "zendesk_id", ticket.ZendeskID, "status", ticket.Status, "created", created)
	return nil
}
