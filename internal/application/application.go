package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/config"
	"github.com/supportops/zendesk-sync/internal/database"
	"github.com/supportops/zendesk-sync/internal/event"
	"github.com/supportops/zendesk-sync/internal/handler"
	"github.com/supportops/zendesk-sync/internal/identity"
	"github.com/supportops/zendesk-sync/internal/lock"
	"github.com/supportops/zendesk-sync/internal/logger"
	"github.com/supportops/zendesk-sync/internal/notify"
	"github.com/supportops/zendesk-sync/internal/pipeline"
	"github.com/supportops/zendesk-sync/internal/router"
	"github.com/supportops/zendesk-sync/internal/sync"
	"github.com/supportops/zendesk-sync/internal/zendesk"
)

const zendeskTimeout = 30 * time.Second

// API is the webhook-serving application.
type API struct {
	cfg     *config.Config
	log     *slog.Logger
	httpSrv *http.Server
	kafka   *notify.Kafka
}

// NewAPI validates config, migrates the schema and wires the full pipeline.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	proc, events, kafka := BuildPipeline(cfg, db, log)
	webhook := handler.NewWebhookHandler(events, proc, log)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(webhook),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, log: log, httpSrv: httpSrv, kafka: kafka}, nil
}

// BuildPipeline constructs the event store and processor with all their
// collaborators. Shared with the CLI commands that reconcile without serving
// HTTP. The returned Kafka notifier is nil when no brokers are configured.
func BuildPipeline(cfg *config.Config, db *gorm.DB, log *slog.Logger) (*pipeline.Processor, *event.Store, *notify.Kafka) {
	zdClient := zendesk.NewClient(cfg.ZendeskBaseURL(), cfg.Zendesk.Email, cfg.Zendesk.Token, zendeskTimeout)
	resolver := identity.NewResolver(zdClient, identity.NewDirectory(db), log)
	syncer := sync.NewTicketSynchronizer(zdClient, resolver, log)
	events := event.NewStore(db, log)

	var locker lock.TicketLocker
	switch cfg.LockStrategy {
	case config.LockLocal:
		locker = lock.NewKeyedMutex()
	case config.LockRedis:
		locker = lock.NewRedisLock(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	default:
		locker = lock.Nop{}
	}

	var notifiers notify.Multi
	var kafka *notify.Kafka
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		kafka = notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		notifiers = append(notifiers, kafka)
	}
	if cfg.NotifyURL != "" {
		notifiers = append(notifiers, notify.NewHTTP(cfg.NotifyURL, log))
	}
	var notifier notify.Notifier = notifiers
	if len(notifiers) == 0 {
		notifier = notify.Nop{}
	}

	proc := pipeline.NewProcessor(db, syncer, locker, notifier, log)
	return proc, events, kafka
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	a.log.Info("http server listening", "addr", a.httpSrv.Addr)
	a.log.Info("webhook endpoint ready", "path", "/webhooks/zendesk")

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.log.Warn("kafka close", "error", err)
		}
	}
	return nil
}
