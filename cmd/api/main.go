package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/verification-bot/internal/api/http"
	"github.com/spec-kit/verification-bot/internal/api/http/handlers"
	"github.com/spec-kit/verification-bot/internal/auth"
	"github.com/spec-kit/verification-bot/internal/config"
	"github.com/spec-kit/verification-bot/internal/events"
	"github.com/spec-kit/verification-bot/internal/gcp"
	"github.com/spec-kit/verification-bot/internal/line"
	"github.com/spec-kit/verification-bot/internal/observability"
	"github.com/spec-kit/verification-bot/internal/persistence"
	"github.com/spec-kit/verification-bot/internal/repository"
	"github.com/spec-kit/verification-bot/internal/service"
	"github.com/spec-kit/verification-bot/internal/session"
	"github.com/spec-kit/verification-bot/internal/sheets"
	"github.com/spec-kit/verification-bot/internal/storage"
	"github.com/spec-kit/verification-bot/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	googleClient, err := newGoogleClient(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to load google credentials", zap.Error(err))
	}

	members, records, err := newRecordBackend(ctx, cfg, pg, googleClient, logger)
	if err != nil {
		logger.Fatal("failed to init record backend", zap.Error(err))
	}

	ingestor, err := newIngestor(ctx, cfg, googleClient, logger)
	if err != nil {
		logger.Fatal("failed to init storage backend", zap.Error(err))
	}

	var deliveries repository.DeliveryRepository
	if redis.Enabled() {
		deliveries = repository.NewRedisDeliveryRepository(redis.Client, cfg.Dedup.TTL)
	} else {
		deliveries = repository.NewMemoryDeliveryRepository(cfg.Dedup.TTL)
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifications.RegisterHandlers()

	verificationService := service.NewVerificationService(cfg.Verification, service.VerificationDependencies{
		Sessions:   session.NewMemoryStore(),
		Members:    members,
		Ingestor:   ingestor,
		Records:    records,
		Messenger:  line.NewClient(cfg.Line, logger),
		Deliveries: deliveries,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	reaper := worker.NewSessionReaper(verificationService, cfg.Session.IdleTimeout, cfg.Session.SweepInterval, logger)
	reaper.Start(ctx)

	metrics := observability.NewMetrics()
	app := httptransport.NewApp(cfg.App)
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Webhook:   handlers.NewWebhookHandler(verificationService, metrics, logger),
		Signature: auth.NewSignatureMiddleware(cfg.Line.ChannelSecret, logger),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	_ = app.Shutdown()
	notifications.Wait()
}

// newGoogleClient returns nil when neither backend talks to Google.
func newGoogleClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	var scopes []string
	if cfg.Verification.RecordBackend == config.RecordsSheets {
		scopes = append(scopes, gcp.ScopeSpreadsheets)
	}
	if cfg.Verification.StorageBackend == config.StorageDrive {
		scopes = append(scopes, gcp.ScopeDrive)
	}
	if len(scopes) == 0 {
		return nil, nil
	}
	return gcp.HTTPClient(ctx, cfg.Google.ServiceAccountJSON, scopes...)
}

func newRecordBackend(ctx context.Context, cfg *config.Config, pg *persistence.Postgres, googleClient *http.Client, logger *zap.Logger) (service.MembershipLookup, service.RecordWriter, error) {
	if cfg.Verification.RecordBackend == config.RecordsPostgres {
		repo := repository.NewRecordRepository(pg.PoolHandle())
		return repo, repo, nil
	}
	client, err := sheets.New(ctx, googleClient, cfg.Google, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, client, nil
}

func newIngestor(ctx context.Context, cfg *config.Config, googleClient *http.Client, logger *zap.Logger) (storage.Ingestor, error) {
	switch cfg.Verification.StorageBackend {
	case config.StorageDrive:
		return storage.NewDriveIngestor(ctx, googleClient, cfg.Google.DriveFolderID, logger)
	case config.StorageMinio:
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		ingestor := storage.NewMinioIngestor(client, cfg.Minio, logger)
		if err := ingestor.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return ingestor, nil
	default:
		return storage.NewInlineIngestor(), nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
