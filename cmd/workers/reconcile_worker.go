package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"credence/workspace-portal/credentials-engine/internal/config"
	"credence/workspace-portal/credentials-engine/internal/credentials"
	"credence/workspace-portal/credentials-engine/internal/notifications"
	"credence/workspace-portal/credentials-engine/internal/workspace"
	"credence/workspace-portal/credentials-engine/pkg/chain"
)

// reconcileTimeout bounds one full pass over the pending transactions.
const reconcileTimeout = 10 * time.Minute

// ReconcileWorker periodically re-triggers reconciliation for every pending
// transaction that is due, including partially confirmed batches that have
// rested long enough. The engine itself has no scheduler; this worker is the
// external job that supplies the retries.
type ReconcileWorker struct {
	service *credentials.Service
	logger  *zap.Logger
}

// Run reconciles every due pending transaction once.
func (w *ReconcileWorker) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
	defer cancel()

	pending, err := w.service.ListReconcilable(ctx)
	if err != nil {
		w.logger.Error("Failed to list pending transactions", zap.Error(err))
		return
	}

	for i := range pending {
		tx := &pending[i]
		result, err := w.service.Reconcile(ctx, tx.ChainID, tx.TransactionHash)
		if err != nil {
			w.logger.Error("Reconciliation failed",
				zap.String("transaction_hash", tx.TransactionHash),
				zap.Int64("chain_id", tx.ChainID),
				zap.Error(err))
			continue
		}
		w.logger.Info("Reconciled pending transaction",
			zap.String("transaction_hash", tx.TransactionHash),
			zap.String("outcome", string(result.Outcome)),
			zap.Int("confirmed", result.Confirmed),
			zap.Int("remaining", result.Remaining))
	}
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found")
	}

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Warn("Failed to load config file, using environment variables", zap.Error(err))
		cfg = config.FromEnv()
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	workspaceDB, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Fatal("Failed to connect to workspace database", zap.Error(err))
	}
	defer workspaceDB.Close()

	registry, err := chain.NewRegistry(cfg.Chains, logger)
	if err != nil {
		logger.Fatal("Failed to build chain registry", zap.Error(err))
	}

	var publisher notifications.Publisher
	if cfg.Notifications.TopicARN != "" {
		publisher, err = notifications.NewSNSPublisher(context.Background(),
			cfg.Notifications.Region, cfg.Notifications.TopicARN, logger)
		if err != nil {
			logger.Fatal("Failed to build notification publisher", zap.Error(err))
		}
	} else {
		publisher = notifications.NewLogPublisher(logger)
	}

	service := credentials.NewService(
		workspace.NewReader(workspaceDB),
		credentials.NewRepository(db),
		credentials.NewCalculator(cfg.Workspace.AppURL),
		credentials.NewRegistryProvider(registry),
		publisher,
		logger,
	)

	worker := &ReconcileWorker{service: service, logger: logger}

	scheduler := cron.New()
	if _, err := scheduler.AddJob(cfg.Worker.CronSchedule, worker); err != nil {
		logger.Fatal("Invalid reconcile schedule",
			zap.String("schedule", cfg.Worker.CronSchedule), zap.Error(err))
	}
	scheduler.Start()
	logger.Info("Reconcile worker started", zap.String("schedule", cfg.Worker.CronSchedule))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Stopping reconcile worker...")
	<-scheduler.Stop().Done()
	logger.Info("Reconcile worker stopped")
}
