package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/groupbuy-backend/api/routes"
	"github.com/angelmondragon/groupbuy-backend/internal/groupbuy"
	"github.com/angelmondragon/groupbuy-backend/internal/rewards"
	"github.com/angelmondragon/groupbuy-backend/pkg/config"
	"github.com/angelmondragon/groupbuy-backend/pkg/logger"
	"github.com/angelmondragon/groupbuy-backend/pkg/metrics"
	"github.com/angelmondragon/groupbuy-backend/pkg/notify"
	"github.com/angelmondragon/groupbuy-backend/pkg/redis"
	"github.com/angelmondragon/groupbuy-backend/pkg/valuetransfer"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	} else {
		logg.Warn(ctx, "redis not configured, idempotency disabled")
	}

	emitter, cleanup, err := buildEmitter(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap event emitter", err)
		os.Exit(1)
	}
	defer cleanup()

	paymentBank := valuetransfer.NewMemoryBank(uuid.New())
	rewardBank := valuetransfer.NewMemoryBank(uuid.New())
	platformRewardAccount := uuid.New()
	rewardBank.Seed(platformRewardAccount, cfg.Bank.SeedBalance)
	for _, account := range cfg.Bank.SeedAccounts {
		paymentBank.Seed(account, cfg.Bank.SeedBalance)
		rewardBank.Seed(account, cfg.Bank.SeedBalance)
	}

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)

	ledger, err := groupbuy.NewLedger(groupbuy.Params{
		PlatformFeeBps:        cfg.Ledger.PlatformFeeBps,
		RewardPoolBps:         cfg.Ledger.RewardPoolBps,
		StakeAmount:           cfg.Ledger.StakeAmount,
		DefaultJoinWindow:     cfg.Ledger.DefaultJoinWindow,
		PlatformAccount:       cfg.Ledger.PlatformAccount,
		PaymentTreasury:       paymentBank.Self(),
		RewardPoolAccount:     rewardBank.Self(),
		PlatformRewardAccount: platformRewardAccount,
		AdminAccount:          cfg.Ledger.AdminAccount,
	}, paymentBank, rewardBank, emitter, groupbuy.WithMetrics(ledgerMetrics), groupbuy.WithLogger(logg))
	if err != nil {
		logg.Error(ctx, "failed to create ledger", err)
		os.Exit(1)
	}

	distributor, err := rewards.NewDistributor(rewardBank, emitter, rewards.WithLogger(logg))
	if err != nil {
		logg.Error(ctx, "failed to create reward distributor", err)
		os.Exit(1)
	}
	ledger.SetDistributor(distributor)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	startCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(startCtx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, redisClient, ledger),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(startCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(startCtx, "shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		var shutdownErr error
		shutdownErr = multierr.Append(shutdownErr, server.Shutdown(shutdownCtx))
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownErr = multierr.Append(shutdownErr, err)
		}
		if shutdownErr != nil {
			logg.Error(startCtx, "shutdown finished with errors", shutdownErr)
			os.Exit(1)
		}
		logg.Info(startCtx, "shutdown complete")
	}
}

// buildEmitter prefers Pub/Sub when a GCP project is configured and falls
// back to structured log emission.
func buildEmitter(ctx context.Context, cfg *config.Config, logg *logger.Logger) (notify.Emitter, func(), error) {
	if cfg.GCP.ProjectID != "" {
		emitter, err := notify.NewPubSubEmitter(ctx, cfg.GCP.ProjectID, cfg.PubSub.NotificationTopic)
		if err != nil {
			return nil, nil, err
		}
		return emitter, emitter.Stop, nil
	}
	logg.Warn(ctx, "pubsub not configured, emitting notifications to log")
	return &notify.LogEmitter{Logg: logg}, func() {}, nil
}
