package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-checkout/internal/app"
	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/notify"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.Component(obs.NewLogger(logFormat, logLevel), "worker")
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "checkout"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	deps, err := app.Open(startCtx, cfg, logger, app.Options{ApplicationName: "toko-checkout-worker"})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	svcs := app.NewServices(deps, cfg)

	taskOpt, err := app.TaskRedisOpt(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("task queue options")
	}

	var sender notify.Sender = notify.LogSender{Logger: obs.Component(logger, "mail")}
	mux := asynq.NewServeMux()
	mux.Handle(notify.TypeOrderMail, notify.Mailer{Mail: sender, Enabled: cfg.NotifyEmailEnabled, Logger: logger})
	mux.Handle(cart.TypePurgeGuestCarts, cart.PurgeHandler{Svc: svcs.Carts, Logger: logger})

	srv := asynq.NewServer(taskOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			notify.QueueName: 6,
			"default":        3,
		},
		ShutdownTimeout: 20 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})

	scheduler := asynq.NewScheduler(taskOpt, &asynq.SchedulerOpts{Location: time.Local})
	if _, err := scheduler.Register(cfg.GuestCartPurgeCron, cart.NewPurgeTask()); err != nil {
		logger.Fatal().Err(err).Msg("register guest cart purge")
	}

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Str("purge_schedule", cfg.GuestCartPurgeCron).Msg("worker starting")

	<-ctx.Done()
	logger.Info().Msg("worker draining")
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
