// Command scheduler runs the background loops without the HTTP surface, for
// deployments that scale webhook handling and scheduling independently.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/aidanalabs/agenda-bot/internal/business"
	appconfig "github.com/aidanalabs/agenda-bot/internal/config"
	"github.com/aidanalabs/agenda-bot/internal/conversation"
	"github.com/aidanalabs/agenda-bot/internal/messaging"
	"github.com/aidanalabs/agenda-bot/internal/observability/metrics"
	"github.com/aidanalabs/agenda-bot/internal/reservation"
	schedulerworker "github.com/aidanalabs/agenda-bot/internal/worker/scheduler"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agenda-bot scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = redisClient.Close() }()
	}

	convStore := conversation.NewStore(pool)
	interactions := messaging.NewInteractionStore(pool)
	resStore := reservation.NewStore(pool)
	profiles := business.NewStore(redisClient)
	agentMetrics := metrics.NewAgentMetrics(nil)

	sender := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, logger)
	outbound := messaging.NewOutbound(interactions, sender, logger).WithMetrics(agentMetrics)

	// This process has no inbound buffer to evict from; the poller treats a
	// nil buffer as a no-op.
	go schedulerworker.NewReminderPoller(resStore, outbound, profiles, cfg.OrgID, logger).
		WithInterval(cfg.ReminderInterval).
		WithMargin(cfg.ReminderMargin).
		WithMetrics(agentMetrics).
		Run(ctx)
	go schedulerworker.NewAttendancePoller(resStore, outbound, profiles, cfg.OrgID, logger).
		WithInterval(cfg.AttendanceInterval).
		WithMetrics(agentMetrics).
		Run(ctx)
	go schedulerworker.NewSurveyPoller(resStore, convStore, outbound, profiles, cfg.OrgID, logger).
		WithInterval(cfg.SurveyInterval).
		WithMetrics(agentMetrics).
		Run(ctx)
	go schedulerworker.NewEvictionPoller(resStore, convStore, nil, outbound, logger).
		WithInterval(cfg.EvictionInterval).
		WithTTL(cfg.EvictionTTL).
		WithMetrics(agentMetrics).
		Run(ctx)
	go schedulerworker.NewFollowupPoller(convStore, outbound, profiles, cfg.OrgID, logger).
		WithInterval(cfg.FollowupInterval).
		WithMetrics(agentMetrics).
		Run(ctx)

	<-ctx.Done()
	logger.Info("scheduler stopped")
}
