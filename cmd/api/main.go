package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aidanalabs/agenda-bot/cmd/mainconfig"
	"github.com/aidanalabs/agenda-bot/internal/agent"
	"github.com/aidanalabs/agenda-bot/internal/api/router"
	"github.com/aidanalabs/agenda-bot/internal/business"
	"github.com/aidanalabs/agenda-bot/internal/classifier"
	appconfig "github.com/aidanalabs/agenda-bot/internal/config"
	"github.com/aidanalabs/agenda-bot/internal/conversation"
	"github.com/aidanalabs/agenda-bot/internal/http/handlers"
	"github.com/aidanalabs/agenda-bot/internal/messaging"
	"github.com/aidanalabs/agenda-bot/internal/observability/metrics"
	"github.com/aidanalabs/agenda-bot/internal/reservation"
	"github.com/aidanalabs/agenda-bot/internal/scoring"
	schedulerworker "github.com/aidanalabs/agenda-bot/internal/worker/scheduler"
	"github.com/aidanalabs/agenda-bot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting agenda-bot API server", "env", cfg.Env, "port", cfg.Port)

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
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, tenant profiles fall back to defaults", "error", err)
		}
		defer func() { _ = redisClient.Close() }()
	}

	llmClient, model, err := buildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("llm client initialization failed", "error", err)
		os.Exit(1)
	}

	agentMetrics := metrics.NewAgentMetrics(nil)

	convStore := conversation.NewStore(pool)
	interactions := messaging.NewInteractionStore(pool)
	resStore := reservation.NewStore(pool)
	scoreStore := scoring.NewStore(pool)
	profiles := business.NewStore(redisClient)

	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		logger.Warn("twilio credentials missing, outbound sends will fail")
	}
	sender := messaging.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom, logger)
	outbound := messaging.NewOutbound(interactions, sender, logger).WithMetrics(agentMetrics)

	svc := classifier.NewService(llmClient, model, logger).WithMetrics(agentMetrics)
	flow := reservation.NewFlow(resStore, svc, logger)
	engine := scoring.NewEngine(convStore, scoreStore, svc, logger)
	buffer := conversation.NewBuffer(cfg.BufferWindow, cfg.BufferMaxSegments)

	orch := agent.New(agent.Config{
		OrgID:         cfg.OrgID,
		DefaultRegion: cfg.DefaultPhoneRegion,
		Conversations: convStore,
		Interactions:  interactions,
		Sender:        outbound,
		Reservations:  resStore,
		Flow:          flow,
		Intents:       svc,
		Scorer:        engine,
		Profiles:      profiles,
		Buffer:        buffer,
		Metrics:       agentMetrics,
		Logger:        logger,
	})

	webhookURL := ""
	webhookToken := ""
	if cfg.PublicBaseURL != "" && cfg.TwilioWebhookSecret != "" {
		webhookURL = cfg.PublicBaseURL + "/webhooks/whatsapp"
		webhookToken = cfg.TwilioWebhookSecret
	} else {
		logger.Warn("twilio signature validation disabled (PUBLIC_BASE_URL or TWILIO_WEBHOOK_SECRET not set)")
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Webhook:            handlers.NewWhatsAppWebhookHandler(orch, webhookToken, webhookURL, logger),
		ReservationStatus:  handlers.NewReservationStatusHandler(resStore, logger),
		ConversationOps:    handlers.NewConversationOpsHandler(convStore, logger),
		MetricsHandler:     promhttp.Handler(),
		OperatorSecret:     cfg.OperatorJWTSecret,
		PanelOrigins:       cfg.PanelOrigins,
		WebhookRatePerSec:  cfg.WebhookRatePerSec,
		WebhookBurst:       cfg.WebhookBurst,
	})

	startSchedulers(ctx, cfg, convStore, resStore, profiles, buffer, outbound, agentMetrics, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildLLMClient assembles the Bedrock-first, Gemini-fallback chain. At least
// one provider must be configured.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (classifier.LLMClient, string, error) {
	var primary classifier.LLMClient
	model := cfg.BedrockModelID

	if cfg.BedrockModelID != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		primary = classifier.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		logger.Info("bedrock classifier enabled", "model", cfg.BedrockModelID)
	}

	var fallback classifier.LLMClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := classifier.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, "", err
		}
		fallback = gemini
		logger.Info("gemini classifier enabled", "model", cfg.GeminiModelID)
	}

	switch {
	case primary != nil && fallback != nil:
		return classifier.NewFallbackLLMClient(primary, fallback, logger), model, nil
	case primary != nil:
		return primary, model, nil
	case fallback != nil:
		return fallback, cfg.GeminiModelID, nil
	default:
		return nil, "", errors.New("set BEDROCK_MODEL_ID or GEMINI_API_KEY")
	}
}

// startSchedulers launches the five background loops in-process.
func startSchedulers(
	ctx context.Context,
	cfg *appconfig.Config,
	convStore *conversation.Store,
	resStore *reservation.Store,
	profiles *business.Store,
	buffer *conversation.Buffer,
	outbound *messaging.Outbound,
	agentMetrics *metrics.AgentMetrics,
	logger *logging.Logger,
) {
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
	go schedulerworker.NewEvictionPoller(resStore, convStore, buffer, outbound, logger).
		WithInterval(cfg.EvictionInterval).
		WithTTL(cfg.EvictionTTL).
		WithMetrics(agentMetrics).
		Run(ctx)
	go schedulerworker.NewFollowupPoller(convStore, outbound, profiles, cfg.OrgID, logger).
		WithInterval(cfg.FollowupInterval).
		WithMetrics(agentMetrics).
		Run(ctx)
}
