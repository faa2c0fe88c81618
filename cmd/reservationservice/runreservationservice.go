package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/schoolbus/go-reservation-service/internal/pipeline"
	"github.com/schoolbus/go-reservation-service/internal/platform/apns"
	"github.com/schoolbus/go-reservation-service/internal/platform/fcm"
	"github.com/schoolbus/go-reservation-service/internal/platform/web"
	"github.com/schoolbus/go-reservation-service/internal/storage/cache"
	fsStore "github.com/schoolbus/go-reservation-service/internal/storage/firestore"
	"github.com/schoolbus/go-reservation-service/internal/webpush"
	"github.com/schoolbus/go-reservation-service/pkg/dispatch"
	"github.com/schoolbus/go-reservation-service/reservationservice"
	"github.com/schoolbus/go-reservation-service/reservationservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-reservation-service")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	// --- Stores (Decorated) ---
	firestoreStore := fsStore.NewStore(fsClient)
	stores := reservationservice.Stores{
		Users:        firestoreStore,
		Routes:       firestoreStore,
		Reservations: firestoreStore,
		Status:       firestoreStore,
	}
	logger.Info("Stores initialized", "type", "firestore")

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		stores.Users = cache.NewCachedUserStore(stores.Users, redisClient, 24*time.Hour)
		logger.Info("UserStore upgraded", "type", "redis_cached_firestore")
	}

	// --- Web Push ---
	keys, err := webpush.NewKeyManager(cfg.Vapid.PrivateKeyPEM, cfg.Vapid.PublicKey, cfg.Vapid.SubscriberEmail)
	if err != nil {
		logger.Error("Failed to load VAPID signing key", "err", err)
		os.Exit(1)
	}
	if !keys.Available() {
		logger.Warn("VAPID keys missing in configuration. Web push delivery is disabled.")
	} else {
		logger.Info("Web dispatcher enabled", "public_key", keys.PublicKey())
	}
	webDispatcher := web.NewDispatcher(keys, logger)

	// --- Optional mobile dispatchers ---
	var fcmDispatcher dispatch.Dispatcher
	if os.Getenv("FCM_ENABLED") == "true" {
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			logger.Error("Failed to initialize Firebase App", "err", err)
			os.Exit(1)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			logger.Error("Failed to create FCM messaging client", "err", err)
			os.Exit(1)
		}
		fcmDispatcher = fcm.NewDispatcher(fcmMessaging, logger)
		logger.Info("FCM dispatcher enabled")
	}

	var apnsDispatcher dispatch.Dispatcher
	if p8 := os.Getenv("APNS_P8_KEY"); p8 != "" {
		apnsDispatcher, err = apns.NewDispatcher(apns.Config{
			KeyID:        os.Getenv("APNS_KEY_ID"),
			TeamID:       os.Getenv("APNS_TEAM_ID"),
			BundleID:     os.Getenv("APNS_BUNDLE_ID"),
			P8KeyContent: p8,
		}, logger)
		if err != nil {
			logger.Error("Failed to create APNs dispatcher", "err", err)
			os.Exit(1)
		}
		logger.Info("APNs dispatcher enabled")
	}

	// --- Publisher, Consumer & Service ---
	publisher := pipeline.NewRouteOpenPublisher(psClient, cfg.TopicID, logger)

	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := reservationservice.New(
		cfg,
		consumer,
		publisher,
		webDispatcher,
		fcmDispatcher,
		apnsDispatcher,
		keys,
		stores,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
