package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-fanout-notifier/internal/fanout"
	"github.com/tinywideclouds/go-fanout-notifier/internal/hygiene"
	"github.com/tinywideclouds/go-fanout-notifier/internal/platform/apns"
	"github.com/tinywideclouds/go-fanout-notifier/internal/platform/fcm"
	"github.com/tinywideclouds/go-fanout-notifier/internal/platform/router"
	"github.com/tinywideclouds/go-fanout-notifier/internal/platform/web"

	"github.com/tinywideclouds/go-fanout-notifier/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-fanout-notifier/internal/storage/firestore"
	"github.com/tinywideclouds/go-fanout-notifier/pkg/dispatch"

	"github.com/tinywideclouds/go-fanout-notifier/notificationservice"
	"github.com/tinywideclouds/go-fanout-notifier/notificationservice/config"

	"google.golang.org/api/option"
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
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-fanout-notifier")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Invalid embedded yaml config", "err", err)
		os.Exit(1)
	}
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

	// --- Directory (optionally cached) ---
	var directory dispatch.Directory = fsStore.NewDirectory(fsClient, fsStore.Layout{
		UsersCollection: cfg.Firestore.UsersCollection,
		ChatsCollection: cfg.Firestore.ChatsCollection,
		TokensField:     cfg.Firestore.TokensField,
	})
	logger.Info("Directory initialized", "type", "firestore")

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		directory = cache.NewCachedDirectory(directory, redisClient, cfg.Redis.TTL, logger)
		logger.Info("Profile cache enabled", "type", "redis", "ttl", cfg.Redis.TTL)
	}

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, err := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	if err != nil {
		logger.Error("JWT discovery failed", "url", identityURL, "err", err)
		os.Exit(1)
	}
	authMiddleware, err := middleware.NewJWKSAuthMiddleware(jwksURL, logger)
	if err != nil {
		logger.Error("Failed to create auth middleware", "err", err)
		os.Exit(1)
	}

	// --- Transports ---
	transport, err := newTransport(ctx, cfg, logger)
	if err != nil {
		logger.Error("Transport setup failed", "err", err)
		os.Exit(1)
	}

	// --- Fan-out ---
	reconciler := hygiene.NewReconciler(directory, logger)
	dispatcher := fanout.NewDispatcher(
		fanout.Config{
			MaxConcurrentRecipients: cfg.Dispatch.MaxConcurrentRecipients,
			Strings: fanout.Strings{
				FallbackName:       cfg.Dispatch.FallbackName,
				ChatTitle:          cfg.Dispatch.ChatTitle,
				PhotoBody:          cfg.Dispatch.PhotoBody,
				ChatClickAction:    cfg.Dispatch.ChatClickAction,
				FriendRequestTitle: cfg.Dispatch.FriendRequestTitle,
				FriendRequestBody:  cfg.Dispatch.FriendRequestBody,
			},
		},
		directory,
		directory,
		directory,
		transport,
		reconciler,
		logger,
	)

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer setup failed", "err", err)
		os.Exit(1)
	}

	service, err := notificationservice.New(cfg, consumer, dispatcher, authMiddleware, logger)
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

// newTransport builds the platform router. FCM is always on; APNs is added
// when configured and Web Push when VAPID keys are present.
func newTransport(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*router.Router, error) {
	var opts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	fcmMessaging, err := fbApp.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create fcm messaging client: %w", err)
	}

	transports := map[router.Platform]dispatch.Transport{
		router.PlatformFCM: fcm.NewDispatcher(fcmMessaging, logger),
	}

	if cfg.APNS.Enabled {
		key := cfg.APNS.P8KeyContent
		if key == "" {
			raw, err := os.ReadFile(cfg.APNS.P8KeyPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read apns key: %w", err)
			}
			key = string(raw)
		}
		apnsDispatcher, err := apns.NewDispatcher(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: key,
			Sandbox:      cfg.APNS.Sandbox,
		}, logger)
		if err != nil {
			return nil, err
		}
		transports[router.PlatformAPNS] = apnsDispatcher
		logger.Info("APNs Dispatcher enabled", "bundle_id", cfg.APNS.BundleID, "sandbox", cfg.APNS.Sandbox)
	}

	if cfg.Vapid.PrivateKey == "" || cfg.Vapid.PublicKey == "" {
		logger.Warn("VAPID keys missing in configuration. Web Push tokens will be reported as undeliverable.")
	} else {
		transports[router.PlatformWeb] = web.NewDispatcher(cfg.Vapid, logger)
		logger.Info("Web Dispatcher enabled", "public_key", cfg.Vapid.PublicKey)
	}

	return router.New(transports, logger), nil
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 topicID,
		AckDeadlineSeconds:    30,
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
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
