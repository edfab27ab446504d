package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	// TTL bounds how long a cached user profile may be served.
	TTL time.Duration
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
	TTLSeconds      int
}

type APNSConfig struct {
	Enabled  bool
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyPath points at the .p8 signing key; P8KeyContent wins when both are set.
	P8KeyPath    string
	P8KeyContent string
	Sandbox      bool
}

type FirebaseConfig struct {
	CredentialsFile string
}

// FirestoreConfig names the documents the dispatcher reads and prunes.
type FirestoreConfig struct {
	UsersCollection string
	ChatsCollection string
	TokensField     string
}

// DispatchConfig carries the fan-out tuning and the user-visible strings.
type DispatchConfig struct {
	MaxConcurrentRecipients int
	FallbackName            string
	ChatTitle               string
	PhotoBody               string
	ChatClickAction         string
	FriendRequestTitle      string
	FriendRequestBody       string
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	Vapid      VapidConfig
	APNS       APNSConfig
	Firebase   FirebaseConfig
	Firestore  FirestoreConfig
	Dispatch   DispatchConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("MAX_CONCURRENT_RECIPIENTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			logger.Debug("Overriding config value", "key", "MAX_CONCURRENT_RECIPIENTS", "source", "env")
			cfg.Dispatch.MaxConcurrentRecipients = n
		}
	}
	if val := os.Getenv("FALLBACK_NAME"); val != "" {
		cfg.Dispatch.FallbackName = val
	}

	// Firestore layout
	if val := os.Getenv("USERS_COLLECTION"); val != "" {
		cfg.Firestore.UsersCollection = val
	}
	if val := os.Getenv("CHATS_COLLECTION"); val != "" {
		cfg.Firestore.ChatsCollection = val
	}
	if val := os.Getenv("TOKENS_FIELD"); val != "" {
		logger.Debug("Overriding config value", "key", "TOKENS_FIELD", "source", "env")
		cfg.Firestore.TokensField = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil {
			cfg.Redis.TTL = ttl
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// VAPID Overrides
	if val := os.Getenv("VAPID_PUBLIC_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PUBLIC_KEY", "source", "env")
		cfg.Vapid.PublicKey = val
	}
	if val := os.Getenv("VAPID_PRIVATE_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_PRIVATE_KEY", "source", "env")
		cfg.Vapid.PrivateKey = val
	}
	if val := os.Getenv("VAPID_SUB_EMAIL"); val != "" {
		logger.Debug("Overriding config value", "key", "VAPID_SUB_EMAIL", "source", "env")
		cfg.Vapid.SubscriberEmail = val
	}

	// APNs Overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY"); val != "" {
		cfg.APNS.P8KeyContent = val
		cfg.APNS.Enabled = true
	}
	if val := os.Getenv("APNS_P8_PATH"); val != "" {
		cfg.APNS.P8KeyPath = val
		cfg.APNS.Enabled = true
	}
	if val := os.Getenv("APNS_SANDBOX"); val != "" {
		sandbox, _ := strconv.ParseBool(val)
		cfg.APNS.Sandbox = sandbox
	}
	if val := os.Getenv("APNS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.APNS.Enabled = enabled
	}

	if val := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); val != "" {
		logger.Debug("Overriding config value", "key", "GOOGLE_APPLICATION_CREDENTIALS", "source", "env")
		cfg.Firebase.CredentialsFile = val
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.APNS.Enabled {
		if cfg.APNS.KeyID == "" || cfg.APNS.TeamID == "" || cfg.APNS.BundleID == "" {
			return nil, fmt.Errorf("apns is enabled but key_id, team_id and bundle_id are not all set")
		}
		if cfg.APNS.P8KeyContent == "" && cfg.APNS.P8KeyPath == "" {
			return nil, fmt.Errorf("apns is enabled but no p8 key was provided")
		}
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 10 * time.Minute
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
