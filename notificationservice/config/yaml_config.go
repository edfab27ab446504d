package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	TTL      string `yaml:"ttl"`
}

type YamlVapidConfig struct {
	PublicKey       string `yaml:"public_key"`
	PrivateKey      string `yaml:"private_key"`
	SubscriberEmail string `yaml:"subscriber_email"`
	TTLSeconds      int    `yaml:"ttl_seconds"`
}

type YamlAPNSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	KeyID     string `yaml:"key_id"`
	TeamID    string `yaml:"team_id"`
	BundleID  string `yaml:"bundle_id"`
	P8KeyPath string `yaml:"p8_key_path"`
	Sandbox   bool   `yaml:"sandbox"`
}

type YamlFirestoreConfig struct {
	UsersCollection string `yaml:"users_collection"`
	ChatsCollection string `yaml:"chats_collection"`
	TokensField     string `yaml:"tokens_field"`
}

type YamlDispatchConfig struct {
	MaxConcurrentRecipients int    `yaml:"max_concurrent_recipients"`
	FallbackName            string `yaml:"fallback_name"`
	ChatTitle               string `yaml:"chat_title"`
	PhotoBody               string `yaml:"photo_body"`
	ChatClickAction         string `yaml:"chat_click_action"`
	FriendRequestTitle      string `yaml:"friend_request_title"`
	FriendRequestBody       string `yaml:"friend_request_body"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string              `yaml:"project_id"`
	ListenAddr             string              `yaml:"listen_addr"`
	TopicID                string              `yaml:"topic_id"`
	SubscriptionID         string              `yaml:"subscription_id"`
	SubscriptionDLQTopicID string              `yaml:"subscription_dlq_topic_id"`
	CorsConfig             YamlCorsConfig      `yaml:"cors"`
	RedisConfig            YamlRedisConfig     `yaml:"redis"`
	VapidConfig            YamlVapidConfig     `yaml:"vapid"`
	APNSConfig             YamlAPNSConfig      `yaml:"apns"`
	FirestoreConfig        YamlFirestoreConfig `yaml:"firestore"`
	DispatchConfig         YamlDispatchConfig  `yaml:"dispatch"`
	NumPipelineWorkers     int                 `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	var redisTTL time.Duration
	if baseCfg.RedisConfig.TTL != "" {
		ttl, err := time.ParseDuration(baseCfg.RedisConfig.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis ttl %q: %w", baseCfg.RedisConfig.TTL, err)
		}
		redisTTL = ttl
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      redisTTL,
		},
		Vapid: VapidConfig{
			PublicKey:       baseCfg.VapidConfig.PublicKey,
			PrivateKey:      baseCfg.VapidConfig.PrivateKey,
			SubscriberEmail: baseCfg.VapidConfig.SubscriberEmail,
			TTLSeconds:      baseCfg.VapidConfig.TTLSeconds,
		},
		APNS: APNSConfig{
			Enabled:   baseCfg.APNSConfig.Enabled,
			KeyID:     baseCfg.APNSConfig.KeyID,
			TeamID:    baseCfg.APNSConfig.TeamID,
			BundleID:  baseCfg.APNSConfig.BundleID,
			P8KeyPath: baseCfg.APNSConfig.P8KeyPath,
			Sandbox:   baseCfg.APNSConfig.Sandbox,
		},
		Firestore: FirestoreConfig{
			UsersCollection: baseCfg.FirestoreConfig.UsersCollection,
			ChatsCollection: baseCfg.FirestoreConfig.ChatsCollection,
			TokensField:     baseCfg.FirestoreConfig.TokensField,
		},
		Dispatch: DispatchConfig{
			MaxConcurrentRecipients: baseCfg.DispatchConfig.MaxConcurrentRecipients,
			FallbackName:            baseCfg.DispatchConfig.FallbackName,
			ChatTitle:               baseCfg.DispatchConfig.ChatTitle,
			PhotoBody:               baseCfg.DispatchConfig.PhotoBody,
			ChatClickAction:         baseCfg.DispatchConfig.ChatClickAction,
			FriendRequestTitle:      baseCfg.DispatchConfig.FriendRequestTitle,
			FriendRequestBody:       baseCfg.DispatchConfig.FriendRequestBody,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"subscription_id", cfg.SubscriptionID,
		"apns_enabled", cfg.APNS.Enabled,
	)

	return cfg, nil
}
