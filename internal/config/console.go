package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"panicdesk/internal/utils"
)

const (
	PendingStoreRedis   = "redis"
	PendingStoreMongoDB = "mongodb"
	PendingStoreMemory  = "memory"
)

type ConsoleConfig struct {
	SnapshotBaseURL    string        `yaml:"snapshot_base_url"`
	SnapshotTimeout    time.Duration `yaml:"snapshot_timeout"`
	PromptLifetime     time.Duration `yaml:"prompt_lifetime"`
	PendingStore       string        `yaml:"pending_store"`
	PendingNamespace   string        `yaml:"pending_namespace"`
	PersistTimeout     time.Duration `yaml:"persist_timeout"`
	WatermarkRetention time.Duration `yaml:"watermark_retention"`
	DefaultRadiusKM    float64       `yaml:"default_radius_km"`
	MaxRadiusKM        float64       `yaml:"max_radius_km"`
	DeepLinkBase       string        `yaml:"deep_link_base"`
}

func loadConsoleConfig() *ConsoleConfig {
	return &ConsoleConfig{
		SnapshotBaseURL:    getEnv("SNAPSHOT_BASE_URL", "http://localhost:3000/api"),
		SnapshotTimeout:    getEnvAsDuration("SNAPSHOT_TIMEOUT", utils.DefaultSnapshotTimeout),
		PromptLifetime:     getEnvAsDuration("PROMPT_LIFETIME", utils.DefaultPromptLifetime),
		PendingStore:       strings.ToLower(getEnv("PENDING_STORE", PendingStoreRedis)),
		PendingNamespace:   getEnv("PENDING_NAMESPACE", "default"),
		PersistTimeout:     getEnvAsDuration("PENDING_PERSIST_TIMEOUT", utils.DefaultPersistTimeout),
		WatermarkRetention: getEnvAsDuration("WATERMARK_RETENTION", utils.DefaultWatermarkRetention),
		DefaultRadiusKM:    getEnvAsFloat64("PROXIMITY_DEFAULT_RADIUS_KM", utils.DefaultSearchRadius),
		MaxRadiusKM:        getEnvAsFloat64("PROXIMITY_MAX_RADIUS_KM", utils.MaxSearchRadius),
		DeepLinkBase:       getEnv("CONSOLE_DEEP_LINK_BASE", "/alerts/"),
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Console.PendingStore {
	case PendingStoreRedis, PendingStoreMongoDB, PendingStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported PENDING_STORE %q", c.Console.PendingStore))
	}
	if c.Console.PromptLifetime <= 0 {
		errs = append(errs, errors.New("PROMPT_LIFETIME must be >0"))
	}
	if c.Console.DefaultRadiusKM <= 0 || c.Console.DefaultRadiusKM > c.Console.MaxRadiusKM {
		errs = append(errs, errors.New("PROXIMITY_DEFAULT_RADIUS_KM must be in (0, PROXIMITY_MAX_RADIUS_KM]"))
	}
	if strings.TrimSpace(c.Channel.URL) == "" {
		errs = append(errs, errors.New("CHANNEL_URL is required"))
	}
	if c.Channel.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("CHANNEL_HANDSHAKE_TIMEOUT must be >0"))
	}
	if c.App.IsProduction() && c.Security.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}

	return errors.Join(errs...)
}
