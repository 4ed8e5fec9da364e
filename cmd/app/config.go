package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ecoquest_miniapp/internal/cache"
	"ecoquest_miniapp/internal/progress"
	"ecoquest_miniapp/internal/repository"
	"ecoquest_miniapp/internal/scheduler"
	"ecoquest_miniapp/internal/service"

	"github.com/spf13/viper"
)

const (
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"
)

const (
	cacheStoreMemory = "memory"
	cacheStoreRedis  = "redis"
	cacheStoreNone   = "none"
)

type Config struct {
	Database    repository.Config      `mapstructure:"database"`
	Redis       cache.RedisConfig      `mapstructure:"redis"`
	Cache       CacheConfig            `mapstructure:"cache"`
	Progress    progress.Config        `mapstructure:"progress"`
	Missions    service.MissionConfig  `mapstructure:"missions"`
	Vitality    service.VitalityConfig `mapstructure:"vitality"`
	Progression ProgressionConfig      `mapstructure:"progression"`
	Scheduler   scheduler.Config       `mapstructure:"scheduler"`
	Server      ServerConfig           `mapstructure:"server"`
	Internal    InternalConfig         `mapstructure:"internal"`

	TelegramAuth TelegramAuthConfig `mapstructure:"telegramAuth"`

	// CatalogPath points at a mission catalog YAML; empty uses the built-in one.
	CatalogPath string `mapstructure:"catalogPath"`
	Timezone    string `mapstructure:"timezone"`
	LogLevel    string `mapstructure:"logLevel"`
}

type CacheConfig struct {
	Store         string        `mapstructure:"store"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
	TTL           cache.Config  `mapstructure:",squash"`
}

type ProgressionConfig struct {
	XPPerLevel      int   `mapstructure:"xpPerLevel"`
	VitalityMax     int64 `mapstructure:"vitalityMax"`
	VitalityCeiling int64 `mapstructure:"vitalityCeiling"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type InternalConfig struct {
	Host         string   `mapstructure:"host"`
	Port         string   `mapstructure:"port"`
	AllowedCIDRs []string `mapstructure:"allowedCIDRs"`
	Token        string   `mapstructure:"token"`
}

type TelegramAuthConfig struct {
	TelegramBotToken string        `mapstructure:"telegramBotToken"`
	DebugMode        bool          `mapstructure:"debugMode"`
	Expiry           time.Duration `mapstructure:"expiry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", repository.DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "ecoquest")
	v.SetDefault("database.path", "ecoquest.db")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.queryTimeout", "5s")
	v.SetDefault("database.maxOpenConns", 20)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "ecoquest:")
	v.SetDefault("redis.dialTimeout", "2s")
	v.SetDefault("redis.readTimeout", "500ms")
	v.SetDefault("redis.writeTimeout", "500ms")

	v.SetDefault("cache.store", cacheStoreMemory)
	v.SetDefault("cache.statsTTL", "30m")
	v.SetDefault("cache.co2TTL", "30m")
	v.SetDefault("cache.missionsTTL", "1m")
	v.SetDefault("cache.fenceTTL", "10s")
	v.SetDefault("cache.sweepInterval", "5m")

	v.SetDefault("vitality.decayAmount", 10)

	v.SetDefault("progression.xpPerLevel", 100)
	v.SetDefault("progression.vitalityMax", 100)
	v.SetDefault("progression.vitalityCeiling", 0)

	v.SetDefault("scheduler.hour", 0)
	v.SetDefault("scheduler.minute", 0)
	v.SetDefault("scheduler.timeout", "5m")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("internal.host", "127.0.0.1")
	v.SetDefault("internal.port", "8081")
	v.SetDefault("internal.allowedCIDRs", []string{"127.0.0.1/32", "::1/128"})
	v.SetDefault("internal.token", "")

	v.SetDefault("telegramAuth.telegramBotToken", "")
	v.SetDefault("telegramAuth.debugMode", false)
	v.SetDefault("telegramAuth.expiry", "24h")

	v.SetDefault("catalogPath", "")

	v.SetDefault("timezone", "UTC")
	v.SetDefault("logLevel", "info")
}

// LoadConfig reads config.yaml (or the file at path) and applies APP_
// environment overrides. A missing default config file is not an error.
// Only keys with a default can be set from the environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(configPath)
		v.SetConfigType(configFormat)
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	switch cfg.Cache.Store {
	case cacheStoreMemory, cacheStoreRedis, cacheStoreNone:
	default:
		return nil, fmt.Errorf("unknown cache store %q", cfg.Cache.Store)
	}

	return &cfg, nil
}
