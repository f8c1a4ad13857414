package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Kite   KiteConfig   `mapstructure:"kite"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Cacher CacherConfig `mapstructure:"cacher"`
	Logger LoggerConfig `mapstructure:"logger"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`      // e.g., "local", "prod"
	Timezone string `mapstructure:"timezone"` // IANA name, drives historical date defaults
}

type KiteConfig struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"` // fernet-encrypted, see pkg/auth
	FernetKey   string `mapstructure:"fernet_key"`
	APIURL      string `mapstructure:"api_url"`
	WSURL       string `mapstructure:"ws_url"`
	Debug       bool   `mapstructure:"debug"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type CacherConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	// This ensures variables like KITE_API_KEY are available as real env vars
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults (12-Factor App: Dev/Prod Parity)
	v.SetDefault("app.env", "local")
	v.SetDefault("app.timezone", "Asia/Kolkata")

	v.SetDefault("kite.api_url", "https://api.kite.trade")
	v.SetDefault("kite.ws_url", "wss://ws.kite.trade")
	v.SetDefault("kite.debug", false)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "tick-cacher-group")

	v.SetDefault("cacher.num_workers", 4)

	v.SetDefault("logger.level", "info")

	// 3. Configure Viper to read Environment Variables
	// This maps dot-notation to underscores (e.g., "redis.addr" -> "REDIS_ADDR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys
	// This is crucial for Viper to map flat Env Vars (KITE_API_KEY) to nested structs (Kite.APIKey)
	bindEnv(v, "app.env", "app.timezone")
	bindEnv(v, "kite.api_key", "kite.access_token", "kite.fernet_key", "kite.api_url", "kite.ws_url", "kite.debug")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.brokers", "kafka.group_id")
	bindEnv(v, "cacher.num_workers")
	bindEnv(v, "logger.level")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	// 6. Basic Validation
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty")
	}
	if cfg.Cacher.NumWorkers <= 0 {
		return nil, fmt.Errorf("cacher num_workers must be positive")
	}

	return &cfg, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
