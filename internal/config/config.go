package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port         string `mapstructure:"PORT"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	RedisURL     string `mapstructure:"REDIS_URL"`
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	EventsTopic  string `mapstructure:"EVENTS_TOPIC"`
	GroupID      string `mapstructure:"KAFKA_GROUP_ID"`

	PaymentBaseURL string `mapstructure:"PAYMENT_BASE_URL"`

	RequestTimeoutMS  int `mapstructure:"REQUEST_TIMEOUT_MS"`
	StepRetryMax      int `mapstructure:"STEP_RETRY_MAX"`
	StepRetryBaseMS   int `mapstructure:"STEP_RETRY_BASE_MS"`
	ReservationTTLSec int `mapstructure:"RESERVATION_TTL_SEC"`
	SweepIntervalSec  int `mapstructure:"SWEEP_INTERVAL_SEC"`
}

// Load reads configuration from the environment. Only DATABASE_URL-less
// setups are allowed to run fully in memory (dev and tests); everything else
// has a default.
func Load() (Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("EVENTS_TOPIC", "saga.events")
	viper.SetDefault("KAFKA_GROUP_ID", "saga-service")
	viper.SetDefault("REQUEST_TIMEOUT_MS", 2500)
	viper.SetDefault("STEP_RETRY_MAX", 3)
	viper.SetDefault("STEP_RETRY_BASE_MS", 100)
	viper.SetDefault("RESERVATION_TTL_SEC", 900)
	viper.SetDefault("SWEEP_INTERVAL_SEC", 30)

	for _, key := range []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "EVENTS_TOPIC",
		"KAFKA_GROUP_ID", "PAYMENT_BASE_URL", "REQUEST_TIMEOUT_MS",
		"STEP_RETRY_MAX", "STEP_RETRY_BASE_MS", "RESERVATION_TTL_SEC",
		"SWEEP_INTERVAL_SEC",
	} {
		if err := viper.BindEnv(key); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Port == "" {
		return Config{}, errors.New("PORT must not be empty")
	}
	return cfg, nil
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

func (c Config) StepRetryBase() time.Duration {
	return time.Duration(c.StepRetryBaseMS) * time.Millisecond
}

func (c Config) ReservationTTL() time.Duration {
	return time.Duration(c.ReservationTTLSec) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}
