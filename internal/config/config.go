package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the global configuration tree.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	ExtractionReviewed  string `mapstructure:"extraction_reviewed"`
	RuleApplied         string `mapstructure:"rule_applied"`
	SubscriptionCreated string `mapstructure:"subscription_created"`
}

// BusinessConfig carries every tunable of the classification core.
type BusinessConfig struct {
	AutoApproveThreshold      float64 `mapstructure:"auto_approve_threshold"`
	AutoApplyPatternThreshold float64 `mapstructure:"auto_apply_pattern_threshold"`
	PatternLearnThreshold     float64 `mapstructure:"pattern_learn_threshold"`
	DefaultPatternConfidence  float64 `mapstructure:"default_pattern_confidence"`
	LookbackDays              int     `mapstructure:"lookback_days"`
	GraceDays                 int     `mapstructure:"grace_days"`
	UpcomingDays              int     `mapstructure:"upcoming_days"`
	ApplyChunkSize            int     `mapstructure:"apply_chunk_size"`
	TestSampleLimit           int     `mapstructure:"test_sample_limit"`
	MaxRetryCount             int     `mapstructure:"max_retry_count"`
	LockTTLSeconds            int     `mapstructure:"lock_ttl_seconds"`

	// AutoApproveIntervalSeconds enables the background auto-approve sweep when positive.
	AutoApproveIntervalSeconds int `mapstructure:"auto_approve_interval_seconds"`
}

// MaxTestSampleLimit caps the sample matches a rule dry run returns.
const MaxTestSampleLimit = 10

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.database", "fintrack")
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.extraction_reviewed", "fintrack.extraction.reviewed")
	v.SetDefault("kafka.topic.rule_applied", "fintrack.rule.applied")
	v.SetDefault("kafka.topic.subscription_created", "fintrack.subscription.created")

	v.SetDefault("business.auto_approve_threshold", 0.9)
	v.SetDefault("business.auto_apply_pattern_threshold", 0.75)
	v.SetDefault("business.pattern_learn_threshold", 0.7)
	v.SetDefault("business.default_pattern_confidence", 0.8)
	v.SetDefault("business.lookback_days", 365)
	v.SetDefault("business.grace_days", 6)
	v.SetDefault("business.upcoming_days", 14)
	v.SetDefault("business.apply_chunk_size", 500)
	v.SetDefault("business.test_sample_limit", 10)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.lock_ttl_seconds", 30)
	v.SetDefault("business.auto_approve_interval_seconds", 0)
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// defaults only, nothing to fail on
	_ = v.Unmarshal(cfg)
	return cfg
}

// LoadConfig reads the YAML config file. An empty path loads defaults plus FINTRACK_* environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FINTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects thresholds outside [0,1] and non-positive windows.
func (c *Config) Validate() error {
	b := c.Business
	for name, v := range map[string]float64{
		"auto_approve_threshold":       b.AutoApproveThreshold,
		"auto_apply_pattern_threshold": b.AutoApplyPatternThreshold,
		"pattern_learn_threshold":      b.PatternLearnThreshold,
		"default_pattern_confidence":   b.DefaultPatternConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("business.%s must be within [0,1], got %v", name, v)
		}
	}
	if b.LookbackDays <= 0 || b.ApplyChunkSize <= 0 || b.TestSampleLimit <= 0 {
		return fmt.Errorf("business.lookback_days, apply_chunk_size and test_sample_limit must be positive")
	}
	if b.TestSampleLimit > MaxTestSampleLimit {
		return fmt.Errorf("business.test_sample_limit must be at most %d, got %d", MaxTestSampleLimit, b.TestSampleLimit)
	}
	if b.GraceDays < 0 || b.UpcomingDays < 0 {
		return fmt.Errorf("business.grace_days and upcoming_days must not be negative")
	}
	return nil
}
