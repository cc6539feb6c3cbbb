// Package config loads EISME's configuration from a YAML file with
// environment-variable overrides, following the nested-struct plus
// mapstructure-tag plus env-prefix pattern in
// 0xtitan6-polymarket-mm/internal/config/config.go.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration object.
type Config struct {
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// KafkaConfig names the broker, topics, and consumer groups the Log
// Consumer and Request Submitter use. Environment overrides use the
// RELAYER_-prefixed key names (RELAYER_KAFKA_BROKERS,
// RELAYER_KAFKA_EVENT_LOG_TOPIC, ...); original_source's names
// (BROKER, CORE_EVENT_LOG, ARCHIVER_KAFKA_GROUP) are not read.
type KafkaConfig struct {
	Brokers          []string      `mapstructure:"brokers"`
	EventLogTopic    string        `mapstructure:"event_log_topic"`
	ClientReqTopic   string        `mapstructure:"client_request_topic"`
	ArchiverGroup    string        `mapstructure:"archiver_group"`
	CatchupInterval  int64         `mapstructure:"catchup_interval"`
	BatchChannelSize int           `mapstructure:"batch_channel_size"`
	CommitInterval   time.Duration `mapstructure:"commit_interval"`
}

type PostgresConfig struct {
	DSN        string        `mapstructure:"dsn"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	PoolSize   int           `mapstructure:"pool_size"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

type RPCConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr"`
	WSListenAddr     string        `mapstructure:"ws_listen_addr"`
	SubmitListenAddr string        `mapstructure:"submit_listen_addr"`
	CandleIntervals  []string      `mapstructure:"candle_intervals"`
	FanoutBuffer     int           `mapstructure:"fanout_buffer"`
	CoalesceWindow   time.Duration `mapstructure:"coalesce_window"`
}

// RiskConfig carries over the teacher's internal/risk.Config shape,
// repurposed by internal/submit as Request Submitter precondition
// limits rather than equities position/value risk limits.
type RiskConfig struct {
	MaxLeverage      int64   `mapstructure:"max_leverage"`
	MaxPositionSize  int64   `mapstructure:"max_position_size"`
	PriceBandPercent float64 `mapstructure:"price_band_percent"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load reads the config file at path, applies RELAYER_-prefixed
// environment overrides, and validates required fields.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RELAYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kafka.event_log_topic", "CoreEventLogTopic")
	v.SetDefault("kafka.archiver_group", "Archiver")
	v.SetDefault("kafka.catchup_interval", 500)
	v.SetDefault("kafka.batch_channel_size", 256)
	v.SetDefault("kafka.commit_interval", 2*time.Second)
	v.SetDefault("postgres.max_retries", 5)
	v.SetDefault("postgres.retry_delay", 200*time.Millisecond)
	v.SetDefault("postgres.pool_size", 10)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("rpc.listen_addr", "0.0.0.0:8989")
	v.SetDefault("rpc.ws_listen_addr", "0.0.0.0:8990")
	v.SetDefault("rpc.submit_listen_addr", "0.0.0.0:8991")
	v.SetDefault("rpc.candle_intervals", []string{"1m", "5m"})
	v.SetDefault("rpc.fanout_buffer", 20)
	v.SetDefault("rpc.coalesce_window", 250*time.Millisecond)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn must be set")
	}
	return nil
}
