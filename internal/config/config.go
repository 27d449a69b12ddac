package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "github.com/aislen404/mapabalizasv16/common/config"
)

const (
	FeedSourceDatex2 = "datex2"
	FeedSourceDGT3   = "dgt3"

	TaggingLiteral = "literal"
	TaggingStatus  = "status"

	DefaultDatex2URL = "https://nap.dgt.es/datex2/v3/dgt/SituationPublication/datex2_v36.xml"
)

// Config service configuration
type Config struct {
	HTTP struct {
		Addr string
	}
	DBEnabled bool
	Database  commoncfg.DatabaseConfig

	RedisEnabled bool
	Redis        commoncfg.RedisConfig

	Log struct {
		Level  string
		Format string
	}

	Feed    FeedConfig
	Cache   CacheConfig
	Poll    PollConfig
	Notify  NotifyConfig
	MQTT    MQTTConfig
	Metrics struct {
		Enabled bool
	}

	// ChangeTagging selects how changed rows are tagged in history
	ChangeTagging string
	ExportLimit   int
}

// FeedConfig upstream feed settings
type FeedConfig struct {
	Source     string
	Datex2URL  string
	APIURL     string
	APIToken   string
	Timeout    time.Duration
	RetryCount int

	BreakerFailures int
	BreakerOpen     time.Duration
}

// CacheConfig snapshot cache settings
type CacheConfig struct {
	TTL time.Duration
	Key string
}

// PollConfig background refresh; zero interval disables it
type PollConfig struct {
	Interval time.Duration
}

// NotifyConfig change event publishing
type NotifyConfig struct {
	Stream       string
	StreamMaxLen int64
}

// MQTTConfig change events over MQTT
type MQTTConfig struct {
	Enabled     bool
	Broker      commoncfg.MQTTConfig
	TopicPrefix string
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}

	addr := getEnv("HTTP_ADDR", "")
	if addr == "" {
		addr = ":" + getEnv("PORT", "3000")
	}
	cfg.HTTP.Addr = addr

	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "balizas_v16",
		SSLMode:  "disable",
		MaxConns: 20,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Feed.Source = getEnv("FEED_SOURCE", FeedSourceDatex2)
	cfg.Feed.Datex2URL = getEnv("DATEX2_URL", DefaultDatex2URL)
	cfg.Feed.APIURL = getEnv("DGT_API_URL", "")
	cfg.Feed.APIToken = getEnv("DGT_API_TOKEN", "")
	cfg.Feed.Timeout = time.Duration(parseInt(getEnv("FEED_TIMEOUT_SECONDS", "30"), 30)) * time.Second
	cfg.Feed.RetryCount = parseInt(getEnv("FEED_RETRY_COUNT", "2"), 2)
	cfg.Feed.BreakerFailures = parseInt(getEnv("FEED_BREAKER_FAILURES", "3"), 3)
	cfg.Feed.BreakerOpen = time.Duration(parseInt(getEnv("FEED_BREAKER_OPEN_SECONDS", "60"), 60)) * time.Second

	// CACHE_TTL is in milliseconds
	cfg.Cache.TTL = time.Duration(parseInt(getEnv("CACHE_TTL", "60000"), 60000)) * time.Millisecond
	cfg.Cache.Key = getEnv("CACHE_KEY", "balizas:v16:snapshot")

	cfg.Poll.Interval = time.Duration(parseInt(getEnv("POLL_INTERVAL_SECONDS", "0"), 0)) * time.Second

	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "balizas:changes")
	cfg.Notify.StreamMaxLen = int64(parseInt(getEnv("NOTIFY_STREAM_MAXLEN", "10000"), 10000))

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = commoncfg.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "balizas-v16",
		QoS:      1,
	}
	cfg.MQTT.Broker.LoadFromEnv("MQTT")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "balizas/v16")

	cfg.Metrics.Enabled = getEnv("METRICS_ENABLED", "true") == "true"
	cfg.ChangeTagging = getEnv("CHANGE_TAGGING", TaggingLiteral)
	cfg.ExportLimit = parseInt(getEnv("EXPORT_LIMIT", "10000"), 10000)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Feed.Source {
	case FeedSourceDatex2, FeedSourceDGT3:
	default:
		return fmt.Errorf("invalid FEED_SOURCE %q: want %q or %q", c.Feed.Source, FeedSourceDatex2, FeedSourceDGT3)
	}
	switch c.ChangeTagging {
	case TaggingLiteral, TaggingStatus:
	default:
		return fmt.Errorf("invalid CHANGE_TAGGING %q: want %q or %q", c.ChangeTagging, TaggingLiteral, TaggingStatus)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.Feed.BreakerFailures <= 0 {
		return fmt.Errorf("FEED_BREAKER_FAILURES must be positive")
	}
	if c.Feed.BreakerOpen <= 0 {
		return fmt.Errorf("FEED_BREAKER_OPEN_SECONDS must be positive")
	}
	if c.ExportLimit <= 0 {
		return fmt.Errorf("EXPORT_LIMIT must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
