package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Database  DatabaseConfig
	Engine    EngineConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
	// StatusCacheTTL bounds how stale the batch status snapshot may get.
	StatusCacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topics  TopicConfig
	Enabled bool
}

type TopicConfig struct {
	BidPlaced    string
	BidOutbid    string
	AuctionEnded string
	AuctionSold  string
}

func (t TopicConfig) All() []string {
	return []string{t.BidPlaced, t.BidOutbid, t.AuctionEnded, t.AuctionSold}
}

type DatabaseConfig struct {
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// ProxyTieBreak selects which proxy wins when two outstanding proxies carry
// an identical ceiling.
type ProxyTieBreak string

const (
	ProxyTieEarliest ProxyTieBreak = "earliest"
	ProxyTieLatest   ProxyTieBreak = "latest"
)

// EngineConfig carries the bidding policy knobs injected into the auction
// engine and the lifecycle scheduler at construction.
type EngineConfig struct {
	AllowedBidderRoles      []string
	PreventDuplicateHighest bool
	// MaxBidLimit of zero means no global cap.
	MaxBidLimit          decimal.Decimal
	AntiSnipingWindow    time.Duration
	AntiSnipingExtension time.Duration
	BuyNowEnabled        bool
	ProxyTieBreak        ProxyTieBreak
}

type SchedulerConfig struct {
	SweepInterval time.Duration
	// SweepLockTTL guards against overlapping sweeps from multiple replicas.
	SweepLockTTL time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", "localhost:6379"),
			StatusCacheTTL: getEnvDuration("STATUS_CACHE_TTL", 2*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				BidPlaced:    getEnv("KAFKA_TOPIC_BID_PLACED", "bid_placed"),
				BidOutbid:    getEnv("KAFKA_TOPIC_BID_OUTBID", "bid_outbid"),
				AuctionEnded: getEnv("KAFKA_TOPIC_AUCTION_ENDED", "auction_ended"),
				AuctionSold:  getEnv("KAFKA_TOPIC_AUCTION_SOLD", "auction_sold"),
			},
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USER", "auctionuser"),
			Password:     getEnv("DB_PASSWORD", "auctionpass"),
			Database:     getEnv("DB_NAME", "auctiondb"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvDuration("DB_MAX_LIFETIME", 30*time.Minute),
		},
		Engine: EngineConfig{
			AllowedBidderRoles:      strings.Split(getEnv("ALLOWED_BIDDER_ROLES", "bidder,member"), ","),
			PreventDuplicateHighest: getEnvBool("PREVENT_DUPLICATE_HIGHEST", true),
			MaxBidLimit:             getEnvDecimal("MAX_BID_LIMIT", decimal.Zero),
			AntiSnipingWindow:       getEnvDuration("ANTI_SNIPING_WINDOW", 5*time.Minute),
			AntiSnipingExtension:    getEnvDuration("ANTI_SNIPING_EXTENSION", 10*time.Minute),
			BuyNowEnabled:           getEnvBool("BUY_NOW_ENABLED", true),
			ProxyTieBreak:           ProxyTieBreak(getEnv("PROXY_TIE_BREAK", string(ProxyTieEarliest))),
		},
		Scheduler: SchedulerConfig{
			SweepInterval: getEnvDuration("SWEEP_INTERVAL", 30*time.Second),
			SweepLockTTL:  getEnvDuration("SWEEP_LOCK_TTL", 25*time.Second),
		},
	}
}

// DSN builds the Postgres connection string for the configured database.
func (d DatabaseConfig) DSN() string {
	return "postgres://" + d.Username + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.Database + "?sslmode=disable"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if parsed, err := decimal.NewFromString(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
