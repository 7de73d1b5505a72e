package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Razorpay RazorpayConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Observ   ObservabilityConfig
	Business BusinessConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

// RazorpayConfig holds processor credentials. KeySecret doubles as the HMAC
// secret for checkout completion notices.
type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig wires the event topic. A message the worker fails to handle
// MaxAttempts times in a row is moved to TopicDeadLetter.
type KafkaConfig struct {
	Brokers         []string
	TopicEvents     string
	TopicDeadLetter string
	ConsumerGroup   string
	MaxAttempts     int
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

type BusinessConfig struct {
	DefaultCurrency     string
	CustomerPageSize    int
	CustomerMaxPages    int
	CustomerLockTTL     time.Duration
	CustomerLockWait    time.Duration
	VerifyLiveStatus    bool
	WebhookDedupeWindow time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	pageSize, _ := strconv.Atoi(getEnv("CUSTOMER_PAGE_SIZE", "100"))
	maxPages, _ := strconv.Atoi(getEnv("CUSTOMER_MAX_PAGES", "50"))
	lockTTL, _ := strconv.Atoi(getEnv("CUSTOMER_LOCK_TTL_SECONDS", "10"))
	lockWait, _ := strconv.Atoi(getEnv("CUSTOMER_LOCK_WAIT_MS", "3000"))
	dedupeHours, _ := strconv.Atoi(getEnv("WEBHOOK_DEDUPE_TTL_HOURS", "24"))
	maxAttempts, _ := strconv.Atoi(getEnv("KAFKA_HANDLER_MAX_ATTEMPTS", "5"))
	verifyLive, err := strconv.ParseBool(getEnv("VERIFY_LIVE_PAYMENT_STATUS", "true"))
	if err != nil {
		verifyLive = true
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "5001"),
			Env:  getEnv("ENV", "development"),
		},
		Razorpay: RazorpayConfig{
			KeyID:         getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: getEnv("RAZORPAY_WEBHOOK_SECRET", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:         splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			TopicEvents:     getEnv("KAFKA_TOPIC_PAYMENT_EVENTS", "razorpay-events"),
			TopicDeadLetter: getEnv("KAFKA_TOPIC_DEAD_LETTER", "razorpay-events-dlq"),
			ConsumerGroup:   getEnv("KAFKA_CONSUMER_GROUP", "payment-gateway-group"),
			MaxAttempts:     maxAttempts,
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
		Business: BusinessConfig{
			DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "INR"),
			CustomerPageSize:    pageSize,
			CustomerMaxPages:    maxPages,
			CustomerLockTTL:     time.Duration(lockTTL) * time.Second,
			CustomerLockWait:    time.Duration(lockWait) * time.Millisecond,
			VerifyLiveStatus:    verifyLive,
			WebhookDedupeWindow: time.Duration(dedupeHours) * time.Hour,
		},
	}

	if cfg.Razorpay.KeySecret == "" {
		log.Printf("RAZORPAY_KEY_SECRET is empty; every signature check will fail")
	}

	log.Printf("Config loaded: env=%s, port=%s", cfg.Server.Env, cfg.Server.Port)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// splitList turns a comma separated value into a list, dropping blanks so an
// empty variable disables the feature instead of yielding [""].
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
