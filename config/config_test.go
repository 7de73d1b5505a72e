package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("CUSTOMER_PAGE_SIZE", "")
	t.Setenv("VERIFY_LIVE_PAYMENT_STATUS", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("KAFKA_TOPIC_DEAD_LETTER", "")
	t.Setenv("KAFKA_HANDLER_MAX_ATTEMPTS", "")

	cfg := Load()

	assert.Equal(t, "5001", cfg.Server.Port)
	assert.Equal(t, "INR", cfg.Business.DefaultCurrency)
	assert.Equal(t, 100, cfg.Business.CustomerPageSize)
	assert.Equal(t, 10*time.Second, cfg.Business.CustomerLockTTL)
	assert.True(t, cfg.Business.VerifyLiveStatus)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "razorpay-events-dlq", cfg.Kafka.TopicDeadLetter)
	assert.Equal(t, 5, cfg.Kafka.MaxAttempts)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VERIFY_LIVE_PAYMENT_STATUS", "false")
	t.Setenv("CUSTOMER_LOCK_WAIT_MS", "250")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("KAFKA_HANDLER_MAX_ATTEMPTS", "8")

	cfg := Load()

	assert.False(t, cfg.Business.VerifyLiveStatus)
	assert.Equal(t, 250*time.Millisecond, cfg.Business.CustomerLockWait)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 8, cfg.Kafka.MaxAttempts)
}

func TestSplitListEmpty(t *testing.T) {
	assert.Empty(t, splitList(" , "))
}
