package main

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BackendURL         string
	HTTPPort           string
	StateDBPath        string
	RedisAddr          string
	RedisPassword      string
	CacheNamespace     string
	KafkaBrokers       string
	KafkaTopic         string
	CountryCode        string
	PollInterval       time.Duration
	PollBudget         time.Duration
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	BreakerMaxFailures uint32
}

// loadConfig reads the environment after merging envFile into it. Variables
// already set win over the file.
func loadConfig(envFile string) *Config {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			log.Printf("failed to load %s: %v", envFile, err)
		}
	}

	return &Config{
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8000"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		StateDBPath:        getEnv("STATE_DB_PATH", "storefront.db"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		CacheNamespace:     getEnv("CACHE_NAMESPACE", "default"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "storefront-payments"),
		CountryCode:        getEnv("MPESA_COUNTRY_CODE", "254"),
		PollInterval:       getDuration("PAYMENT_POLL_INTERVAL", 3*time.Second),
		PollBudget:         getDuration("PAYMENT_POLL_BUDGET", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    10 * time.Second,
		BreakerMaxFailures: uint32(getInt("BREAKER_MAX_FAILURES", 5)),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("invalid %s %q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("invalid %s %q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
