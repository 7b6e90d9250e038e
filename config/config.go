package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port            string
	MongoURL        string
	MongoDB         string
	PaymentTTL      time.Duration
	SweepInterval   time.Duration
	PollTimeoutSecs int
}

func Load() Config {
	return Config{
		Port:            getEnv("PORT", "3001"),
		MongoURL:        getEnv("MONGO_URL", "mongodb://localhost:27017"),
		MongoDB:         getEnv("MONGO_DB", "payment_bot"),
		PaymentTTL:      getDuration("PAYMENT_TTL", 10*time.Minute),
		SweepInterval:   getDuration("SWEEP_INTERVAL", 45*time.Second),
		PollTimeoutSecs: getInt("POLL_TIMEOUT_SECS", 30),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
