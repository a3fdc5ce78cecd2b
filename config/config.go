package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"fulfillment-service/pkg/database"

	"go.uber.org/zap"
)

type Config struct {
	HTTPPort string
	GRPCPort string
	DB       DB
	Redis    Redis
	Kafka    Kafka
	JWT      JWT
	Order    Order
	Cleanup  Cleanup
}

type DB struct {
	database.Config
}

type Redis struct {
	Enabled    bool
	Addr       string
	Password   string
	DB         int
	TTLSeconds int
}

type Kafka struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type JWT struct {
	Secret   string
	Issuer   string
	Audience string
}

type Order struct {
	TxTimeout      time.Duration
	MaxTxAttempts  int
	PriceTolerance string // десятичная строка, например "0.01"
}

type Cleanup struct {
	Enabled      bool
	CartIdleDays int
}

func Load(log *zap.Logger) *Config {
	redisEnabled := getEnvDefault("REDIS_ENABLED", "false") == "true"
	kafkaEnabled := getEnvDefault("KAFKA_ENABLED", "false") == "true"

	cfg := &Config{
		HTTPPort: getEnv("APP_PORT", log),
		GRPCPort: getEnvDefault("GRPC_HEALTH_PORT", ":9090"),
		DB: DB{
			Config: database.Config{
				Host:     getEnv("DB_HOST", log),
				Port:     getEnv("DB_PORT", log),
				User:     getEnv("DB_USER", log),
				Password: getEnv("DB_PASSWORD", log),
				Name:     getEnv("DB_NAME", log),
				SSLMode:  getEnv("DB_SSLMODE", log),
			},
		},
		Redis: Redis{Enabled: redisEnabled},
		Kafka: Kafka{Enabled: kafkaEnabled},
		JWT: JWT{
			Secret:   getEnv("JWT_ACCESS_SECRET", log),
			Issuer:   getEnv("JWT_ISSUER", log),
			Audience: getEnv("JWT_AUDIENCE", log),
		},
		Order: Order{
			TxTimeout:      parseDurationDefault(getEnvDefault("ORDER_TX_TIMEOUT", "10s"), 10*time.Second),
			MaxTxAttempts:  atoiDefault(getEnvDefault("ORDER_TX_MAX_ATTEMPTS", "3"), 3),
			PriceTolerance: getEnvDefault("ORDER_PRICE_TOLERANCE", "0.01"),
		},
		Cleanup: Cleanup{
			Enabled:      getEnvDefault("CLEANUP_ENABLED", "true") == "true",
			CartIdleDays: atoiDefault(getEnvDefault("CART_IDLE_DAYS", "30"), 30),
		},
	}

	// Redis и Kafka обязательны только если включены
	if redisEnabled {
		cfg.Redis.Addr = getEnv("REDIS_ADDR", log)
		cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
		cfg.Redis.DB = atoiDefault(getEnvDefault("REDIS_DB", "0"), 0)
		cfg.Redis.TTLSeconds = atoiDefault(getEnvDefault("CACHE_TTL_SECONDS", "60"), 60)
	}
	if kafkaEnabled {
		cfg.Kafka.Brokers = splitAndTrim(getEnv("KAFKA_BROKERS", log))
		cfg.Kafka.Topic = getEnv("KAFKA_TOPIC_ORDERS", log)
	}

	return cfg
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func getEnvDefault(key, def string) string {
	if val, exists := os.LookupEnv(key); exists && strings.TrimSpace(val) != "" {
		return val
	}
	return def
}

func parseDurationDefault(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		log.Printf("Ошибка парсинга длительности %q, используется %s", s, def)
		return def
	}
	return d
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		pt := strings.TrimSpace(p)
		if pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}
