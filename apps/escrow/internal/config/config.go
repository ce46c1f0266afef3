package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"escrow/apps/escrow/internal/constants"
)

type Config struct {
	RpcURL         string
	DbURL          string
	RedisURL       string
	KafkaBroker    string
	KafkaTopic     string
	EscrowsDataURL string
	TokensDataURL  string
	PriceAPIURL    string
	FactoryAddress string
	BatchSize      int
	WatchInterval  int // seconds between receipt polls
	APIPort        int
}

// NewConfig loads configuration from environment variables. RedisURL and
// KafkaBroker are optional; leaving them empty disables the price cache and
// event publishing respectively.
func NewConfig() *Config {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	return &Config{
		RpcURL:         getEnvOrFatal("RPC_URL"),
		DbURL:          getEnvOrFatal("DB_URL"),
		RedisURL:       getEnv("REDIS_URL", ""),
		KafkaBroker:    getEnv("KAFKA_BROKER", ""),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "escrow-transactions"),
		EscrowsDataURL: getEnv("ESCROWS_DATA_URL", constants.DefaultEscrowsDataURL),
		TokensDataURL:  getEnv("TOKENS_DATA_URL", constants.DefaultTokensDataURL),
		PriceAPIURL:    getEnv("PRICE_API_URL", constants.DefiLlamaPriceAPI),
		FactoryAddress: getEnv("FACTORY_ADDRESS", constants.FactoryAddress),
		BatchSize:      getEnvInt("BATCH_SIZE", 20),
		WatchInterval:  getEnvInt("WATCH_INTERVAL", 12),
		APIPort:        getEnvInt("API_PORT", 8080),
	}
}

func getEnvOrFatal(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	log.Fatalf("Warning: environment variable %s not set", key)

	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
