package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL      string
	WhatsAppStoreURL string
	OpenAIKey        string
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	Port             string
	Env              string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WhatsAppStoreURL: os.Getenv("WHATSAPP_STORE_URL"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		QdrantHost:       os.Getenv("QDRANT_HOST"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		Port:             os.Getenv("PORT"),
		Env:              os.Getenv("ENV"),
	}

	if port, err := strconv.Atoi(os.Getenv("QDRANT_PORT")); err == nil {
		cfg.QdrantPort = port
	}

	// Default values
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.QdrantHost == "" {
		cfg.QdrantHost = "localhost"
	}
	if cfg.QdrantPort == 0 {
		cfg.QdrantPort = 6334
	}
	if cfg.WhatsAppStoreURL == "" {
		// Default to main database if not specified
		cfg.WhatsAppStoreURL = cfg.DatabaseURL
	}

	return cfg
}
