package types

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries every environment-provided setting of the gateway.
// Values are loaded once at startup and never mutated afterwards.
type Config struct {
	ServerAddr string

	PGHost   string
	PGPort   int
	PGUser   string
	PGPass   string
	PGDBName string

	AllowedOrigins  []string
	RateWindowSec   int
	RateMaxRequests int

	EmbedURL    string
	EmbedModel  string
	EmbedAPIKey string
	EmbedDim    int

	LLMURL    string
	LLMModel  string
	LLMAPIKey string

	TopK           int
	MaxInputChars  int
	MaxOutputChars int
	ChunkSize      int
	ChunkOverlap   int

	AdminToken string
}

func FromEnv() Config {
	return Config{
		ServerAddr:      envStr("SERVER_ADDR", ":8080"),
		PGHost:          envStr("PG_HOST", "localhost"),
		PGPort:          envInt("PG_PORT", 5432),
		PGUser:          envStr("PG_USER", "postgres"),
		PGPass:          envStr("PG_PASS", "postgres"),
		PGDBName:        envStr("PG_DB_NAME", "raggate"),
		AllowedOrigins:  splitList(os.Getenv("ALLOWED_ORIGINS")),
		RateWindowSec:   envInt("RATE_WINDOW_SEC", 60),
		RateMaxRequests: envInt("RATE_MAX_REQUESTS", 20),
		EmbedURL:        envStr("EMBED_URL", "https://api.openai.com/v1"),
		EmbedModel:      envStr("EMBED_MODEL", "text-embedding-3-small"),
		EmbedAPIKey:     os.Getenv("EMBED_API_KEY"),
		EmbedDim:        envInt("EMBED_DIM", 768),
		LLMURL:          envStr("LLM_URL", "https://api.openai.com/v1"),
		LLMModel:        envStr("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:       os.Getenv("LLM_API_KEY"),
		TopK:            envInt("TOP_K", 6),
		MaxInputChars:   envInt("MAX_INPUT_CHARS", 2000),
		MaxOutputChars:  envInt("MAX_OUTPUT_CHARS", 4000),
		ChunkSize:       envInt("CHUNK_SIZE", 1200),
		ChunkOverlap:    envInt("CHUNK_OVERLAP", 200),
		AdminToken:      os.Getenv("ADMIN_TOKEN"),
	}
}

// ConnString builds the Postgres connection string the same way the server
// has always done it.
func (c Config) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PGHost, c.PGPort, c.PGUser, c.PGPass, c.PGDBName)
}

// LoaderConfig configures the directory-watching document loader.
type LoaderConfig struct {
	SourceDir      string
	ArchiveDir     string
	BadDir         string
	MonitoringTime time.Duration
	GatewayURL     string
	AdminToken     string
}

func LoaderFromEnv() LoaderConfig {
	return LoaderConfig{
		SourceDir:      envStr("LOADER_SOURCE_DIR", "loader_data/source"),
		ArchiveDir:     envStr("LOADER_ARCHIVE_DIR", "loader_data/archive"),
		BadDir:         envStr("LOADER_BAD_DIR", "loader_data/bad"),
		MonitoringTime: time.Duration(envInt("LOADER_MONITORING_SEC", 3)) * time.Second,
		GatewayURL:     envStr("GATEWAY_URL", "http://localhost:8080"),
		AdminToken:     os.Getenv("ADMIN_TOKEN"),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
