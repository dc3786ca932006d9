// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the full service configuration.
type Config struct {
	HTTPPort    string
	WSPath      string
	MetricsPort string

	DatabasePath string

	STTProvider string // "openai" or "mock"
	OpenAIKey   string
	OpenAIModel string
	Language    string

	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	SweepInterval     time.Duration

	MinChunkBytes int
	MaxChunkBytes int

	ContextEntries    int
	ContextPromptSize int
	AnalysisEvery     int

	Kafka KafkaConfig
}

// KafkaConfig configures the optional event mirror.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicHighlight  string
	Principal       string
}

// Load reads configuration from environment variables, applying
// defaults for anything unset. Invalid values fall back to defaults.
func Load() *Config {
	return &Config{
		HTTPPort:    envOrDefault("HTTP_PORT", "3001"),
		WSPath:      envOrDefault("WS_PATH", "/ws"),
		MetricsPort: envOrDefault("METRICS_PORT", "9091"),

		DatabasePath: envOrDefault("DATABASE_PATH", "devmeet.db"),

		STTProvider: envOrDefault("STT_PROVIDER", "mock"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: envOrDefault("OPENAI_WHISPER_MODEL", "whisper-1"),
		Language:    os.Getenv("TRANSCRIPTION_LANGUAGE"),

		HeartbeatInterval: envOrDefaultDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		ClientTimeout:     envOrDefaultDuration("CLIENT_TIMEOUT", 60*time.Second),
		SweepInterval:     envOrDefaultDuration("SWEEP_INTERVAL", 2*time.Second),

		MinChunkBytes: envOrDefaultInt("MIN_CHUNK_BYTES", 1024),
		MaxChunkBytes: envOrDefaultInt("MAX_CHUNK_BYTES", 100*1024*1024),

		ContextEntries:    envOrDefaultInt("CONTEXT_ENTRIES", 10),
		ContextPromptSize: envOrDefaultInt("CONTEXT_PROMPT_SIZE", 500),
		AnalysisEvery:     envOrDefaultInt("ANALYSIS_EVERY", 5),

		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "devmeet.transcript.final"),
			TopicHighlight:  envOrDefault("KAFKA_TOPIC_HIGHLIGHT", "devmeet.highlight"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", "svc-devmeet"),
		},
	}
}

// Validate checks the configuration for impossible combinations.
func (c *Config) Validate() error {
	if c.STTProvider != "openai" && c.STTProvider != "mock" {
		return fmt.Errorf("unknown STT provider %q", c.STTProvider)
	}
	if c.STTProvider == "openai" && c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
	}
	if c.MinChunkBytes < 0 || c.MaxChunkBytes <= c.MinChunkBytes {
		return fmt.Errorf("invalid chunk bounds: min=%d max=%d", c.MinChunkBytes, c.MaxChunkBytes)
	}
	if c.ContextEntries <= 0 {
		return fmt.Errorf("context entries must be positive, got %d", c.ContextEntries)
	}
	if c.AnalysisEvery <= 0 {
		return fmt.Errorf("analysis cadence must be positive, got %d", c.AnalysisEvery)
	}
	if c.ClientTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("client timeout %v must exceed heartbeat interval %v", c.ClientTimeout, c.HeartbeatInterval)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled but no brokers configured")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
