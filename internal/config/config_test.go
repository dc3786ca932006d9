package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPPort != "3001" {
		t.Errorf("HTTPPort = %q, want 3001", cfg.HTTPPort)
	}
	if cfg.WSPath != "/ws" {
		t.Errorf("WSPath = %q, want /ws", cfg.WSPath)
	}
	if cfg.STTProvider != "mock" {
		t.Errorf("STTProvider = %q, want mock", cfg.STTProvider)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval)
	}
	if cfg.ClientTimeout != 60*time.Second {
		t.Errorf("ClientTimeout = %v, want 60s", cfg.ClientTimeout)
	}
	if cfg.MinChunkBytes != 1024 {
		t.Errorf("MinChunkBytes = %d, want 1024", cfg.MinChunkBytes)
	}
	if cfg.MaxChunkBytes != 100*1024*1024 {
		t.Errorf("MaxChunkBytes = %d, want 100MiB", cfg.MaxChunkBytes)
	}
	if cfg.ContextEntries != 10 {
		t.Errorf("ContextEntries = %d, want 10", cfg.ContextEntries)
	}
	if cfg.AnalysisEvery != 5 {
		t.Errorf("AnalysisEvery = %d, want 5", cfg.AnalysisEvery)
	}
	if cfg.Kafka.Enabled {
		t.Error("Kafka enabled by default")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config fails validation: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("STT_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("HEARTBEAT_INTERVAL", "5s")
	t.Setenv("CLIENT_TIMEOUT", "12s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg := Load()

	if cfg.HTTPPort != "8080" {
		t.Errorf("HTTPPort = %q, want 8080", cfg.HTTPPort)
	}
	if cfg.STTProvider != "openai" || cfg.OpenAIKey != "sk-test" {
		t.Errorf("provider = %q key = %q", cfg.STTProvider, cfg.OpenAIKey)
	}
	if cfg.HeartbeatInterval != 5*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 5s", cfg.HeartbeatInterval)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MIN_CHUNK_BYTES", "not-a-number")
	t.Setenv("HEARTBEAT_INTERVAL", "soon")

	cfg := Load()
	if cfg.MinChunkBytes != 1024 {
		t.Errorf("MinChunkBytes = %d, want default 1024", cfg.MinChunkBytes)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want default 30s", cfg.HeartbeatInterval)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config { return Load() }

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.STTProvider = "azure" }},
		{"openai without key", func(c *Config) { c.STTProvider = "openai"; c.OpenAIKey = "" }},
		{"inverted chunk bounds", func(c *Config) { c.MaxChunkBytes = c.MinChunkBytes }},
		{"zero context entries", func(c *Config) { c.ContextEntries = 0 }},
		{"zero analysis cadence", func(c *Config) { c.AnalysisEvery = 0 }},
		{"timeout below heartbeat", func(c *Config) { c.ClientTimeout = c.HeartbeatInterval }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}
