// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port              string
	FrontendURL       string
	StoreEngine       string // "sqlite" or "json"
	DBPath            string
	ProgressNamespace string
	Agents            AgentConfig
	Timeouts          TimeoutConfig
	CelebrationDelay  time.Duration
	AckDelay          time.Duration
	MaxEvidenceBytes  int64
	RateLimit         RateLimitConfig
	ConversationLog   ConversationLogConfig
}

// AgentConfig selects the gateway transport and the four agent identifiers.
type AgentConfig struct {
	BaseURL        string
	GrpcAddr       string
	APIKey         string
	OrchestratorID string
	RecommenderID  string
	VerifierID     string
	ModeratorID    string
}

// TimeoutConfig bounds each flow's wait on the gateway.
type TimeoutConfig struct {
	Chat       time.Duration
	Recommend  time.Duration
	Verify     time.Duration
	Moderation time.Duration
	Upload     time.Duration
}

// RateLimitConfig throttles agent-backed endpoints.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		StoreEngine:       strings.ToLower(getEnv("STORE_ENGINE", "sqlite")),
		DBPath:            getEnv("DB_PATH", "./data/mindx.db"),
		ProgressNamespace: getEnv("PROGRESS_NAMESPACE", "mindx_user_data"),
		Agents: AgentConfig{
			BaseURL:        getEnv("AGENT_BASE_URL", ""),
			GrpcAddr:       getEnv("AGENT_GRPC_ADDR", ""),
			APIKey:         getEnv("AGENT_API_KEY", ""),
			OrchestratorID: getEnv("AGENT_ORCHESTRATOR_ID", "6985a1d78ce1fc653cfdee3e"),
			RecommenderID:  getEnv("AGENT_TASK_RECOMMENDER_ID", "6985a1fb7551cb7920ffe9c1"),
			VerifierID:     getEnv("AGENT_EVIDENCE_VERIFIER_ID", "6985a22db37fff3a03c07c51"),
			ModeratorID:    getEnv("AGENT_MODERATOR_ID", "6985a256f7f7d3ffa5d8664d"),
		},
		Timeouts: TimeoutConfig{
			Chat:       getEnvDuration("CHAT_TIMEOUT", 30*time.Second),
			Recommend:  getEnvDuration("RECOMMEND_TIMEOUT", 45*time.Second),
			Verify:     getEnvDuration("VERIFY_TIMEOUT", 60*time.Second),
			Moderation: getEnvDuration("MODERATION_TIMEOUT", 20*time.Second),
			Upload:     getEnvDuration("UPLOAD_TIMEOUT", 60*time.Second),
		},
		CelebrationDelay: getEnvDuration("CELEBRATION_DELAY", 3*time.Second),
		AckDelay:         getEnvDuration("ACK_DELAY", 3*time.Second),
		MaxEvidenceBytes: int64(getEnvInt("MAX_EVIDENCE_BYTES", 10<<20)),
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.StoreEngine != "sqlite" && c.StoreEngine != "json" {
		return fmt.Errorf("STORE_ENGINE must be sqlite or json, got %q", c.StoreEngine)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ProgressNamespace == "" {
		return fmt.Errorf("PROGRESS_NAMESPACE cannot be empty")
	}
	if c.Agents.OrchestratorID == "" || c.Agents.RecommenderID == "" ||
		c.Agents.VerifierID == "" || c.Agents.ModeratorID == "" {
		return fmt.Errorf("all four agent ids must be set")
	}
	for name, d := range map[string]time.Duration{
		"CHAT_TIMEOUT":       c.Timeouts.Chat,
		"RECOMMEND_TIMEOUT":  c.Timeouts.Recommend,
		"VERIFY_TIMEOUT":     c.Timeouts.Verify,
		"MODERATION_TIMEOUT": c.Timeouts.Moderation,
		"UPLOAD_TIMEOUT":     c.Timeouts.Upload,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if c.MaxEvidenceBytes <= 0 {
		return fmt.Errorf("MAX_EVIDENCE_BYTES must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
