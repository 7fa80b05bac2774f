package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Privacy   PrivacyConfig   `yaml:"privacy" mapstructure:"privacy"`
	NER       NERConfig       `yaml:"ner" mapstructure:"ner"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Security  SecurityConfig  `yaml:"security" mapstructure:"security"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Upstream  UpstreamConfig  `yaml:"upstream" mapstructure:"upstream"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	// Username and Password protect the /v1 API with basic auth when set.
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// PrivacyConfig contains redaction pipeline configuration
type PrivacyConfig struct {
	Enabled   bool     `yaml:"enabled" mapstructure:"enabled"`
	Detectors []string `yaml:"detectors" mapstructure:"detectors"`
	// Marker is the annotation appended to revealed values by Reveal and
	// stripped before every Redact and Restore.
	Marker               string   `yaml:"marker" mapstructure:"marker"`
	Blacklist            []string `yaml:"blacklist" mapstructure:"blacklist"`
	OrganizationSuffixes []string `yaml:"organization_suffixes" mapstructure:"organization_suffixes"`
	ProperNounFallback   string   `yaml:"proper_noun_fallback" mapstructure:"proper_noun_fallback"` // auto, always, never
	MaxInputBytes        int      `yaml:"max_input_bytes" mapstructure:"max_input_bytes"`
}

// NERConfig contains named-entity recognition configuration
type NERConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Backend   string        `yaml:"backend" mapstructure:"backend"` // http or onnx
	URL       string        `yaml:"url" mapstructure:"url"`
	HealthURL string        `yaml:"health_url" mapstructure:"health_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ModelPath string        `yaml:"model_path" mapstructure:"model_path"`
	VocabPath string        `yaml:"vocab_path" mapstructure:"vocab_path"`
	Labels    []string      `yaml:"labels" mapstructure:"labels"`
	MaxLength int           `yaml:"max_length" mapstructure:"max_length"`
	// LoadTimeout bounds how long one-shot runs wait for the recognizer.
	LoadTimeout time.Duration `yaml:"load_timeout" mapstructure:"load_timeout"`
}

// StorageConfig selects and configures the key/value backend
type StorageConfig struct {
	Backend      string `yaml:"backend" mapstructure:"backend"` // memory, file, badger, sqlite, postgres, redis
	Path         string `yaml:"path" mapstructure:"path"`
	RedisURL     string `yaml:"redis_url" mapstructure:"redis_url"`
	DatabaseURL  string `yaml:"database_url" mapstructure:"database_url"`
	AliasKey     string `yaml:"alias_key" mapstructure:"alias_key"`
	BlacklistKey string `yaml:"blacklist_key" mapstructure:"blacklist_key"`
	MaxOpenConns int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
}

// SecurityConfig contains request guardrails
type SecurityConfig struct {
	RateLimit struct {
		Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
		RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
		Burst          int  `yaml:"burst" mapstructure:"burst"`
	} `yaml:"rate_limit" mapstructure:"rate_limit"`
	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed.
	TrustedProxies []string `yaml:"trusted_proxies" mapstructure:"trusted_proxies"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// UpstreamConfig contains upstream service configuration
type UpstreamConfig struct {
	OpenAI    string        `yaml:"openai" mapstructure:"openai"`
	Anthropic string        `yaml:"anthropic" mapstructure:"anthropic"`
	Ollama    string        `yaml:"ollama" mapstructure:"ollama"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// RestoreResponses rewrites tokens in upstream responses back to originals.
	RestoreResponses bool `yaml:"restore_responses" mapstructure:"restore_responses"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Path           string   `yaml:"path" mapstructure:"path"`
	Username       string   `yaml:"username" mapstructure:"username"`
	Password       string   `yaml:"password" mapstructure:"password"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Events         struct {
		BroadcastRedactions  bool `yaml:"broadcast_redactions" mapstructure:"broadcast_redactions"`
		BroadcastRequests    bool `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// DefaultOrganizationSuffixes is the closed list of legal-entity suffixes
// recognised by the organization detector.
var DefaultOrganizationSuffixes = []string{
	"Pty Ltd", "Pty Limited", "Inc", "Incorporated", "Ltd", "Limited", "LLC", "LLP",
	"PLC", "GmbH", "AG", "Corp", "Corporation", "Co", "SA", "SAS", "BV", "NV", "Pte Ltd",
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Privacy: PrivacyConfig{
			Enabled:              true,
			Detectors:            []string{"all"},
			Marker:               " 🔒",
			OrganizationSuffixes: append([]string(nil), DefaultOrganizationSuffixes...),
			ProperNounFallback:   "auto",
			MaxInputBytes:        512 * 1024,
		},
		NER: NERConfig{
			Enabled:     false,
			Backend:     "http",
			URL:         "http://localhost:5005/ner",
			HealthURL:   "http://localhost:5005/health",
			Timeout:     2 * time.Second,
			ModelPath:   "./models/ner.onnx",
			VocabPath:   "./models/vocab.txt",
			Labels:      []string{"O", "B-MISC", "I-MISC", "B-PER", "I-PER", "B-ORG", "I-ORG", "B-LOC", "I-LOC"},
			MaxLength:   256,
			LoadTimeout: time.Minute,
		},
		Storage: StorageConfig{
			Backend:      "file",
			Path:         "data/lexmask.json",
			RedisURL:     "redis://localhost:6379/0",
			AliasKey:     "lexmask_entity_map",
			BlacklistKey: "lexmask_blacklist",
			MaxOpenConns: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upstream: UpstreamConfig{
			OpenAI:           "https://api.openai.com",
			Anthropic:        "https://api.anthropic.com",
			Ollama:           "http://localhost:11434",
			Timeout:          120 * time.Second,
			RestoreResponses: true,
		},
		WebSocket: WebSocketConfig{
			Enabled:        true,
			Path:           "/ws",
			AllowedOrigins: []string{"*"},
		},
	}

	cfg.Security.RateLimit.Enabled = true
	cfg.Security.RateLimit.RequestsPerMin = 120
	cfg.Security.RateLimit.Burst = 20

	cfg.Logging.File.Path = "logs/lexmask.log"

	cfg.WebSocket.Events.BroadcastRedactions = true
	cfg.WebSocket.Events.BroadcastRequests = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
