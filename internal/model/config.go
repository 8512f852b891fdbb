package model

import "time"

// Config is the full monitor configuration
type Config struct {
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Extractor ExtractorConfig `yaml:"extractor" mapstructure:"extractor"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// LedgerConfig configures the ledger collaborator client
type LedgerConfig struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ExtractorConfig configures the claim extractor.
// Mode "remote" talks to an extractor service over HTTP; "openai" and
// "ollama" run extraction in-process against an OpenAI-compatible API.
type ExtractorConfig struct {
	Mode    string        `yaml:"mode" mapstructure:"mode"`
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Model   string        `yaml:"model" mapstructure:"model"`
	APIKey  string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Rate limiting for extractor calls (requests per second + burst)
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`

	// Proxy settings for the remote mode
	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// MonitorConfig configures the orchestrator cycle
type MonitorConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	RetryCeiling   int           `yaml:"retry_ceiling" mapstructure:"retry_ceiling"`
	SessionWorkers int           `yaml:"session_workers" mapstructure:"session_workers"`
}

// StorageConfig configures the durable state directory
type StorageConfig struct {
	DataDir     string        `yaml:"data_dir" mapstructure:"data_dir"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl" mapstructure:"snapshot_ttl"`
}

// ServerConfig configures the operator-facing HTTP API
type ServerConfig struct {
	Addr           string  `yaml:"addr" mapstructure:"addr"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Ledger: LedgerConfig{
			BaseURL: "http://localhost:8001",
			Timeout: 10 * time.Second,
		},
		Extractor: ExtractorConfig{
			Mode:      "remote",
			BaseURL:   "http://localhost:8002",
			Model:     "llama3.1:8b",
			Timeout:   30 * time.Second,
			RateLimit: 5,
			RateBurst: 5,
		},
		Monitor: MonitorConfig{
			PollInterval:   5 * time.Second,
			RetryCeiling:   3,
			SessionWorkers: 4,
		},
		Storage: StorageConfig{
			DataDir:     "data",
			SnapshotTTL: 5 * time.Minute,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RateLimitRPS:   100,
			RateLimitBurst: 20,
		},
	}
}
