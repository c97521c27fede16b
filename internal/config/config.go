// Package config provides configuration loading and structs for the kaiwa server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug        bool               `yaml:"debug"`
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Vector       VectorConfig       `yaml:"vector"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	QuestionBank QuestionBankConfig `yaml:"question_bank"`
	Interview    InterviewConfig    `yaml:"interview"`
	Feedback     FeedbackConfig     `yaml:"feedback"`
	LLM          LLMConfig          `yaml:"llm"`
	Events       EventsConfig       `yaml:"events"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// StorageConfig selects where sessions, personalized banks and feedback live.
type StorageConfig struct {
	Backend      string `yaml:"backend"` // memory | sqlite | redis
	DatabasePath string `yaml:"database_path"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisDB      int    `yaml:"redis_db"`
	RedisPrefix  string `yaml:"redis_prefix"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	Backend    string `yaml:"backend"` // memory | bolt | qdrant
	BoltPath   string `yaml:"bolt_path"`
	QdrantAddr string `yaml:"qdrant_addr"`
}

// EmbeddingConfig holds embedding gateway settings.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // hash | openai
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Model             string        `yaml:"model"`
	Dimensions        int           `yaml:"dimensions"`
	BatchSize         int           `yaml:"batch_size"`
	CacheSize         int           `yaml:"cache_size"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxRetries        int           `yaml:"max_retries"`
}

// APIKey resolves the gateway key from the configured environment variable.
func (e *EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// RetrievalConfig holds chunking and query settings.
type RetrievalConfig struct {
	ChunkSize        int `yaml:"chunk_size"`
	ChunkOverlap     int `yaml:"chunk_overlap"`
	SectionMaxWords  int `yaml:"section_max_words"`
	SectionChunkSize int `yaml:"section_chunk_size"`
	DefaultK         int `yaml:"default_k"`
	ContextK         int `yaml:"context_k"`
}

// QuestionBankConfig holds general and personalized bank settings.
type QuestionBankConfig struct {
	CuratedPath             string        `yaml:"curated_path"`
	Watch                   bool          `yaml:"watch"`
	PersonalizedTTL         time.Duration `yaml:"personalized_ttl"`
	DefaultPersonalizedSize int           `yaml:"default_personalized_size"`
	Domain                  string        `yaml:"domain"`
}

// InterviewConfig holds session defaults.
type InterviewConfig struct {
	Style        string        `yaml:"style"` // menu | flat
	SectionLimit int           `yaml:"section_limit"`
	MaxQuestions int           `yaml:"max_questions"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	Categories   []string      `yaml:"categories"`
}

// FeedbackConfig holds scoring settings.
type FeedbackConfig struct {
	ScoringPolicy string        `yaml:"scoring_policy"` // mean | star_weighted
	Judge         string        `yaml:"judge"`          // llm | heuristic | none
	JudgeTimeout  time.Duration `yaml:"judge_timeout"`
	TopN          int           `yaml:"top_n"`
}

// LLMProvider is one OpenAI-compatible chat endpoint.
type LLMProvider struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// APIKey resolves the provider key from the configured environment variable.
func (p *LLMProvider) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// LLMConfig holds the ordered provider chain and shared call settings.
type LLMConfig struct {
	Providers         []LLMProvider `yaml:"providers"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       float64       `yaml:"temperature"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// EventsConfig holds lifecycle event publishing settings. Empty NATSURL disables publishing.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Load reads and parses the config file at path, expands paths, applies defaults and env overrides.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Vector.BoltPath = expandPath(cfg.Vector.BoltPath, configDir)
	if cfg.QuestionBank.CuratedPath != "" {
		cfg.QuestionBank.CuratedPath = expandPath(cfg.QuestionBank.CuratedPath, configDir)
	}

	return &cfg, nil
}

// Default returns a config with every default applied, for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects enum values the rest of the system does not understand.
func Validate(cfg *Config) error {
	checks := []struct {
		name  string
		value string
		allow []string
	}{
		{"storage.backend", cfg.Storage.Backend, []string{"memory", "sqlite", "redis"}},
		{"vector.backend", cfg.Vector.Backend, []string{"memory", "bolt", "qdrant"}},
		{"embedding.provider", cfg.Embedding.Provider, []string{"hash", "openai"}},
		{"interview.style", cfg.Interview.Style, []string{"menu", "flat"}},
		{"feedback.scoring_policy", cfg.Feedback.ScoringPolicy, []string{"mean", "star_weighted"}},
		{"feedback.judge", cfg.Feedback.Judge, []string{"llm", "heuristic", "none"}},
	}
	for _, c := range checks {
		ok := false
		for _, a := range c.allow {
			if c.value == a {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("invalid %s %q (want one of %s)", c.name, c.value, strings.Join(c.allow, ", "))
		}
	}
	if cfg.Retrieval.ChunkOverlap >= cfg.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			cfg.Retrieval.ChunkOverlap, cfg.Retrieval.ChunkSize)
	}
	return nil
}

// applyEnv lets deployment endpoints be overridden without editing the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("KAIWA_REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv("KAIWA_QDRANT_ADDR"); v != "" {
		cfg.Vector.QdrantAddr = v
	}
	if v := os.Getenv("KAIWA_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("KAIWA_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
