package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kaiwa/data/db/kaiwa.db"
	}
	if cfg.Storage.RedisAddr == "" {
		cfg.Storage.RedisAddr = "localhost:6379"
	}
	if cfg.Storage.RedisPrefix == "" {
		cfg.Storage.RedisPrefix = "kaiwa"
	}

	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "memory"
	}
	if cfg.Vector.BoltPath == "" {
		cfg.Vector.BoltPath = "/usr/local/var/kaiwa/data/indices/vectors.bolt"
	}
	if cfg.Vector.QdrantAddr == "" {
		cfg.Vector.QdrantAddr = "localhost:6334"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "hash"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}

	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 500
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 50
	}
	if cfg.Retrieval.SectionMaxWords == 0 {
		cfg.Retrieval.SectionMaxWords = 600
	}
	if cfg.Retrieval.SectionChunkSize == 0 {
		cfg.Retrieval.SectionChunkSize = 400
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 5
	}
	if cfg.Retrieval.ContextK == 0 {
		cfg.Retrieval.ContextK = 4
	}

	if cfg.QuestionBank.PersonalizedTTL == 0 {
		cfg.QuestionBank.PersonalizedTTL = 7 * 24 * time.Hour
	}
	if cfg.QuestionBank.DefaultPersonalizedSize == 0 {
		cfg.QuestionBank.DefaultPersonalizedSize = 20
	}
	if cfg.QuestionBank.Domain == "" {
		cfg.QuestionBank.Domain = "AI/ML"
	}

	if cfg.Interview.Style == "" {
		cfg.Interview.Style = "menu"
	}
	if cfg.Interview.SectionLimit == 0 {
		cfg.Interview.SectionLimit = 5
	}
	if cfg.Interview.MaxQuestions == 0 {
		cfg.Interview.MaxQuestions = 10
	}
	if cfg.Interview.SessionTTL == 0 {
		cfg.Interview.SessionTTL = 24 * time.Hour
	}
	if cfg.Interview.Categories == nil {
		cfg.Interview.Categories = []string{"self_introduction", "technical", "behavioral", "soft_skills", "scenario"}
	}

	if cfg.Feedback.ScoringPolicy == "" {
		cfg.Feedback.ScoringPolicy = "star_weighted"
	}
	if cfg.Feedback.Judge == "" {
		if len(cfg.LLM.Providers) > 0 {
			cfg.Feedback.Judge = "llm"
		} else {
			cfg.Feedback.Judge = "heuristic"
		}
	}
	if cfg.Feedback.JudgeTimeout == 0 {
		cfg.Feedback.JudgeTimeout = 30 * time.Second
	}
	if cfg.Feedback.TopN == 0 {
		cfg.Feedback.TopN = 3
	}
	if cfg.Feedback.TopN > 5 {
		cfg.Feedback.TopN = 5
	}

	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1000
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.7
	}
	if cfg.LLM.RequestsPerSecond == 0 {
		cfg.LLM.RequestsPerSecond = 2
	}

	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "kaiwa"
	}
}
