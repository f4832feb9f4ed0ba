package model

import "time"

// Config holds the complete citeguard configuration
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Search      SearchConfig      `yaml:"search"`
	Verify      VerifyConfig      `yaml:"verify"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Output      OutputConfig      `yaml:"output"`
}

// LLMConfig configures the generative text provider used by the citation
// structurer and the match scorer's override path. An empty Provider
// disables generative extraction entirely (regex-only parsing).
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "openai", "anthropic", "ollama", ""
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Timeout   int    `yaml:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens"`
}

// SearchConfig configures the Searcher and identifier registries.
type SearchConfig struct {
	SearxURL          string        `yaml:"searx_url"` // SearXNG instance, empty disables web search
	UserAgent         string        `yaml:"user_agent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // per-domain rate limit
	Burst             int           `yaml:"burst"`
	CacheTTL          time.Duration `yaml:"cache_ttl"` // 0 disables result caching
}

// VerifyConfig bounds the verification pipeline.
type VerifyConfig struct {
	TaskTimeout     time.Duration `yaml:"task_timeout"` // budget for one batch verification task
	TaskMaxAge      time.Duration `yaml:"task_max_age"` // registry eviction threshold
	MaxQueries      int           `yaml:"max_queries"`  // search queries per citation
	ResultsPerQuery int           `yaml:"results_per_query"`
}

// ConcurrencyConfig bounds the batch file checker.
type ConcurrencyConfig struct {
	BatchWorkers int `yaml:"batch_workers"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	IncludeQueries bool `yaml:"include_queries"` // include search queries in reports
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   30,
			MaxTokens: 1024,
		},
		Search: SearchConfig{
			SearxURL:          "",
			UserAgent:         "citeguard/0.1 (+https://github.com/citeguard/citeguard)",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 2.0,
			Burst:             5,
			CacheTTL:          15 * time.Minute,
		},
		Verify: VerifyConfig{
			TaskTimeout:     120 * time.Second,
			TaskMaxAge:      time.Hour,
			MaxQueries:      4,
			ResultsPerQuery: 3,
		},
		Concurrency: ConcurrencyConfig{
			BatchWorkers: 3,
		},
		Output: OutputConfig{
			IncludeQueries: true,
		},
	}
}
