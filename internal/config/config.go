package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"paxth/internal/contentfilter"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ScraperConfig struct {
	UserAgents    []string `yaml:"userAgents"`
	TimeoutMs     int      `yaml:"timeoutMs"`
	MaxRetries    int      `yaml:"maxRetries"`
	BackoffBaseMs int      `yaml:"backoffBaseMs"`
	RespectRobots bool     `yaml:"respectRobots"`
}

// Viewport is one candidate browser window size.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// BrowserConfig controls the headless-browser variant.
type BrowserConfig struct {
	Enabled              bool       `yaml:"enabled"`
	ControlURL           string     `yaml:"controlURL"`
	Bin                  string     `yaml:"bin"`
	SettleMs             int        `yaml:"settleMs"`
	MaxClicksPerSelector int        `yaml:"maxClicksPerSelector"`
	MaxClicksPerText     int        `yaml:"maxClicksPerText"`
	MaxScrollSteps       int        `yaml:"maxScrollSteps"`
	Viewports            []Viewport `yaml:"viewports"`
}

type Crawl4AIConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"baseURL"`
	APIToken string `yaml:"apiToken"`
}

type FirecrawlConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type GoogleLLMConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type LLMConfig struct {
	DefaultProvider string          `yaml:"defaultProvider"`
	OpenAI          OpenAIConfig    `yaml:"openai"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Google          GoogleLLMConfig `yaml:"google"`
	TimeoutMs       int             `yaml:"timeoutMs"`
	MaxContentChars int             `yaml:"maxContentChars"`
	MaxContextChars int             `yaml:"maxContextChars"`
}

// FilterConfig tunes the content filter. Empty pattern tables keep the
// built-in ones.
type FilterConfig struct {
	MinViableSize int                    `yaml:"minViableSize"`
	KeepTextLen   int                    `yaml:"keepTextLen"`
	Patterns      contentfilter.Patterns `yaml:"patterns"`
}

// ArtifactsConfig selects where normalized page text is persisted.
type ArtifactsConfig struct {
	Backend     string `yaml:"backend"`
	Dir         string `yaml:"dir"`
	RedisPrefix string `yaml:"redisPrefix"`
	TTLHours    int    `yaml:"ttlHours"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"perMinute"`
}

// RetentionConfig bounds how long stored runs are kept.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	RunDays                int  `yaml:"runDays"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
}

// CatalogConfig points at an optional YAML file replacing the built-in
// category table.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Browser   BrowserConfig   `yaml:"browser"`
	Crawl4AI  Crawl4AIConfig  `yaml:"crawl4ai"`
	Firecrawl FirecrawlConfig `yaml:"firecrawl"`
	LLM       LLMConfig       `yaml:"llm"`
	Filter    FilterConfig    `yaml:"filter"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Retention RetentionConfig `yaml:"retention"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// Load reads path, overlays credentials from the environment and fills
// defaults. An empty path yields a config built from environment and
// defaults only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.Defaults()
	return &cfg, nil
}

// ApplyEnv overlays values from lookup (normally os.LookupEnv). Set
// variables win over the file.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	set(&c.Firecrawl.APIKey, "FIRECRAWL_API_KEY")
	set(&c.LLM.OpenAI.APIKey, "DEEPSEEK_API_KEY", "LLM_API_KEY")
	set(&c.Database.DSN, "PAXTH_DATABASE_DSN")
	set(&c.Redis.URL, "PAXTH_REDIS_URL")
	set(&c.Crawl4AI.BaseURL, "CRAWL4AI_BASE_URL")
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Scraper.TimeoutMs <= 0 {
		c.Scraper.TimeoutMs = 60000
	}
	if c.Scraper.MaxRetries <= 0 {
		c.Scraper.MaxRetries = 3
	}
	if c.Scraper.BackoffBaseMs <= 0 {
		c.Scraper.BackoffBaseMs = 1000
	}
	if c.Browser.SettleMs <= 0 {
		c.Browser.SettleMs = 1000
	}
	if c.Browser.MaxClicksPerSelector <= 0 {
		c.Browser.MaxClicksPerSelector = 10
	}
	if c.Browser.MaxClicksPerText <= 0 {
		c.Browser.MaxClicksPerText = 5
	}
	if c.Browser.MaxScrollSteps <= 0 {
		c.Browser.MaxScrollSteps = 20
	}
	if c.Crawl4AI.BaseURL != "" {
		c.Crawl4AI.Enabled = true
	}
	if c.Firecrawl.BaseURL == "" {
		c.Firecrawl.BaseURL = "https://api.firecrawl.dev/v1"
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "openai"
	}
	if c.LLM.OpenAI.BaseURL == "" {
		c.LLM.OpenAI.BaseURL = "https://api.deepseek.com"
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = "deepseek-chat"
	}
	if c.LLM.TimeoutMs <= 0 {
		c.LLM.TimeoutMs = 120000
	}
	if c.LLM.MaxContentChars <= 0 {
		c.LLM.MaxContentChars = 15000
	}
	if c.LLM.MaxContextChars <= 0 {
		c.LLM.MaxContextChars = 3000
	}
	if c.Filter.MinViableSize <= 0 {
		c.Filter.MinViableSize = contentfilter.MinViableSize
	}
	if c.Filter.KeepTextLen <= 0 {
		c.Filter.KeepTextLen = contentfilter.DefaultKeepTextLen
	}
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = "file"
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "mdfiles"
	}
	if c.Retention.Enabled && c.Retention.RunDays <= 0 {
		c.Retention.RunDays = 30
	}
	if c.Retention.CleanupIntervalMinutes <= 0 {
		c.Retention.CleanupIntervalMinutes = 60
	}
	if c.RateLimit.PerMinute < 0 {
		c.RateLimit.PerMinute = 0
	}
}

// ScrapeTimeout is the per-attempt request timeout.
func (c *Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutMs) * time.Millisecond
}
