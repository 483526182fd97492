package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Arxiv       ArxivConfig    `toml:"arxiv"`
	Analysis    AnalysisConfig `toml:"analysis"`
	Backends    BackendsConfig `toml:"backends"`
	Gemini      GeminiConfig   `toml:"gemini"`
	Claude      ClaudeConfig   `toml:"claude"`
	DeepSeek    DeepSeekConfig `toml:"deepseek"`
	Report      ReportConfig   `toml:"report"`
	SMTP        SMTPConfig     `toml:"smtp"`
	Storage     StorageConfig  `toml:"storage"`
	Schedule    ScheduleConfig `toml:"schedule"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ArxivConfig controls paper harvesting from the arXiv API
type ArxivConfig struct {
	Categories     []string `toml:"categories"`       // e.g. ["cs.AI", "cs.LG", "cs.CL"]
	Keywords       []string `toml:"keywords"`         // Optional title/abstract pre-filter; empty = keep all
	MaxPapers      int      `toml:"max_papers"`       // Max results per harvest
	SearchDays     int      `toml:"search_days"`      // Look-back window in days
	BaseURL        string   `toml:"base_url"`         // arXiv API endpoint
	RequestTimeout string   `toml:"request_timeout"`  // e.g. "30s"
	PapersDir      string   `toml:"papers_dir"`       // Temp directory for downloaded PDFs
	MaxContentLen  int      `toml:"max_content_len"`  // Char cap on extracted full text before analysis
	DownloadDelay  string   `toml:"download_delay"`   // Min delay between PDF downloads
}

// AnalysisConfig controls the two-stage ranking/analysis pipeline
type AnalysisConfig struct {
	TwoStage           bool    `toml:"two_stage"`           // false = legacy direct batch analysis
	WindowSize         int     `toml:"window_size"`         // Stage 1 sliding window size
	StepSize           int     `toml:"step_size"`           // Stage 1 window advance step
	PromotionThreshold float64 `toml:"promotion_threshold"` // Min aggregated score for deep analysis
	MaxPromote         int     `toml:"max_promote"`         // Max papers promoted to stage 2
	BatchSize          int     `toml:"batch_size"`          // Papers per deep-analysis backend call
	Workers            int     `toml:"workers"`             // Analysis pool size (backend calls)
	IOMultiplier       int     `toml:"io_multiplier"`       // I/O pool size = workers * io_multiplier
	FetchFullText      bool    `toml:"fetch_full_text"`     // Attempt PDF full-text fetch in stage 2
}

// BackendsConfig controls backend selection and failure handling
type BackendsConfig struct {
	Preference      []string `toml:"preference"`        // Fallback order, e.g. ["deepseek", "gemini", "claude"]
	Pinned          string   `toml:"pinned"`            // Non-empty pins a single backend
	MaxFailures     int      `toml:"max_failures"`      // Consecutive failures before a backend is disabled
	ResetWindow     string   `toml:"reset_window"`      // Disabled backends re-enable after this elapses
	CallTimeout     string   `toml:"call_timeout"`      // Per backend call timeout
	MaxAttempts     int      `toml:"max_attempts"`      // Batch retry ceiling through the fallback sequence
	SweepExemptKind []string `toml:"sweep_exempt_kinds"` // Failure kinds excluded from the recovery sweep
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	RateLimit   string  `toml:"rate_limit"` // Min interval between requests, e.g. "4s"
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	RateLimit   string  `toml:"rate_limit"`
}

// DeepSeekConfig covers any OpenAI-compatible endpoint; BaseURL defaults to DeepSeek
type DeepSeekConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	RateLimit   string  `toml:"rate_limit"`
}

// ReportConfig controls report generation and delivery
type ReportConfig struct {
	Title      string `toml:"title"`
	OutputDir  string `toml:"output_dir"` // HTML/Markdown reports written here
	SendEmail  bool   `toml:"send_email"`
	RepoURL    string `toml:"repo_url"` // Optional footer link
}

type SMTPConfig struct {
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	From     string   `toml:"from"`
	FromName string   `toml:"from_name"`
	To       []string `toml:"to"`
	UseTLS   bool     `toml:"use_tls"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// ScheduleConfig controls optional recurring runs
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"` // Standard 5-field cron expression
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns a Config populated with defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Arxiv: ArxivConfig{
			Categories:     []string{"cs.AI", "cs.LG", "cs.CL"},
			MaxPapers:      50,
			SearchDays:     2,
			BaseURL:        "https://export.arxiv.org/api/query",
			RequestTimeout: "30s",
			PapersDir:      "./storage/papers",
			MaxContentLen:  80000,
			DownloadDelay:  "3s",
		},
		Analysis: AnalysisConfig{
			TwoStage:           true,
			WindowSize:         10,
			StepSize:           5,
			PromotionThreshold: 3.5,
			MaxPromote:         20,
			BatchSize:          5,
			Workers:            4,
			IOMultiplier:       4,
			FetchFullText:      true,
		},
		Backends: BackendsConfig{
			Preference:      []string{"deepseek", "gemini", "claude"},
			MaxFailures:     3,
			ResetWindow:     "10m",
			CallTimeout:     "2m",
			MaxAttempts:     3,
			SweepExemptKind: []string{"content_policy"},
		},
		Gemini: GeminiConfig{
			Model:       "gemini-3-flash-preview",
			MaxTokens:   8192,
			Temperature: 0.5,
			RateLimit:   "4s",
		},
		Claude: ClaudeConfig{
			Model:       "claude-3-5-haiku-20241022",
			MaxTokens:   8192,
			Temperature: 0.5,
			RateLimit:   "1s",
		},
		DeepSeek: DeepSeekConfig{
			Model:       "deepseek-chat",
			BaseURL:     "https://api.deepseek.com/v1",
			MaxTokens:   8192,
			Temperature: 0.5,
			RateLimit:   "1s",
		},
		Report: ReportConfig{
			Title:     "Daily arXiv Digest",
			OutputDir: "./storage/reports",
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "Indago",
			UseTLS:   true,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./storage/indago.db",
			},
		},
		Schedule: ScheduleConfig{
			Cron: "0 8 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variables over the file configuration
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("INDAGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// API keys are the usual env-provided values
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("DEEPSEEK_API_KEY"); key != "" {
		config.DeepSeek.APIKey = key
	}

	if cats := os.Getenv("INDAGO_ARXIV_CATEGORIES"); cats != "" {
		config.Arxiv.Categories = splitList(cats)
	}
	if maxPapers := os.Getenv("INDAGO_ARXIV_MAX_PAPERS"); maxPapers != "" {
		if n, err := strconv.Atoi(maxPapers); err == nil {
			config.Arxiv.MaxPapers = n
		}
	}
	if days := os.Getenv("INDAGO_ARXIV_SEARCH_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			config.Arxiv.SearchDays = n
		}
	}

	if workers := os.Getenv("INDAGO_ANALYSIS_WORKERS"); workers != "" {
		if n, err := strconv.Atoi(workers); err == nil {
			config.Analysis.Workers = n
		}
	}
	if pinned := os.Getenv("INDAGO_BACKEND"); pinned != "" {
		config.Backends.Pinned = pinned
	}

	if host := os.Getenv("INDAGO_SMTP_HOST"); host != "" {
		config.SMTP.Host = host
	}
	if port := os.Getenv("INDAGO_SMTP_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			config.SMTP.Port = n
		}
	}
	if user := os.Getenv("INDAGO_SMTP_USERNAME"); user != "" {
		config.SMTP.Username = user
	}
	if pass := os.Getenv("INDAGO_SMTP_PASSWORD"); pass != "" {
		config.SMTP.Password = pass
	}
	if from := os.Getenv("INDAGO_SMTP_FROM"); from != "" {
		config.SMTP.From = from
	}
	if to := os.Getenv("INDAGO_SMTP_TO"); to != "" {
		config.SMTP.To = splitList(to)
	}

	if level := os.Getenv("INDAGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// Validate checks configuration consistency before a run starts
func (c *Config) Validate() error {
	if c.Analysis.WindowSize <= 0 {
		return fmt.Errorf("analysis.window_size must be positive, got %d", c.Analysis.WindowSize)
	}
	if c.Analysis.StepSize <= 0 {
		return fmt.Errorf("analysis.step_size must be positive, got %d", c.Analysis.StepSize)
	}
	if c.Analysis.StepSize > c.Analysis.WindowSize {
		return fmt.Errorf("analysis.step_size (%d) must not exceed analysis.window_size (%d)",
			c.Analysis.StepSize, c.Analysis.WindowSize)
	}
	if c.Analysis.BatchSize <= 0 {
		return fmt.Errorf("analysis.batch_size must be positive, got %d", c.Analysis.BatchSize)
	}
	if c.Analysis.Workers <= 0 {
		return fmt.Errorf("analysis.workers must be positive, got %d", c.Analysis.Workers)
	}
	if c.Analysis.IOMultiplier <= 0 {
		return fmt.Errorf("analysis.io_multiplier must be positive, got %d", c.Analysis.IOMultiplier)
	}
	if c.Backends.MaxFailures <= 0 {
		return fmt.Errorf("backends.max_failures must be positive, got %d", c.Backends.MaxFailures)
	}
	if _, err := time.ParseDuration(c.Backends.ResetWindow); err != nil {
		return fmt.Errorf("invalid backends.reset_window %q: %w", c.Backends.ResetWindow, err)
	}
	if _, err := time.ParseDuration(c.Backends.CallTimeout); err != nil {
		return fmt.Errorf("invalid backends.call_timeout %q: %w", c.Backends.CallTimeout, err)
	}
	if len(c.Arxiv.Categories) == 0 {
		return fmt.Errorf("arxiv.categories must not be empty")
	}
	return nil
}

// ParseDurationOr parses a duration string, falling back on parse failure
func ParseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
