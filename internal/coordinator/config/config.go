// Package config holds the coordinator's defaults and its runtime
// configuration, read from an optional HCL file and the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/AltairaLabs/diagram-studio/internal/retry"
)

// Store drivers
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config is the coordinator's runtime configuration
type Config struct {
	HTTPPort int
	// MCPTransport is "stdio", "sse" or "none"
	MCPTransport string
	MCPPort      int

	StoreDriver string
	SQLitePath  string

	// WorkerAddr, when set, sends jobs to a remote worker instead of
	// running them in process
	WorkerAddr string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration
	// RetryPolicy names the retry.Policy for model calls
	RetryPolicy string

	HistoryWindow     int
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	StuckJobAge       time.Duration
	SessionMaxAge     time.Duration
	CleanupInterval   time.Duration
	PollCacheTTL      time.Duration

	LogLevel slog.Level
}

// fileConfig is the HCL shape. Durations are strings like "5m".
type fileConfig struct {
	HTTPPort          *int    `hcl:"http_port,optional"`
	MCPTransport      *string `hcl:"mcp_transport,optional"`
	MCPPort           *int    `hcl:"mcp_port,optional"`
	StoreDriver       *string `hcl:"store_driver,optional"`
	SQLitePath        *string `hcl:"sqlite_path,optional"`
	WorkerAddr        *string `hcl:"worker_addr,optional"`
	LLMBaseURL        *string `hcl:"llm_base_url,optional"`
	LLMModel          *string `hcl:"llm_model,optional"`
	LLMTimeout        *string `hcl:"llm_timeout,optional"`
	RetryPolicy       *string `hcl:"retry_policy,optional"`
	HistoryWindow     *int    `hcl:"history_window,optional"`
	MaxConcurrentJobs *int    `hcl:"max_concurrent_jobs,optional"`
	JobTimeout        *string `hcl:"job_timeout,optional"`
	StuckJobAge       *string `hcl:"stuck_job_age,optional"`
	SessionMaxAge     *string `hcl:"session_max_age,optional"`
	CleanupInterval   *string `hcl:"cleanup_interval,optional"`
	PollCacheTTL      *string `hcl:"poll_cache_ttl,optional"`
	LogLevel          *string `hcl:"log_level,optional"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		HTTPPort:          8080,
		MCPTransport:      "none",
		MCPPort:           8081,
		StoreDriver:       StoreMemory,
		SQLitePath:        "data/sessions.db",
		LLMBaseURL:        "https://api.openai.com/v1",
		LLMModel:          "gpt-4o-mini",
		LLMTimeout:        DefaultLLMTimeout,
		RetryPolicy:       retry.PolicyDefault,
		HistoryWindow:     DefaultHistoryWindow,
		MaxConcurrentJobs: DefaultMaxConcurrentJobs,
		JobTimeout:        DefaultJobTimeout,
		StuckJobAge:       DefaultStuckJobAge,
		SessionMaxAge:     DefaultSessionMaxAge,
		CleanupInterval:   DefaultCleanupInterval,
		PollCacheTTL:      DefaultPollCacheTTL,
		LogLevel:          slog.LevelInfo,
	}
}

// Load builds the configuration from defaults, the HCL file at path (if
// path is not empty), then the environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var fc fileConfig
		if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
			return cfg, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		if err := cfg.apply(fc); err != nil {
			return cfg, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Parse decodes HCL source held in memory. filename must end in .hcl.
func Parse(filename string, src []byte) (Config, error) {
	cfg := Default()
	var fc fileConfig
	if err := hclsimple.Decode(filename, src, nil, &fc); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.apply(fc); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) apply(fc fileConfig) error {
	setInt(&c.HTTPPort, fc.HTTPPort)
	setString(&c.MCPTransport, fc.MCPTransport)
	setInt(&c.MCPPort, fc.MCPPort)
	setString(&c.StoreDriver, fc.StoreDriver)
	setString(&c.SQLitePath, fc.SQLitePath)
	setString(&c.WorkerAddr, fc.WorkerAddr)
	setString(&c.LLMBaseURL, fc.LLMBaseURL)
	setString(&c.LLMModel, fc.LLMModel)
	setString(&c.RetryPolicy, fc.RetryPolicy)
	setInt(&c.HistoryWindow, fc.HistoryWindow)
	setInt(&c.MaxConcurrentJobs, fc.MaxConcurrentJobs)

	durations := []struct {
		name string
		dst  *time.Duration
		src  *string
	}{
		{"llm_timeout", &c.LLMTimeout, fc.LLMTimeout},
		{"job_timeout", &c.JobTimeout, fc.JobTimeout},
		{"stuck_job_age", &c.StuckJobAge, fc.StuckJobAge},
		{"session_max_age", &c.SessionMaxAge, fc.SessionMaxAge},
		{"cleanup_interval", &c.CleanupInterval, fc.CleanupInterval},
		{"poll_cache_ttl", &c.PollCacheTTL, fc.PollCacheTTL},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, *d.src, err)
		}
		*d.dst = v
	}

	if fc.LogLevel != nil {
		if err := c.LogLevel.UnmarshalText([]byte(*fc.LogLevel)); err != nil {
			return fmt.Errorf("invalid log_level %q: %w", *fc.LogLevel, err)
		}
	}
	return nil
}

// applyEnv overlays environment variables read through lookup.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	if err := num("HTTP_PORT", &c.HTTPPort); err != nil {
		return err
	}
	if err := num("MCP_PORT", &c.MCPPort); err != nil {
		return err
	}
	if err := num("HISTORY_WINDOW", &c.HistoryWindow); err != nil {
		return err
	}
	str("MCP_TRANSPORT", &c.MCPTransport)
	str("STORE_DRIVER", &c.StoreDriver)
	str("SQLITE_PATH", &c.SQLitePath)
	str("WORKER_ADDR", &c.WorkerAddr)
	str("LLM_BASE_URL", &c.LLMBaseURL)
	str("LLM_API_KEY", &c.LLMAPIKey)
	str("LLM_MODEL", &c.LLMModel)
	str("LLM_RETRY_POLICY", &c.RetryPolicy)

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
		}
	}
	return nil
}

// Validate checks the configuration for values the coordinator cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("http port %d out of range", c.HTTPPort))
	}
	switch c.MCPTransport {
	case "stdio", "none":
	case "sse":
		if c.MCPPort <= 0 || c.MCPPort > 65535 || c.MCPPort == c.HTTPPort {
			errs = append(errs, fmt.Errorf("mcp port %d must be a free port distinct from the http port", c.MCPPort))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mcp transport %q", c.MCPTransport))
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite store needs a path"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.WorkerAddr != "" && c.StoreDriver != StoreSQLite {
		errs = append(errs, errors.New("a remote worker needs the sqlite store"))
	}
	if _, err := retry.PolicyByName(c.RetryPolicy); err != nil {
		errs = append(errs, err)
	}
	if c.HistoryWindow < 0 {
		errs = append(errs, errors.New("history window cannot be negative"))
	}
	if c.MaxConcurrentJobs <= 0 {
		errs = append(errs, errors.New("max concurrent jobs must be positive"))
	}
	if c.JobTimeout <= 0 {
		errs = append(errs, errors.New("job timeout must be positive"))
	}
	if c.StuckJobAge <= c.JobTimeout {
		errs = append(errs, fmt.Errorf("stuck job age %v must exceed job timeout %v", c.StuckJobAge, c.JobTimeout))
	}
	if c.SessionMaxAge <= 0 || c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("session max age and cleanup interval must be positive"))
	}
	return errors.Join(errs...)
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}
