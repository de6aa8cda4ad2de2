package config

import "time"

// Default timing and sizing used throughout the coordinator
const (
	// DefaultHistoryWindow is how many recent messages a chat turn sees
	DefaultHistoryWindow = 10

	// DefaultJobTimeout bounds one generation job, retries included
	DefaultJobTimeout = 5 * time.Minute

	// DefaultStuckJobAge is how long a job may sit in pending or in_progress
	// before the janitor fails it
	DefaultStuckJobAge = 15 * time.Minute

	// DefaultSessionMaxAge is how long an idle session is retained
	DefaultSessionMaxAge = 24 * time.Hour

	// DefaultCleanupInterval is how often the janitor sweeps
	DefaultCleanupInterval = 10 * time.Minute

	// DefaultPollCacheTTL is how long a GET session response is reused
	DefaultPollCacheTTL = 500 * time.Millisecond

	// DefaultMaxConcurrentJobs bounds in-process generation jobs
	DefaultMaxConcurrentJobs = 8

	// DefaultLLMTimeout bounds one LLM HTTP call
	DefaultLLMTimeout = 2 * time.Minute

	// DefaultHTTPReadTimeout and DefaultHTTPWriteTimeout bound API requests
	DefaultHTTPReadTimeout  = 10 * time.Second
	DefaultHTTPWriteTimeout = 3 * time.Minute

	// DefaultShutdownTimeout bounds graceful shutdown of the servers
	DefaultShutdownTimeout = 10 * time.Second
)
