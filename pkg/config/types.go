package config

import "time"

// WorkerConfig describes one domain worker: which registry tools it may
// invoke and which long-term-memory keyword bucket it reads.
type WorkerConfig struct {
	Name string `yaml:"name"`

	// AllowedTools is the registry allow-list. Invoking anything outside
	// this list is a permission error, never a silent no-op.
	AllowedTools []string `yaml:"allowed_tools"`

	// MemoryKeywords filters relevant_memories down to this worker's
	// domain before prompt injection.
	MemoryKeywords []string `yaml:"memory_keywords,omitempty"`

	// LLMProvider overrides the default provider for this worker.
	LLMProvider string `yaml:"llm_provider,omitempty"`

	// MultipleResults lets the worker call several tools in one pass
	// (utilities-style) and aggregate the payloads.
	MultipleResults bool `yaml:"multiple_results,omitempty"`
}

// LLMProviderConfig describes one OpenAI-compatible chat-completions endpoint.
type LLMProviderConfig struct {
	Name        string   `yaml:"name,omitempty"`
	BaseURL     string   `yaml:"base_url,omitempty"` // empty = provider default
	APIKeyEnv   string   `yaml:"api_key_env,omitempty"`
	Model       string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   *int64   `yaml:"max_tokens,omitempty"`
}

// ToolRegistryConfig configures the remote tool registry RPC client.
type ToolRegistryConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`         // per-call, default 60s
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"` // default 10s
	MaxRetries     int           `yaml:"max_retries,omitempty"`     // default 3
	ValidateArgs   bool          `yaml:"validate_args,omitempty"`   // schema-check args before invoke
}

// PIIConfig configures the local small-model redaction endpoint.
// The redactor is fail-open: on timeout or error the original text passes.
type PIIConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	Model    string        `yaml:"model,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"` // default 10s
}

// RedisConfig configures the short-term memory store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// AuditConfig configures the append-only JSON blob sink.
type AuditConfig struct {
	// Dir is the local fallback (and default) sink root.
	Dir string `yaml:"dir,omitempty"`
	// Disabled turns blob writing off entirely (tests).
	Disabled bool `yaml:"disabled,omitempty"`
}

// Limits bounds every loop in the graph. All counters in AgentState are
// monotonic per request and compared against these.
type Limits struct {
	MaxFeedbackRetries int           `yaml:"max_feedback_retries,omitempty"` // default 2
	MaxJoinPolls       int           `yaml:"max_join_polls,omitempty"`       // default 20
	JoinPollInterval   time.Duration `yaml:"join_poll_interval,omitempty"`   // default 500ms
	RecursionBudget    int           `yaml:"recursion_budget,omitempty"`     // default 50
	RequestDeadline    time.Duration `yaml:"request_deadline,omitempty"`     // default 120s
	STMWindow          int           `yaml:"stm_window,omitempty"`           // default 10
	MemoryTopK         int           `yaml:"memory_top_k,omitempty"`         // default 5
}

// Defaults holds system-wide fallbacks applied when components omit values.
type Defaults struct {
	LLMProvider string `yaml:"llm_provider,omitempty"`
}
