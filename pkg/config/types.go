package config

import "time"

// AgentConfig declares one agent in YAML. Name comes from the map key.
type AgentConfig struct {
	Role      string `yaml:"role"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory,omitempty"`

	Keywords []string `yaml:"keywords"`
	Domain   string   `yaml:"domain"`

	PreferredTier string   `yaml:"preferred_tier,omitempty"`
	Tools         []string `yaml:"tools,omitempty"`

	SpecializationScore float64 `yaml:"specialization_score"`
	CollaborationScore  float64 `yaml:"collaboration_score"`

	Avatar string `yaml:"avatar,omitempty"`
	Color  string `yaml:"color,omitempty"`
}

// CapabilityConfig declares one LLM capability tier in YAML. The tier name
// comes from the map key.
type CapabilityConfig struct {
	// BaseURL of the OpenAI-compatible endpoint. Empty uses the provider
	// default.
	BaseURL string `yaml:"base_url,omitempty"`

	// APIKey for the endpoint, normally injected via {{.OPENAI_API_KEY}}.
	APIKey string `yaml:"api_key,omitempty"`

	ModelID      string  `yaml:"model_id"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	CostPerToken float64 `yaml:"cost_per_token"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins,omitempty"`
}

// DatabaseConfig holds the optional Postgres persistence settings. When
// URL is empty the system runs fully in-memory.
type DatabaseConfig struct {
	URL          string `yaml:"url,omitempty"`
	MaxOpenConns int    `yaml:"max_open_conns,omitempty"`
}

// KnowledgeConfig holds the retrieval settings.
type KnowledgeConfig struct {
	CrawlURLs      []string      `yaml:"crawl_urls,omitempty"`
	AllowedDomains []string      `yaml:"allowed_domains,omitempty"`
	ScrapeCacheTTL time.Duration `yaml:"scrape_cache_ttl,omitempty"`

	// Qdrant, when set, replaces the in-process vector store.
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig points knowledge search at a remote qdrant instance.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	UseTLS     bool   `yaml:"use_tls,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// CoordinatorConfig holds execution budgets and synthesis behavior.
type CoordinatorConfig struct {
	ExecutionTimeout  time.Duration `yaml:"execution_timeout,omitempty"`
	AgentTimeout      time.Duration `yaml:"agent_timeout,omitempty"`
	MaxTokens         int           `yaml:"max_tokens,omitempty"`
	MaxParallelAgents int           `yaml:"max_parallel_agents,omitempty"`
	CancelTimeout     time.Duration `yaml:"cancel_timeout,omitempty"`
	SynthesizeWithLLM bool          `yaml:"synthesize_with_llm,omitempty"`
}

// RouterConfig holds agent selection settings.
type RouterConfig struct {
	DefaultAgent      string `yaml:"default_agent,omitempty"`
	OrchestratorAgent string `yaml:"orchestrator_agent,omitempty"`
	TopK              int    `yaml:"top_k,omitempty"`
}

// RealtimeConfig holds session tracker settings.
type RealtimeConfig struct {
	// Retention keeps closed session snapshots addressable after close.
	Retention time.Duration `yaml:"retention,omitempty"`
}

// RetentionConfig controls the background cleanup loop.
type RetentionConfig struct {
	// SessionTTL is the idle age after which conversation sessions are
	// pruned from memory.
	SessionTTL time.Duration `yaml:"session_ttl,omitempty"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
}

// SystemConfig groups system-wide infrastructure settings.
type SystemConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Router      RouterConfig      `yaml:"router"`
	Realtime    RealtimeConfig    `yaml:"realtime"`
	Retention   RetentionConfig   `yaml:"retention"`
}

// EnsembleYAMLConfig represents the complete ensemble.yaml file structure.
type EnsembleYAMLConfig struct {
	System   *SystemConfig          `yaml:"system"`
	Agents   map[string]AgentConfig `yaml:"agents"`
	Defaults *Defaults              `yaml:"defaults"`
}

// CapabilitiesYAMLConfig represents the complete capabilities.yaml file
// structure.
type CapabilitiesYAMLConfig struct {
	Capabilities map[string]CapabilityConfig `yaml:"capabilities"`
}
