// Package config handles BA-AI configuration loading.
//
// Configuration comes from a single YAML file discovered automatically
// (or named via -config), with environment variables expanded inside the
// file and a small set of well-known variables applied as overrides after
// load. The resulting Config is read-only once the server has started.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/ba-ai/config.yaml, /etc/ba-ai/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ba-ai", "config.yaml"))
	}

	paths = append(paths, "/etc/ba-ai/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all BA-AI configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	BaseURL    string           `yaml:"base_url"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Models     ModelsConfig     `yaml:"models"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Tools      ToolsConfig      `yaml:"tools"`
	Memory     MemoryConfig     `yaml:"memory"`
	Cache      CacheConfig      `yaml:"cache"`
	Media      MediaConfig      `yaml:"media"`
	DataDir    string           `yaml:"data_dir"`
	FilesRoot  string           `yaml:"files_root"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"` // "text" or "json"
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// OllamaConfig defines the model backend connection.
type OllamaConfig struct {
	URL string `yaml:"url"`
	// HeadersTimeoutMS bounds the wait for response headers on streaming
	// calls. BodyTimeoutMS bounds a whole blocking call.
	HeadersTimeoutMS int    `yaml:"headers_timeout_ms"`
	BodyTimeoutMS    int    `yaml:"body_timeout_ms"`
	KeepAlive        string `yaml:"keep_alive"` // e.g. "10m", "-1" to pin
}

// ModelsConfig maps pipeline roles to backend model names and carries
// the per-model attempt deadlines used by the generation supervisor.
type ModelsConfig struct {
	Chat     string `yaml:"chat"`
	Reason   string `yaml:"reason"`
	Code     string `yaml:"code"`
	Fast     string `yaml:"fast"`
	Grammar  string `yaml:"grammar"`
	Vision   string `yaml:"vision"`
	Planner  string `yaml:"planner"`
	Reranker string `yaml:"reranker"`
	Reviewer string `yaml:"reviewer"`

	// AttemptTimeoutSec is the default per-attempt deadline for streamed
	// generation. Models listed in NoDeadline are exempt (the reasoning
	// model thinks as long as it needs). PerModelTimeoutSec overrides the
	// default for specific models.
	AttemptTimeoutSec  int            `yaml:"attempt_timeout_sec"`
	PerModelTimeoutSec map[string]int `yaml:"per_model_timeout_sec"`
	NoDeadline         []string       `yaml:"no_deadline"`
}

// AttemptTimeout returns the per-attempt deadline for a model, or zero if
// the model is exempt from deadlines.
func (m ModelsConfig) AttemptTimeout(model string) time.Duration {
	for _, name := range m.NoDeadline {
		if name == model {
			return 0
		}
	}
	if sec, ok := m.PerModelTimeoutSec[model]; ok {
		return time.Duration(sec) * time.Second
	}
	return time.Duration(m.AttemptTimeoutSec) * time.Second
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"` // Embedding model name (e.g., nomic-embed-text)
}

// SearchConfig defines web search engine settings.
type SearchConfig struct {
	// Engine selects the primary engine: serpapi, searxng, or duckduckgo.
	// On failure or empty results the manager falls through the remaining
	// engines in that order.
	Engine     string `yaml:"engine"`
	APIKey     string `yaml:"api_key"`
	SearxngURL string `yaml:"searxng_url"`
	MaxResults int    `yaml:"max_results"`
}

// ToolsConfig defines the tool subsystem.
type ToolsConfig struct {
	Enabled  bool `yaml:"enabled"`
	SafeMode bool `yaml:"safe_mode"`

	PythonBin string `yaml:"python_bin"`
	NodeBin   string `yaml:"node_bin"`
	DenoBin   string `yaml:"deno_bin"`

	// SQLitePath is the local relational store served by the sql tool.
	SQLitePath string `yaml:"sqlite_path"`

	ScriptTimeoutSec int `yaml:"script_timeout_sec"`
	JSTimeoutSec     int `yaml:"js_timeout_sec"`
	MaxInputChars    int `yaml:"max_input_chars"`
}

// MemoryConfig bounds the conversation tracker and the durable store.
type MemoryConfig struct {
	MaxEntries     int     `yaml:"max_entries"`
	WindowSize     int     `yaml:"window_size"`
	SummaryEvery   int     `yaml:"summary_every"`
	DefaultTTLDays int     `yaml:"default_ttl_days"`
	MinRecallScore float64 `yaml:"min_recall_score"`
}

// CacheConfig bounds the response cache.
type CacheConfig struct {
	MaxEntries        int     `yaml:"max_entries"`
	TTLHours          int     `yaml:"ttl_hours"`
	FastTTLHours      int     `yaml:"fast_ttl_hours"`
	SemanticThreshold float64 `yaml:"semantic_threshold"`
}

// MediaConfig defines the external media pipeline.
type MediaConfig struct {
	A1111URL   string `yaml:"a1111_url"`
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// Load reads configuration from a YAML file, expands environment
// variables in its text, and applies the well-known override variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// Default returns a complete default configuration. Every knob has a
// working value so the server can start with no config file at all.
func Default() *Config {
	return &Config{
		Listen:  ListenConfig{Port: 8080},
		BaseURL: "http://localhost:8080",
		Ollama: OllamaConfig{
			URL:              "http://localhost:11434",
			HeadersTimeoutMS: 15000,
			BodyTimeoutMS:    120000,
			KeepAlive:        "10m",
		},
		Models: ModelsConfig{
			Chat:              "qwen3:8b",
			Reason:            "deepseek-r1:14b",
			Code:              "qwen2.5-coder:14b",
			Fast:              "qwen3:1.7b",
			Grammar:           "qwen3:1.7b",
			Vision:            "qwen2.5vl:7b",
			Planner:           "qwen3:1.7b",
			Reranker:          "qwen3:1.7b",
			Reviewer:          "qwen3:8b",
			AttemptTimeoutSec: 90,
			NoDeadline:        []string{"deepseek-r1:14b"},
		},
		Embeddings: EmbeddingsConfig{
			Enabled: true,
			Model:   "nomic-embed-text",
		},
		Search: SearchConfig{
			Engine:     "duckduckgo",
			SearxngURL: "http://localhost:8888",
			MaxResults: 5,
		},
		Tools: ToolsConfig{
			Enabled:          true,
			SafeMode:         true,
			PythonBin:        "python3",
			NodeBin:          "node",
			SQLitePath:       "",
			ScriptTimeoutSec: 12,
			JSTimeoutSec:     2,
			MaxInputChars:    12000,
		},
		Memory: MemoryConfig{
			MaxEntries:     500,
			WindowSize:     15,
			SummaryEvery:   8,
			DefaultTTLDays: 30,
			MinRecallScore: 1.0,
		},
		Cache: CacheConfig{
			MaxEntries:        500,
			TTLHours:          12,
			FastTTLHours:      168,
			SemanticThreshold: 0.92,
		},
		Media: MediaConfig{
			FFmpegPath: "ffmpeg",
		},
		DataDir:   "data",
		FilesRoot: ".",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// ApplyEnv overlays the well-known environment variables onto the config.
// Environment wins over file values so deployments can retarget the
// backend without editing YAML. Load calls this automatically; it is
// exported for callers that start from [Default].
func (c *Config) ApplyEnv() {
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Ollama.URL = v
	}
	if v := os.Getenv("OLLAMA_HEADERS_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ollama.HeadersTimeoutMS = n
		}
	}
	if v := os.Getenv("OLLAMA_BODY_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Ollama.BodyTimeoutMS = n
		}
	}
	if v := os.Getenv("OLLAMA_KEEP_ALIVE"); v != "" {
		c.Ollama.KeepAlive = v
	}
	if v := os.Getenv("SEARCH_API"); v != "" {
		c.Search.Engine = v
	}
	if v := os.Getenv("SEARCH_API_KEY"); v != "" {
		c.Search.APIKey = v
	}
	if v := os.Getenv("SEARXNG_URL"); v != "" {
		c.Search.SearxngURL = v
	}
	if v := os.Getenv("A1111_URL"); v != "" {
		c.Media.A1111URL = v
	}
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		c.Media.FFmpegPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Listen.Port = n
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
}
