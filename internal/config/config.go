package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
)

// Config represents the complete notemesh configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Vault      VaultConfig      `yaml:"vault" json:"vault"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Tokenizer  TokenizerConfig  `yaml:"tokenizer" json:"tokenizer"`
	Context    ContextConfig    `yaml:"context" json:"context"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// VaultConfig selects the note vault and which files in it are notes.
type VaultConfig struct {
	Path       string   `yaml:"path" json:"path"`
	Extensions []string `yaml:"extensions" json:"extensions"`
	// Exclude holds substrings matched against a note's relative path and
	// file name. The ".*" entry excludes any hidden path segment.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexConfig configures the indexing transaction.
type IndexConfig struct {
	// DataDir holds the metadata files, vector index and backups.
	// Empty means <vault>/.notemesh.
	DataDir      string `yaml:"data_dir" json:"data_dir"`
	MaxBackups   int    `yaml:"max_backups" json:"max_backups"`
	ParseWorkers int    `yaml:"parse_workers" json:"parse_workers"`
}

// WatchConfig configures the change-watch scheduler.
type WatchConfig struct {
	Debounce     string `yaml:"debounce" json:"debounce"`
	StopTimeout  string `yaml:"stop_timeout" json:"stop_timeout"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	EventBuffer  int    `yaml:"event_buffer" json:"event_buffer"`
}

// EmbeddingsConfig configures the embedding provider behind semantic search.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	ChunkSize  int    `yaml:"chunk_size" json:"chunk_size"`
}

// TokenizerConfig selects how token counts are measured.
type TokenizerConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

// ContextConfig holds defaults for context packing.
type ContextConfig struct {
	MaxTokens          int `yaml:"max_tokens" json:"max_tokens"`
	MaxBacklinks       int `yaml:"max_backlinks" json:"max_backlinks"`
	MaxForwardLinks    int `yaml:"max_forward_links" json:"max_forward_links"`
	MaxSemanticRelated int `yaml:"max_semantic_related" json:"max_semantic_related"`
	MaxTagRelated      int `yaml:"max_tag_related" json:"max_tag_related"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	// MetricsAddr exposes Prometheus metrics when non-empty (e.g. ":9464").
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// defaultExcludePatterns are folders and names never indexed.
var defaultExcludePatterns = []string{
	".*",
	"99 Fleet",
	"Excalidraw",
	"_attachments",
	"templates",
	"linked_notes",
	".SynologyWorkingDirectory",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Vault: VaultConfig{
			Extensions: []string{".md"},
			Exclude:    append([]string(nil), defaultExcludePatterns...),
		},
		Index: IndexConfig{
			MaxBackups:   5,
			ParseWorkers: runtime.NumCPU(),
		},
		Watch: WatchConfig{
			Debounce:     "5s",
			StopTimeout:  "10s",
			PollInterval: "5s",
			EventBuffer:  1000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			Model:     "bge-m3",
			CacheSize: 1000,
			ChunkSize: 1000,
		},
		Tokenizer: TokenizerConfig{
			Provider: "tiktoken",
			Encoding: "cl100k_base",
		},
		Context: ContextConfig{
			MaxTokens:          100000,
			MaxBacklinks:       10,
			MaxForwardLinks:    10,
			MaxSemanticRelated: 5,
			MaxTagRelated:      5,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the user-level config path.
// Respects XDG_CONFIG_HOME, defaulting to ~/.config/notemesh/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "notemesh", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "notemesh", "config.yaml")
	}
	return filepath.Join(home, ".config", "notemesh", "config.yaml")
}

// ResolveVaultPath picks the vault directory: explicit flag, then
// OBSIDIAN_VAULT_PATH, then NOTEMESH_VAULT_PATH, then the working directory.
func ResolveVaultPath(explicit string) (string, error) {
	candidates := []string{
		explicit,
		os.Getenv("OBSIDIAN_VAULT_PATH"),
		os.Getenv("NOTEMESH_VAULT_PATH"),
	}
	path := ""
	for _, c := range candidates {
		if c != "" {
			path = c
			break
		}
	}
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		path = wd
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve vault path %s: %w", path, err)
	}
	if !dirExists(abs) {
		return "", fmt.Errorf("vault directory does not exist: %s", abs)
	}
	return abs, nil
}

// Load builds the configuration for the vault at vaultDir.
// Layers, lowest first: defaults, user config, vault config
// (.notemesh.yaml or .notemesh.yml), environment.
func Load(vaultDir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(vaultDir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if cfg.Vault.Path == "" {
		cfg.Vault.Path = vaultDir
	}
	if cfg.Index.DataDir == "" {
		cfg.Index.DataDir = filepath.Join(cfg.Vault.Path, ".notemesh")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := readYAML(configPath, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".notemesh.yaml", ".notemesh.yml"} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			var parsed Config
			if err := readYAML(p, &parsed); err != nil {
				return err
			}
			c.mergeWith(&parsed)
			return nil
		}
	}
	return nil
}

func readYAML(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrPermission) {
		return nerrors.New(nerrors.ErrCodeConfigPermission, "failed to read config file "+path, err).
			WithSuggestion("Check the file permissions.")
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith overlays the non-zero fields of other onto c.
// Exclude entries are appended so the defaults always apply.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Vault.Path != "" {
		c.Vault.Path = other.Vault.Path
	}
	if len(other.Vault.Extensions) > 0 {
		c.Vault.Extensions = other.Vault.Extensions
	}
	for _, e := range other.Vault.Exclude {
		if !slices.Contains(c.Vault.Exclude, e) {
			c.Vault.Exclude = append(c.Vault.Exclude, e)
		}
	}

	if other.Index.DataDir != "" {
		c.Index.DataDir = other.Index.DataDir
	}
	if other.Index.MaxBackups != 0 {
		c.Index.MaxBackups = other.Index.MaxBackups
	}
	if other.Index.ParseWorkers != 0 {
		c.Index.ParseWorkers = other.Index.ParseWorkers
	}

	if other.Watch.Debounce != "" {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.StopTimeout != "" {
		c.Watch.StopTimeout = other.Watch.StopTimeout
	}
	if other.Watch.PollInterval != "" {
		c.Watch.PollInterval = other.Watch.PollInterval
	}
	if other.Watch.EventBuffer != 0 {
		c.Watch.EventBuffer = other.Watch.EventBuffer
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.ChunkSize != 0 {
		c.Embeddings.ChunkSize = other.Embeddings.ChunkSize
	}

	if other.Tokenizer.Provider != "" {
		c.Tokenizer.Provider = other.Tokenizer.Provider
	}
	if other.Tokenizer.Encoding != "" {
		c.Tokenizer.Encoding = other.Tokenizer.Encoding
	}

	if other.Context.MaxTokens != 0 {
		c.Context.MaxTokens = other.Context.MaxTokens
	}
	if other.Context.MaxBacklinks != 0 {
		c.Context.MaxBacklinks = other.Context.MaxBacklinks
	}
	if other.Context.MaxForwardLinks != 0 {
		c.Context.MaxForwardLinks = other.Context.MaxForwardLinks
	}
	if other.Context.MaxSemanticRelated != 0 {
		c.Context.MaxSemanticRelated = other.Context.MaxSemanticRelated
	}
	if other.Context.MaxTagRelated != 0 {
		c.Context.MaxTagRelated = other.Context.MaxTagRelated
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.MetricsAddr != "" {
		c.Server.MetricsAddr = other.Server.MetricsAddr
	}
}

// applyEnvOverrides applies environment variables with highest priority.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NOTEMESH_DATA_DIR"); v != "" {
		c.Index.DataDir = v
	}
	if v := os.Getenv("NOTEMESH_MAX_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Index.MaxBackups = n
		}
	}
	if v := os.Getenv("NOTEMESH_DEBOUNCE"); v != "" {
		c.Watch.Debounce = v
	}
	if v := os.Getenv("NOTEMESH_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("NOTEMESH_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("NOTEMESH_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("NOTEMESH_TOKENIZER"); v != "" {
		c.Tokenizer.Provider = v
	}
	if v := os.Getenv("NOTEMESH_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("NOTEMESH_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"watch.debounce":      c.Watch.Debounce,
		"watch.stop_timeout":  c.Watch.StopTimeout,
		"watch.poll_interval": c.Watch.PollInterval,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s must be a duration, got %q", name, v)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, v)
		}
	}

	if c.Index.MaxBackups < 1 {
		return fmt.Errorf("index.max_backups must be at least 1, got %d", c.Index.MaxBackups)
	}
	if c.Index.ParseWorkers < 0 {
		return fmt.Errorf("index.parse_workers must be non-negative, got %d", c.Index.ParseWorkers)
	}
	if c.Embeddings.ChunkSize < 0 || c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.chunk_size and cache_size must be non-negative")
	}

	validProviders := map[string]bool{"static": true, "ollama": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %s", c.Embeddings.Provider)
	}

	validTokenizers := map[string]bool{"tiktoken": true, "estimate": true}
	if !validTokenizers[strings.ToLower(c.Tokenizer.Provider)] {
		return fmt.Errorf("tokenizer.provider must be 'tiktoken' or 'estimate', got %s", c.Tokenizer.Provider)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	ctx := c.Context
	if ctx.MaxTokens < 0 || ctx.MaxBacklinks < 0 || ctx.MaxForwardLinks < 0 ||
		ctx.MaxSemanticRelated < 0 || ctx.MaxTagRelated < 0 {
		return fmt.Errorf("context limits must be non-negative")
	}

	return nil
}

// DebounceDuration returns the parsed watch debounce.
func (c *Config) DebounceDuration() time.Duration {
	return parseDurationOr(c.Watch.Debounce, 5*time.Second)
}

// StopTimeoutDuration returns the parsed scheduler stop timeout.
func (c *Config) StopTimeoutDuration() time.Duration {
	return parseDurationOr(c.Watch.StopTimeout, 10*time.Second)
}

// PollIntervalDuration returns the parsed polling fallback interval.
func (c *Config) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.Watch.PollInterval, 5*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
