package dirac

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"

	defaults "github.com/dirac-sh/dirac/default"
)

// Config represents the user's dirac configuration.
type Config struct {
	Version    int              `toml:"version"`
	Prompt     string           `toml:"prompt"`
	History    HistoryConfig    `toml:"history"`
	Translator TranslatorConfig `toml:"translator"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Completion CompletionConfig `toml:"completion"`
}

// HistoryConfig holds settings for the persisted history log.
type HistoryConfig struct {
	Path  string `toml:"path"`
	Limit int    `toml:"limit"`
}

// TranslatorConfig holds settings for the natural-language translator API.
type TranslatorConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// EmbeddingConfig holds settings for the embedding API used by the
// recall index. Recall is disabled unless base_url is configured.
type EmbeddingConfig struct {
	BaseURL     string `toml:"base_url"`
	APIKey      string `toml:"api_key"`
	Model       string `toml:"model"`
	Dimensions  int    `toml:"dimensions"`
	MaxCommands int    `toml:"max_commands"`
	TTLMinutes  int    `toml:"ttl_minutes"`
}

// CompletionConfig holds settings for the completion engine.
type CompletionConfig struct {
	MaxCandidates int `toml:"max_candidates"`
	DirTTLMinutes int `toml:"dir_ttl_minutes"`
}

// ConfigDir returns the config directory path.
// Resolution order: $DIRAC_CONFIG_DIR > $XDG_CONFIG_HOME/dirac > ~/.config/dirac
func ConfigDir() string {
	if dir := os.Getenv("DIRAC_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "dirac")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "dirac-config")
	}
	return filepath.Join(home, ".config", "dirac")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// PromptPath returns the path of an optional custom translator prompt
// template that overrides the embedded default.
func PromptPath() string {
	return filepath.Join(ConfigDir(), "prompt.md")
}

// StateDir returns the directory for mutable state (history log, shell log).
// Resolution order: $DIRAC_STATE_DIR > $XDG_STATE_HOME/dirac > ~/.local/state/dirac
func StateDir() string {
	if dir := os.Getenv("DIRAC_STATE_DIR"); dir != "" {
		return dir
	}
	if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
		return filepath.Join(stateHome, "dirac")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "dirac-state")
	}
	return filepath.Join(home, ".local", "state", "dirac")
}

// DefaultConfig returns the default configuration from the embedded
// default_config.toml.
func DefaultConfig() *Config {
	var cfg Config
	if err := toml.Unmarshal(defaults.DefaultConfigTOML, &cfg); err != nil {
		panic("dirac: invalid embedded default_config.toml: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
// Missing fields are backfilled from the defaults.
func LoadConfig() (*Config, error) {
	return loadConfigFile(ConfigPath())
}

// LoadConfigFrom is LoadConfig with an explicit path.
func LoadConfigFrom(path string) (*Config, error) {
	return loadConfigFile(path)
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing fields
	def := DefaultConfig()
	if cfg.Prompt == "" {
		cfg.Prompt = def.Prompt
	}
	if cfg.History.Limit == 0 {
		cfg.History.Limit = def.History.Limit
	}
	if cfg.Translator.BaseURL == "" {
		cfg.Translator.BaseURL = def.Translator.BaseURL
	}
	if cfg.Translator.Model == "" {
		cfg.Translator.Model = def.Translator.Model
	}
	if cfg.Translator.TimeoutSeconds == 0 {
		cfg.Translator.TimeoutSeconds = def.Translator.TimeoutSeconds
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = def.Embedding.Dimensions
	}
	if cfg.Embedding.MaxCommands == 0 {
		cfg.Embedding.MaxCommands = def.Embedding.MaxCommands
	}
	if cfg.Embedding.TTLMinutes == 0 {
		cfg.Embedding.TTLMinutes = def.Embedding.TTLMinutes
	}
	if cfg.Completion.MaxCandidates == 0 {
		cfg.Completion.MaxCandidates = def.Completion.MaxCandidates
	}
	if cfg.Completion.DirTTLMinutes == 0 {
		cfg.Completion.DirTTLMinutes = def.Completion.DirTTLMinutes
	}

	return &cfg, nil
}

// HistoryPath returns the configured history log path, defaulting to
// <state dir>/history.jsonl.
func HistoryPath(cfg *Config) string {
	if cfg != nil && cfg.History.Path != "" {
		return cfg.History.Path
	}
	return filepath.Join(StateDir(), "history.jsonl")
}

// ResolveTranslatorBaseURL returns the translator API base URL.
// Priority: $DIRAC_TRANSLATOR_BASE_URL env > config value.
func ResolveTranslatorBaseURL(cfg *Config) string {
	if url := os.Getenv("DIRAC_TRANSLATOR_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Translator.BaseURL
	}
	return ""
}

// ResolveTranslatorAPIKey returns the translator API key.
// Priority: $DIRAC_TRANSLATOR_API_KEY env > config value.
func ResolveTranslatorAPIKey(cfg *Config) string {
	if key := os.Getenv("DIRAC_TRANSLATOR_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Translator.APIKey
	}
	return ""
}

// ResolveTranslatorModel returns the translator model name.
// Priority: $DIRAC_TRANSLATOR_MODEL env > config value.
func ResolveTranslatorModel(cfg *Config) string {
	if model := os.Getenv("DIRAC_TRANSLATOR_MODEL"); model != "" {
		return model
	}
	if cfg != nil {
		return cfg.Translator.Model
	}
	return ""
}

// ResolveTranslatorTimeout returns the translator timeout in seconds.
// Priority: $DIRAC_TRANSLATOR_TIMEOUT env > config value.
func ResolveTranslatorTimeout(cfg *Config) int {
	if v := os.Getenv("DIRAC_TRANSLATOR_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if cfg != nil {
		return cfg.Translator.TimeoutSeconds
	}
	return 0
}

// ResolveEmbeddingBaseURL returns the embedding API base URL.
// Priority: $DIRAC_EMBEDDING_BASE_URL env > config value.
func ResolveEmbeddingBaseURL(cfg *Config) string {
	if url := os.Getenv("DIRAC_EMBEDDING_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Embedding.BaseURL
	}
	return ""
}

// ResolveEmbeddingAPIKey returns the embedding API key.
// Priority: $DIRAC_EMBEDDING_API_KEY env > config value.
func ResolveEmbeddingAPIKey(cfg *Config) string {
	if key := os.Getenv("DIRAC_EMBEDDING_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Embedding.APIKey
	}
	return ""
}

// EmbeddingEnabled returns true when a base_url is configured for the
// recall embedding API.
func EmbeddingEnabled(cfg *Config) bool {
	return ResolveEmbeddingBaseURL(cfg) != ""
}
