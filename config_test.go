package dirac

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigParses(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Translator.BaseURL == "" {
		t.Error("default translator base_url is empty")
	}
	if cfg.Translator.TimeoutSeconds <= 0 {
		t.Errorf("default translator timeout = %d, want > 0", cfg.Translator.TimeoutSeconds)
	}
	if cfg.Completion.MaxCandidates <= 0 {
		t.Errorf("default max_candidates = %d, want > 0", cfg.Completion.MaxCandidates)
	}
	if cfg.History.Limit <= 0 {
		t.Errorf("default history limit = %d, want > 0", cfg.History.Limit)
	}
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := loadConfigFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}
	def := DefaultConfig()
	if cfg.Translator.Model != def.Translator.Model {
		t.Errorf("model = %q, want default %q", cfg.Translator.Model, def.Translator.Model)
	}
}

func TestLoadConfigBackfillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[translator]
model = "llama3.2"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}
	if cfg.Translator.Model != "llama3.2" {
		t.Errorf("model = %q, want llama3.2", cfg.Translator.Model)
	}
	if cfg.Translator.BaseURL == "" {
		t.Error("base_url not backfilled from defaults")
	}
	if cfg.Completion.MaxCandidates == 0 {
		t.Error("max_candidates not backfilled from defaults")
	}
}

func TestLoadConfigRejectsInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("translator = [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfigFile(path); err == nil {
		t.Error("expected parse error for invalid TOML")
	}
}

func TestEnvOverridesWinOverConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("DIRAC_TRANSLATOR_BASE_URL", "http://example.test:9999")
	if got := ResolveTranslatorBaseURL(cfg); got != "http://example.test:9999" {
		t.Errorf("base url = %q, want env override", got)
	}

	t.Setenv("DIRAC_TRANSLATOR_TIMEOUT", "7")
	if got := ResolveTranslatorTimeout(cfg); got != 7 {
		t.Errorf("timeout = %d, want 7", got)
	}

	t.Setenv("DIRAC_TRANSLATOR_TIMEOUT", "not-a-number")
	if got := ResolveTranslatorTimeout(cfg); got != cfg.Translator.TimeoutSeconds {
		t.Errorf("timeout = %d, want config fallback %d", got, cfg.Translator.TimeoutSeconds)
	}
}

func TestEmbeddingDisabledByDefault(t *testing.T) {
	t.Setenv("DIRAC_EMBEDDING_BASE_URL", "")
	if EmbeddingEnabled(DefaultConfig()) {
		t.Error("embedding should be disabled without a base_url")
	}
}

func TestConfigDirPrecedence(t *testing.T) {
	t.Setenv("DIRAC_CONFIG_DIR", "/tmp/dirac-test-config")
	if got := ConfigDir(); got != "/tmp/dirac-test-config" {
		t.Errorf("ConfigDir = %q, want DIRAC_CONFIG_DIR value", got)
	}

	t.Setenv("DIRAC_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	if got := ConfigDir(); got != filepath.Join("/tmp/xdg", "dirac") {
		t.Errorf("ConfigDir = %q, want XDG fallback", got)
	}
}
