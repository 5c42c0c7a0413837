package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "motorcortex" {
		t.Errorf("expected Name=motorcortex, got %s", cfg.Name)
	}
	if cfg.LLM.BaseURL != "http://127.0.0.1:11434" {
		t.Errorf("expected local Ollama base URL, got %s", cfg.LLM.BaseURL)
	}
	if cfg.Resolver.CacheSize != 100 {
		t.Errorf("expected CacheSize=100, got %d", cfg.Resolver.CacheSize)
	}
	if cfg.Controller.QueueSize != 64 {
		t.Errorf("expected QueueSize=64, got %d", cfg.Controller.QueueSize)
	}
	if !cfg.Resolver.EnableSearchFallback || !cfg.Resolver.EnableHomepageFallback {
		t.Error("expected both fallbacks enabled by default")
	}
	if cfg.Browser.EnableFormFill {
		t.Error("expected form fill disabled by default")
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("MOTOR_DATA_DIR", "")
	t.Setenv("EASY_OLLAMA_URL", "")
	t.Setenv("EASY_OLLAMA_MODEL", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.ClientOS = "windows"
	cfg.LLM.Model = "qwen2.5:7b"
	cfg.Resolver.CacheSize = 10

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.ClientOS != "windows" {
		t.Errorf("expected ClientOS=windows, got %s", loaded.ClientOS)
	}
	if loaded.LLM.Model != "qwen2.5:7b" {
		t.Errorf("expected Model=qwen2.5:7b, got %s", loaded.LLM.Model)
	}
	if loaded.Resolver.CacheSize != 10 {
		t.Errorf("expected CacheSize=10, got %d", loaded.Resolver.CacheSize)
	}
}

func TestConfig_LoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("MOTOR_DATA_DIR", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "motorcortex" {
		t.Errorf("expected defaults, got Name=%s", cfg.Name)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("MOTOR_DATA_DIR", "/tmp/motor-test")
	t.Setenv("MOTOR_CLIENT_OS", "darwin")
	t.Setenv("EASY_OLLAMA_URL", "http://127.0.0.1:9999")
	t.Setenv("EASY_OLLAMA_MODEL", "mistral:7b")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DataDir != "/tmp/motor-test" {
		t.Errorf("expected DataDir override, got %s", cfg.DataDir)
	}
	if cfg.ClientOS != "darwin" {
		t.Errorf("expected ClientOS override, got %s", cfg.ClientOS)
	}
	if cfg.LLM.BaseURL != "http://127.0.0.1:9999" {
		t.Errorf("expected BaseURL override, got %s", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "mistral:7b" {
		t.Errorf("expected Model override, got %s", cfg.LLM.Model)
	}
}

func TestConfig_DurationGetters(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.GetCacheTTL(); got != 15*time.Minute {
		t.Errorf("expected 15m TTL, got %v", got)
	}
	if got := cfg.GetCommandTimeout(); got != 12*time.Second {
		t.Errorf("expected 12s command timeout, got %v", got)
	}

	cfg.Controller.CommandTimeout = "-5s"
	if got := cfg.GetCommandTimeout(); got != 0 {
		t.Errorf("negative timeout should disable the limit, got %v", got)
	}

	cfg.Resolver.CacheTTL = "garbage"
	if got := cfg.GetCacheTTL(); got != 15*time.Minute {
		t.Errorf("unparseable TTL should fall back to 15m, got %v", got)
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/srv/motor"

	if got := cfg.BrowserProfileDir(); got != filepath.Join("/srv/motor", "browser_profile") {
		t.Errorf("unexpected browser profile dir: %s", got)
	}
	if got := cfg.HistoryPath(); got != filepath.Join("/srv/motor", "history.db") {
		t.Errorf("unexpected history path: %s", got)
	}
	cfg.History.Path = "/elsewhere/audit.db"
	if got := cfg.HistoryPath(); got != "/elsewhere/audit.db" {
		t.Errorf("explicit history path should win: %s", got)
	}
}
