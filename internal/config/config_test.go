package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deepakparameswar/csflow/internal/core"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Environment != core.Development {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "csflow.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.LLM.Provider != "mock" {
		t.Errorf("LLM.Provider = %q", cfg.LLM.Provider)
	}
	if cfg.Graph.MaxRevisions != 3 {
		t.Errorf("Graph.MaxRevisions = %d, want 3", cfg.Graph.MaxRevisions)
	}
	if cfg.Graph.NodeTimeout != time.Minute {
		t.Errorf("Graph.NodeTimeout = %v", cfg.Graph.NodeTimeout)
	}
	if !cfg.Graph.RestartCompleted {
		t.Error("Graph.RestartCompleted should default to true")
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CSFLOW_ENVIRONMENT", "production")
	t.Setenv("CSFLOW_STORE_DRIVER", "redis")
	t.Setenv("CSFLOW_STORE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CSFLOW_STORE_RETENTION", "1h")
	t.Setenv("CSFLOW_LLM_PROVIDER", "anthropic")
	t.Setenv("CSFLOW_LLM_API_KEY", "sk-test")
	t.Setenv("CSFLOW_GRAPH_MAX_REVISIONS", "5")
	t.Setenv("CSFLOW_SEARCH_TAVILY_API_KEY", "tvly-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Environment.IsProduction() {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.Store.Redis.URL != "redis://localhost:6379/0" {
		t.Errorf("Store.Redis.URL = %q", cfg.Store.Redis.URL)
	}
	if cfg.Store.Retention != time.Hour {
		t.Errorf("Store.Retention = %v", cfg.Store.Retention)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("LLM.APIKey = %q", cfg.LLM.APIKey)
	}
	if cfg.Graph.MaxRevisions != 5 {
		t.Errorf("Graph.MaxRevisions = %d", cfg.Graph.MaxRevisions)
	}
	if cfg.Search.TavilyAPIKey != "tvly-test" {
		t.Errorf("Search.TavilyAPIKey = %q", cfg.Search.TavilyAPIKey)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CSFLOW_CORPUS_PATH=/srv/corpus.yaml\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CSFLOW_CORPUS_PATH") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CorpusPath != "/srv/corpus.yaml" {
		t.Errorf("CorpusPath = %q", cfg.CorpusPath)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }, "unknown store driver"},
		{"redis without url", func(c *Config) { c.Store.Driver = "redis" }, "CSFLOW_STORE_REDIS_URL"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres"; c.Store.DSN = "" }, "CSFLOW_STORE_DSN"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "groq" }, "unknown llm provider"},
		{"missing key", func(c *Config) { c.LLM.Provider = "openai" }, "CSFLOW_LLM_API_KEY"},
		{"zero revisions", func(c *Config) { c.Graph.MaxRevisions = 0 }, "max revisions"},
		{"production without provider", func(c *Config) {
			c.Environment = core.Production
			c.LLM.Provider = ""
		}, "requires CSFLOW_LLM_PROVIDER"},
		{"production with mock", func(c *Config) { c.Environment = core.Production }, "not allowed in production"},
		{"staging with mock", func(c *Config) { c.Environment = core.Staging }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				Store: Store{Driver: "sqlite", DSN: "csflow.db"},
				LLM:   LLM{Provider: "mock"},
				Graph: Graph{MaxRevisions: 3, RetryAttempts: 1},
			}
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ProviderRequiredInProduction(t *testing.T) {
	t.Setenv("CSFLOW_ENVIRONMENT", "production")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil || !strings.Contains(err.Error(), "CSFLOW_LLM_PROVIDER") {
		t.Fatalf("error = %v, want missing provider", err)
	}
}

func TestLoad_StagingWithoutProvider(t *testing.T) {
	t.Setenv("CSFLOW_ENVIRONMENT", "staging")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected an error when staging has no llm provider")
	}
}
