// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/deepakparameswar/csflow/internal/core"
	pkgredis "github.com/deepakparameswar/csflow/pkg/redis"
)

// Prefix is the environment variable prefix, e.g. CSFLOW_STORE_DRIVER.
const Prefix = "CSFLOW"

// Config is the full server configuration.
type Config struct {
	Environment core.Environment `default:"development"`

	Server Server
	Store  Store
	LLM    LLM
	Search Search
	Damage Damage
	Graph  Graph

	// CorpusPath points at the YAML knowledge base. Empty uses the bundled corpus.
	CorpusPath string `split_words:"true"`
}

type Server struct {
	Addr            string        `default:":8000"`
	MetricsAddr     string        `split_words:"true" default:":9090"`
	ReadTimeout     time.Duration `split_words:"true" default:"15s"`
	WriteTimeout    time.Duration `split_words:"true" default:"2m"`
	ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
}

// Store selects the checkpoint backend.
type Store struct {
	// Driver is one of memory, sqlite, mysql, postgres, redis.
	Driver string `default:"sqlite"`

	// DSN is the SQLite path or the MySQL/PostgreSQL connection string.
	DSN string `default:"csflow.db"`

	Redis pkgredis.Config

	// Retention expires closed runs in Redis. Zero keeps them.
	Retention time.Duration `default:"168h"`
}

type LLM struct {
	// Provider is one of anthropic, openai, google, mock. It is required
	// outside development and testing, where it defaults to mock.
	Provider          string
	Model             string
	APIKey            string  `split_words:"true"`
	RequestsPerMinute float64 `split_words:"true" default:"60"`
	Burst             int     `default:"5"`
}

type Search struct {
	TavilyAPIKey string `envconfig:"TAVILY_API_KEY"`
	TavilyURL    string `envconfig:"TAVILY_URL" default:"https://api.tavily.com/search"`
}

type Damage struct {
	// URL of the damage classifier. Empty disables the assess_vehicle_damage tool backend.
	URL string
}

// Graph tunes both workflow engines.
type Graph struct {
	MaxRevisions     int           `split_words:"true" default:"3"`
	MaxSteps         int           `split_words:"true" default:"50"`
	NodeTimeout      time.Duration `split_words:"true" default:"60s"`
	RetryAttempts    int           `split_words:"true" default:"3"`
	RetryBaseDelay   time.Duration `split_words:"true" default:"500ms"`
	DeleteOnComplete bool          `split_words:"true"`
	RestartCompleted bool          `split_words:"true" default:"true"`
}

var (
	drivers   = map[string]bool{"memory": true, "sqlite": true, "mysql": true, "postgres": true, "redis": true}
	providers = map[string]bool{"anthropic": true, "openai": true, "google": true, "mock": true}
)

// Load reads .env files (if present) and then the process environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if cfg.LLM.Provider == "" && cfg.Environment.AllowsMock() {
		cfg.LLM.Provider = "mock"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated and dependent settings.
func (c *Config) Validate() error {
	var errs []error
	if !drivers[c.Store.Driver] {
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Driver == "redis" && c.Store.Redis.URL == "" {
		errs = append(errs, errors.New("redis store requires CSFLOW_STORE_REDIS_URL"))
	}
	if (c.Store.Driver == "mysql" || c.Store.Driver == "postgres") && c.Store.DSN == "" {
		errs = append(errs, fmt.Errorf("%s store requires CSFLOW_STORE_DSN", c.Store.Driver))
	}
	switch {
	case c.LLM.Provider == "":
		errs = append(errs, fmt.Errorf("%s environment requires CSFLOW_LLM_PROVIDER", c.Environment))
	case !providers[c.LLM.Provider]:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	case c.LLM.Provider == "mock" && c.Environment.IsProduction():
		errs = append(errs, errors.New("mock llm provider is not allowed in production"))
	}
	if c.LLM.Provider != "" && c.LLM.Provider != "mock" && c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm provider %s requires CSFLOW_LLM_API_KEY", c.LLM.Provider))
	}
	if c.Graph.MaxRevisions < 1 {
		errs = append(errs, errors.New("graph max revisions must be at least 1"))
	}
	if c.Graph.RetryAttempts < 1 {
		errs = append(errs, errors.New("graph retry attempts must be at least 1"))
	}
	return errors.Join(errs...)
}
