package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Database struct {
		Driver           string `yaml:"driver"`
		ConnectionString string `yaml:"connection_string"`
		SQLitePath       string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Ollama struct {
		BaseURL      string        `yaml:"base_url"`
		DefaultModel string        `yaml:"default_model"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"ollama"`
	Embeddings struct {
		TextModel string `yaml:"text_model"`
	} `yaml:"embeddings"`
	Processing struct {
		ChunkSize          int  `yaml:"chunk_size"`
		ChunkOverlap       int  `yaml:"chunk_overlap"`
		TopK               int  `yaml:"top_k"`
		OCRDPI             int  `yaml:"ocr_dpi"`
		MinTextChars       int  `yaml:"min_text_chars"`
		ReplaceOnReprocess bool `yaml:"replace_on_reprocess"`
		Workers            int  `yaml:"workers"`
	} `yaml:"processing"`
	LLM struct {
		Temperature    float64 `yaml:"temperature"`
		MaxConcurrency int     `yaml:"max_concurrency"`
	} `yaml:"llm"`
	VectorStore struct {
		Backend string `yaml:"backend"`
	} `yaml:"vector_store"`
	Paths struct {
		DataDir string `yaml:"data_dir"`
	} `yaml:"paths"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Queue struct {
		AMQPURL   string `yaml:"amqp_url"`
		QueueName string `yaml:"queue_name"`
	} `yaml:"queue"`
	Redis struct {
		URL     string        `yaml:"url"`
		LockTTL time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
}

// DefaultPath is ~/.docsift/config.yaml
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".docsift", "config.yaml")
}

// Load reads configuration from path (DefaultPath when empty), then applies
// .env and environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save saves configuration to path
func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Database.Driver = "sqlite"
	cfg.Database.ConnectionString = "postgres://postgres@localhost/docsift?sslmode=disable"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.DefaultModel = ""
	cfg.Ollama.Timeout = 2 * time.Minute
	cfg.Embeddings.TextModel = "nomic-embed-text"
	cfg.Processing.ChunkSize = 1000
	cfg.Processing.ChunkOverlap = 200
	cfg.Processing.TopK = 5
	cfg.Processing.OCRDPI = 300
	cfg.Processing.MinTextChars = 20
	cfg.Processing.ReplaceOnReprocess = true
	cfg.Processing.Workers = 2
	cfg.LLM.Temperature = 0.3
	cfg.LLM.MaxConcurrency = 4
	cfg.VectorStore.Backend = "file"
	cfg.Paths.DataDir = "./data"
	cfg.Server.Port = "8000"
	cfg.Queue.QueueName = "docsift.ingest"
	cfg.Redis.LockTTL = 30 * time.Minute
	cfg.Log.Mode = "dev"

	return cfg
}

// SQLitePath returns the metadata database path, defaulting under the data dir
func (c *Config) SQLitePath() string {
	if c.Database.SQLitePath != "" {
		return c.Database.SQLitePath
	}
	return filepath.Join(c.Paths.DataDir, "docsift.db")
}

// Validate checks values that would otherwise fail deep inside the pipeline
func (c *Config) Validate() error {
	p := c.Processing
	if p.ChunkSize <= 0 {
		return fmt.Errorf("processing.chunk_size must be positive, got %d", p.ChunkSize)
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		return fmt.Errorf("processing.chunk_overlap must be in [0, chunk_size), got %d", p.ChunkOverlap)
	}
	if p.TopK <= 0 {
		return fmt.Errorf("processing.top_k must be positive, got %d", p.TopK)
	}
	if p.OCRDPI <= 0 {
		return fmt.Errorf("processing.ocr_dpi must be positive, got %d", p.OCRDPI)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	switch c.VectorStore.Backend {
	case "file":
	case "pgvector":
		if c.Database.ConnectionString == "" {
			return errors.New("vector_store.backend pgvector requires database.connection_string")
		}
	default:
		return fmt.Errorf("unknown vector_store.backend %q", c.VectorStore.Backend)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.Driver, "DOCSIFT_DATABASE_DRIVER")
	setString(&c.Database.ConnectionString, "DOCSIFT_DATABASE_URL")
	setString(&c.Ollama.BaseURL, "OLLAMA_URL")
	setString(&c.Ollama.DefaultModel, "OLLAMA_MODEL")
	setString(&c.Embeddings.TextModel, "DOCSIFT_EMBEDDING_MODEL")
	setString(&c.VectorStore.Backend, "DOCSIFT_VECTOR_BACKEND")
	setString(&c.Paths.DataDir, "DOCSIFT_DATA_DIR")
	setString(&c.Server.Port, "DOCSIFT_PORT")
	setString(&c.Queue.AMQPURL, "AMQP_URL")
	setString(&c.Redis.URL, "REDIS_URL")
	setString(&c.Log.Mode, "DOCSIFT_LOG_MODE")
	if v := os.Getenv("DOCSIFT_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Processing.TopK = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
