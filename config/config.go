package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the knowledge service
type Config struct {
	General GeneralConfig `mapstructure:"general"`
	Server  ServerConfig  `mapstructure:"server"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Search  SearchConfig  `mapstructure:"search"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Storage StorageConfig `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains the OpenAI provider configuration
type LLMConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	CompletionModel     string        `mapstructure:"completion_model"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	EmbeddingDimensions int           `mapstructure:"embedding_dimensions"`
	Temperature         float64       `mapstructure:"temperature"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.CompletionModel) == "" {
		return fmt.Errorf("llm.completion_model required")
	}
	if strings.TrimSpace(l.EmbeddingModel) == "" {
		return fmt.Errorf("llm.embedding_model required")
	}
	if l.EmbeddingDimensions <= 0 {
		return fmt.Errorf("llm.embedding_dimensions must be > 0")
	}
	return nil
}

// IngestConfig controls document chunking and embedding backfill.
type IngestConfig struct {
	MaxChunkSize     int           `mapstructure:"max_chunk_size"`
	ChunkOverlap     int           `mapstructure:"chunk_overlap"`
	EmbedConcurrency int           `mapstructure:"embed_concurrency"`
	EmbedDelay       time.Duration `mapstructure:"embed_delay"`
	BatchSize        int           `mapstructure:"batch_size"`
}

func (i IngestConfig) Validate() error {
	if i.MaxChunkSize <= 0 {
		return fmt.Errorf("ingest.max_chunk_size must be > 0")
	}
	if i.ChunkOverlap < 0 || i.ChunkOverlap >= i.MaxChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, max_chunk_size)")
	}
	return nil
}

// SearchConfig controls hybrid retrieval behaviour.
type SearchConfig struct {
	VectorThreshold  float64       `mapstructure:"vector_threshold"`
	HighQualityScore float64       `mapstructure:"high_quality_score"`
	MaxVectorResults int           `mapstructure:"max_vector_results"`
	MaxWebResults    int           `mapstructure:"max_web_results"`
	WebEnabled       bool          `mapstructure:"web_enabled"`
	TavilyAPIKey     string        `mapstructure:"tavily_api_key"`
	WebCacheTTL      time.Duration `mapstructure:"web_cache_ttl"`
	WebTimeout       time.Duration `mapstructure:"web_timeout"`
}

func (s SearchConfig) Validate() error {
	if s.VectorThreshold < 0 || s.VectorThreshold > 1 {
		return fmt.Errorf("search.vector_threshold must be in [0, 1]")
	}
	if s.MaxVectorResults <= 0 {
		return fmt.Errorf("search.max_vector_results must be > 0")
	}
	return nil
}

// CacheConfig controls the generated-artifact cache.
type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	Capacity        int           `mapstructure:"capacity"`
	ProgressQuantum int           `mapstructure:"progress_quantum"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

func (c CacheConfig) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be > 0")
	}
	if c.ProgressQuantum <= 0 {
		return fmt.Errorf("cache.progress_quantum must be > 0")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a connection string usable by lib/pq and golang-migrate.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, sslmode)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("llm.completion_model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.embedding_dimensions", 1536)
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.max_tokens", 1000)
	viper.SetDefault("llm.timeout", time.Minute)
	viper.SetDefault("ingest.max_chunk_size", 2000)
	viper.SetDefault("ingest.chunk_overlap", 200)
	viper.SetDefault("ingest.embed_concurrency", 1)
	viper.SetDefault("ingest.embed_delay", 200*time.Millisecond)
	viper.SetDefault("ingest.batch_size", 16)
	viper.SetDefault("search.vector_threshold", 0.7)
	viper.SetDefault("search.high_quality_score", 0.8)
	viper.SetDefault("search.max_vector_results", 8)
	viper.SetDefault("search.max_web_results", 3)
	viper.SetDefault("search.web_enabled", true)
	viper.SetDefault("search.web_cache_ttl", 24*time.Hour)
	viper.SetDefault("search.web_timeout", 10*time.Second)
	viper.SetDefault("cache.ttl", 30*time.Minute)
	viper.SetDefault("cache.capacity", 50)
	viper.SetDefault("cache.progress_quantum", 25)
	viper.SetDefault("cache.sweep_interval", 5*time.Minute)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("HAGWON")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv() // read in environment variables that match (HAGWON_*)

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.LLM.Validate(); err != nil {
		panic(err)
	}
	if err := config.Ingest.Validate(); err != nil {
		panic(err)
	}
	if err := config.Search.Validate(); err != nil {
		panic(err)
	}
	if err := config.Cache.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	return &config
}
