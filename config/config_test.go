package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{
  "llm": {"api_key": "sk-test", "max_tokens": 2000},
  "search": {"web_enabled": false},
  "storage": {
    "postgres": {"host": "localhost", "port": "5432", "dbname": "hagwon"},
    "redis": {"host": "localhost", "port": "6379"}
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := LoadConfig(path)

	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.MaxTokens != 2000 {
		t.Errorf("max tokens = %d", cfg.LLM.MaxTokens)
	}
	if cfg.Search.WebEnabled {
		t.Error("web_enabled override lost")
	}

	// unset fields come from defaults
	if cfg.LLM.EmbeddingModel != "text-embedding-3-small" || cfg.LLM.EmbeddingDimensions != 1536 {
		t.Errorf("embedding defaults: %q/%d", cfg.LLM.EmbeddingModel, cfg.LLM.EmbeddingDimensions)
	}
	if cfg.Ingest.MaxChunkSize != 2000 || cfg.Ingest.ChunkOverlap != 200 {
		t.Errorf("ingest defaults: %d/%d", cfg.Ingest.MaxChunkSize, cfg.Ingest.ChunkOverlap)
	}
	if cfg.Cache.TTL != 30*time.Minute {
		t.Errorf("cache ttl = %s", cfg.Cache.TTL)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: "5432", User: "u", Password: "pw", DBName: "hagwon"}
	want := "postgres://u:pw@db:5432/hagwon?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	p.URL = "postgres://direct"
	if got := p.DSN(); got != "postgres://direct" {
		t.Errorf("url should win, got %q", got)
	}
}

func TestValidation(t *testing.T) {
	if err := (LLMConfig{CompletionModel: "m", EmbeddingModel: "e", EmbeddingDimensions: 8}).Validate(); err != nil {
		t.Errorf("valid llm config rejected: %v", err)
	}
	if err := (LLMConfig{CompletionModel: "m", EmbeddingModel: "e"}).Validate(); err == nil {
		t.Error("zero dimensions accepted")
	}
	if err := (IngestConfig{MaxChunkSize: 100, ChunkOverlap: 100}).Validate(); err == nil {
		t.Error("overlap equal to chunk size accepted")
	}
	if err := (SearchConfig{VectorThreshold: 1.5, MaxVectorResults: 1}).Validate(); err == nil {
		t.Error("out-of-range threshold accepted")
	}
	if err := (PostgresConfig{URL: "postgres://x"}).Validate(); err != nil {
		t.Errorf("url-only postgres config rejected: %v", err)
	}
	if err := (PostgresConfig{Host: "h", Port: "5432"}).Validate(); err == nil {
		t.Error("missing dbname accepted")
	}
}
