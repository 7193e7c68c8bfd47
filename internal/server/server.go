package server

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hagwon-ai/hagwon/config"
	"github.com/hagwon-ai/hagwon/internal/cache"
	"github.com/hagwon-ai/hagwon/internal/embedding"
	"github.com/hagwon-ai/hagwon/internal/ingest"
	"github.com/hagwon-ai/hagwon/internal/materials"
	"github.com/hagwon-ai/hagwon/internal/rag"
	"github.com/hagwon-ai/hagwon/internal/search"
	"github.com/hagwon-ai/hagwon/internal/store"
	openai_provider "github.com/hagwon-ai/hagwon/provider/openai"
	"github.com/hagwon-ai/hagwon/tools/websearch"
)

// Server holds the wired dependencies behind the HTTP API.
type Server struct {
	cfg          *config.Config
	store        *store.Store
	retriever    *search.HybridRetriever
	orchestrator *rag.Orchestrator
	pipeline     *ingest.Pipeline
	materials    *materials.Engine
	matCache     *cache.Cache[[]materials.MaterialCategory]
	logger       *log.Logger
}

// Run wires everything from config and serves until the listener fails.
func Run(cfg *config.Config) error {
	ctx := context.Background()

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		log.Printf("[SERVER] migrations skipped: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Storage.Postgres.DSN())
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Host + ":" + cfg.Storage.Redis.Port,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	llm := openai_provider.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.CompletionModel,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.EmbeddingDimensions,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.Timeout,
	)

	st := &store.Store{DB: db}
	embedder := embedding.NewClient(llm, cfg.LLM.EmbeddingDimensions, cfg.Ingest.BatchSize)

	searcher, err := websearch.NewSearcher(websearch.TavilyProvider, cfg.Search.TavilyAPIKey)
	if err != nil {
		return err
	}
	cachedSearcher := websearch.NewCached(searcher, rdb, cfg.Search.WebCacheTTL)

	retriever := search.NewHybridRetriever(embedder, st, cachedSearcher, cfg.Search)
	orchestrator := rag.NewOrchestrator(retriever, llm)
	pipeline := ingest.NewPipeline(st, embedder, cfg.Ingest, cfg.LLM.EmbeddingModel)

	matCache := cache.New[[]materials.MaterialCategory](cfg.Cache.TTL, cfg.Cache.Capacity, cfg.Cache.ProgressQuantum, nil)
	matCache.StartSweeper(ctx, cfg.Cache.SweepInterval)
	matEngine := materials.NewEngine(llm, matCache)

	s := &Server{
		cfg:          cfg,
		store:        st,
		retriever:    retriever,
		orchestrator: orchestrator,
		pipeline:     pipeline,
		materials:    matEngine,
		matCache:     matCache,
		logger:       log.New(log.Writer(), "[SERVER] ", log.LstdFlags),
	}

	e := s.echoServer()
	return e.Start(cfg.Server.Address)
}

func (s *Server) echoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	s.register(api)
	return e
}
