package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hagwon-ai/hagwon/internal/cache"
	"github.com/hagwon-ai/hagwon/internal/materials"
	"github.com/hagwon-ai/hagwon/internal/rag"
	"github.com/hagwon-ai/hagwon/internal/search"
	"github.com/hagwon-ai/hagwon/provider"
)

func (s *Server) register(api *echo.Group) {
	api.POST("/ask", s.handleAsk)
	api.POST("/ask/stream", s.handleAskStream)
	api.POST("/ingest", s.handleIngest)
	api.DELETE("/documents/:id", s.handleDeleteDocument)
	api.GET("/documents", s.handleListDocuments)
	api.POST("/search", s.handleSearch)
	api.GET("/embeddings/status", s.handleEmbeddingStatus)
	api.GET("/cache/stats", s.handleCacheStats)
	api.POST("/materials", s.handleMaterials)
}

type askRequest struct {
	Question                string             `json:"question"`
	Subject                 string             `json:"subject"`
	Category                string             `json:"category"`
	MaxSources              int                `json:"max_sources"`
	SimilarityThreshold     float64            `json:"similarity_threshold"`
	IncludeWebSearch        *bool              `json:"include_web_search"`
	IncludeGeneralKnowledge *bool              `json:"include_general_knowledge"`
	History                 []provider.Message `json:"history"`
}

func (r askRequest) options(webDefault bool) rag.AskOptions {
	includeWeb := webDefault
	if r.IncludeWebSearch != nil {
		includeWeb = *r.IncludeWebSearch
	}
	includeGeneral := true
	if r.IncludeGeneralKnowledge != nil {
		includeGeneral = *r.IncludeGeneralKnowledge
	}
	return rag.AskOptions{
		MaxSources:              r.MaxSources,
		SimilarityThreshold:     r.SimilarityThreshold,
		IncludeWebSearch:        includeWeb,
		IncludeGeneralKnowledge: includeGeneral,
		History:                 r.History,
	}
}

func (s *Server) handleAsk(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question required")
	}

	resp, err := s.orchestrator.Answer(c.Request().Context(),
		req.Question,
		rag.Scope{Subject: req.Subject, Category: req.Category},
		req.options(s.cfg.Search.WebEnabled),
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAskStream(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question required")
	}

	stream, meta, err := s.orchestrator.Stream(c.Request().Context(),
		req.Question,
		rag.Scope{Subject: req.Subject, Category: req.Category},
		req.options(s.cfg.Search.WebEnabled),
	)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.WriteHeader(http.StatusOK)

	metaPayload, _ := json.Marshal(map[string]interface{}{
		"response_type": meta.ResponseType,
		"confidence":    meta.Confidence,
		"sources":       meta.Sources,
	})
	fmt.Fprintf(res, "event: meta\ndata: %s\n\n", metaPayload)
	res.Flush()

	for chunk := range stream {
		if chunk.Done {
			fmt.Fprint(res, "event: done\ndata: {}\n\n")
			res.Flush()
			break
		}
		payload, _ := json.Marshal(map[string]string{"content": chunk.Content})
		fmt.Fprintf(res, "data: %s\n\n", payload)
		res.Flush()
	}
	return nil
}

type ingestRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (s *Server) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title and content required")
	}

	result, err := s.pipeline.IngestDocument(c.Request().Context(), req.Title, req.Content)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	id := c.Param("id")
	if err := s.store.DeleteDocument(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	docs, err := s.store.ListDocuments(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, docs)
}

type searchRequest struct {
	Query            string `json:"query"`
	Subject          string `json:"subject"`
	IncludeWebSearch *bool  `json:"include_web_search"`
	MaxVectorResults int    `json:"max_vector_results"`
	MaxWebResults    int    `json:"max_web_results"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}

	includeWeb := s.cfg.Search.WebEnabled
	if req.IncludeWebSearch != nil {
		includeWeb = *req.IncludeWebSearch
	}

	results, err := s.retriever.Retrieve(c.Request().Context(), req.Query, search.Options{
		Subject:          req.Subject,
		IncludeWebSearch: includeWeb,
		MaxVectorResults: req.MaxVectorResults,
		MaxWebResults:    req.MaxWebResults,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"results": results,
		"quality": search.Evaluate(results),
	})
}

func (s *Server) handleEmbeddingStatus(c echo.Context) error {
	report, err := s.store.EmbeddingStatus(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleCacheStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.matCache.Stats())
}

type materialsRequest struct {
	Room     materials.Room `json:"room"`
	Progress struct {
		CurrentStep   int    `json:"current_step"`
		Level         string `json:"level"`
		TotalProgress int    `json:"total_progress"`
	} `json:"progress"`
}

func (s *Server) handleMaterials(c echo.Context) error {
	var req materialsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Room.ID) == "" || strings.TrimSpace(req.Room.Subject) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "room id and subject required")
	}

	categories, source, err := s.materials.Generate(c.Request().Context(), req.Room, materials.Progress{
		CurrentStep:   req.Progress.CurrentStep,
		Level:         cache.Level(req.Progress.Level),
		TotalProgress: req.Progress.TotalProgress,
	})
	if err != nil {
		// fallback materials still get returned
		s.logger.Printf("material generation degraded: %v", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"categories": categories,
		"source":     source,
	})
}
