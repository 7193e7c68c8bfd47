package server

import (
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hagwon-ai/hagwon/config"
)

func testServer() *Server {
	return &Server{
		cfg:    &config.Config{},
		logger: log.New(log.Writer(), "[SERVER] ", log.LstdFlags),
	}
}

func TestHealthz(t *testing.T) {
	e := testServer().echoServer()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestErrorHandlerReturnsJSON(t *testing.T) {
	e := testServer().echoServer()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("non-JSON error body: %s", rec.Body.String())
	}
	if body["error"] == nil {
		t.Errorf("body = %v", body)
	}
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	e := testServer().echoServer()

	req := httptest.NewRequest(http.MethodPost, "/api/ask", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestIngestRejectsMissingFields(t *testing.T) {
	e := testServer().echoServer()

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := testServer().echoServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
