// Package testserver runs the real HTTP API over a seeded in-memory store
// for client and controller tests.
package testserver

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"marketbaza/internal/httpapi"
	"marketbaza/internal/service"
	"marketbaza/internal/store/memory"
)

const (
	AdminEmail     = "admin@marketbaza.local"
	AdminPassword  = "admin123"
	BazaEmail      = "baza@marketbaza.local"
	BazaPassword   = "baza123"
	MarketEmail    = "market1@marketbaza.local"
	MarketPassword = "market123"
)

type Server struct {
	HTTP  *httptest.Server
	Store *memory.Store
}

// Start serves the API under /api on a local listener until the test ends.
func Start(t testing.TB) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := memory.NewSeeded()
	svc := service.New(repo, logger)
	auth := httpapi.NewAuthManager("testserver-secret-0123456789abcdef", time.Hour, repo)
	api := httpapi.New(svc, auth, "*", logger, httpapi.WithLoginLimit(1000))

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &Server{HTTP: srv, Store: repo}
}

// BaseURL is the API root clients are configured with.
func (s *Server) BaseURL() string {
	return s.HTTP.URL + "/api"
}
