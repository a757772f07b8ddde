// Package server exposes the gateway's HTTP surface: a health check, a
// route listing, runtime stats, Prometheus metrics, and a debug
// websocket stream of routed channel/payload pairs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves up HTTP on Addr (default 0.0.0.0:8011). It takes care
// of the REST API and the debug websocket upgrade.
type Server struct {
	*http.Server   `json:"-"`
	*http.ServeMux `json:"-"`

	EndPoints sync.Map `json:"routes"`
}

var server *Server

// GetServer returns the process-wide Server singleton, creating it on
// first use.
func GetServer() *Server {
	if server == nil {
		server = NewServer()
	}
	return server
}

func NewServer() *Server {
	s := &Server{
		Server: &http.Server{
			Addr: ":8011",
		},
	}
	s.ServeMux = http.NewServeMux()
	return s
}

// Register handles HTTP requests for a particular path.
func (s *Server) Register(p string, h http.Handler) error {
	if p == "" || h == nil {
		return errors.New("Server.Register can not have null path or handler")
	}

	// Check if already registered to avoid duplicate registration errors
	_, alreadyRegistered := s.EndPoints.Load(p)
	if alreadyRegistered {
		return nil
	}

	s.EndPoints.Store(p, h)
	s.Handle(p, h)
	return nil
}

// Start registers every REST/debug endpoint and serves until done is
// closed.
func (s *Server) Start(done chan any) {
	s.Register("/ping", Ping{})
	s.Register("/api", s)
	s.Register("/api/stats", StatsHandler{})
	s.Register("/metrics", promhttp.Handler())
	s.Register("/ws/events", WServe{})

	slog.Info("starting gateway HTTP server", "addr", s.Addr)
	go http.ListenAndServe(s.Addr, s.ServeMux)
	<-done
	s.Shutdown(context.Background())
}

func (s *Server) EndPointCount() int {
	count := 0
	s.EndPoints.Range(func(k, v any) bool {
		count++
		return true
	})
	return count
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ep := struct {
		Routes []string
	}{}
	s.EndPoints.Range(func(k, v any) bool {
		ep.Routes = append(ep.Routes, k.(string))
		return true
	})

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(ep)
	if err != nil {
		slog.Error("Server.ServeHTTP failed to encode", "error", err)
	}
}

// Ping answers every request with a bare 200, for load balancer and
// orchestrator health checks.
type Ping struct{}

func (Ping) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
